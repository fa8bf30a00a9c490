package wal

import (
	"encoding/binary"
	"hash/crc32"
)

// Encode lays out a record as LSN(8) | Len(4) | CRC(4) | Data, matching the
// teacher's on-disk WAL wire format.
func (r *Record) Encode() []byte {
	buf := make([]byte, RecordHeaderSize+len(r.Data))
	binary.BigEndian.PutUint64(buf[0:8], r.LSN)
	binary.BigEndian.PutUint32(buf[8:12], uint32(len(r.Data)))
	binary.BigEndian.PutUint32(buf[12:16], r.CRC)
	copy(buf[RecordHeaderSize:], r.Data)
	return buf
}

func (r *Record) ValidateCRC() bool {
	return calculateCRC(r.LSN, r.Data) == r.CRC
}

func calculateCRC(lsn uint64, data []byte) uint32 {
	h := crc32.NewIEEE()
	var lsnBytes [8]byte
	binary.BigEndian.PutUint64(lsnBytes[:], lsn)
	h.Write(lsnBytes[:])
	h.Write(data)
	return h.Sum32()
}
