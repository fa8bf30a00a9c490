// Package heap implements the slotted-page heap access method described in
// spec.md §4.3: records live in forward-growing slots, a backward-growing
// slot directory maps slot index to record, and deletes tombstone rather
// than compact.
package heap

import (
	"encoding/binary"

	"coredb/dberr"
	"coredb/storage/page"
	"coredb/types"
)

// Heap page binary layout (little-endian), continuing past the shared
// frame header (LSN at 0, PageType at 8, checksum at 9-12):
//
//	Offset  Size  Field
//	13      4     FileID
//	17      4     PageNo
//	21      2     RecordEndPtr    — first free byte after the last record
//	23      2     SlotRegionStart — first byte of the slot directory
//	25      2     NumRows         — live records
//	27      2     NumRowsFree     — tombstoned slots
//	29      2     IsPageFull
//	31      2     SlotCount
//	33            HeapHeaderSize (types.HeapPageHeaderSize)
//
// Records grow forward from HeapHeaderSize; the slot directory grows
// backward from PageSize. A slot is 4 bytes: Offset(2) Length(2); Length==0
// marks a tombstone.
const (
	offFileID          = 13
	offPageNo          = 17
	offRecordEndPtr    = 21
	offSlotRegionStart = 23
	offNumRows         = 25
	offNumRowsFree     = 27
	offIsPageFull      = 29
	offSlotCount       = 31

	HeapHeaderSize = types.HeapPageHeaderSize
	SlotSize       = types.SlotSize
)

// InitHeapPage stamps a fresh heap-page header, zeroing everything past the
// page-type byte so a recycled frame starts clean.
func InitHeapPage(pg *page.Page) {
	for i := page.PageTypeOffset + 1; i < page.PageSize; i++ {
		pg.Data[i] = 0
	}
	binary.LittleEndian.PutUint64(pg.Data[page.PageLSNOffset:], 0)
	binary.LittleEndian.PutUint32(pg.Data[offFileID:], pg.FileID)
	binary.LittleEndian.PutUint32(pg.Data[offPageNo:], 0)
	binary.LittleEndian.PutUint16(pg.Data[offRecordEndPtr:], HeapHeaderSize)
	binary.LittleEndian.PutUint16(pg.Data[offSlotRegionStart:], page.PageSize)
	binary.LittleEndian.PutUint16(pg.Data[offNumRows:], 0)
	binary.LittleEndian.PutUint16(pg.Data[offNumRowsFree:], 0)
	binary.LittleEndian.PutUint16(pg.Data[offIsPageFull:], 0)
	binary.LittleEndian.PutUint16(pg.Data[offSlotCount:], 0)
	pg.LSN = 0
	pg.IsDirty = true
}

func GetFileID(pg *page.Page) uint32 { return binary.LittleEndian.Uint32(pg.Data[offFileID:]) }

func GetPageNo(pg *page.Page) uint32 { return binary.LittleEndian.Uint32(pg.Data[offPageNo:]) }
func SetPageNo(pg *page.Page, n uint32) {
	binary.LittleEndian.PutUint32(pg.Data[offPageNo:], n)
	pg.IsDirty = true
}

func GetRecordEndPtr(pg *page.Page) uint16 {
	return binary.LittleEndian.Uint16(pg.Data[offRecordEndPtr:])
}
func setRecordEndPtr(pg *page.Page, v uint16) {
	binary.LittleEndian.PutUint16(pg.Data[offRecordEndPtr:], v)
}

func GetSlotRegionStart(pg *page.Page) uint16 {
	return binary.LittleEndian.Uint16(pg.Data[offSlotRegionStart:])
}
func setSlotRegionStart(pg *page.Page, v uint16) {
	binary.LittleEndian.PutUint16(pg.Data[offSlotRegionStart:], v)
}

func GetNumRows(pg *page.Page) uint16 { return binary.LittleEndian.Uint16(pg.Data[offNumRows:]) }
func setNumRows(pg *page.Page, n uint16) {
	binary.LittleEndian.PutUint16(pg.Data[offNumRows:], n)
}

func GetNumRowsFree(pg *page.Page) uint16 {
	return binary.LittleEndian.Uint16(pg.Data[offNumRowsFree:])
}
func setNumRowsFree(pg *page.Page, n uint16) {
	binary.LittleEndian.PutUint16(pg.Data[offNumRowsFree:], n)
}

func GetIsPageFull(pg *page.Page) bool {
	return binary.LittleEndian.Uint16(pg.Data[offIsPageFull:]) == 1
}
func setIsPageFull(pg *page.Page, full bool) {
	v := uint16(0)
	if full {
		v = 1
	}
	binary.LittleEndian.PutUint16(pg.Data[offIsPageFull:], v)
}

func GetSlotCount(pg *page.Page) uint16 { return binary.LittleEndian.Uint16(pg.Data[offSlotCount:]) }
func setSlotCount(pg *page.Page, n uint16) {
	binary.LittleEndian.PutUint16(pg.Data[offSlotCount:], n)
}

func GetLastAppliedLSN(pg *page.Page) uint64 {
	return binary.LittleEndian.Uint64(pg.Data[page.PageLSNOffset:])
}

func SetLastAppliedLSN(pg *page.Page, lsn uint64) {
	binary.LittleEndian.PutUint64(pg.Data[page.PageLSNOffset:], lsn)
	pg.LSN = lsn
	pg.IsDirty = true
}

// FreeSpace is the bytes available for one more record, including the slot
// entry it would consume.
func FreeSpace(pg *page.Page) int {
	available := int(GetSlotRegionStart(pg)) - int(GetRecordEndPtr(pg)) - SlotSize
	if available < 0 {
		return 0
	}
	return available
}

func slotByteOffset(i uint16) int {
	return page.PageSize - (int(i)+1)*SlotSize
}

func readSlot(pg *page.Page, i uint16) (offset, length uint16) {
	base := slotByteOffset(i)
	return binary.LittleEndian.Uint16(pg.Data[base:]), binary.LittleEndian.Uint16(pg.Data[base+2:])
}

func writeSlot(pg *page.Page, i uint16, offset, length uint16) {
	base := slotByteOffset(i)
	binary.LittleEndian.PutUint16(pg.Data[base:], offset)
	binary.LittleEndian.PutUint16(pg.Data[base+2:], length)
}

func IsSlotLive(pg *page.Page, i uint16) bool {
	if i >= GetSlotCount(pg) {
		return false
	}
	offset, length := readSlot(pg, i)
	return offset != 0 && length != 0
}

// InsertRecord writes data into pg and returns the slot index it landed on,
// reusing a tombstoned slot when one is available.
func InsertRecord(pg *page.Page, data []byte) (uint16, error) {
	recordLen := uint16(len(data))
	if recordLen == 0 {
		return 0, dberr.New(dberr.IOError, "InsertRecord: data must not be empty")
	}
	if FreeSpace(pg) < int(recordLen) {
		return 0, dberr.New(dberr.BufferExhausted, "InsertRecord: need %d bytes, only %d available", recordLen, FreeSpace(pg))
	}

	slotIdx := GetSlotCount(pg)
	for i := uint16(0); i < GetSlotCount(pg); i++ {
		if _, l := readSlot(pg, i); l == 0 {
			slotIdx = i
			break
		}
	}

	recordOffset := GetRecordEndPtr(pg)
	copy(pg.Data[recordOffset:], data)
	setRecordEndPtr(pg, recordOffset+recordLen)
	writeSlot(pg, slotIdx, recordOffset, recordLen)

	if slotIdx == GetSlotCount(pg) {
		setSlotRegionStart(pg, GetSlotRegionStart(pg)-SlotSize)
		setSlotCount(pg, GetSlotCount(pg)+1)
	} else {
		setNumRowsFree(pg, GetNumRowsFree(pg)-1)
	}
	setNumRows(pg, GetNumRows(pg)+1)
	if FreeSpace(pg) <= 0 {
		setIsPageFull(pg, true)
	}
	pg.IsDirty = true
	return slotIdx, nil
}

// InsertRecordAtSlot writes data at a specific slot index, used by recovery
// redo to reproduce an exact past insert. Idempotent: a slot already holding
// live data is left untouched.
func InsertRecordAtSlot(pg *page.Page, slotIdx uint16, data []byte) error {
	if slotIdx < GetSlotCount(pg) {
		if offset, length := readSlot(pg, slotIdx); length > 0 && offset > 0 {
			return nil
		}
	}
	recordLen := uint16(len(data))
	if FreeSpace(pg) < int(recordLen) {
		return dberr.New(dberr.BufferExhausted, "insufficient space for recovery insert")
	}
	recordOffset := GetRecordEndPtr(pg)
	copy(pg.Data[recordOffset:], data)
	setRecordEndPtr(pg, recordOffset+recordLen)
	writeSlot(pg, slotIdx, recordOffset, recordLen)
	if slotIdx >= GetSlotCount(pg) {
		setSlotCount(pg, slotIdx+1)
		setSlotRegionStart(pg, GetSlotRegionStart(pg)-SlotSize)
	}
	setNumRows(pg, GetNumRows(pg)+1)
	pg.IsDirty = true
	return nil
}

func GetRecord(pg *page.Page, slotIdx uint16) ([]byte, error) {
	if slotIdx >= GetSlotCount(pg) {
		return nil, dberr.New(dberr.NotFound, "GetRecord: slot %d out of range (count=%d)", slotIdx, GetSlotCount(pg))
	}
	offset, length := readSlot(pg, slotIdx)
	if length == 0 {
		return nil, dberr.New(dberr.NotFound, "GetRecord: slot %d is a tombstone", slotIdx)
	}
	out := make([]byte, length)
	copy(out, pg.Data[offset:offset+length])
	return out, nil
}

func DeleteRecord(pg *page.Page, slotIdx uint16) error {
	if slotIdx >= GetSlotCount(pg) {
		return dberr.New(dberr.NotFound, "DeleteRecord: slot %d out of range (count=%d)", slotIdx, GetSlotCount(pg))
	}
	if _, length := readSlot(pg, slotIdx); length == 0 {
		return dberr.New(dberr.NotFound, "DeleteRecord: slot %d already deleted", slotIdx)
	}
	writeSlot(pg, slotIdx, 0, 0)
	setNumRows(pg, GetNumRows(pg)-1)
	setNumRowsFree(pg, GetNumRowsFree(pg)+1)
	setIsPageFull(pg, false)
	pg.IsDirty = true
	return nil
}

// UpdateRecord overwrites slotIdx in place when newData fits the original
// allocation; otherwise it tombstones the slot and reports false so the
// caller re-inserts newData elsewhere.
func UpdateRecord(pg *page.Page, slotIdx uint16, newData []byte) (bool, error) {
	if slotIdx >= GetSlotCount(pg) {
		return false, dberr.New(dberr.NotFound, "UpdateRecord: slot %d out of range (count=%d)", slotIdx, GetSlotCount(pg))
	}
	offset, length := readSlot(pg, slotIdx)
	if length == 0 {
		return false, dberr.New(dberr.NotFound, "UpdateRecord: slot %d is a tombstone", slotIdx)
	}
	newLen := uint16(len(newData))
	if newLen <= length {
		copy(pg.Data[offset:], newData)
		writeSlot(pg, slotIdx, offset, newLen)
		pg.IsDirty = true
		return true, nil
	}
	if err := DeleteRecord(pg, slotIdx); err != nil {
		return false, err
	}
	return false, nil
}
