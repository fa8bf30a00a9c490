package wal

import (
	"encoding/binary"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"coredb/dberr"
	"coredb/types"
)

// Open recovers any existing segments under dir (scanning for the highest
// LSN written so currentLSN resumes correctly across a restart) and starts
// a fresh segment if the log is empty.
func Open(dir string, fs afero.Fs, log *zap.Logger) (*Manager, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := fs.MkdirAll(dir, 0755); err != nil {
		return nil, dberr.Wrap(dberr.IOError, err, "create wal dir %s", dir)
	}

	m := &Manager{dir: dir, fs: fs, log: log, segments: make(map[uint64]*Segment)}
	if err := m.recoverSegments(); err != nil {
		return nil, err
	}
	if m.currSegment == nil {
		if err := m.createNewSegment(); err != nil {
			return nil, err
		}
	}
	m.flushedLSN = m.currentLSN
	return m, nil
}

func (m *Manager) recoverSegments() error {
	matches, err := afero.Glob(m.fs, filepath.Join(m.dir, "wal_*.log"))
	if err != nil {
		return dberr.Wrap(dberr.IOError, err, "glob wal segments")
	}
	if len(matches) == 0 {
		return nil
	}

	var ids []uint64
	for _, path := range matches {
		name := filepath.Base(path)
		hexPart := strings.TrimSuffix(strings.TrimPrefix(name, "wal_"), ".log")
		id, err := strconv.ParseUint(hexPart, 16, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var maxLSN uint64
	for _, id := range ids {
		seg := newSegment(id, m.dir)
		if err := seg.open(m.fs); err != nil {
			return err
		}
		m.segments[id] = seg
		lsn, err := m.scanMaxLSN(seg)
		if err != nil {
			return err
		}
		if lsn > maxLSN {
			maxLSN = lsn
		}
	}
	m.currSegment = m.segments[ids[len(ids)-1]]
	m.currentLSN = maxLSN
	return nil
}

// scanMaxLSN walks a segment's records without decoding payloads, just to
// learn the highest LSN it holds.
func (m *Manager) scanMaxLSN(seg *Segment) (uint64, error) {
	f, err := m.fs.Open(seg.filePath)
	if err != nil {
		return 0, dberr.Wrap(dberr.IOError, err, "open %s for scan", seg.filePath)
	}
	defer f.Close()

	var maxLSN uint64
	header := make([]byte, RecordHeaderSize)
	for {
		if _, err := readFull(f, header); err != nil {
			break
		}
		lsn := binary.BigEndian.Uint64(header[0:8])
		dataLen := binary.BigEndian.Uint32(header[8:12])
		if lsn > maxLSN {
			maxLSN = lsn
		}
		if _, err := f.Seek(int64(dataLen), 1); err != nil {
			break
		}
	}
	return maxLSN, nil
}

func (m *Manager) createNewSegment() error {
	id := uint64(len(m.segments))
	seg := newSegment(id, m.dir)
	if err := seg.open(m.fs); err != nil {
		return err
	}
	m.segments[id] = seg
	m.currSegment = seg
	return nil
}

// AllocateLSN reserves the next log sequence number without writing
// anything, so a caller can stamp a page's LSN before the record describing
// that write has been serialized (spec.md §4.7's ordering requirement).
func (m *Manager) AllocateLSN() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.currentLSN++
	return m.currentLSN
}

// AppendToBuffer encodes op under lsn and writes it to the current segment,
// rotating to a fresh one if full. The write lands in the OS page cache;
// callers must call Sync before treating lsn as durable.
func (m *Manager) AppendToBuffer(lsn uint64, op *types.Operation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data := op.Encode()
	rec := &Record{LSN: lsn, Data: data, CRC: calculateCRC(lsn, data)}

	if m.currSegment.isFull() {
		if err := m.createNewSegment(); err != nil {
			return err
		}
	}
	return m.currSegment.append(rec.Encode())
}

// GetFlushedLSN satisfies buffer.WALFlushedLSNGetter: the highest LSN whose
// record is durable, gating which dirty pages the buffer pool may flush.
func (m *Manager) GetFlushedLSN() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.flushedLSN
}

// Sync fsyncs the current segment and advances the flushed watermark to
// whatever LSN was last allocated — correct because segments are
// append-only and AllocateLSN/AppendToBuffer are always called in LSN order.
func (m *Manager) Sync() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.currSegment.sync(); err != nil {
		return err
	}
	m.flushedLSN = m.currentLSN
	return nil
}

func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var firstErr error
	for _, seg := range m.segments {
		if err := seg.sync(); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := seg.close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func readFull(f afero.File, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := f.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
		if n == 0 {
			return total, dberr.New(dberr.IOError, "unexpected EOF")
		}
	}
	return total, nil
}
