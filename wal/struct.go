// Package wal implements the write-ahead log described in spec.md §4.7-4.8:
// every mutation is appended as a record before the page it touches may be
// flushed, records roll across fixed-size segment files, and recovery
// replays from the last checkpoint forward.
package wal

import (
	"sync"

	"github.com/spf13/afero"
	"go.uber.org/zap"
)

const (
	RecordHeaderSize = 16 // LSN(8) + Len(4) + CRC(4)
	SegmentSize       = 16 * 1024 * 1024
)

// Manager owns every segment file for one database's log and the in-memory
// LSN counters the buffer pool and recovery depend on.
type Manager struct {
	dir string
	fs  afero.Fs
	log *zap.Logger

	segments    map[uint64]*Segment
	currSegment *Segment

	currentLSN uint64 // last LSN handed out by AllocateLSN
	flushedLSN uint64 // last LSN covered by a completed Sync

	mu sync.RWMutex
}

// Segment is one append-only log file, named wal_<id>.log.
type Segment struct {
	id       uint64
	filePath string
	file     afero.File
	size     int64
	mu       sync.Mutex
}

// Record is one WAL entry on disk: an 8-byte LSN, a 4-byte length, a 4-byte
// CRC32 of LSN+payload, then the payload itself (a JSON-encoded
// types.Operation).
type Record struct {
	LSN  uint64
	Data []byte
	CRC  uint32
}
