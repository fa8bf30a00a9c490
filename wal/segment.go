package wal

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"coredb/dberr"
)

func newSegment(id uint64, dir string) *Segment {
	return &Segment{id: id, filePath: filepath.Join(dir, fmt.Sprintf("wal_%016x.log", id))}
}

// open opens the segment file in append-only mode, creating it if absent.
func (s *Segment) open(fs afero.Fs) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file != nil {
		return nil
	}

	f, err := fs.OpenFile(s.filePath, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0644)
	if err != nil {
		return dberr.Wrap(dberr.IOError, err, "open wal segment %s", s.filePath)
	}
	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return dberr.Wrap(dberr.IOError, err, "stat wal segment %s", s.filePath)
	}
	s.file = f
	s.size = stat.Size()
	return nil
}

// append writes data to the segment. O_APPEND guarantees each write lands
// at the current end of file even with concurrent writers, though the
// manager's mutex already serializes callers here.
func (s *Segment) append(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return dberr.New(dberr.IOError, "wal segment %d not opened", s.id)
	}
	n, err := s.file.Write(data)
	if err != nil {
		return dberr.Wrap(dberr.IOError, err, "append to wal segment %d", s.id)
	}
	s.size += int64(n)
	return nil
}

func (s *Segment) sync() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return dberr.New(dberr.IOError, "wal segment %d not opened", s.id)
	}
	if syncer, ok := s.file.(interface{ Sync() error }); ok {
		return syncer.Sync()
	}
	return nil
}

func (s *Segment) close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

func (s *Segment) isFull() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size >= SegmentSize
}
