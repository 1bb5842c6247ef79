package resourceutil

import (
	"bytes"
	"fmt"
	"io"

	"github.com/spf13/afero"
)

// DefaultSpoolMaxMemoryBytes controls how much of a staged body is
// buffered in memory before it spills to a temp file.
const DefaultSpoolMaxMemoryBytes int64 = 16 << 20 // 16 MiB

// Spool collects a staged body so it can be sent in one call once it is
// complete. Small bodies stay in memory; larger ones spill to a temp file
// on the given filesystem that Close removes.
//
// A Spool is not safe for concurrent use.
type Spool struct {
	fs        afero.Fs
	maxMemory int64
	buf       bytes.Buffer
	file      afero.File
	size      int64
}

// NewSpool returns an empty spool spilling to fsys. maxMemoryBytes <= 0
// uses DefaultSpoolMaxMemoryBytes.
func NewSpool(fsys afero.Fs, maxMemoryBytes int64) *Spool {
	if maxMemoryBytes <= 0 {
		maxMemoryBytes = DefaultSpoolMaxMemoryBytes
	}
	return &Spool{fs: fsys, maxMemory: maxMemoryBytes}
}

// Write appends p to the spool.
func (s *Spool) Write(p []byte) (int, error) {
	if s.file == nil && int64(s.buf.Len()+len(p)) > s.maxMemory {
		if err := s.spill(); err != nil {
			return 0, err
		}
	}

	var n int
	var err error
	if s.file != nil {
		n, err = s.file.Write(p)
	} else {
		n, err = s.buf.Write(p)
	}
	s.size += int64(n)
	return n, err
}

func (s *Spool) spill() error {
	f, err := afero.TempFile(s.fs, "", "gostage-spool-*")
	if err != nil {
		return fmt.Errorf("create spool file: %w", err)
	}
	if _, err := f.Write(s.buf.Bytes()); err != nil {
		_ = f.Close()
		_ = s.fs.Remove(f.Name())
		return fmt.Errorf("spill to spool file: %w", err)
	}
	s.buf.Reset()
	s.file = f
	return nil
}

// Size returns the number of bytes written so far.
func (s *Spool) Size() int64 {
	return s.size
}

// Spilled reports whether the spool moved to a temp file.
func (s *Spool) Spilled() bool {
	return s.file != nil
}

// Reader returns a reader positioned at the start of the spooled body.
// The reader is valid until Close.
func (s *Spool) Reader() (io.ReadSeeker, error) {
	if s.file == nil {
		return bytes.NewReader(s.buf.Bytes()), nil
	}
	if _, err := s.file.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	return s.file, nil
}

// Close discards the spooled body and removes any temp file.
func (s *Spool) Close() error {
	s.buf.Reset()
	if s.file == nil {
		return nil
	}
	name := s.file.Name()
	closeErr := s.file.Close()
	rmErr := s.fs.Remove(name)
	s.file = nil
	if closeErr != nil {
		return fmt.Errorf("close spool file: %w", closeErr)
	}
	if rmErr != nil {
		return fmt.Errorf("remove spool file: %w", rmErr)
	}
	return nil
}
