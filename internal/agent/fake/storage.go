package fake

import (
	"bytes"
	"context"
	"sync"

	"github.com/tramcast/tramcast/internal/agent/core"
)

// Storage is an in-memory core.FirmwareStorage that counts every call.
type Storage struct {
	mu sync.Mutex

	BeginErr     error
	FinalizeErr  error
	SetBootErr   error
	RestartErr   error
	MarkValidErr error
	RollbackErr  error

	writers        []*Writer
	markValidCalls int
	rollbackCalls  int
	finalizeCalls  int
	setBootCalls   int
	restartCalls   int
}

var _ core.FirmwareStorage = (*Storage)(nil)

func (s *Storage) BeginWrite(context.Context) (core.FirmwareWriter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.BeginErr != nil {
		return nil, s.BeginErr
	}
	w := &Writer{storage: s}
	s.writers = append(s.writers, w)
	return w, nil
}

func (s *Storage) MarkCurrentPartitionValid(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markValidCalls++
	return s.MarkValidErr
}

func (s *Storage) RollbackAndReboot(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rollbackCalls++
	return s.RollbackErr
}

func (s *Storage) Writers() []*Writer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Writer(nil), s.writers...)
}

func (s *Storage) MarkValidCalls() int { s.mu.Lock(); defer s.mu.Unlock(); return s.markValidCalls }
func (s *Storage) RollbackCalls() int  { s.mu.Lock(); defer s.mu.Unlock(); return s.rollbackCalls }
func (s *Storage) FinalizeCalls() int  { s.mu.Lock(); defer s.mu.Unlock(); return s.finalizeCalls }
func (s *Storage) SetBootCalls() int   { s.mu.Lock(); defer s.mu.Unlock(); return s.setBootCalls }
func (s *Storage) RestartCalls() int   { s.mu.Lock(); defer s.mu.Unlock(); return s.restartCalls }

// Writer buffers the image in memory.
type Writer struct {
	storage *Storage
	buf     bytes.Buffer
	aborted bool
}

func (w *Writer) Write(p []byte) (int, error) {
	w.storage.mu.Lock()
	defer w.storage.mu.Unlock()
	return w.buf.Write(p)
}

func (w *Writer) Finalize(context.Context) (core.FirmwareImage, error) {
	w.storage.mu.Lock()
	defer w.storage.mu.Unlock()
	w.storage.finalizeCalls++
	if w.storage.FinalizeErr != nil {
		return nil, w.storage.FinalizeErr
	}
	return &image{storage: w.storage}, nil
}

func (w *Writer) Abort() error {
	w.storage.mu.Lock()
	defer w.storage.mu.Unlock()
	w.aborted = true
	return nil
}

// Bytes returns the image written so far.
func (w *Writer) Bytes() []byte {
	w.storage.mu.Lock()
	defer w.storage.mu.Unlock()
	return append([]byte(nil), w.buf.Bytes()...)
}

func (w *Writer) Aborted() bool {
	w.storage.mu.Lock()
	defer w.storage.mu.Unlock()
	return w.aborted
}

type image struct {
	storage *Storage
}

func (i *image) SetAsBootPartition(context.Context) error {
	i.storage.mu.Lock()
	defer i.storage.mu.Unlock()
	i.storage.setBootCalls++
	return i.storage.SetBootErr
}

// Restart returns RestartErr, which is nil by default: a fake restart
// always returns.
func (i *image) Restart(context.Context) error {
	i.storage.mu.Lock()
	defer i.storage.mu.Unlock()
	i.storage.restartCalls++
	return i.storage.RestartErr
}
