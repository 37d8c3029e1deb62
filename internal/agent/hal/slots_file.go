package hal

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// FileSlots keeps each slot image as a file in a directory. A slot is
// written to a temporary file and renamed into place on commit.
type FileSlots struct {
	dir string
}

var _ SlotBackend = (*FileSlots)(nil)

func NewFileSlots(dir string) *FileSlots {
	return &FileSlots{dir: dir}
}

// Path returns the image file of slot.
func (b *FileSlots) Path(slot string) string {
	return filepath.Join(b.dir, "slot-"+slot+".img")
}

func (b *FileSlots) Create(_ context.Context, slot string) (SlotWriter, error) {
	if err := os.MkdirAll(b.dir, 0o755); err != nil {
		return nil, err
	}
	f, err := os.CreateTemp(b.dir, "slot-"+slot+"-*.part")
	if err != nil {
		return nil, err
	}
	return &fileSlotWriter{File: f, path: b.Path(slot)}, nil
}

type fileSlotWriter struct {
	*os.File
	path string
}

func (w *fileSlotWriter) Commit(context.Context) error {
	if err := w.Sync(); err != nil {
		_ = w.Discard()
		return err
	}
	if err := w.Close(); err != nil {
		_ = os.Remove(w.Name())
		return err
	}
	if err := os.Rename(w.Name(), w.path); err != nil {
		_ = os.Remove(w.Name())
		return fmt.Errorf("failed to move image into place: %w", err)
	}
	return nil
}

func (w *fileSlotWriter) Discard() error {
	_ = w.Close()
	return os.Remove(w.Name())
}
