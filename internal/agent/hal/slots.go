package hal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/tramcast/tramcast/internal/agent/core"
	"github.com/tramcast/tramcast/pkg/log"
)

const (
	slotA = "a"
	slotB = "b"

	bootStateFile = "bootstate.json"
)

var ErrNoPrevious = errors.New("no previous image to roll back to")

// SlotWriter receives one slot image. Commit makes it readable under the
// slot name, Discard drops it.
type SlotWriter interface {
	io.Writer
	Commit(ctx context.Context) error
	Discard() error
}

// SlotBackend stores slot images.
type SlotBackend interface {
	Create(ctx context.Context, slot string) (SlotWriter, error)
}

// bootState is the bootloader's view of the two slots.
type bootState struct {
	// Active is the slot the running image was booted from.
	Active string `json:"active"`
	// Boot is the slot the next boot uses.
	Boot string `json:"boot"`
	// Previous is the slot to roll back to, empty until an update booted.
	Previous string `json:"previous,omitempty"`
	// Trial marks Boot as a new image that must be confirmed once booted.
	Trial bool `json:"trial,omitempty"`
	// PendingVerify is set while the running image is unconfirmed.
	PendingVerify bool `json:"pendingVerify,omitempty"`
}

func other(slot string) string {
	if slot == slotA {
		return slotB
	}
	return slotA
}

// Slots is an A/B core.FirmwareStorage. Images go to the spare slot of the
// backend; the boot state lives in a JSON file. Opening the storage plays
// the bootloader's part: it switches to a newly selected slot, and rolls an
// unconfirmed image back when it is booted a second time.
type Slots struct {
	mu        sync.Mutex
	path      string
	backend   SlotBackend
	restarter Restarter
	state     bootState
}

var _ core.FirmwareStorage = (*Slots)(nil)

func OpenSlots(dir string, backend SlotBackend, restarter Restarter) (*Slots, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create slot directory: %w", err)
	}

	s := &Slots{
		path:      filepath.Join(dir, bootStateFile),
		backend:   backend,
		restarter: restarter,
		state:     bootState{Active: slotA, Boot: slotA},
	}

	data, err := os.ReadFile(s.path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read boot state: %w", err)
	default:
		if err := json.Unmarshal(data, &s.state); err != nil {
			return nil, fmt.Errorf("failed to parse boot state %s: %w", s.path, err)
		}
	}

	s.boot()
	if err := s.save(); err != nil {
		return nil, err
	}
	return s, nil
}

// boot applies the bootloader rules for one start of the agent.
func (s *Slots) boot() {
	st := &s.state
	switch {
	case st.Boot != st.Active:
		log.Info("Booting newly selected slot", "slot", st.Boot, "previous", st.Active, "trial", st.Trial)
		st.Previous = st.Active
		st.Active = st.Boot
		st.PendingVerify = st.Trial
		st.Trial = false

	case st.PendingVerify && st.Previous != "":
		log.Warn("Image was not confirmed before restart, rolling back", "slot", st.Active, "to", st.Previous)
		st.Active = st.Previous
		st.Boot = st.Previous
		st.Previous = ""
		st.PendingVerify = false
	}
}

// save writes the boot state atomically. Callers hold mu or own s.
func (s *Slots) save() error {
	data, err := json.MarshalIndent(s.state, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write boot state: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to write boot state: %w", err)
	}
	return nil
}

// Active returns the slot of the running image.
func (s *Slots) Active() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Active
}

// PendingVerify reports whether the running image still awaits confirmation.
func (s *Slots) PendingVerify() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.PendingVerify
}

func (s *Slots) BeginWrite(ctx context.Context) (core.FirmwareWriter, error) {
	s.mu.Lock()
	spare := other(s.state.Active)
	s.mu.Unlock()

	w, err := s.backend.Create(ctx, spare)
	if err != nil {
		return nil, fmt.Errorf("failed to open slot %s: %w", spare, err)
	}
	log.Debug("Writing spare slot", "slot", spare)
	return &slotWriter{SlotWriter: w, slots: s, slot: spare}, nil
}

func (s *Slots) MarkCurrentPartitionValid(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.state.PendingVerify {
		log.Debug("Running image already valid", "slot", s.state.Active)
		return nil
	}
	s.state.PendingVerify = false
	return s.save()
}

func (s *Slots) RollbackAndReboot(ctx context.Context) error {
	s.mu.Lock()
	if s.state.Previous == "" {
		s.mu.Unlock()
		return ErrNoPrevious
	}
	s.state.Boot = s.state.Previous
	s.state.Trial = false
	err := s.save()
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return s.restarter.Restart(ctx)
}

func (s *Slots) setBoot(slot string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Boot = slot
	s.state.Trial = true
	return s.save()
}

type slotWriter struct {
	SlotWriter
	slots *Slots
	slot  string
}

func (w *slotWriter) Finalize(ctx context.Context) (core.FirmwareImage, error) {
	if err := w.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit slot %s: %w", w.slot, err)
	}
	return &slotImage{slots: w.slots, slot: w.slot}, nil
}

func (w *slotWriter) Abort() error {
	return w.Discard()
}

type slotImage struct {
	slots *Slots
	slot  string
}

func (i *slotImage) SetAsBootPartition(context.Context) error {
	return i.slots.setBoot(i.slot)
}

func (i *slotImage) Restart(ctx context.Context) error {
	return i.slots.restarter.Restart(ctx)
}
