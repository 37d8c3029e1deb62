package hal

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingRestarter struct {
	restarts int
}

func (r *countingRestarter) Restart(context.Context) error {
	r.restarts++
	return nil
}

func openSlots(t *testing.T, dir string, r Restarter) *Slots {
	t.Helper()
	s, err := OpenSlots(dir, NewFileSlots(dir), r)
	require.NoError(t, err)
	return s
}

// install writes image to the spare slot and selects it for the next boot.
func install(t *testing.T, s *Slots, image []byte) {
	t.Helper()
	ctx := context.Background()

	w, err := s.BeginWrite(ctx)
	require.NoError(t, err)
	_, err = w.Write(image)
	require.NoError(t, err)

	img, err := w.Finalize(ctx)
	require.NoError(t, err)
	require.NoError(t, img.SetAsBootPartition(ctx))
	require.NoError(t, img.Restart(ctx))
}

func TestSlotsFreshDevice(t *testing.T) {
	s := openSlots(t, t.TempDir(), &countingRestarter{})

	assert.Equal(t, slotA, s.Active())
	assert.False(t, s.PendingVerify())
	assert.ErrorIs(t, s.RollbackAndReboot(context.Background()), ErrNoPrevious)
}

func TestSlotsUpdateAndConfirm(t *testing.T) {
	dir := t.TempDir()
	r := &countingRestarter{}
	s := openSlots(t, dir, r)

	image := bytes.Repeat([]byte("fw2"), 1000)
	install(t, s, image)
	assert.Equal(t, 1, r.restarts)

	data, err := os.ReadFile(filepath.Join(dir, "slot-b.img"))
	require.NoError(t, err)
	assert.Equal(t, image, data)

	// Reboot into the new image.
	s = openSlots(t, dir, r)
	assert.Equal(t, slotB, s.Active())
	assert.True(t, s.PendingVerify())

	require.NoError(t, s.MarkCurrentPartitionValid(context.Background()))
	assert.False(t, s.PendingVerify())

	s = openSlots(t, dir, r)
	assert.Equal(t, slotB, s.Active())
	assert.False(t, s.PendingVerify())
}

func TestSlotsUnconfirmedImageRollsBack(t *testing.T) {
	dir := t.TempDir()
	s := openSlots(t, dir, &countingRestarter{})
	install(t, s, []byte("fw2"))

	s = openSlots(t, dir, &countingRestarter{})
	require.Equal(t, slotB, s.Active())

	// Restart without confirming.
	s = openSlots(t, dir, &countingRestarter{})
	assert.Equal(t, slotA, s.Active())
	assert.False(t, s.PendingVerify())
}

func TestSlotsExplicitRollback(t *testing.T) {
	dir := t.TempDir()
	r := &countingRestarter{}
	s := openSlots(t, dir, r)
	install(t, s, []byte("fw2"))

	s = openSlots(t, dir, r)
	require.NoError(t, s.MarkCurrentPartitionValid(context.Background()))

	require.NoError(t, s.RollbackAndReboot(context.Background()))
	assert.Equal(t, 2, r.restarts)

	s = openSlots(t, dir, r)
	assert.Equal(t, slotA, s.Active())
	assert.False(t, s.PendingVerify())
}

func TestSlotsAbort(t *testing.T) {
	dir := t.TempDir()
	s := openSlots(t, dir, &countingRestarter{})

	w, err := s.BeginWrite(context.Background())
	require.NoError(t, err)
	_, err = w.Write([]byte("partial"))
	require.NoError(t, err)
	require.NoError(t, w.Abort())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.Equal(t, bootStateFile, e.Name())
	}
	assert.Equal(t, slotA, s.Active())
}

func TestSlotsCorruptState(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, bootStateFile), []byte("{"), 0o644))

	_, err := OpenSlots(dir, NewFileSlots(dir), &countingRestarter{})
	assert.ErrorContains(t, err, "failed to parse boot state")
}

func TestNewRestarter(t *testing.T) {
	for _, kind := range []string{"reboot", "exec"} {
		r, err := NewRestarter(kind)
		require.NoError(t, err)
		assert.NotNil(t, r)
	}

	_, err := NewRestarter("halt")
	assert.Error(t, err)
}
