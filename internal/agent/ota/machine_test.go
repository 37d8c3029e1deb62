package ota

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tramcast/tramcast/internal/agent/core"
	"github.com/tramcast/tramcast/internal/agent/fake"
	"github.com/tramcast/tramcast/pkg/mqtt"
)

func initial(total int, payload []byte) mqtt.Message {
	return mqtt.Message{
		Topic:   "tramcast/ota/data",
		Payload: payload,
		Details: mqtt.Details{Kind: mqtt.ChunkInitial, Total: total},
	}
}

func subsequent(offset, total int, payload []byte) mqtt.Message {
	return mqtt.Message{
		Payload: payload,
		Details: mqtt.Details{Kind: mqtt.ChunkSubsequent, Offset: offset, Total: total},
	}
}

func TestTransferCompletes(t *testing.T) {
	storage := &fake.Storage{}
	m := NewMachine(storage)
	ctx := context.Background()

	require.NoError(t, m.HandleChunk(ctx, initial(100, bytes.Repeat([]byte{1}, 40))))
	assert.Equal(t, StateInProgress, m.State())
	written, total := m.Progress()
	assert.Equal(t, 40, written)
	assert.Equal(t, 100, total)

	err := m.HandleChunk(ctx, subsequent(40, 100, bytes.Repeat([]byte{2}, 60)))
	require.Error(t, err)
	assert.True(t, core.IsFatal(err))
	assert.ErrorIs(t, err, ErrRestartReturned)

	assert.Equal(t, 1, storage.FinalizeCalls())
	assert.Equal(t, 1, storage.SetBootCalls())
	assert.Equal(t, 1, storage.RestartCalls())

	writers := storage.Writers()
	require.Len(t, writers, 1)
	assert.Len(t, writers[0].Bytes(), 100)
	assert.False(t, writers[0].Aborted())
}

func TestFragmentedImageCompletesOnce(t *testing.T) {
	image := make([]byte, 10_000)
	for i := range image {
		image[i] = byte(i)
	}

	for _, size := range []int{1000, 4096, 3333, 9999} {
		storage := &fake.Storage{}
		m := NewMachine(storage)

		frames := mqtt.Fragment(1, "tramcast/ota/data", image, size)
		var err error
		for i, f := range frames {
			err = m.HandleChunk(context.Background(), f)
			if i < len(frames)-1 {
				require.NoError(t, err, "buffer %d frame %d", size, i)
			}
		}
		assert.ErrorIs(t, err, ErrRestartReturned, "buffer %d", size)

		assert.Equal(t, 1, storage.FinalizeCalls(), "buffer %d", size)
		assert.Equal(t, 1, storage.RestartCalls(), "buffer %d", size)
		assert.Equal(t, image, storage.Writers()[0].Bytes(), "buffer %d", size)
	}
}

func TestProtocolViolations(t *testing.T) {
	tests := []struct {
		name   string
		chunks []mqtt.Message
		want   error
	}{
		{
			name:   "second initial chunk",
			chunks: []mqtt.Message{initial(100, make([]byte, 40)), initial(100, make([]byte, 40))},
			want:   ErrUnexpectedInitial,
		},
		{
			name:   "subsequent while idle",
			chunks: []mqtt.Message{subsequent(0, 100, make([]byte, 40))},
			want:   ErrUnexpectedChunk,
		},
		{
			name: "complete frame while idle",
			chunks: []mqtt.Message{{
				Topic:   "tramcast/ota/data",
				Payload: make([]byte, 10),
				Details: mqtt.Details{Kind: mqtt.ChunkComplete, Total: 10},
			}},
			want: ErrUnexpectedChunk,
		},
		{
			name:   "offset behind",
			chunks: []mqtt.Message{initial(100, make([]byte, 40)), subsequent(20, 100, make([]byte, 20))},
			want:   ErrOffsetMismatch,
		},
		{
			name:   "offset ahead",
			chunks: []mqtt.Message{initial(100, make([]byte, 40)), subsequent(50, 100, make([]byte, 20))},
			want:   ErrOffsetMismatch,
		},
		{
			name: "duplicate chunk",
			chunks: []mqtt.Message{
				initial(100, make([]byte, 40)),
				subsequent(40, 100, make([]byte, 30)),
				subsequent(40, 100, make([]byte, 30)),
			},
			want: ErrOffsetMismatch,
		},
		{
			name:   "overshoot",
			chunks: []mqtt.Message{initial(100, make([]byte, 40)), subsequent(40, 100, make([]byte, 61))},
			want:   ErrOvershoot,
		},
		{
			name:   "initial larger than total",
			chunks: []mqtt.Message{initial(10, make([]byte, 11))},
			want:   ErrOvershoot,
		},
		{
			name:   "total changed",
			chunks: []mqtt.Message{initial(100, make([]byte, 40)), subsequent(40, 200, make([]byte, 60))},
			want:   ErrTotalMismatch,
		},
		{
			name:   "zero total",
			chunks: []mqtt.Message{initial(0, nil)},
			want:   ErrInvalidTotal,
		},
		{
			name:   "empty subsequent",
			chunks: []mqtt.Message{initial(100, make([]byte, 40)), subsequent(40, 100, nil)},
			want:   ErrEmptyChunk,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			storage := &fake.Storage{}
			m := NewMachine(storage)

			var err error
			for _, c := range tt.chunks {
				if err = m.HandleChunk(context.Background(), c); err != nil {
					break
				}
			}

			require.Error(t, err)
			assert.True(t, core.IsFatal(err))
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, StateAborted, m.State())
			assert.False(t, m.Active())
			assert.Zero(t, storage.FinalizeCalls())
			assert.Zero(t, storage.RestartCalls())
			for _, w := range storage.Writers() {
				assert.True(t, w.Aborted())
			}
		})
	}
}

func TestChunkAfterAbort(t *testing.T) {
	m := NewMachine(&fake.Storage{})
	ctx := context.Background()

	require.Error(t, m.HandleChunk(ctx, subsequent(0, 10, []byte{1})))
	err := m.HandleChunk(ctx, initial(10, []byte{1}))
	assert.True(t, core.IsFatal(err))
	assert.ErrorIs(t, err, ErrChunkAfterEnd)
}

func TestCompleteMarkerRequiresExactSize(t *testing.T) {
	storage := &fake.Storage{}
	m := NewMachine(storage)
	ctx := context.Background()

	require.NoError(t, m.HandleChunk(ctx, initial(100, make([]byte, 40))))
	err := m.HandleChunk(ctx, mqtt.Message{
		Payload: make([]byte, 20),
		Details: mqtt.Details{Kind: mqtt.ChunkComplete, Total: 20},
	})

	assert.ErrorIs(t, err, ErrSizeMismatch)
	assert.Equal(t, StateAborted, m.State())
	assert.Zero(t, storage.FinalizeCalls())
}

func TestCompleteMarkerFinishesTransfer(t *testing.T) {
	storage := &fake.Storage{}
	m := NewMachine(storage)
	ctx := context.Background()

	require.NoError(t, m.HandleChunk(ctx, initial(100, make([]byte, 40))))
	err := m.HandleChunk(ctx, mqtt.Message{
		Payload: make([]byte, 60),
		Details: mqtt.Details{Kind: mqtt.ChunkComplete, Total: 60},
	})

	assert.ErrorIs(t, err, ErrRestartReturned)
	assert.Equal(t, 1, storage.FinalizeCalls())
}

func TestInstallFailures(t *testing.T) {
	boom := errors.New("flash error")

	tests := []struct {
		name        string
		setup       func(*fake.Storage)
		wantAborted bool
		wantRestart int
	}{
		{
			name:        "begin",
			setup:       func(s *fake.Storage) { s.BeginErr = boom },
			wantRestart: 0,
		},
		{
			name:        "finalize",
			setup:       func(s *fake.Storage) { s.FinalizeErr = boom },
			wantAborted: true,
			wantRestart: 0,
		},
		{
			name:        "set boot partition",
			setup:       func(s *fake.Storage) { s.SetBootErr = boom },
			wantRestart: 0,
		},
		{
			name:        "restart",
			setup:       func(s *fake.Storage) { s.RestartErr = boom },
			wantRestart: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			storage := &fake.Storage{}
			tt.setup(storage)
			m := NewMachine(storage)

			err := m.HandleChunk(context.Background(), initial(8, make([]byte, 8)))

			require.Error(t, err)
			assert.True(t, core.IsFatal(err))
			assert.ErrorIs(t, err, boom)
			assert.Equal(t, StateAborted, m.State())
			assert.Equal(t, tt.wantRestart, storage.RestartCalls())
			if writers := storage.Writers(); len(writers) > 0 {
				assert.Equal(t, tt.wantAborted, writers[0].Aborted())
			}
		})
	}
}

func TestResetDiscardsLiveTransfer(t *testing.T) {
	storage := &fake.Storage{}
	m := NewMachine(storage)
	ctx := context.Background()

	require.NoError(t, m.HandleChunk(ctx, initial(100, make([]byte, 40))))
	m.Reset(ctx)

	assert.Equal(t, StateIdle, m.State())
	assert.True(t, storage.Writers()[0].Aborted())
	written, total := m.Progress()
	assert.Zero(t, written)
	assert.Zero(t, total)

	// A fresh transfer starts from scratch.
	require.NoError(t, m.HandleChunk(ctx, initial(100, make([]byte, 40))))
	assert.Len(t, storage.Writers(), 2)
}

func TestResetWhileIdle(t *testing.T) {
	m := NewMachine(&fake.Storage{})
	m.Reset(context.Background())
	assert.Equal(t, StateIdle, m.State())
}
