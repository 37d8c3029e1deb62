// Package ota reassembles chunked firmware images into the spare slot and
// handles the confirm and rollback requests that follow a reboot.
package ota

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/looplab/fsm"

	"github.com/tramcast/tramcast/internal/agent/core"
	"github.com/tramcast/tramcast/internal/pkg/metrics"
	utilfsm "github.com/tramcast/tramcast/internal/pkg/util/fsm"
	"github.com/tramcast/tramcast/pkg/log"
	"github.com/tramcast/tramcast/pkg/mqtt"
)

// Transfer states.
const (
	StateIdle       = "idle"
	StateInProgress = "in_progress"
	StateComplete   = "complete"
	StateAborted    = "aborted"
)

const (
	eventBegin    = "begin"
	eventComplete = "complete"
	eventAbort    = "abort"
	eventReset    = "reset"
)

// Machine is the transfer state machine. At most one transfer is live.
// Every chunk must continue exactly where the previous one ended: the
// declared offset is checked against the bytes actually written.
//
// Machine is not safe for concurrent use; chunks are handled in arrival order
// by the session goroutine.
type Machine struct {
	storage core.FirmwareStorage
	fsm     *fsm.FSM

	writer  core.FirmwareWriter
	written int
	total   int
}

func NewMachine(storage core.FirmwareStorage) *Machine {
	m := &Machine{storage: storage}
	m.fsm = fsm.NewFSM(
		StateIdle,
		fsm.Events{
			{Name: eventBegin, Src: []string{StateIdle}, Dst: StateInProgress},
			{Name: eventComplete, Src: []string{StateInProgress}, Dst: StateComplete},
			{Name: eventAbort, Src: []string{StateIdle, StateInProgress, StateComplete}, Dst: StateAborted},
			{Name: eventReset, Src: []string{StateInProgress}, Dst: StateIdle},
		},
		fsm.Callbacks{
			"enter_" + StateComplete: utilfsm.WrapEvent(m.install),
			"enter_state": func(_ context.Context, e *fsm.Event) {
				log.Debug("OTA transfer transition", "event", e.Event, "from", e.Src, "to", e.Dst)
			},
		},
	)
	return m
}

// State returns the current state name.
func (m *Machine) State() string {
	return m.fsm.Current()
}

// Active reports whether a transfer is in progress.
func (m *Machine) Active() bool {
	return m.fsm.Current() == StateInProgress
}

// Progress returns the bytes written and the declared total of the live transfer.
func (m *Machine) Progress() (written, total int) {
	return m.written, m.total
}

// HandleChunk applies one chunk. A nil return means the chunk was written
// and the transfer continues. Any protocol violation aborts the transfer
// and returns a fatal error. A completed transfer installs the image and
// restarts; if the restart returns, that is fatal too.
func (m *Machine) HandleChunk(ctx context.Context, msg mqtt.Message) error {
	switch m.fsm.Current() {
	case StateAborted, StateComplete:
		return core.Fatal(fmt.Errorf("%w: state %s", ErrChunkAfterEnd, m.fsm.Current()))
	}

	d := msg.Details
	if d.Kind == mqtt.ChunkInitial {
		if m.Active() {
			return m.abort(ctx, fmt.Errorf("%w: %d of %d bytes written", ErrUnexpectedInitial, m.written, m.total))
		}
		return m.begin(ctx, msg)
	}

	if !m.Active() {
		return m.abort(ctx, fmt.Errorf("%w: %s chunk at offset %d", ErrUnexpectedChunk, d.Kind, d.Offset))
	}

	if d.Kind == mqtt.ChunkSubsequent {
		if d.Total != m.total {
			return m.abort(ctx, fmt.Errorf("%w: %d, was %d", ErrTotalMismatch, d.Total, m.total))
		}
		if d.Offset != m.written {
			return m.abort(ctx, fmt.Errorf("%w: offset %d, written %d", ErrOffsetMismatch, d.Offset, m.written))
		}
	}

	return m.write(ctx, msg.Payload, d.Kind == mqtt.ChunkComplete)
}

func (m *Machine) begin(ctx context.Context, msg mqtt.Message) error {
	d := msg.Details
	if d.Total <= 0 {
		return m.abort(ctx, fmt.Errorf("%w: %d", ErrInvalidTotal, d.Total))
	}
	if d.Offset != 0 {
		return m.abort(ctx, fmt.Errorf("%w: initial chunk at offset %d", ErrOffsetMismatch, d.Offset))
	}

	w, err := m.storage.BeginWrite(ctx)
	if err != nil {
		return m.abort(ctx, fmt.Errorf("%w: begin write: %w", ErrStorage, err))
	}
	m.writer = w
	m.written = 0
	m.total = d.Total

	if err := m.fsm.Event(ctx, eventBegin); err != nil {
		return m.abort(ctx, err)
	}

	log.Info("OTA transfer started", "total", m.total, "size", humanize.IBytes(uint64(m.total)))
	metrics.OTATotalBytes.Set(float64(m.total))
	metrics.OTABytesWritten.Set(0)

	return m.write(ctx, msg.Payload, false)
}

// write appends payload. complete marks the last chunk of the image.
func (m *Machine) write(ctx context.Context, payload []byte, complete bool) error {
	if len(payload) == 0 && !complete {
		return m.abort(ctx, fmt.Errorf("%w: at offset %d", ErrEmptyChunk, m.written))
	}
	if m.written+len(payload) > m.total {
		return m.abort(ctx, fmt.Errorf("%w: %d+%d > %d", ErrOvershoot, m.written, len(payload), m.total))
	}

	n, err := m.writer.Write(payload)
	m.written += n
	if err != nil {
		return m.abort(ctx, fmt.Errorf("%w: write at offset %d: %w", ErrStorage, m.written, err))
	}
	metrics.OTABytesWritten.Set(float64(m.written))

	if m.written == m.total || complete {
		return m.complete(ctx)
	}
	return nil
}

func (m *Machine) complete(ctx context.Context) error {
	if m.written != m.total {
		return m.abort(ctx, fmt.Errorf("%w: %d of %d", ErrSizeMismatch, m.written, m.total))
	}

	log.Info("OTA transfer complete, installing image", "bytes", m.written)

	// install always reports an error: on success the process is gone.
	err := m.fsm.Event(ctx, eventComplete)
	if err == nil {
		err = ErrRestartReturned
	}
	return m.abort(ctx, err)
}

// install runs on entering Complete: finalize, switch boot, restart.
func (m *Machine) install(ctx context.Context, _ *fsm.Event) error {
	image, err := m.writer.Finalize(ctx)
	if err != nil {
		return fmt.Errorf("%w: finalize: %w", ErrStorage, err)
	}
	m.writer = nil
	metrics.OTATransfersTotal.WithLabelValues("complete").Inc()

	if err := image.SetAsBootPartition(ctx); err != nil {
		return fmt.Errorf("%w: set boot partition: %w", ErrStorage, err)
	}

	log.Info("New image set as boot partition, restarting")
	if err := image.Restart(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrRestartReturned, err)
	}
	return ErrRestartReturned
}

// abort discards the live writer, enters Aborted and returns cause as fatal.
func (m *Machine) abort(ctx context.Context, cause error) error {
	if m.writer != nil {
		if err := m.writer.Abort(); err != nil {
			log.Error(err, "Failed to discard partial image")
		}
		m.writer = nil
		metrics.OTATransfersTotal.WithLabelValues("aborted").Inc()
	}

	if m.fsm.Can(eventAbort) {
		if err := m.fsm.Event(context.WithoutCancel(ctx), eventAbort); err != nil {
			log.Error(err, "Failed to enter aborted state")
		}
	}

	log.Error(cause, "OTA transfer aborted", "written", m.written, "total", m.total)
	return core.Fatal(cause)
}

// Reset discards a transfer cut short by a reconnect. The next transfer
// must start from scratch.
func (m *Machine) Reset(ctx context.Context) {
	if !m.Active() {
		return
	}

	log.Warn("Discarding incomplete OTA transfer", "written", m.written, "total", m.total)
	if m.writer != nil {
		if err := m.writer.Abort(); err != nil {
			log.Error(err, "Failed to discard partial image")
		}
		m.writer = nil
	}
	if err := m.fsm.Event(context.WithoutCancel(ctx), eventReset); err != nil {
		log.Error(err, "Failed to reset OTA transfer")
	}

	m.written, m.total = 0, 0
	metrics.OTATransfersTotal.WithLabelValues("discarded").Inc()
	metrics.OTABytesWritten.Set(0)
	metrics.OTATotalBytes.Set(0)
}
