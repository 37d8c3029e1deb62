// Package timesync blocks the pipeline until the wall clock is synchronized.
package timesync

import (
	"context"
	"time"

	"k8s.io/utils/clock"

	"github.com/tramcast/tramcast/internal/agent/core"
	"github.com/tramcast/tramcast/pkg/log"
)

// DefaultPollInterval is how often the time source is polled.
const DefaultPollInterval = 5 * time.Second

// Gate polls a TimeSource until it reports completion. It publishes
// TimeSynced(true) once per epoch; Reset starts a new epoch.
type Gate struct {
	source    core.TimeSource
	publisher core.Publisher
	clock     clock.Clock
	interval  time.Duration

	state   core.TimeSyncState
	started bool
}

// NewGate returns a Gate. A nil clock uses the real clock.
func NewGate(source core.TimeSource, publisher core.Publisher, interval time.Duration, clk clock.Clock) *Gate {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Gate{
		source:    source,
		publisher: publisher,
		clock:     clk,
		interval:  interval,
	}
}

// WaitForSync blocks until the clock is synchronized or ctx is done. It
// returns immediately once the gate is Synced.
func (g *Gate) WaitForSync(ctx context.Context) error {
	if g.state == core.TimeSyncSynced {
		return nil
	}

	if !g.started {
		if err := g.source.Start(ctx); err != nil {
			log.Error(err, "Failed to start time synchronization, polling anyway")
		}
		g.started = true
	}

	for {
		status, err := g.source.Status(ctx)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Warn("Failed to query time synchronization status", "error", err)
		case status == core.SyncCompleted:
			g.state = core.TimeSyncSynced
			log.Info("Wall clock synchronized", "now", g.clock.Now().UTC())
			g.publisher.Send(core.Synced())
			return nil
		default:
			log.Debug("Waiting for time synchronization", "interval", g.interval)
		}

		timer := g.clock.NewTimer(g.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C():
		}
	}
}

// Reset returns the gate to Pending for the next epoch. It publishes nothing.
func (g *Gate) Reset() {
	g.state = core.TimeSyncPending
	g.started = false
}

// State returns the current gate state.
func (g *Gate) State() core.TimeSyncState {
	return g.state
}
