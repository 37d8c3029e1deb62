// Package display renders the agent state on a text console. It folds the
// events drained from the bus into a snapshot and redraws a frame when the
// rendered text changes.
package display

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/go-logr/logr"
	"github.com/gosuri/uitable"
	"k8s.io/utils/clock"

	"github.com/tramcast/tramcast/internal/agent/core"
)

// Source yields pending state events.
type Source interface {
	Drain() []core.StateEvent
}

type Config struct {
	// Location of the clock line.
	Location *time.Location

	PollInterval  time.Duration
	CycleInterval time.Duration
}

type Display struct {
	source Source
	out    io.Writer
	clock  clock.Clock
	cfg    Config
	logger logr.Logger

	snapshot Snapshot
	screen   Screen
	cycledAt time.Time
	frame    string
	frames   int
}

func New(source Source, out io.Writer, cfg Config, clk clock.Clock) *Display {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 100 * time.Millisecond
	}
	if cfg.CycleInterval <= 0 {
		cfg.CycleInterval = 4 * time.Second
	}
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Display{
		source:   source,
		out:      out,
		clock:    clk,
		cfg:      cfg,
		logger:   logr.Discard(),
		cycledAt: clk.Now(),
	}
}

// Run polls the source until ctx is done.
func (d *Display) Run(ctx context.Context) error {
	d.logger = logr.FromContextOrDiscard(ctx).WithName("display")
	d.logger.Info("Display started", "location", d.cfg.Location.String(), "cycle", d.cfg.CycleInterval)

	for {
		if err := d.refresh(); err != nil {
			return fmt.Errorf("failed to draw frame: %w", err)
		}

		t := d.clock.NewTimer(d.cfg.PollInterval)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C():
		}
	}
}

// refresh drains the source, advances the screen and redraws if needed.
func (d *Display) refresh() error {
	now := d.clock.Now()
	for _, ev := range d.source.Drain() {
		d.snapshot.Apply(ev, now)
		d.logger.V(1).Info("State event", "event", ev.String())
	}

	d.advance(now)

	frame := d.render(now)
	if frame == d.frame {
		return nil
	}
	d.frame = frame
	d.frames++
	_, err := io.WriteString(d.out, frame+"\n\n")
	return err
}

// advance switches to the next screen once the cycle interval has passed.
// Without data the display falls back to DataNotAvailable at once.
func (d *Display) advance(now time.Time) {
	if !d.snapshot.Ready() {
		if d.screen != DataNotAvailable {
			d.logger.V(1).Info("Screen changed", "screen", DataNotAvailable.String())
		}
		d.screen = DataNotAvailable
	}
	if now.Sub(d.cycledAt) < d.cfg.CycleInterval {
		return
	}
	d.cycledAt = now
	if d.snapshot.Ready() {
		d.screen = d.screen.next()
		d.logger.V(1).Info("Screen changed", "screen", d.screen.String())
	}
}

func (d *Display) render(now time.Time) string {
	table := uitable.New()
	table.Separator = " "

	if d.snapshot.TimeSynced {
		table.AddRow("Time:", now.In(d.cfg.Location).Format(time.DateTime))
	}

	switch d.screen {
	case Tram:
		table.AddRow("Tram:", tramLine(d.snapshot.Tram, now))
	case Metro:
		table.AddRow("Metro:", metroLine(d.snapshot.Metro, now))
	case Weather:
		table.AddRow("Weather:", "N/A")
	default:
		table.AddRow("Status:", color.New(color.FgYellow).Sprint(statusMessage(&d.snapshot)))
	}

	return table.String()
}

// Screen returns the screen currently shown.
func (d *Display) Screen() Screen {
	return d.screen
}

// Snapshot returns a copy of the folded state.
func (d *Display) Snapshot() Snapshot {
	return d.snapshot
}
