// Package agent runs the device pipeline: connectivity, time sync, the broker
// session and message routing, supervised per connectivity epoch, next to
// the display and the metrics server.
package agent

import (
	"context"
	"time"

	"github.com/go-logr/logr"
	"golang.org/x/sync/errgroup"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/utils/clock"

	"github.com/tramcast/tramcast/internal/agent/connectivity"
	"github.com/tramcast/tramcast/internal/agent/core"
	"github.com/tramcast/tramcast/internal/agent/ota"
	"github.com/tramcast/tramcast/internal/agent/router"
	"github.com/tramcast/tramcast/internal/agent/session"
	"github.com/tramcast/tramcast/internal/agent/timesync"
	"github.com/tramcast/tramcast/internal/display"
	"github.com/tramcast/tramcast/internal/pkg/metrics"
	"github.com/tramcast/tramcast/pkg/log"
)

// DefaultBackoff paces epoch re-entry. It resets after every session that came up.
var DefaultBackoff = wait.Backoff{
	Duration: time.Second,
	Factor:   2,
	Jitter:   0.1,
	Steps:    10,
	Cap:      30 * time.Second,
}

type Agent struct {
	conn    *connectivity.Manager
	gate    *timesync.Gate
	broker  core.Broker
	session session.Config
	router  *router.Router
	ota     *ota.Machine
	status  *Status

	display *display.Display
	server  *metrics.Server

	backoff wait.Backoff
	clock   clock.Clock
}

// Run starts the supervisor, the display and the metrics server. It returns
// nil when ctx is done and the fatal error that stopped the supervisor
// otherwise.
func (a *Agent) Run(ctx context.Context) error {
	log.Info("Starting tramcast agent", "broker", a.session.Endpoint, "clientID", a.session.ClientID)

	ctx = logr.NewContext(ctx, log.Logr())
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.supervise(ctx)
	})
	if a.display != nil {
		g.Go(func() error {
			return a.display.Run(ctx)
		})
	}
	if a.server != nil {
		g.Go(func() error {
			return a.server.Run(ctx)
		})
	}

	err := g.Wait()
	log.Info("Agent shutting down...")
	return err
}

// Ready reports whether the agent has data to serve.
func (a *Agent) Ready() bool {
	return a.status.Ready()
}

// supervise runs epochs until ctx is done or one ends with a fatal error.
func (a *Agent) supervise(ctx context.Context) error {
	backoff := a.backoff

	for epoch := 1; ; epoch++ {
		sessions := a.status.Sessions()
		err := a.runEpoch(ctx)
		a.ota.Reset(ctx)

		switch {
		case core.IsFatal(err):
			metrics.EpochsTotal.WithLabelValues("fatal").Inc()
			log.Error(err, "Fatal error, stopping agent", "epoch", epoch)
			return err
		case ctx.Err() != nil:
			metrics.EpochsTotal.WithLabelValues("canceled").Inc()
			return nil
		case err != nil:
			log.Warn("Epoch failed", "epoch", epoch, "error", err)
		default:
			log.Info("Broker session ended", "epoch", epoch)
		}
		metrics.EpochsTotal.WithLabelValues("reconnect").Inc()

		if a.status.Sessions() > sessions {
			backoff = a.backoff
		}
		delay := backoff.Step()
		log.Info("Starting next epoch", "epoch", epoch+1, "delay", delay)

		t := a.clock.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C():
		}
	}
}

// runEpoch brings the link up, waits for the clock and serves one broker
// session until it disconnects.
func (a *Agent) runEpoch(ctx context.Context) error {
	if _, err := a.conn.EnsureConnected(ctx); err != nil {
		return err
	}

	a.gate.Reset()
	if err := a.gate.WaitForSync(ctx); err != nil {
		return err
	}

	s, err := session.Open(ctx, a.broker, a.session, a.status)
	if err != nil {
		return err
	}
	defer s.Close(ctx)

	return s.Serve(ctx, a.router.Route)
}
