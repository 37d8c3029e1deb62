package timesync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testingclock "k8s.io/utils/clock/testing"

	"github.com/tramcast/tramcast/internal/agent/core"
	"github.com/tramcast/tramcast/internal/agent/fake"
)

func waitAsync(g *Gate, ctx context.Context) <-chan error {
	done := make(chan error, 1)
	go func() { done <- g.WaitForSync(ctx) }()
	return done
}

func TestWaitForSyncPolls(t *testing.T) {
	clk := testingclock.NewFakeClock(time.Now())
	source := &fake.TimeSource{PendingPolls: 2}
	rec := &fake.Recorder{}
	g := NewGate(source, rec, 5*time.Second, clk)

	done := waitAsync(g, context.Background())

	for range 2 {
		require.Eventually(t, clk.HasWaiters, time.Second, time.Millisecond)
		assert.Empty(t, rec.Events(), "synced before the source completed")
		clk.Step(5 * time.Second)
	}

	require.NoError(t, <-done)
	assert.Equal(t, core.TimeSyncSynced, g.State())
	assert.Equal(t, 3, source.Polls())
	assert.Equal(t, 1, source.Starts())
	assert.Equal(t, []bool{true}, rec.Values(core.TimeSynced))
}

func TestWaitForSyncOncePerEpoch(t *testing.T) {
	source := &fake.TimeSource{}
	rec := &fake.Recorder{}
	g := NewGate(source, rec, time.Second, testingclock.NewFakeClock(time.Now()))
	ctx := context.Background()

	require.NoError(t, g.WaitForSync(ctx))
	require.NoError(t, g.WaitForSync(ctx))
	assert.Equal(t, []bool{true}, rec.Values(core.TimeSynced))
	assert.Equal(t, 1, source.Polls())

	g.Reset()
	assert.Equal(t, core.TimeSyncPending, g.State())
	assert.Equal(t, []bool{true}, rec.Values(core.TimeSynced), "reset publishes nothing")

	require.NoError(t, g.WaitForSync(ctx))
	assert.Equal(t, []bool{true, true}, rec.Values(core.TimeSynced))
	assert.Equal(t, 2, source.Starts())
}

func TestWaitForSyncCanceled(t *testing.T) {
	clk := testingclock.NewFakeClock(time.Now())
	g := NewGate(&fake.TimeSource{PendingPolls: 100}, &fake.Recorder{}, time.Second, clk)
	ctx, cancel := context.WithCancel(context.Background())

	done := waitAsync(g, ctx)
	require.Eventually(t, clk.HasWaiters, time.Second, time.Millisecond)
	cancel()

	assert.ErrorIs(t, <-done, context.Canceled)
	assert.Equal(t, core.TimeSyncPending, g.State())
}

func TestWaitForSyncToleratesSourceErrors(t *testing.T) {
	clk := testingclock.NewFakeClock(time.Now())
	source := &fake.TimeSource{StartErr: errors.New("ntp disabled"), StatusErr: errors.New("dbus")}
	rec := &fake.Recorder{}
	g := NewGate(source, rec, time.Second, clk)

	done := waitAsync(g, context.Background())
	require.Eventually(t, clk.HasWaiters, time.Second, time.Millisecond)

	source.FailStatus(nil)
	clk.Step(time.Second)

	require.NoError(t, <-done)
	assert.Equal(t, []bool{true}, rec.Values(core.TimeSynced))
}

func TestNewGateDefaults(t *testing.T) {
	g := NewGate(&fake.TimeSource{}, &fake.Recorder{}, 0, nil)
	assert.Equal(t, DefaultPollInterval, g.interval)
	assert.NotNil(t, g.clock)
}
