package hal

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	clocktesting "k8s.io/utils/clock/testing"

	"github.com/tramcast/tramcast/internal/agent/core"
	"github.com/tramcast/tramcast/pkg/mqtt"
	"github.com/tramcast/tramcast/pkg/mqtt/topic"
)

func next(t *testing.T, c mqtt.Client) mqtt.Event {
	t.Helper()
	select {
	case ev := <-c.Events():
		return ev
	case <-time.After(time.Second):
		t.Fatal("no event")
		return mqtt.Event{}
	}
}

func TestSimBroker(t *testing.T) {
	table, err := topic.NewTable("")
	require.NoError(t, err)
	clk := clocktesting.NewFakeClock(time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC))
	ctx := context.Background()

	c, err := NewSimBroker(table, 15*time.Second, clk).Open(ctx, "sim://", "tramcast")
	require.NoError(t, err)
	assert.ErrorIs(t, c.Subscribe(ctx, table.Tram, mqtt.ExactlyOnce), mqtt.ErrNotStarted)

	require.NoError(t, c.Start(ctx))
	assert.Equal(t, mqtt.EventConnected, next(t, c).Kind)
	require.NoError(t, c.Subscribe(ctx, table.Tram, mqtt.ExactlyOnce))

	// Round zero may race the subscription; round one follows the ticker.
	require.Eventually(t, clk.HasWaiters, time.Second, time.Millisecond)
	clk.Step(15 * time.Second)

	ev := next(t, c)
	require.Equal(t, mqtt.EventReceived, ev.Kind)
	assert.Equal(t, table.Tram, ev.Message.Topic)

	var rec core.StatusRecord
	require.NoError(t, json.Unmarshal(ev.Message.Payload, &rec))
	require.NotNil(t, rec.DepartAt)
	assert.True(t, rec.DepartAt.After(clk.Now()))

	c.Disconnect(ctx)
}

func TestSimTimeSource(t *testing.T) {
	ts := &SimTimeSource{PendingPolls: 2}
	ctx := context.Background()
	require.NoError(t, ts.Start(ctx))

	var got []core.SyncStatus
	for range 3 {
		s, err := ts.Status(ctx)
		require.NoError(t, err)
		got = append(got, s)
	}
	assert.Equal(t, []core.SyncStatus{core.SyncPending, core.SyncPending, core.SyncCompleted}, got)
}

func TestSimNetwork(t *testing.T) {
	n := &SimNetwork{}
	ctx := context.Background()

	up, _ := n.IsConnected(ctx)
	assert.False(t, up)
	require.NoError(t, n.Connect(ctx, "BKV", ""))
	up, _ = n.IsConnected(ctx)
	assert.True(t, up)

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	assert.ErrorIs(t, (&SimNetwork{Delay: time.Hour}).Connect(canceled, "BKV", ""), context.Canceled)
}
