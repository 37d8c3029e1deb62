package display

import (
	"bytes"
	"context"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	clocktesting "k8s.io/utils/clock/testing"

	"github.com/tramcast/tramcast/internal/agent/bus"
	"github.com/tramcast/tramcast/internal/agent/core"
	"github.com/tramcast/tramcast/pkg/mqtt/topic"
)

func init() {
	color.NoColor = true
}

var epoch = time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

func ptr[T any](v T) *T { return &v }

func newDisplay(t *testing.T) (*Display, *bus.Bus, *clocktesting.FakeClock, *bytes.Buffer) {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Budapest")
	require.NoError(t, err)

	b := bus.New(64)
	clk := clocktesting.NewFakeClock(epoch)
	out := &bytes.Buffer{}
	d := New(b, out, Config{Location: loc, PollInterval: 100 * time.Millisecond, CycleInterval: 4 * time.Second}, clk)
	return d, b, clk, out
}

func ready(b *bus.Bus) {
	b.Send(core.Connectivity(true))
	b.Send(core.Session(true))
	b.Send(core.Synced())
}

func TestSnapshotApply(t *testing.T) {
	var s Snapshot
	assert.False(t, s.Ready())

	s.Apply(core.Connectivity(true), epoch)
	s.Apply(core.Session(true), epoch)
	assert.False(t, s.Ready())
	s.Apply(core.Synced(), epoch)
	assert.True(t, s.Ready())

	s.Apply(core.Status(topic.Tram, &core.StatusRecord{DepartAt: ptr(epoch.Add(time.Minute))}), epoch)
	require.NotNil(t, s.Tram)
	assert.Equal(t, epoch.Add(time.Minute), *s.Tram)

	s.Apply(core.Status(topic.Metro, &core.StatusRecord{TimeLeftMs: ptr(int64(300000))}), epoch.Add(time.Second))
	require.NotNil(t, s.Metro)
	assert.Equal(t, epoch.Add(5*time.Minute+time.Second), *s.Metro)

	s.Apply(core.Status(topic.Tram, &core.StatusRecord{}), epoch)
	assert.Nil(t, s.Tram)

	s.Apply(core.Status("weather", &core.StatusRecord{TimeLeftMs: ptr(int64(1))}), epoch)
	assert.NotNil(t, s.Metro)

	s.Apply(core.Session(false), epoch)
	assert.False(t, s.Ready())
}

func TestStatusMessage(t *testing.T) {
	tests := []struct {
		snapshot Snapshot
		want     string
	}{
		{Snapshot{}, "Connecting WiFi..."},
		{Snapshot{Session: true, TimeSynced: true}, "Connecting WiFi..."},
		{Snapshot{Network: true}, "Connecting MQTT..."},
		{Snapshot{Network: true, Session: true}, "Syncing time..."},
		{Snapshot{Network: true, Session: true, TimeSynced: true}, "Waiting for data..."},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusMessage(&tt.snapshot))
	}
}

func TestTramLine(t *testing.T) {
	tests := []struct {
		name     string
		departAt *time.Time
		want     string
	}{
		{name: "unknown", want: "N/A"},
		{name: "countdown", departAt: ptr(epoch.Add(5*time.Minute + 30*time.Second)), want: "05:30"},
		{name: "rounded", departAt: ptr(epoch.Add(61*time.Second + 600*time.Millisecond)), want: "01:02"},
		{name: "over an hour", departAt: ptr(epoch.Add(75 * time.Minute)), want: "75:00"},
		{name: "departing", departAt: ptr(epoch), want: "now"},
		{name: "departed", departAt: ptr(epoch.Add(-time.Minute)), want: "now"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tramLine(tt.departAt, epoch))
		})
	}
}

func TestMetroLine(t *testing.T) {
	assert.Equal(t, "N/A", metroLine(nil, epoch))
	assert.Equal(t, "now", metroLine(ptr(epoch.Add(-time.Second)), epoch))
	assert.Equal(t, "5 minutes", metroLine(ptr(epoch.Add(5*time.Minute+30*time.Second)), epoch))
	assert.Equal(t, "45 seconds", metroLine(ptr(epoch.Add(45*time.Second)), epoch))
}

func TestDisplayStartsNotReady(t *testing.T) {
	d, b, _, out := newDisplay(t)

	require.NoError(t, d.refresh())
	assert.Equal(t, DataNotAvailable, d.Screen())
	assert.Contains(t, out.String(), "Connecting WiFi...")
	assert.NotContains(t, out.String(), "Time:")

	b.Send(core.Connectivity(true))
	require.NoError(t, d.refresh())
	assert.Contains(t, d.frame, "Connecting MQTT...")

	b.Send(core.Session(true))
	require.NoError(t, d.refresh())
	assert.Contains(t, d.frame, "Syncing time...")
}

func TestDisplayCycle(t *testing.T) {
	d, b, clk, _ := newDisplay(t)
	ready(b)
	b.Send(core.Status(topic.Tram, &core.StatusRecord{DepartAt: ptr(epoch.Add(10 * time.Minute))}))

	require.NoError(t, d.refresh())
	assert.Equal(t, DataNotAvailable, d.Screen())
	assert.Contains(t, d.frame, "Waiting for data...")
	assert.Contains(t, d.frame, "2025-05-01 14:00:00")

	want := []Screen{Tram, Metro, Weather, Tram}
	for _, screen := range want {
		clk.Step(4 * time.Second)
		require.NoError(t, d.refresh())
		assert.Equal(t, screen, d.Screen())
	}

	// Back on Tram, 16 seconds later.
	assert.Contains(t, d.frame, "Tram:")
	assert.Contains(t, d.frame, "09:44")
}

func TestDisplayScreens(t *testing.T) {
	d, b, clk, _ := newDisplay(t)
	ready(b)
	require.NoError(t, d.refresh())

	clk.Step(4 * time.Second)
	require.NoError(t, d.refresh())
	require.Equal(t, Tram, d.Screen())
	assert.Contains(t, d.frame, "Tram:")
	assert.Contains(t, d.frame, "N/A")

	b.Send(core.Status(topic.Metro, &core.StatusRecord{TimeLeftMs: ptr(int64(120000))}))
	clk.Step(4 * time.Second)
	require.NoError(t, d.refresh())
	require.Equal(t, Metro, d.Screen())
	assert.Contains(t, d.frame, "Metro:")
	assert.Contains(t, d.frame, "2 minutes")

	clk.Step(4 * time.Second)
	require.NoError(t, d.refresh())
	require.Equal(t, Weather, d.Screen())
	assert.Contains(t, d.frame, "Weather:")
}

func TestDisplayFallsBackWhenNotReady(t *testing.T) {
	d, b, clk, _ := newDisplay(t)
	ready(b)
	require.NoError(t, d.refresh())
	clk.Step(4 * time.Second)
	require.NoError(t, d.refresh())
	require.Equal(t, Tram, d.Screen())

	clk.Step(time.Second)
	b.Send(core.Session(false))
	require.NoError(t, d.refresh())
	assert.Equal(t, DataNotAvailable, d.Screen())
	assert.Contains(t, d.frame, "Connecting MQTT...")

	// Stays there until data is back and the next cycle.
	clk.Step(4 * time.Second)
	require.NoError(t, d.refresh())
	assert.Equal(t, DataNotAvailable, d.Screen())

	b.Send(core.Session(true))
	clk.Step(4 * time.Second)
	require.NoError(t, d.refresh())
	assert.Equal(t, Tram, d.Screen())
}

func TestDisplayRedrawsOnlyOnChange(t *testing.T) {
	d, _, clk, out := newDisplay(t)

	require.NoError(t, d.refresh())
	require.NoError(t, d.refresh())
	clk.Step(100 * time.Millisecond)
	require.NoError(t, d.refresh())

	assert.Equal(t, 1, d.frames)
	written := out.Len()

	// The clock line is hidden until time is synced, so nothing changes.
	clk.Step(time.Minute)
	require.NoError(t, d.refresh())
	assert.Equal(t, written, out.Len())
}

func TestDisplayRun(t *testing.T) {
	d, b, clk, _ := newDisplay(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	require.Eventually(t, clk.HasWaiters, time.Second, time.Millisecond)
	ready(b)
	clk.Step(100 * time.Millisecond)
	require.Eventually(t, func() bool { return b.Len() == 0 && clk.HasWaiters() }, time.Second, time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
}
