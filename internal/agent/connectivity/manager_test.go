package connectivity

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tramcast/tramcast/internal/agent/core"
	"github.com/tramcast/tramcast/internal/agent/fake"
)

func newManager() (*Manager, *fake.Network, *fake.Recorder) {
	network := &fake.Network{}
	rec := &fake.Recorder{}
	return NewManager(network, Credentials{SSID: "BKV", Password: "secret"}, rec), network, rec
}

func TestEnsureConnectedAtStartup(t *testing.T) {
	m, network, rec := newManager()

	state, err := m.EnsureConnected(context.Background())
	require.NoError(t, err)

	assert.Equal(t, core.Connected, state)
	assert.Equal(t, []bool{false, true}, rec.Values(core.ConnectivityChanged))
	assert.Equal(t, 1, network.ConnectCalls())
}

func TestEnsureConnectedAlreadyUp(t *testing.T) {
	m, network, rec := newManager()
	network.SetUp(true)

	state, err := m.EnsureConnected(context.Background())
	require.NoError(t, err)

	assert.Equal(t, core.Connected, state)
	assert.Equal(t, []bool{true}, rec.Values(core.ConnectivityChanged))
	assert.Zero(t, network.ConnectCalls())
}

func TestEnsureConnectedIsIdempotent(t *testing.T) {
	m, network, rec := newManager()
	ctx := context.Background()

	for range 3 {
		_, err := m.EnsureConnected(ctx)
		require.NoError(t, err)
	}
	network.SetUp(false)
	_, err := m.EnsureConnected(ctx)
	require.NoError(t, err)
	_, err = m.EnsureConnected(ctx)
	require.NoError(t, err)

	values := rec.Values(core.ConnectivityChanged)
	assert.Equal(t, []bool{false, true, false, true}, values)
	for i := 1; i < len(values); i++ {
		assert.NotEqual(t, values[i-1], values[i], "same value published twice in a row at %d", i)
	}
}

func TestEnsureConnectedAssociationFailureIsFatal(t *testing.T) {
	m, network, rec := newManager()
	cause := errors.New("4-way handshake failed")
	network.FailConnect(cause)

	state, err := m.EnsureConnected(context.Background())

	assert.Equal(t, core.Disconnected, state)
	assert.True(t, core.IsFatal(err))
	assert.ErrorIs(t, err, ErrAssociation)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, []bool{false}, rec.Values(core.ConnectivityChanged))
}

func TestEnsureConnectedCanceled(t *testing.T) {
	m, _, _ := newManager()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.EnsureConnected(ctx)

	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, core.IsFatal(err))
}

func TestEnsureConnectedQueryErrorAssumesDown(t *testing.T) {
	m, network, rec := newManager()
	network.SetUp(true)
	network.FailIsConnected(errors.New("dbus timeout"))

	state, err := m.EnsureConnected(context.Background())
	require.NoError(t, err)

	assert.Equal(t, core.Connected, state)
	assert.Equal(t, 1, network.ConnectCalls())
	assert.Equal(t, []bool{false, true}, rec.Values(core.ConnectivityChanged))
}
