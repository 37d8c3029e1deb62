package fsm

import (
	"context"
	"errors"
	"testing"

	"github.com/looplab/fsm"
	"github.com/stretchr/testify/assert"
)

func TestWrapEvent(t *testing.T) {
	errInstall := errors.New("install failed")
	fail := true

	m := fsm.NewFSM("idle",
		fsm.Events{{Name: "begin", Src: []string{"idle"}, Dst: "busy"}},
		fsm.Callbacks{
			"enter_busy": WrapEvent(func(context.Context, *fsm.Event) error {
				if fail {
					return errInstall
				}
				return nil
			}),
		},
	)

	err := m.Event(context.Background(), "begin")
	assert.ErrorIs(t, err, errInstall)
	assert.Equal(t, "busy", m.Current())

	fail = false
	m.SetState("idle")
	assert.NoError(t, m.Event(context.Background(), "begin"))
}
