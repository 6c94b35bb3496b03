package statemachine_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blicence/notifysync/pkg/statemachine"
)

type light string
type press string

const (
	off    light = "off"
	on     light = "on"
	broken light = "broken"

	toggle press = "toggle"
	smash  press = "smash"
)

func TestMachine_Fire(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	m := statemachine.MustNew[light, press](off,
		statemachine.WithTransition(off, on, toggle),
		statemachine.WithTransition(on, off, toggle),
	)
	assert.Equal(t, off, m.Current())

	to, err := m.Fire(ctx, toggle, nil)
	require.NoError(t, err)
	assert.Equal(t, on, to)
	assert.Equal(t, on, m.Current())

	_, err = m.Fire(ctx, smash, nil)
	require.Error(t, err)
	assert.True(t, statemachine.IsNoTransitionAvailableError(err))
	assert.Equal(t, on, m.Current())

	m.Reset()
	assert.Equal(t, off, m.Current())
}

func TestMachine_GuardBranching(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	hard := func(_ context.Context, _ light, _ press, data any) bool {
		n, _ := data.(int)
		return n > 5
	}

	m := statemachine.MustNew[light, press](on,
		statemachine.WithTransition(on, broken, smash, statemachine.WithGuard(hard)),
		statemachine.WithTransition(on, off, smash),
	)

	assert.True(t, m.CanFire(ctx, smash, 1))
	to, err := m.Fire(ctx, smash, 1)
	require.NoError(t, err)
	assert.Equal(t, off, to)

	m2 := statemachine.MustNew[light, press](on,
		statemachine.WithTransition(on, broken, smash, statemachine.WithGuard(hard)),
		statemachine.WithTransition(on, off, smash),
	)
	to, err = m2.Fire(ctx, smash, 9)
	require.NoError(t, err)
	assert.Equal(t, broken, to)
}

func TestMachine_GuardRejects(t *testing.T) {
	t.Parallel()
	never := func(context.Context, light, press, any) bool { return false }
	m := statemachine.MustNew[light, press](off,
		statemachine.WithTransition(off, on, toggle, statemachine.WithGuard(never)),
	)

	assert.False(t, m.CanFire(context.Background(), toggle, nil))
	_, err := m.Fire(context.Background(), toggle, nil)
	assert.True(t, statemachine.IsTransitionRejectedError(err))
	assert.Equal(t, off, m.Current())
}

func TestMachine_ActionAbort(t *testing.T) {
	t.Parallel()
	boom := errors.New("boom")
	var calls []string
	m := statemachine.MustNew[light, press](off,
		statemachine.WithTransition(off, on, toggle,
			statemachine.WithAction(func(_ context.Context, from, to light, _ press, _ any) error {
				calls = append(calls, string(from)+">"+string(to))
				return nil
			}),
			statemachine.WithAction(func(context.Context, light, light, press, any) error {
				return boom
			}),
		),
	)

	_, err := m.Fire(context.Background(), toggle, nil)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"off>on"}, calls)
	assert.Equal(t, off, m.Current())
}

func TestMachine_TransitionFromMany(t *testing.T) {
	t.Parallel()
	var seen []light
	m := statemachine.MustNew[light, press](off,
		statemachine.WithTransition(off, on, toggle),
		statemachine.WithTransitionFrom([]light{off, on}, broken, smash),
		statemachine.WithObserver(func(_, to light, _ press) { seen = append(seen, to) }),
	)

	_, err := m.Fire(context.Background(), toggle, nil)
	require.NoError(t, err)
	_, err = m.Fire(context.Background(), smash, nil)
	require.NoError(t, err)
	assert.Equal(t, []light{on, broken}, seen)
}

func TestMachine_InvalidOptions(t *testing.T) {
	t.Parallel()
	_, err := statemachine.New[light, press](off, statemachine.WithTransitionFrom[light, press](nil, on, toggle))
	assert.ErrorIs(t, err, statemachine.ErrInvalidTransition)
	assert.Panics(t, func() {
		statemachine.MustNew[light, press](off, statemachine.WithTransitionFrom[light, press](nil, on, toggle))
	})
}

func TestMachine_Concurrent(t *testing.T) {
	t.Parallel()
	m := statemachine.MustNew[light, press](off,
		statemachine.WithTransition(off, on, toggle),
		statemachine.WithTransition(on, off, toggle),
	)

	var wg sync.WaitGroup
	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = m.Fire(context.Background(), toggle, nil)
			_ = m.Current()
		}()
	}
	wg.Wait()
	assert.Equal(t, off, m.Current())
}
