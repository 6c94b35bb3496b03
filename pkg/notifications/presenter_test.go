package notifications

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func TestMultiPresenter_Present(t *testing.T) {
	t.Parallel()

	a := Alert{ID: "1", Title: "t"}
	ok1 := new(MockPresenter)
	ok1.On("Present", mock.Anything, a).Return(nil).Once()
	failing := new(MockPresenter)
	failing.On("Present", mock.Anything, a).Return(errors.New("boom")).Once()
	ok2 := new(MockPresenter)
	ok2.On("Present", mock.Anything, a).Return(nil).Once()

	err := NewMultiPresenter([]Presenter{ok1, failing, ok2}).Present(context.Background(), a)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	ok1.AssertExpectations(t)
	failing.AssertExpectations(t)
	ok2.AssertExpectations(t)
}

func TestMultiPresenter_RequestPermission(t *testing.T) {
	t.Parallel()

	grant := new(MockConsentPresenter)
	grant.On("RequestPermission", mock.Anything).Return(true, nil)
	deny := new(MockConsentPresenter)
	deny.On("RequestPermission", mock.Anything).Return(false, nil)

	granted, err := NewMultiPresenter([]Presenter{NoOpPresenter{}, grant}).RequestPermission(context.Background())
	require.NoError(t, err)
	assert.True(t, granted)

	granted, err = NewMultiPresenter([]Presenter{grant, deny}).RequestPermission(context.Background())
	require.NoError(t, err)
	assert.False(t, granted)
}

func TestThrottledPresenter(t *testing.T) {
	t.Parallel()

	calls := 0
	next := PresenterFunc(func(context.Context, Alert) error {
		calls++
		return nil
	})
	p := NewThrottledPresenter(next, rate.Every(1e12), 2)

	assert.NoError(t, p.Present(context.Background(), Alert{}))
	assert.NoError(t, p.Present(context.Background(), Alert{}))
	assert.ErrorIs(t, p.Present(context.Background(), Alert{}), ErrThrottled)
	assert.Equal(t, 2, calls)

	granted, err := p.RequestPermission(context.Background())
	require.NoError(t, err)
	assert.True(t, granted)
}

func TestLogPresenter(t *testing.T) {
	t.Parallel()
	assert.NoError(t, NewLogPresenter(nil).Present(context.Background(), Alert{Title: "t", Priority: PriorityHigh}))
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("pipe closed") }

func TestJSONPresenter(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("writes one line per alert", func(t *testing.T) {
		t.Parallel()
		buf := &bytes.Buffer{}
		p := NewJSONPresenter(buf)

		require.NoError(t, p.Present(ctx, Alert{ID: "1", Title: "Plan", Category: CategoryPlanUpdate, Priority: PriorityHigh, Channel: "plan-updates", Sound: true}))
		require.NoError(t, p.Present(ctx, Alert{ID: "2", Title: "Price", Category: CategoryPriceChange, Priority: PriorityNormal, Channel: "price-alerts"}))

		var lines []map[string]any
		sc := bufio.NewScanner(buf)
		for sc.Scan() {
			var m map[string]any
			require.NoError(t, json.Unmarshal(sc.Bytes(), &m))
			lines = append(lines, m)
		}
		require.Len(t, lines, 2)
		assert.Equal(t, "plan_update", lines[0]["type"])
		assert.Equal(t, "plan-updates", lines[0]["channelId"])
		assert.Equal(t, true, lines[0]["sound"])
		assert.Equal(t, "price-alerts", lines[1]["channelId"])
		assert.NotContains(t, lines[1], "data")
	})

	t.Run("reports write failures", func(t *testing.T) {
		t.Parallel()
		err := NewJSONPresenter(failingWriter{}).Present(ctx, Alert{ID: "1"})
		assert.ErrorContains(t, err, "pipe closed")
	})
}
