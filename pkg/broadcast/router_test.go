package broadcast_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blicence/notifysync/pkg/broadcast"
)

func TestRouter_Dispatch(t *testing.T) {
	t.Run("keyed then catch-all in registration order", func(t *testing.T) {
		r := broadcast.NewRouter[string, int]()
		var got []string

		r.SubscribeAll(func(v int) { got = append(got, "all-1") })
		r.Subscribe("a", func(v int) { got = append(got, "a-1") })
		r.Subscribe("b", func(v int) { got = append(got, "b-1") })
		r.Subscribe("a", func(v int) { got = append(got, "a-2") })
		r.SubscribeAll(func(v int) { got = append(got, "all-2") })

		n := r.Dispatch("a", 1)
		assert.Equal(t, 4, n)
		assert.Equal(t, []string{"a-1", "a-2", "all-1", "all-2"}, got)
	})

	t.Run("no handlers", func(t *testing.T) {
		r := broadcast.NewRouter[string, int]()
		assert.Equal(t, 0, r.Dispatch("missing", 1))
	})

	t.Run("unsubscribe", func(t *testing.T) {
		r := broadcast.NewRouter[string, int]()
		var a, all int
		unsubA := r.Subscribe("a", func(v int) { a += v })
		unsubAll := r.SubscribeAll(func(v int) { all += v })

		r.Dispatch("a", 1)
		unsubA()
		unsubA()
		r.Dispatch("a", 1)
		unsubAll()
		r.Dispatch("a", 1)

		assert.Equal(t, 1, a)
		assert.Equal(t, 2, all)
		assert.Equal(t, 0, r.Len("a"))
	})

	t.Run("panic is contained", func(t *testing.T) {
		var panicked []any
		r := broadcast.NewRouter[string, int](broadcast.WithPanicHandler[string, int](func(key string, rec any) {
			panicked = append(panicked, rec)
		}))
		var after bool
		r.Subscribe("a", func(int) { panic("boom") })
		r.Subscribe("a", func(int) { after = true })

		require.NotPanics(t, func() { r.Dispatch("a", 1) })
		assert.True(t, after)
		assert.Equal(t, []any{"boom"}, panicked)
	})

	t.Run("handler may subscribe during dispatch", func(t *testing.T) {
		r := broadcast.NewRouter[string, int]()
		calls := 0
		r.Subscribe("a", func(int) {
			calls++
			r.Subscribe("a", func(int) { calls += 10 })
		})
		r.Dispatch("a", 1)
		assert.Equal(t, 1, calls)
		r.Dispatch("a", 1)
		assert.Equal(t, 12, calls)
	})

	t.Run("nil handler", func(t *testing.T) {
		r := broadcast.NewRouter[string, int]()
		unsub := r.Subscribe("a", nil)
		unsub()
		assert.Equal(t, 0, r.Len("a"))
	})
}

func TestRouter_Concurrent(t *testing.T) {
	r := broadcast.NewRouter[int, int]()
	var mu sync.Mutex
	total := 0
	r.SubscribeAll(func(v int) {
		mu.Lock()
		total += v
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unsub := r.Subscribe(i, func(int) {})
			r.Dispatch(i, 1)
			unsub()
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, total)
}
