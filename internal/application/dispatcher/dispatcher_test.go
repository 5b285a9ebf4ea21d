package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/garyjia/expense-approval/internal/domain/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockLogger implements Logger for testing
type mockLogger struct {
	mu     sync.Mutex
	infos  []string
	errors []string
}

func (m *mockLogger) Info(msg string, keysAndValues ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.infos = append(m.infos, msg)
}

func (m *mockLogger) Error(msg string, keysAndValues ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors = append(m.errors, fmt.Sprint(append([]interface{}{msg}, keysAndValues...)...))
}

func (m *mockLogger) ErrorCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.errors)
}

func submitted() *event.Event {
	return event.NewEvent(event.TypeExpenseSubmitted, "exp-1", "acme", nil)
}

func TestSubscribe(t *testing.T) {
	t.Run("handler receives subscribed types only", func(t *testing.T) {
		d := NewDispatcher()
		var seen []event.Type
		d.Subscribe("recorder", func(ctx context.Context, evt *event.Event) error {
			seen = append(seen, evt.Type)
			return nil
		}, event.TypeExpenseApproved, event.TypeExpenseRejected)

		for _, typ := range []event.Type{event.TypeExpenseSubmitted, event.TypeExpenseApproved, event.TypeExpenseRejected} {
			require.NoError(t, d.Dispatch(context.Background(), event.NewEvent(typ, "exp-1", "acme", nil)))
		}

		assert.Equal(t, []event.Type{event.TypeExpenseApproved, event.TypeExpenseRejected}, seen)
	})

	t.Run("handlers run in registration order", func(t *testing.T) {
		d := NewDispatcher(WithLogger(&mockLogger{}))
		var order []string
		for _, name := range []string{"first", "second", "third"} {
			name := name
			d.Subscribe(name, func(ctx context.Context, evt *event.Event) error {
				order = append(order, name)
				return nil
			}, event.TypeExpenseSubmitted)
		}

		require.NoError(t, d.Dispatch(context.Background(), submitted()))
		assert.Equal(t, []string{"first", "second", "third"}, order)
		assert.Equal(t, []string{"first", "second", "third"}, d.ListHandlers(event.TypeExpenseSubmitted))
	})
}

func TestUnsubscribe(t *testing.T) {
	d := NewDispatcher()
	var calls atomic.Int32
	d.Subscribe("notify", func(ctx context.Context, evt *event.Event) error {
		calls.Add(1)
		return nil
	}, event.TypeExpenseSubmitted, event.TypeExpenseApproved)
	d.Subscribe("keep", func(ctx context.Context, evt *event.Event) error { return nil }, event.TypeExpenseSubmitted)

	d.Unsubscribe("notify")

	require.NoError(t, d.Dispatch(context.Background(), submitted()))
	assert.Equal(t, int32(0), calls.Load())
	assert.Equal(t, []string{"keep"}, d.ListHandlers(event.TypeExpenseSubmitted))
	assert.Empty(t, d.ListHandlers(event.TypeExpenseApproved))
}

func TestDispatch(t *testing.T) {
	t.Run("no handlers is not an error", func(t *testing.T) {
		assert.NoError(t, NewDispatcher().Dispatch(context.Background(), submitted()))
	})

	t.Run("every handler runs and the first error is returned", func(t *testing.T) {
		logger := &mockLogger{}
		d := NewDispatcher(WithLogger(logger))
		var ran []string
		d.Subscribe("a", func(ctx context.Context, evt *event.Event) error {
			ran = append(ran, "a")
			return errors.New("lark down")
		}, event.TypeExpenseSubmitted)
		d.Subscribe("b", func(ctx context.Context, evt *event.Event) error {
			ran = append(ran, "b")
			return errors.New("second")
		}, event.TypeExpenseSubmitted)

		err := d.Dispatch(context.Background(), submitted())

		require.Error(t, err)
		assert.Contains(t, err.Error(), "handler a failed: lark down")
		assert.Equal(t, []string{"a", "b"}, ran)
		assert.Equal(t, 2, logger.ErrorCount())
	})

	t.Run("panic is recovered as an error", func(t *testing.T) {
		d := NewDispatcher()
		d.Subscribe("boom", func(ctx context.Context, evt *event.Event) error {
			panic("nil map")
		}, event.TypeExpenseSubmitted)

		err := d.Dispatch(context.Background(), submitted())

		require.Error(t, err)
		assert.Contains(t, err.Error(), "handler panic: nil map")
	})

	t.Run("observer sees each outcome", func(t *testing.T) {
		type outcome struct {
			name string
			ok   bool
		}
		var got []outcome
		d := NewDispatcher(WithObserver(func(eventType event.Type, name string, err error) {
			got = append(got, outcome{name, err == nil})
		}))
		d.Subscribe("ok", func(ctx context.Context, evt *event.Event) error { return nil }, event.TypeExpenseSubmitted)
		d.Subscribe("fail", func(ctx context.Context, evt *event.Event) error { return errors.New("x") }, event.TypeExpenseSubmitted)

		_ = d.Dispatch(context.Background(), submitted())

		assert.Equal(t, []outcome{{"ok", true}, {"fail", false}}, got)
	})
}

func TestDispatchAsync(t *testing.T) {
	t.Run("handlers outlive a cancelled request context", func(t *testing.T) {
		d := NewDispatcher()
		done := make(chan error, 1)
		d.Subscribe("slow", func(ctx context.Context, evt *event.Event) error {
			time.Sleep(10 * time.Millisecond)
			done <- ctx.Err()
			return nil
		}, event.TypeExpenseSubmitted)

		ctx, cancel := context.WithCancel(context.Background())
		d.DispatchAsync(ctx, submitted())
		cancel()

		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(time.Second):
			t.Fatal("handler did not run")
		}
	})

	t.Run("close waits for in-flight handlers", func(t *testing.T) {
		d := NewDispatcher()
		var finished atomic.Bool
		d.Subscribe("slow", func(ctx context.Context, evt *event.Event) error {
			time.Sleep(20 * time.Millisecond)
			finished.Store(true)
			return nil
		}, event.TypeExpenseSubmitted)

		d.DispatchAsync(context.Background(), submitted())
		require.NoError(t, d.Close())

		assert.True(t, finished.Load())
	})

	t.Run("closed dispatcher drops events", func(t *testing.T) {
		logger := &mockLogger{}
		d := NewDispatcher(WithLogger(logger))
		var calls atomic.Int32
		d.Subscribe("h", func(ctx context.Context, evt *event.Event) error {
			calls.Add(1)
			return nil
		}, event.TypeExpenseSubmitted)
		require.NoError(t, d.Close())

		d.DispatchAsync(context.Background(), submitted())

		assert.Equal(t, int32(0), calls.Load())
		assert.Equal(t, 1, logger.ErrorCount())
		assert.Error(t, d.Dispatch(context.Background(), submitted()))
	})
}

func TestClose_Twice(t *testing.T) {
	d := NewDispatcher()

	require.NoError(t, d.Close())
	assert.Error(t, d.Close())
}

func TestConcurrency(t *testing.T) {
	d := NewDispatcher()
	var calls atomic.Int64
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			d.Subscribe(fmt.Sprintf("h-%d", i), func(ctx context.Context, evt *event.Event) error {
				calls.Add(1)
				return nil
			}, event.TypeExpenseAdvanced)
		}(i)
	}
	wg.Wait()

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.DispatchAsync(context.Background(), event.NewEvent(event.TypeExpenseAdvanced, "exp-1", "acme", nil))
		}()
	}
	wg.Wait()
	require.NoError(t, d.Close())

	assert.Equal(t, int64(200), calls.Load())
}
