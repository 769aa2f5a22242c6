package bridge

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/gobpm/pkg/monitor"
)

func newTestBridge(size int, exec Executor) *Bridge {
	log, _ := test.NewNullLogger()
	return New(size, exec, log)
}

// recorder collects applied updates.
type recorder struct {
	mu   sync.Mutex
	got  []any
	seen chan struct{}
}

func newRecorder() *recorder {
	return &recorder{seen: make(chan struct{}, 100)}
}

func (r *recorder) apply(v any) {
	r.mu.Lock()
	r.got = append(r.got, v)
	r.mu.Unlock()
	r.seen <- struct{}{}
}

func (r *recorder) wait(t *testing.T, n int) []any {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-r.seen:
		case <-time.After(2 * time.Second):
			t.Fatalf("only %d of %d updates applied", i, n)
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]any(nil), r.got...)
}

func TestBridge_FIFO(t *testing.T) {
	b := newTestBridge(8, Inline)
	rec := newRecorder()
	b.Handle(TargetNeedle, rec.apply)

	require.NoError(t, b.Post(TargetNeedle, "A"))
	require.NoError(t, b.Post(TargetNeedle, "B"))
	require.NoError(t, b.Post(TargetNeedle, "C"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	assert.Equal(t, []any{"A", "B", "C"}, rec.wait(t, 3))
}

func TestBridge_FIFOAcrossTargets(t *testing.T) {
	b := newTestBridge(8, Inline)

	var mu sync.Mutex
	var order []string
	done := make(chan struct{}, 4)
	record := func(name string) func(any) {
		return func(any) {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			done <- struct{}{}
		}
	}
	b.Handle(TargetNeedle, record("needle"))
	b.Handle(TargetScreen, record("screen"))
	b.Handle(TargetResult, record("result"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	require.NoError(t, b.Post(TargetScreen, 1))
	require.NoError(t, b.Post(TargetNeedle, 120.0))
	require.NoError(t, b.Post(TargetResult, "r"))

	for i := 0; i < 3; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("updates not applied")
		}
	}
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"screen", "needle", "result"}, order)
}

func TestBridge_ExecutorRunsUpdates(t *testing.T) {
	// A single goroutine stands in for the display loop.
	work := make(chan func(), 16)
	exec := ExecutorFunc(func(fn func()) { work <- fn })
	go func() {
		for fn := range work {
			fn()
		}
	}()
	defer close(work)

	b := newTestBridge(8, exec)
	rec := newRecorder()
	b.Handle(TargetHeartRate, rec.apply)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	for i := 1; i <= 5; i++ {
		require.NoError(t, b.Post(TargetHeartRate, float64(i)))
	}
	assert.Equal(t, []any{1.0, 2.0, 3.0, 4.0, 5.0}, rec.wait(t, 5))
}

func TestBridge_QueueFull(t *testing.T) {
	b := newTestBridge(2, Inline)
	before := testutil.ToFloat64(monitor.BridgeFailures.WithLabelValues("full"))

	require.NoError(t, b.Post(TargetNeedle, 1))
	require.NoError(t, b.Post(TargetNeedle, 2))
	assert.Equal(t, 2, b.Len())

	err := b.Post(TargetNeedle, 3)
	assert.ErrorIs(t, err, ErrQueueFull)
	assert.Equal(t, before+1, testutil.ToFloat64(monitor.BridgeFailures.WithLabelValues("full")))
}

func TestBridge_Closed(t *testing.T) {
	b := newTestBridge(2, Inline)
	b.Close()
	b.Close()

	assert.ErrorIs(t, b.Post(TargetScreen, 0), ErrClosed)
	assert.NoError(t, b.Run(context.Background()))
}

func TestBridge_RunStopsOnCancel(t *testing.T) {
	b := newTestBridge(2, Inline)
	ctx, cancel := context.WithCancel(context.Background())

	errc := make(chan error, 1)
	go func() { errc <- b.Run(ctx) }()
	cancel()

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
}

func TestBridge_UnhandledTargetIsSkipped(t *testing.T) {
	b := newTestBridge(4, Inline)
	rec := newRecorder()
	b.Handle(TargetReady, rec.apply)

	require.NoError(t, b.Post(TargetNeedle, 1.0))
	require.NoError(t, b.Post(TargetReady, struct{}{}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	assert.Equal(t, []any{struct{}{}}, rec.wait(t, 1))
}

func TestTarget_String(t *testing.T) {
	assert.Equal(t, "needle", TargetNeedle.String())
	assert.Equal(t, "screen", TargetScreen.String())
	assert.Equal(t, "target(42)", Target(42).String())
}
