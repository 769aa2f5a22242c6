package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/itohio/gobpm/pkg/monitor"
)

var (
	// ErrClosed is returned by Post after the display side has gone away.
	ErrClosed = errors.New("bridge: closed")
	// ErrQueueFull is returned by Post when the display is not keeping up.
	ErrQueueFull = errors.New("bridge: queue full")
)

// DefaultQueueSize is used when New is given a non-positive size.
const DefaultQueueSize = 1024

// Target names a single-value display field.
type Target int

const (
	TargetNeedle           Target = iota // float64 mmHg
	TargetScreen                         // workflow.Event
	TargetHeartRate                      // float64 beats per minute
	TargetHeartRateAverage               // float64 beats per minute
	TargetResult                         // measurement.Result
	TargetReady                          // struct{}
)

func (t Target) String() string {
	switch t {
	case TargetNeedle:
		return "needle"
	case TargetScreen:
		return "screen"
	case TargetHeartRate:
		return "heart_rate"
	case TargetHeartRateAverage:
		return "heart_rate_average"
	case TargetResult:
		return "result"
	case TargetReady:
		return "ready"
	}
	return fmt.Sprintf("target(%d)", int(t))
}

// Executor runs functions on the display goroutine in submission order.
type Executor interface {
	Do(fn func())
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(fn func())

// Do calls f(fn).
func (f ExecutorFunc) Do(fn func()) { f(fn) }

// Inline runs updates on the goroutine calling Run.
var Inline Executor = ExecutorFunc(func(fn func()) { fn() })

// Update is one queued scalar update.
type Update struct {
	Target Target
	Value  any
}

// Bridge carries scalar updates from the producer into the display goroutine.
// Posting never blocks; updates are applied in the order they were posted.
type Bridge struct {
	queue chan Update
	exec  Executor
	log   logrus.FieldLogger

	mu       sync.RWMutex
	handlers map[Target]func(any)
	closed   bool
	done     chan struct{}
}

// New creates a bridge with a queue of size updates.
func New(size int, exec Executor, log logrus.FieldLogger) *Bridge {
	if size <= 0 {
		size = DefaultQueueSize
	}
	if exec == nil {
		exec = Inline
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Bridge{
		queue:    make(chan Update, size),
		exec:     exec,
		log:      log.WithField("component", "bridge"),
		handlers: make(map[Target]func(any)),
		done:     make(chan struct{}),
	}
}

// Handle registers fn as the display-side applier for target.
func (b *Bridge) Handle(target Target, fn func(any)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[target] = fn
}

// Post queues value for target without blocking. A failure means the display
// can no longer be trusted to reflect the producer's state.
func (b *Bridge) Post(target Target, value any) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		monitor.BridgeFailures.WithLabelValues("closed").Inc()
		return fmt.Errorf("%w: post %s", ErrClosed, target)
	}

	select {
	case b.queue <- Update{Target: target, Value: value}:
		monitor.BridgePosts.WithLabelValues(target.String()).Inc()
		return nil
	default:
		monitor.BridgeFailures.WithLabelValues("full").Inc()
		return fmt.Errorf("%w: post %s with %d pending", ErrQueueFull, target, len(b.queue))
	}
}

// Run delivers queued updates through the executor until ctx is cancelled or
// the bridge is closed.
func (b *Bridge) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-b.done:
			return nil
		case u := <-b.queue:
			b.deliver(u)
		}
	}
}

func (b *Bridge) deliver(u Update) {
	b.mu.RLock()
	fn := b.handlers[u.Target]
	b.mu.RUnlock()

	if fn == nil {
		b.log.WithField("target", u.Target).Debug("No handler for update")
		return
	}
	b.exec.Do(func() { fn(u.Value) })
}

// Close stops accepting updates. Pending updates are discarded.
func (b *Bridge) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	close(b.done)
}

// Len returns the number of pending updates.
func (b *Bridge) Len() int {
	return len(b.queue)
}
