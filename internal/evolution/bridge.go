package evolution

import (
	"context"
	"sync"
	"time"

	"github.com/sovereign-vm/sovereign/internal/vmerrors"
)

// job is one unit of work submitted to the bridge's worker.
type job struct {
	fn     func(ctx context.Context) (any, error)
	ctx    context.Context
	result chan jobResult
}

type jobResult struct {
	value any
	err   error
}

// Bridge is the Sync/Async Bridge (spec.md §4.5): a synchronous
// facade over a single background worker goroutine that serializes
// all LLM-client work onto one "event loop," mirroring the source's
// asyncio-thread design without needing an actual event loop in Go.
type Bridge struct {
	jobs   chan job
	ready  chan struct{}
	done   chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
	client *OllamaClient
}

// NewBridge returns a Bridge that will dispatch work through client
// once Initialize starts its worker.
func NewBridge(client *OllamaClient) *Bridge {
	return &Bridge{
		jobs:   make(chan job),
		ready:  make(chan struct{}),
		done:   make(chan struct{}),
		client: client,
	}
}

// Initialize starts the worker and waits, polling with a small sleep
// between checks, for the loop to become runnable. Exceeding
// deadline fails BridgeInitializationFailed; Initialize never
// busy-waits without bound (spec.md §4.5).
func (b *Bridge) Initialize(deadline time.Duration) error {
	b.wg.Add(1)
	go b.run()

	const pollInterval = 10 * time.Millisecond
	timeout := time.After(deadline)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.ready:
			return nil
		case <-timeout:
			return vmerrors.New(vmerrors.KindBridgeInitFailed, "worker did not become ready before the deadline")
		case <-ticker.C:
			// keep polling
		}
	}
}

func (b *Bridge) run() {
	defer b.wg.Done()
	close(b.ready)
	for {
		select {
		case j, ok := <-b.jobs:
			if !ok {
				return
			}
			v, err := j.fn(j.ctx)
			j.result <- jobResult{value: v, err: err}
		case <-b.done:
			return
		}
	}
}

// Submit enqueues fn and blocks until it completes or ctx's deadline
// elapses. This is the facade C4 calls through for LLMGEN/EVOLVE.
func (b *Bridge) Submit(ctx context.Context, fn func(ctx context.Context) (any, error)) (any, error) {
	j := job{fn: fn, ctx: ctx, result: make(chan jobResult, 1)}
	select {
	case b.jobs <- j:
	case <-ctx.Done():
		return nil, vmerrors.Wrap(vmerrors.KindLLMTimeout, "bridge submit timed out before dispatch", ctx.Err())
	}

	select {
	case r := <-j.result:
		return r.value, r.err
	case <-ctx.Done():
		return nil, vmerrors.Wrap(vmerrors.KindLLMTimeout, "bridge wait timed out", ctx.Err())
	}
}

// Shutdown signals the worker to stop, joins it, and releases the
// client's connection pool. Safe to call once; subsequent calls are
// no-ops.
func (b *Bridge) Shutdown() {
	b.once.Do(func() {
		close(b.done)
		b.wg.Wait()
		b.client.client.CloseIdleConnections()
	})
}
