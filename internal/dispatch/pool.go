// Package dispatch runs webhook follow-up work in the background so the
// provider gets its HTTP answer without waiting for the dialogue pipeline.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"wabridge/internal/metrics"
)

// ErrClosed is returned by Submit after Shutdown has started.
var ErrClosed = errors.New("dispatch pool is shut down")

const (
	defaultMaxConcurrent = 8
	defaultTaskTimeout   = 5 * time.Minute
)

type Config struct {
	MaxConcurrent int           // tasks running at once; further tasks wait for a slot
	TaskTimeout   time.Duration // per-task deadline
	Logger        *slog.Logger
}

// Pool is a supervised worker pool. Every task runs inside its own error
// boundary: returned errors and panics are logged and dropped.
type Pool struct {
	sem     chan struct{}
	timeout time.Duration
	logger  *slog.Logger

	baseCtx context.Context
	cancel  context.CancelFunc

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup

	pending atomic.Int64
}

func New(cfg Config) *Pool {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = defaultMaxConcurrent
	}
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = defaultTaskTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		sem:     make(chan struct{}, cfg.MaxConcurrent),
		timeout: cfg.TaskTimeout,
		logger:  cfg.Logger,
		baseCtx: ctx,
		cancel:  cancel,
	}
}

// Submit schedules fn and returns its task id immediately. It never blocks
// on pool capacity.
func (p *Pool) Submit(name string, fn func(ctx context.Context) error) (string, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		metrics.Dispatches("dropped").Inc()
		return "", ErrClosed
	}
	p.wg.Add(1)
	p.mu.Unlock()

	id := uuid.NewString()
	p.pending.Add(1)
	metrics.DispatchInFlight.Inc()
	p.logger.Debug("dispatch task submitted", "id", id, "name", name)

	go p.run(id, name, fn)
	return id, nil
}

func (p *Pool) run(id, name string, fn func(ctx context.Context) error) {
	defer p.wg.Done()
	defer func() {
		p.pending.Add(-1)
		metrics.DispatchInFlight.Dec()
	}()

	select {
	case p.sem <- struct{}{}:
	case <-p.baseCtx.Done():
		p.logger.Warn("dispatch task dropped before start", "id", id, "name", name)
		metrics.Dispatches("dropped").Inc()
		return
	}
	defer func() { <-p.sem }()

	ctx, cancel := context.WithTimeout(p.baseCtx, p.timeout)
	defer cancel()

	start := time.Now()
	if err := p.safeCall(ctx, fn); err != nil {
		p.logger.Error("dispatch task failed", "id", id, "name", name, "err", err, "duration", time.Since(start))
		return
	}
	metrics.Dispatches("ok").Inc()
	p.logger.Debug("dispatch task completed", "id", id, "name", name, "duration", time.Since(start))
}

// safeCall runs fn and converts a panic into an error.
func (p *Pool) safeCall(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			metrics.Dispatches("panic").Inc()
			p.logger.Error("dispatch task panicked", "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	if err = fn(ctx); err != nil {
		metrics.Dispatches("failed").Inc()
	}
	return err
}

// Pending returns the number of submitted tasks that have not finished.
func (p *Pool) Pending() int {
	return int(p.pending.Load())
}

// Shutdown stops accepting tasks and waits for in-flight ones. If ctx ends
// first, remaining tasks are cancelled and ctx's error is returned.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.logger.Warn("dispatch drain timed out, cancelling tasks", "pending", p.Pending())
		p.cancel()
		return ctx.Err()
	}
}
