package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError + 4}))
}

func TestPool_SubmitRunsTask(t *testing.T) {
	p := New(Config{Logger: testLogger()})
	ran := make(chan struct{})

	id, err := p.Submit("task", func(ctx context.Context) error {
		close(ran)
		return nil
	})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("task did not run")
	}
	require.NoError(t, p.Shutdown(context.Background()))
}

func TestPool_SubmitDoesNotBlockWhenFull(t *testing.T) {
	p := New(Config{MaxConcurrent: 1, Logger: testLogger()})
	release := make(chan struct{})

	start := time.Now()
	for i := 0; i < 5; i++ {
		_, err := p.Submit("blocking", func(ctx context.Context) error {
			<-release
			return nil
		})
		require.NoError(t, err)
	}
	assert.Less(t, time.Since(start), 100*time.Millisecond, "submit must not wait for capacity")
	assert.Equal(t, 5, p.Pending())

	close(release)
	require.NoError(t, p.Shutdown(context.Background()))
	assert.Equal(t, 0, p.Pending())
}

func TestPool_BoundsConcurrency(t *testing.T) {
	p := New(Config{MaxConcurrent: 2, Logger: testLogger()})

	var running, peak atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		_, err := p.Submit("count", func(ctx context.Context) error {
			defer wg.Done()
			n := running.Add(1)
			for {
				old := peak.Load()
				if n <= old || peak.CompareAndSwap(old, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			running.Add(-1)
			return nil
		})
		require.NoError(t, err)
	}
	wg.Wait()

	assert.LessOrEqual(t, peak.Load(), int32(2))
	require.NoError(t, p.Shutdown(context.Background()))
}

func TestPool_ErrorAndPanicAreContained(t *testing.T) {
	p := New(Config{Logger: testLogger()})

	_, err := p.Submit("fails", func(ctx context.Context) error {
		return errors.New("boom")
	})
	require.NoError(t, err)
	_, err = p.Submit("panics", func(ctx context.Context) error {
		panic("kaboom")
	})
	require.NoError(t, err)

	after := make(chan struct{})
	_, err = p.Submit("after", func(ctx context.Context) error {
		close(after)
		return nil
	})
	require.NoError(t, err)

	select {
	case <-after:
	case <-time.After(time.Second):
		t.Fatal("pool stopped working after a failing task")
	}
	require.NoError(t, p.Shutdown(context.Background()))
}

func TestPool_TaskTimeout(t *testing.T) {
	p := New(Config{TaskTimeout: 20 * time.Millisecond, Logger: testLogger()})
	gotErr := make(chan error, 1)

	_, err := p.Submit("slow", func(ctx context.Context) error {
		<-ctx.Done()
		gotErr <- ctx.Err()
		return ctx.Err()
	})
	require.NoError(t, err)

	select {
	case err := <-gotErr:
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	case <-time.After(time.Second):
		t.Fatal("task deadline not applied")
	}
	require.NoError(t, p.Shutdown(context.Background()))
}

func TestPool_ShutdownDrainsInFlight(t *testing.T) {
	p := New(Config{Logger: testLogger()})
	var finished atomic.Bool

	_, err := p.Submit("drain", func(ctx context.Context) error {
		time.Sleep(50 * time.Millisecond)
		finished.Store(true)
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, p.Shutdown(context.Background()))
	assert.True(t, finished.Load(), "shutdown returned before the task finished")
}

func TestPool_ShutdownTimeoutCancelsTasks(t *testing.T) {
	p := New(Config{Logger: testLogger()})
	cancelled := make(chan struct{})

	_, err := p.Submit("stuck", func(ctx context.Context) error {
		<-ctx.Done()
		close(cancelled)
		return ctx.Err()
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, p.Shutdown(ctx), context.DeadlineExceeded)

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("task context not cancelled after drain timeout")
	}
}

func TestPool_SubmitAfterShutdown(t *testing.T) {
	p := New(Config{Logger: testLogger()})
	require.NoError(t, p.Shutdown(context.Background()))

	_, err := p.Submit("late", func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrClosed)
}
