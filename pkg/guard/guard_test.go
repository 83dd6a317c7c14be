package guard

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ben-moore/lokad-cloud/pkg/logging"
	"github.com/ben-moore/lokad-cloud/pkg/models"
)

func testGuard() *Guard {
	log := logging.NewLogger(logging.ERROR, false)
	log.SetOutput(io.Discard)
	return New(log, models.HostIdentity{WorkerName: "test-worker"})
}

func TestRunBounded_CompletesInTime(t *testing.T) {
	g := testGuard()

	start := time.Now()
	err := g.RunBounded(context.Background(), "fast", time.Second, func(ctx context.Context) error {
		return nil
	})
	if err != nil {
		t.Fatalf("Expected nil error, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("Expected no added latency, took %v", elapsed)
	}
}

func TestRunBounded_ReturnsWorkErrorUnchanged(t *testing.T) {
	g := testGuard()

	wantErr := errors.New("work failed")
	err := g.RunBounded(context.Background(), "failing", time.Second, func(ctx context.Context) error {
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Errorf("Expected work error unchanged, got %v", err)
	}
}

func TestRunBounded_DeadlineExceeded(t *testing.T) {
	g := testGuard()

	var sideEffects int32
	start := time.Now()
	err := g.RunBounded(context.Background(), "slow", 50*time.Millisecond, func(ctx context.Context) error {
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(10 * time.Millisecond):
				atomic.AddInt32(&sideEffects, 1)
			}
		}
	})

	if !errors.Is(err, ErrDeadlineExceeded) {
		t.Fatalf("Expected ErrDeadlineExceeded, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("Expected return within deadline plus epsilon, took %v", elapsed)
	}

	// The interrupted execution must stop producing side effects once
	// it observes the cancellation.
	observed := atomic.LoadInt32(&sideEffects)
	time.Sleep(100 * time.Millisecond)
	if after := atomic.LoadInt32(&sideEffects); after != observed {
		t.Errorf("Expected no side effects after interruption, got %d more", after-observed)
	}
}

func TestRunBounded_ParentCancellation(t *testing.T) {
	g := testGuard()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := g.RunBounded(ctx, "cancelled", time.Minute, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if errors.Is(err, ErrDeadlineExceeded) {
		t.Errorf("Parent cancellation must not be reported as a deadline overrun")
	}
}

func TestRunBounded_InvalidDeadline(t *testing.T) {
	g := testGuard()

	err := g.RunBounded(context.Background(), "bad", 0, func(ctx context.Context) error {
		t.Error("work must not run with an invalid deadline")
		return nil
	})
	if err == nil {
		t.Fatal("Expected error for zero deadline")
	}
}

func TestRunBounded_ConcurrentInvocations(t *testing.T) {
	g := testGuard()

	const n = 50
	var wg sync.WaitGroup
	errs := make([]error, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = g.RunBounded(context.Background(), "concurrent", time.Second, func(ctx context.Context) error {
				time.Sleep(10 * time.Millisecond)
				return nil
			})
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("Invocation %d failed: %v", i, err)
		}
	}
}
