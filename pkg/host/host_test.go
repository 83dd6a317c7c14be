package host

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/ben-moore/lokad-cloud/pkg/config"
	"github.com/ben-moore/lokad-cloud/pkg/logging"
	"github.com/ben-moore/lokad-cloud/pkg/models"
	"github.com/ben-moore/lokad-cloud/pkg/queue"
	"github.com/ben-moore/lokad-cloud/pkg/store"
	"github.com/ben-moore/lokad-cloud/pkg/task"
)

func testLogger() *logging.Logger {
	log := logging.NewLogger(logging.ERROR, false)
	log.SetOutput(io.Discard)
	return log
}

type loopFunc func(ctx context.Context) error

func (f loopFunc) Run(ctx context.Context) error { return f(ctx) }

func buildWith(loop Loop) BuildFunc {
	return func(ctx context.Context, settings config.Settings) (*Runtime, error) {
		return &Runtime{
			Store:    store.NewMemoryStore(),
			Queue:    queue.NewMemoryQueue(),
			Identity: models.HostIdentity{WorkerName: "test-worker"},
			Log:      testLogger(),
			Loop:     loop,
		}, nil
	}
}

func TestHost_CleanExitNoRestart(t *testing.T) {
	h := New(testLogger(), buildWith(loopFunc(func(ctx context.Context) error {
		return nil
	})))

	if restart := h.Run(context.Background(), config.Settings{}); restart {
		t.Error("Expected no restart for a clean exit")
	}
}

func TestHost_RestartSignalYieldsRestart(t *testing.T) {
	h := New(testLogger(), buildWith(loopFunc(func(ctx context.Context) error {
		return fmt.Errorf("new deployment: %w", task.ErrRestartRequested)
	})))

	if restart := h.Run(context.Background(), config.Settings{}); !restart {
		t.Error("Expected restart for the restart signal")
	}
}

func TestHost_FaultAbsorbedNoRestart(t *testing.T) {
	h := New(testLogger(), buildWith(loopFunc(func(ctx context.Context) error {
		return errors.New("loop broke")
	})))

	if restart := h.Run(context.Background(), config.Settings{}); restart {
		t.Error("Expected no restart for a generic fault")
	}
}

func TestHost_PanicAbsorbedNoRestart(t *testing.T) {
	h := New(testLogger(), buildWith(loopFunc(func(ctx context.Context) error {
		panic("loop exploded")
	})))

	if restart := h.Run(context.Background(), config.Settings{}); restart {
		t.Error("Expected no restart for a panicking loop")
	}
	if h.ActiveRunID() != "" {
		t.Error("Expected active-run marker cleared after a panic")
	}
}

func TestHost_CancellationAcknowledgedNoRestart(t *testing.T) {
	h := New(testLogger(), buildWith(loopFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	if restart := h.Run(ctx, config.Settings{}); restart {
		t.Error("Expected no restart for an acknowledged interruption")
	}
}

func TestHost_BuildFailureClassified(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"invalid config", fmt.Errorf("bad settings: %w", config.ErrInvalid)},
		{"store unavailable", fmt.Errorf("connect: %w", store.ErrUnavailable)},
		{"store permission", fmt.Errorf("auth: %w", store.ErrPermission)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := New(testLogger(), func(ctx context.Context, settings config.Settings) (*Runtime, error) {
				return nil, tt.err
			})
			if restart := h.Run(context.Background(), config.Settings{}); restart {
				t.Error("Expected no restart for a build failure")
			}
		})
	}
}

func TestHost_ActiveRunIDDuringRun(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	h := New(testLogger(), buildWith(loopFunc(func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	})))

	done := make(chan struct{})
	go func() {
		h.Run(context.Background(), config.Settings{})
		close(done)
	}()

	<-started
	if h.ActiveRunID() == "" {
		t.Error("Expected an active run ID during the run")
	}
	close(release)
	<-done
	if h.ActiveRunID() != "" {
		t.Error("Expected active-run marker cleared after the run")
	}
}

func TestHost_StopNoActiveRunReturnsImmediately(t *testing.T) {
	h := New(testLogger(), buildWith(loopFunc(func(ctx context.Context) error {
		return nil
	})))

	start := time.Now()
	h.Stop()
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("Expected immediate return with no active run, took %v", elapsed)
	}
}

func TestHost_StopCancelsCooperativeRun(t *testing.T) {
	started := make(chan struct{})
	h := New(testLogger(), buildWith(loopFunc(func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})))

	done := make(chan bool, 1)
	go func() { done <- h.Run(context.Background(), config.Settings{}) }()

	<-started
	h.Stop()

	select {
	case restart := <-done:
		if restart {
			t.Error("Expected no restart after a stop")
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return after Stop")
	}
}

func TestHost_StopWaitIsBounded(t *testing.T) {
	old := StopTimeout
	StopTimeout = 50 * time.Millisecond
	defer func() { StopTimeout = old }()

	started := make(chan struct{})
	release := make(chan struct{})
	defer close(release)

	// A loop that ignores cancellation entirely.
	h := New(testLogger(), buildWith(loopFunc(func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	})))

	go h.Run(context.Background(), config.Settings{})
	<-started

	start := time.Now()
	h.Stop()
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Expected Stop to give up at the bound, took %v", elapsed)
	}
}

func TestHost_StopIdempotent(t *testing.T) {
	h := New(testLogger(), buildWith(loopFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})))

	done := make(chan struct{})
	go func() {
		h.Run(context.Background(), config.Settings{})
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.Stop()
		}()
	}
	wg.Wait()
	<-done
}

func TestRuntime_GoContainsPanics(t *testing.T) {
	rt := &Runtime{Log: testLogger()}

	done := make(chan struct{})
	rt.Go("faulty", func() {
		defer close(done)
		panic("background boom")
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Background goroutine did not run")
	}
	// Reaching here without the test binary dying is the assertion.
}
