package host

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ben-moore/lokad-cloud/pkg/config"
	"github.com/ben-moore/lokad-cloud/pkg/guard"
	"github.com/ben-moore/lokad-cloud/pkg/logging"
	"github.com/ben-moore/lokad-cloud/pkg/metrics"
	"github.com/ben-moore/lokad-cloud/pkg/store"
	"github.com/ben-moore/lokad-cloud/pkg/task"
)

// StopTimeout bounds how long Stop waits for the active run. The
// hosting platform force-kills the process when shutdown exceeds its
// own grace period, so waiting longer buys nothing.
var StopTimeout = 25 * time.Second

// Loop is the processing loop hosted by a run. Its business logic is
// external to this package; the host only starts it, stops it through
// context cancellation, and classifies how it ended.
type Loop interface {
	Run(ctx context.Context) error
}

// BuildFunc builds the fresh dependency set for one run, with the
// settings bound as a fixed value.
type BuildFunc func(ctx context.Context, settings config.Settings) (*Runtime, error)

// Host runs one processing-loop instance at a time and turns its exit
// into a restart decision.
type Host struct {
	log   *logging.Logger
	build BuildFunc

	mu     sync.Mutex
	active *run
}

type run struct {
	id     string
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a host
func New(log *logging.Logger, build BuildFunc) *Host {
	return &Host{log: log, build: build}
}

// Run executes one supervised processing-loop run and reports whether
// a restart was requested. Faults never escape: every exit path is
// classified and logged, and the cleanup sequence — completion signal,
// active-run marker, dependency disposal — runs unconditionally and in
// that order.
func (h *Host) Run(ctx context.Context, settings config.Settings) bool {
	runID := uuid.NewString()
	log := h.log.WithField("run_id", runID)

	runCtx, cancel := context.WithCancel(ctx)

	rt, err := h.build(runCtx, settings)
	if err != nil {
		cancel()
		return h.classify(log, err)
	}

	r := &run{id: runID, cancel: cancel, done: make(chan struct{})}
	h.setActive(r)
	metrics.RunActive.Set(1)

	// Deferred cleanup runs LIFO: completion signal first, then the
	// active-run marker, then dependency disposal.
	defer rt.Close()
	defer func() {
		h.clearActive(r)
		metrics.RunActive.Set(0)
		cancel()
	}()
	defer close(r.done)

	log.Debug("processing loop starting", map[string]interface{}{
		"worker": rt.Identity.WorkerName,
	})
	return h.classify(log, h.runLoop(runCtx, rt))
}

// runLoop invokes the loop synchronously, containing panics so they
// can be classified like any other fault.
func (h *Host) runLoop(ctx context.Context, rt *Runtime) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("processing loop panicked: %v", p)
		}
	}()
	return rt.Loop.Run(ctx)
}

// classify maps a run's exit to a restart decision. Ordered, first
// match wins.
func (h *Host) classify(log *logging.Logger, err error) bool {
	switch {
	case errors.Is(err, config.ErrInvalid):
		log.Error("run aborted: invalid node configuration", map[string]interface{}{
			"error": err.Error(),
		})
		metrics.RunsTotal.WithLabelValues("fault").Inc()
		return false

	case errors.Is(err, store.ErrUnavailable):
		log.Error("run aborted: persisted store unavailable", map[string]interface{}{
			"error": err.Error(),
		})
		metrics.RunsTotal.WithLabelValues("fault").Inc()
		return false

	case errors.Is(err, store.ErrPermission):
		log.Error("run aborted: persisted store rejected credentials", map[string]interface{}{
			"error": err.Error(),
		})
		metrics.RunsTotal.WithLabelValues("fault").Inc()
		return false

	case errors.Is(err, task.ErrRestartRequested):
		log.Debug("restart requested, recycling the process", map[string]interface{}{
			"reason": err.Error(),
		})
		metrics.RunsTotal.WithLabelValues("restart").Inc()
		return true

	case errors.Is(err, guard.ErrDeadlineExceeded),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		// Interruption acknowledgment: the run was asked to unwind and
		// did. Cleared here, never propagated further.
		log.Debug("run interrupted, unwound cleanly")
		metrics.RunsTotal.WithLabelValues("clean").Inc()
		return false

	case err != nil:
		log.Error("processing loop faulted", map[string]interface{}{
			"error": err.Error(),
		})
		metrics.RunsTotal.WithLabelValues("fault").Inc()
		return false

	default:
		log.Debug("processing loop returned cleanly")
		metrics.RunsTotal.WithLabelValues("clean").Inc()
		return false
	}
}

// Stop asks the active run to stop and waits, bounded, for its
// completion signal. With no active run it returns immediately.
// Idempotent: concurrent and repeated calls are safe.
func (h *Host) Stop() {
	h.mu.Lock()
	r := h.active
	h.mu.Unlock()
	if r == nil {
		return
	}

	start := time.Now()
	r.cancel()

	select {
	case <-r.done:
	case <-time.After(StopTimeout):
		h.log.Warn("active run did not stop within the shutdown bound", map[string]interface{}{
			"run_id":  r.id,
			"timeout": StopTimeout.String(),
		})
	}
	metrics.StopWaitSeconds.Observe(time.Since(start).Seconds())
}

func (h *Host) setActive(r *run) {
	h.mu.Lock()
	h.active = r
	h.mu.Unlock()
}

func (h *Host) clearActive(r *run) {
	h.mu.Lock()
	if h.active == r {
		h.active = nil
	}
	h.mu.Unlock()
}

// ActiveRunID returns the ID of the active run, or "" when idle.
func (h *Host) ActiveRunID() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.active == nil {
		return ""
	}
	return h.active.id
}
