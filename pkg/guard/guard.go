package guard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ben-moore/lokad-cloud/pkg/logging"
	"github.com/ben-moore/lokad-cloud/pkg/metrics"
	"github.com/ben-moore/lokad-cloud/pkg/models"
)

// ErrDeadlineExceeded is returned when guarded work overruns its
// deadline and is forcibly interrupted.
var ErrDeadlineExceeded = errors.New("execution deadline exceeded")

// Guard runs work under a hard wall-clock bound. Interruption is
// cooperative: the work function receives a context that is cancelled
// when the deadline elapses, and must stop producing side effects once
// it observes the cancellation. Every invocation is independent; guards
// hold no shared state beyond the logger.
type Guard struct {
	log      *logging.Logger
	identity models.HostIdentity
}

// New creates a guard
func New(log *logging.Logger, identity models.HostIdentity) *Guard {
	return &Guard{log: log, identity: identity}
}

// RunBounded executes work with the given deadline. If the work
// finishes first, its error (or nil) is returned unchanged with no
// added latency. On overrun the work's context is cancelled, a trace
// event names the interrupted task and the node it ran on, and
// ErrDeadlineExceeded is returned; a watcher stays behind to observe
// the interrupted execution unwinding so it is never lost silently.
func (g *Guard) RunBounded(ctx context.Context, name string, deadline time.Duration, work func(context.Context) error) error {
	if deadline <= 0 {
		return fmt.Errorf("%s: deadline must be positive, got %v", name, deadline)
	}

	runCtx, cancel := context.WithTimeout(ctx, deadline)

	done := make(chan error, 1)
	go func() {
		done <- work(runCtx)
	}()

	select {
	case err := <-done:
		cancel()
		return err
	case <-runCtx.Done():
		cancel()
		if err := ctx.Err(); err != nil {
			// Parent cancellation, not a deadline overrun. Surface it so
			// the host can acknowledge the interruption.
			return err
		}

		g.log.Debug("execution interrupted on deadline", map[string]interface{}{
			"task":     name,
			"worker":   g.identity.WorkerName,
			"cell":     g.identity.CellName,
			"deadline": deadline.String(),
		})
		metrics.TaskTimeouts.WithLabelValues(name).Inc()

		go g.observeUnwind(name, done)
		return fmt.Errorf("%s: %w", name, ErrDeadlineExceeded)
	}
}

// observeUnwind waits for an interrupted execution to return and logs
// the eventual outcome.
func (g *Guard) observeUnwind(name string, done <-chan error) {
	err := <-done
	g.log.Debug("interrupted execution unwound", map[string]interface{}{
		"task":   name,
		"worker": g.identity.WorkerName,
		"error":  fmt.Sprintf("%v", err),
	})
}
