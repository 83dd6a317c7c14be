package task

import (
	"context"
	"errors"
	"time"

	"github.com/ben-moore/lokad-cloud/pkg/logging"
)

// Loop is a minimal round-robin processing loop: it walks the
// registered runners, starting each in turn, and idles when a full
// pass produced no work. Task failures are logged and absorbed; only
// the restart signal escapes, so the host can classify it.
type Loop struct {
	runners   []*Runner
	idleDelay time.Duration
	log       *logging.Logger
}

// NewLoop creates a loop over the given runners
func NewLoop(runners []*Runner, idleDelay time.Duration, log *logging.Logger) *Loop {
	if idleDelay <= 0 {
		idleDelay = 10 * time.Second
	}
	return &Loop{runners: runners, idleDelay: idleDelay, log: log}
}

// Run drives the runners until the context is cancelled or a task
// raises the restart signal.
func (l *Loop) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		executed := false
		for _, r := range l.runners {
			fb, err := r.Start(ctx)
			if err != nil {
				if errors.Is(err, ErrRestartRequested) {
					return err
				}
				if errors.Is(err, context.Canceled) {
					return err
				}
				l.log.Error("task execution failed", map[string]interface{}{
					"task":  r.Name(),
					"error": err.Error(),
				})
				continue
			}
			if fb == FeedbackExecuted {
				executed = true
			}
		}

		if !executed {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(l.idleDelay):
			}
		}
	}
}
