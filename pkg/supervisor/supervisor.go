package supervisor

import (
	"context"
	"fmt"
	"sync"

	"github.com/ben-moore/lokad-cloud/pkg/config"
	"github.com/ben-moore/lokad-cloud/pkg/logging"
)

// Factory creates a fresh boundary for one run.
type Factory func(settings config.Settings) (Boundary, error)

// Supervisor owns the isolation boundary lifecycle: it creates a
// boundary, runs the host inside it, and always tears it down, even
// when the run fails. One boundary is active at a time.
type Supervisor struct {
	settings config.Settings
	log      *logging.Logger
	factory  Factory

	mu     sync.Mutex
	active Boundary
}

// New creates a supervisor
func New(settings config.Settings, log *logging.Logger, factory Factory) *Supervisor {
	return &Supervisor{settings: settings, log: log, factory: factory}
}

// Run executes one boundary lifetime: create, run, tear down. The
// host's restart decision is returned unchanged. A teardown failure is
// fatal for the whole process: a lingering boundary is worse than a
// crash.
func (s *Supervisor) Run(ctx context.Context) (restart bool, err error) {
	b, err := s.factory(s.settings)
	if err != nil {
		return false, fmt.Errorf("create boundary: %w", err)
	}

	s.mu.Lock()
	s.active = b
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		if s.active == b {
			s.active = nil
		}
		s.mu.Unlock()

		if tdErr := b.Teardown(); tdErr != nil {
			s.log.Fatal("boundary teardown failed", map[string]interface{}{
				"error": tdErr.Error(),
			})
		}
	}()

	return b.Run(ctx)
}

// Stop forwards a stop request to the active boundary, if any. A
// failed signal means the boundary already exited and is swallowed;
// this method never waits — the bounded wait is inside the host.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	b := s.active
	s.mu.Unlock()

	if b == nil {
		return
	}
	if err := b.Stop(); err != nil {
		s.log.Debug("stop signal not delivered, boundary likely exited", map[string]interface{}{
			"error": err.Error(),
		})
	}
}
