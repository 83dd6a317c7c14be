package task

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ben-moore/lokad-cloud/pkg/guard"
	"github.com/ben-moore/lokad-cloud/pkg/logging"
	"github.com/ben-moore/lokad-cloud/pkg/metrics"
	"github.com/ben-moore/lokad-cloud/pkg/models"
	"github.com/ben-moore/lokad-cloud/pkg/queue"
	"github.com/ben-moore/lokad-cloud/pkg/store"
)

// ErrRestartRequested is the distinguished signal meaning "recycle the
// process intentionally". It propagates from a task body through the
// deadline guard and the processing loop up to the host, which turns it
// into a restart decision.
var ErrRestartRequested = errors.New("restart requested")

const (
	// DefaultDeadline bounds a single task execution. It sits just under
	// the two-hour mark so a wedged task is recycled before the platform's
	// own instance watchdog fires.
	DefaultDeadline = 1*time.Hour + 58*time.Minute

	// DefaultStateCheckInterval bounds the staleness of the cached task
	// state: a fleet-wide toggle is observed within this window.
	DefaultStateCheckInterval = 60 * time.Second

	// StateKeyPrefix namespaces task states in the persisted store.
	StateKeyPrefix = "taskstate:"
)

// StateKey returns the store key holding the persisted state of the
// named task.
func StateKey(name string) string {
	return StateKeyPrefix + name
}

// Feedback is the outcome of one task invocation, consumed by the
// processing loop.
type Feedback int

const (
	// FeedbackSkipped means the gate was closed; the body never ran.
	FeedbackSkipped Feedback = iota
	// FeedbackExecuted means the body ran to completion.
	FeedbackExecuted
	// FeedbackFailed means the body ran and returned an error, timed
	// out, or panicked.
	FeedbackFailed
)

func (f Feedback) String() string {
	switch f {
	case FeedbackSkipped:
		return "skipped"
	case FeedbackExecuted:
		return "executed"
	case FeedbackFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Service is the body hook every scheduled task implements.
type Service interface {
	Run(ctx context.Context) error
}

// QueueBinder is implemented by services that want the message-enqueue
// helpers; the runner binds the queue collaborator at construction.
type QueueBinder interface {
	BindQueue(q queue.Queue)
}

// Config is the static per-task configuration.
type Config struct {
	// Name is the logical task name, used as the persisted-state key.
	// Defaults to the service's Go type identifier.
	Name string

	// AutoStart decides the persisted state written on first contact
	// when no record exists yet.
	AutoStart bool

	// Deadline is the maximum run duration enforced by the guard.
	Deadline time.Duration

	// StateCheckInterval is the cache staleness bound for the persisted
	// state.
	StateCheckInterval time.Duration
}

func (c *Config) withDefaults(svc Service) {
	if c.Name == "" {
		c.Name = strings.TrimPrefix(fmt.Sprintf("%T", svc), "*")
	}
	if c.Deadline <= 0 {
		c.Deadline = DefaultDeadline
	}
	if c.StateCheckInterval <= 0 {
		c.StateCheckInterval = DefaultStateCheckInterval
	}
}

// Runner wraps a service with the execution gate and the deadline
// guard. Each runner owns its private state cache; runners never share
// locks, so any number of them can start concurrently.
type Runner struct {
	cfg   Config
	svc   Service
	store store.Store
	guard *guard.Guard
	log   *logging.Logger

	mu          sync.Mutex
	cachedState models.TaskState
	lastChecked time.Time
	now         func() time.Time
}

// NewRunner creates a runner for the given service. The queue is bound
// into the service when it asks for one.
func NewRunner(svc Service, cfg Config, st store.Store, q queue.Queue, g *guard.Guard, log *logging.Logger) *Runner {
	cfg.withDefaults(svc)

	if b, ok := svc.(QueueBinder); ok && q != nil {
		b.BindQueue(q)
	}

	defaultState := models.TaskStopped
	if cfg.AutoStart {
		defaultState = models.TaskStarted
	}

	return &Runner{
		cfg:         cfg,
		svc:         svc,
		store:       st,
		guard:       g,
		log:         log.WithField("task", cfg.Name),
		cachedState: defaultState,
		now:         time.Now,
	}
}

// Name returns the logical task name
func (r *Runner) Name() string { return r.cfg.Name }

// Start consults the execution gate and, when open, runs the body
// under the deadline guard.
func (r *Runner) Start(ctx context.Context) (Feedback, error) {
	if r.currentState(ctx) == models.TaskStopped {
		metrics.TaskExecutions.WithLabelValues(r.cfg.Name, "skipped").Inc()
		return FeedbackSkipped, nil
	}
	return r.execute(ctx)
}

// ForceStart runs the body under the deadline guard regardless of the
// persisted state.
func (r *Runner) ForceStart(ctx context.Context) (Feedback, error) {
	return r.execute(ctx)
}

func (r *Runner) execute(ctx context.Context) (Feedback, error) {
	err := r.guard.RunBounded(ctx, r.cfg.Name, r.cfg.Deadline, r.runBody)
	if err != nil {
		outcome := "failed"
		if errors.Is(err, ErrRestartRequested) {
			outcome = "restart"
		}
		metrics.TaskExecutions.WithLabelValues(r.cfg.Name, outcome).Inc()
		return FeedbackFailed, err
	}
	metrics.TaskExecutions.WithLabelValues(r.cfg.Name, "executed").Inc()
	return FeedbackExecuted, nil
}

// runBody invokes the service. Panics are contained here so a faulty
// task body can never take the host down.
func (r *Runner) runBody(ctx context.Context) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("task %s panicked: %v", r.cfg.Name, p)
		}
	}()
	return r.svc.Run(ctx)
}

// currentState returns the gate state, refreshing the cache when it is
// older than the check interval.
func (r *Runner) currentState(ctx context.Context) models.TaskState {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if now.Sub(r.lastChecked) > r.cfg.StateCheckInterval {
		r.refreshLocked(ctx, now)
	}
	return r.cachedState
}

// refreshLocked re-reads the persisted state. The check timestamp
// advances on every attempt, success or not, to bound read volume
// against the store; a failed read keeps the last known state.
func (r *Runner) refreshLocked(ctx context.Context, now time.Time) {
	defer func() { r.lastChecked = now }()

	value, found, err := r.store.Get(ctx, StateKey(r.cfg.Name))
	if err != nil {
		r.log.Warn("task state read failed, keeping last known state", map[string]interface{}{
			"error": err.Error(),
			"state": string(r.cachedState),
		})
		metrics.StateRefreshes.WithLabelValues(r.cfg.Name, "error").Inc()
		return
	}

	if !found {
		defaultState := models.TaskStopped
		if r.cfg.AutoStart {
			defaultState = models.TaskStarted
		}
		if err := r.store.Put(ctx, StateKey(r.cfg.Name), string(defaultState)); err != nil {
			r.log.Warn("failed to persist default task state", map[string]interface{}{
				"error": err.Error(),
			})
		}
		r.cachedState = defaultState
		metrics.StateRefreshes.WithLabelValues(r.cfg.Name, "created").Inc()
		return
	}

	state, err := models.ParseTaskState(value)
	if err != nil {
		r.log.Warn("unparseable task state, keeping last known state", map[string]interface{}{
			"value": value,
		})
		metrics.StateRefreshes.WithLabelValues(r.cfg.Name, "error").Inc()
		return
	}

	r.cachedState = state
	metrics.StateRefreshes.WithLabelValues(r.cfg.Name, "ok").Inc()
}
