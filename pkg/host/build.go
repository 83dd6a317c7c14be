package host

import (
	"context"
	"errors"
	"time"

	"github.com/ben-moore/lokad-cloud/pkg/config"
	"github.com/ben-moore/lokad-cloud/pkg/guard"
	"github.com/ben-moore/lokad-cloud/pkg/logging"
	"github.com/ben-moore/lokad-cloud/pkg/queue"
	"github.com/ben-moore/lokad-cloud/pkg/retry"
	"github.com/ben-moore/lokad-cloud/pkg/store"
	"github.com/ben-moore/lokad-cloud/pkg/task"
	"github.com/ben-moore/lokad-cloud/pkg/update"
)

// ServiceSpec declares one scheduled task to host: its configuration
// and a constructor receiving the run's dependency set.
type ServiceSpec struct {
	Config task.Config
	New    func(rt *Runtime) task.Service
}

// DefaultBuild returns a BuildFunc that assembles the standard
// dependency set: store per the configured driver (with bootstrap
// retries), Redis or in-memory queue, deadline guard, the declared
// services plus the update trigger task, all driven by the round-robin
// loop.
func DefaultBuild(specs []ServiceSpec) BuildFunc {
	return func(ctx context.Context, settings config.Settings) (*Runtime, error) {
		if err := settings.Validate(); err != nil {
			return nil, err
		}

		identity := settings.Identity()
		log := logging.NewLogger(logging.ParseLevel(settings.LogLevel), settings.LogJSON).
			WithField("worker", identity.WorkerName).
			WithField("cell", identity.CellName)

		st, err := openStore(ctx, settings)
		if err != nil {
			return nil, err
		}

		var q queue.Queue
		if settings.RedisAddr != "" {
			q, err = queue.NewRedisQueue(ctx, settings.RedisAddr)
			if err != nil {
				st.Close()
				return nil, err
			}
		} else {
			q = queue.NewMemoryQueue()
		}

		g := guard.New(log, identity)

		rt := &Runtime{
			Store:    st,
			Queue:    q,
			Identity: identity,
			Log:      log,
		}

		runners := make([]*task.Runner, 0, len(specs)+1)
		for _, spec := range specs {
			runners = append(runners, task.NewRunner(spec.New(rt), spec.Config, st, q, g, log))
		}

		// The update trigger task is always hosted: without it a node
		// never notices a new deployment.
		detector := update.NewStoreDetector(st, log)
		runners = append(runners, task.NewRunner(update.NewTriggerTask(detector), task.Config{
			AutoStart: true,
			Deadline:  5 * time.Minute,
		}, st, q, g, log))

		rt.Loop = task.NewLoop(runners, settings.IdleDelay, log)
		return rt, nil
	}
}

// openStore opens the configured store, retrying transient failures at
// bootstrap. Credential failures are not retried: they cannot resolve
// without operator intervention.
func openStore(ctx context.Context, settings config.Settings) (store.Store, error) {
	st, err := store.Open(settings.StorageDriver, settings.StorageDSN)
	if err == nil || errors.Is(err, store.ErrPermission) {
		return st, err
	}

	err = retry.Do(ctx, retry.DefaultConfig(), func() error {
		var openErr error
		st, openErr = store.Open(settings.StorageDriver, settings.StorageDSN)
		return openErr
	})
	if err != nil {
		return nil, err
	}
	return st, nil
}
