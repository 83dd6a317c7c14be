package host

import (
	"github.com/ben-moore/lokad-cloud/pkg/logging"
	"github.com/ben-moore/lokad-cloud/pkg/models"
	"github.com/ben-moore/lokad-cloud/pkg/queue"
	"github.com/ben-moore/lokad-cloud/pkg/store"
)

// Runtime is the dependency set of one hosted run. It is built fresh
// per run and disposed when the run ends.
type Runtime struct {
	Store    store.Store
	Queue    queue.Queue
	Identity models.HostIdentity
	Log      *logging.Logger
	Loop     Loop
}

// Go runs fn on a background goroutine with a top-level fault handler
// that only logs. A panic in a bare goroutine would terminate the
// whole process; recovering here trades that for a logged fault, which
// is the most this handler can do.
func (rt *Runtime) Go(name string, fn func()) {
	go func() {
		defer func() {
			if p := recover(); p != nil {
				rt.Log.Error("background fault", map[string]interface{}{
					"goroutine":   name,
					"panic":       p,
					"terminating": false,
				})
			}
		}()
		fn()
	}()
}

// Close disposes the run's collaborators. Errors are logged, not
// returned: disposal happens on every exit path and must not mask the
// run's own outcome.
func (rt *Runtime) Close() {
	if rt.Queue != nil {
		if err := rt.Queue.Close(); err != nil {
			rt.Log.Warn("failed to close queue", map[string]interface{}{"error": err.Error()})
		}
	}
	if rt.Store != nil {
		if err := rt.Store.Close(); err != nil {
			rt.Log.Warn("failed to close store", map[string]interface{}{"error": err.Error()})
		}
	}
}
