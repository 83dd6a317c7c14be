package update

import (
	"context"

	"github.com/ben-moore/lokad-cloud/pkg/task"
)

// TriggerTask is the scheduled task that watches for pending updates
// and raises the restart signal when one is found.
type TriggerTask struct {
	task.Base
	detector Detector
}

// NewTriggerTask creates the trigger task. The detector's cached
// status is reset here, before any gate check can run, so an update
// published between two process lifetimes is never masked by a stale
// cache from the previous process.
func NewTriggerTask(detector Detector) *TriggerTask {
	detector.ResetStatus()
	return &TriggerTask{detector: detector}
}

// Run asks the detector whether a new deployment is pending
func (t *TriggerTask) Run(ctx context.Context) error {
	return t.detector.CheckForUpdate(ctx, false)
}
