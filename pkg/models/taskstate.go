package models

import "fmt"

// TaskState is the persisted on/off flag for one scheduled task. It is
// shared fleet-wide: an operator flipping it affects every node, within
// the bounds of each node's local state cache.
type TaskState string

const (
	TaskStarted TaskState = "Started"
	TaskStopped TaskState = "Stopped"
)

// ParseTaskState parses a persisted state value.
func ParseTaskState(s string) (TaskState, error) {
	switch TaskState(s) {
	case TaskStarted, TaskStopped:
		return TaskState(s), nil
	default:
		return "", fmt.Errorf("unknown task state %q", s)
	}
}

// Valid reports whether the state is one of the two known values.
func (s TaskState) Valid() bool {
	return s == TaskStarted || s == TaskStopped
}
