package models

import (
	"os"
)

// HostIdentity identifies a worker node within the fleet.
// All three parts are fixed at startup and never change for the
// lifetime of the process.
type HostIdentity struct {
	WorkerName   string `json:"worker_name"`
	CellName     string `json:"cell_name"`
	SolutionName string `json:"solution_name"`
}

// DefaultWorkerName returns the machine hostname, or "unknown" when it
// cannot be determined.
func DefaultWorkerName() string {
	hostname, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return hostname
}
