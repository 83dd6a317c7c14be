package models

import (
	"runtime"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
)

// HardwareInfo describes the machine a worker node runs on. It is
// reported through the status endpoint so operators can see what a
// node has to offer without shelling into it.
type HardwareInfo struct {
	CPUModel   string  `json:"cpu_model"`
	CPUThreads int     `json:"cpu_threads"`
	CPULoad1   float64 `json:"cpu_load_1m"`
	RAMBytes   uint64  `json:"ram_total_bytes"`
	RAMFree    uint64  `json:"ram_free_bytes"`
	OS         string  `json:"os"`
	Arch       string  `json:"arch"`
}

// DetectHardware probes the hardware capabilities of the current system.
// Probe failures leave the corresponding fields at their zero values;
// the descriptor is informational only.
func DetectHardware() *HardwareInfo {
	hw := &HardwareInfo{
		CPUThreads: runtime.NumCPU(),
		CPUModel:   "Unknown",
		OS:         runtime.GOOS,
		Arch:       runtime.GOARCH,
	}

	if infos, err := cpu.Info(); err == nil && len(infos) > 0 {
		hw.CPUModel = infos[0].ModelName
	}
	if avg, err := load.Avg(); err == nil {
		hw.CPULoad1 = avg.Load1
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		hw.RAMBytes = vm.Total
		hw.RAMFree = vm.Available
	}

	return hw
}
