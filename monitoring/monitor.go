package monitoring

import (
	"fmt"
	"log"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// ResourceUsage is one snapshot of process and host health.
type ResourceUsage struct {
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryUsedMB  float64 `json:"memory_used_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	MemoryPercent float64 `json:"memory_percent"`
	DiskFreeGB    float64 `json:"disk_free_gb"`
	DiskTotalGB   float64 `json:"disk_total_gb"`
	DiskPercent   float64 `json:"disk_percent"`
	NumGoroutines int     `json:"goroutines"`
}

// Monitor samples resource usage for the recorder process and the disk
// holding the recording tree.
type Monitor struct {
	proc          *process.Process
	recordingRoot string
}

// NewMonitor creates a monitor watching the current process and the
// filesystem behind recordingRoot.
func NewMonitor(recordingRoot string) (*Monitor, error) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, fmt.Errorf("attaching to own process: %w", err)
	}
	return &Monitor{proc: proc, recordingRoot: recordingRoot}, nil
}

// Snapshot reads current resource usage.
func (m *Monitor) Snapshot() (ResourceUsage, error) {
	var usage ResourceUsage

	cpuPercent, err := m.proc.CPUPercent()
	if err != nil {
		return usage, fmt.Errorf("reading cpu usage: %w", err)
	}
	usage.CPUPercent = cpuPercent

	virtualMem, err := mem.VirtualMemory()
	if err != nil {
		return usage, fmt.Errorf("reading memory info: %w", err)
	}
	procMem, err := m.proc.MemoryInfo()
	if err != nil {
		return usage, fmt.Errorf("reading process memory: %w", err)
	}
	usage.MemoryUsedMB = float64(procMem.RSS) / 1024 / 1024
	usage.MemoryTotalMB = float64(virtualMem.Total) / 1024 / 1024
	usage.MemoryPercent = float64(procMem.RSS) / float64(virtualMem.Total) * 100

	du, err := disk.Usage(m.recordingRoot)
	if err != nil {
		return usage, fmt.Errorf("reading disk usage for %s: %w", m.recordingRoot, err)
	}
	usage.DiskFreeGB = float64(du.Free) / 1024 / 1024 / 1024
	usage.DiskTotalGB = float64(du.Total) / 1024 / 1024 / 1024
	usage.DiskPercent = du.UsedPercent

	usage.NumGoroutines = runtime.NumGoroutine()
	return usage, nil
}

// StartLogging logs a usage snapshot on the given interval until the process
// exits.
func (m *Monitor) StartLogging(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for range ticker.C {
			usage, err := m.Snapshot()
			if err != nil {
				log.Printf("[monitor] %v", err)
				continue
			}
			log.Printf("[monitor] cpu %.2f%%, mem %.1f/%.1f MB (%.1f%%), disk free %.1f GB (%.1f%% used), goroutines %d",
				usage.CPUPercent,
				usage.MemoryUsedMB, usage.MemoryTotalMB, usage.MemoryPercent,
				usage.DiskFreeGB, usage.DiskPercent,
				usage.NumGoroutines)
		}
	}()
}
