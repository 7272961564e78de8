package metrics

import (
	"os"
	"runtime"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	psnet "github.com/shirou/gopsutil/v3/net"
	"github.com/shirou/gopsutil/v3/process"
)

// ResourceSample is a point-in-time reading of host/process resource usage.
type ResourceSample struct {
	CPUPercent     float64
	MemoryFraction float64
	MemoryBytes    int64
	DiskPercent    float64
	NetworkBytes   int64
}

// ResourceProbe samples resource usage. Tests inject synthetic probes to
// drive alert scenarios without real memory pressure.
type ResourceProbe interface {
	Sample() (ResourceSample, error)
}

// ResourceProbeFunc adapts a function to ResourceProbe.
type ResourceProbeFunc func() (ResourceSample, error)

// Sample calls f.
func (f ResourceProbeFunc) Sample() (ResourceSample, error) { return f() }

// HostProbe reads host and process usage via gopsutil. Heap usage comes from
// the runtime so the probe works even where process stats are restricted.
type HostProbe struct {
	proc *process.Process
}

// NewHostProbe creates a probe bound to the current process.
func NewHostProbe() *HostProbe {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		proc = nil
	}
	return &HostProbe{proc: proc}
}

// Sample reads CPU, memory, disk, and network counters. Partial failures
// leave the corresponding field at zero rather than failing the sample.
func (h *HostProbe) Sample() (ResourceSample, error) {
	var sample ResourceSample

	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		sample.CPUPercent = percents[0]
	}
	if h.proc != nil {
		if p, err := h.proc.CPUPercent(); err == nil && p > sample.CPUPercent {
			sample.CPUPercent = p
		}
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		sample.MemoryFraction = vm.UsedPercent / 100
	}

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	sample.MemoryBytes = int64(memStats.Alloc)

	if usage, err := disk.Usage("/"); err == nil {
		sample.DiskPercent = usage.UsedPercent
	}

	if counters, err := psnet.IOCounters(false); err == nil && len(counters) > 0 {
		sample.NetworkBytes = int64(counters[0].BytesSent + counters[0].BytesRecv)
	}

	return sample, nil
}
