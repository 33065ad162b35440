package memory

import (
	"fmt"
	"math"
	"os"
	"runtime"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sys/unix"
)

// Info is an immutable snapshot of process memory counters. PercentUsed is
// heap used relative to the heap limit when one is set, otherwise relative
// to the heap reserved from the OS. SampleError carries best-effort failure
// detail instead of an error return; a snapshot is always produced.
type Info struct {
	Timestamp   time.Time `json:"timestamp"`
	HeapUsed    uint64    `json:"heap_used"`
	HeapTotal   uint64    `json:"heap_total"`
	HeapLimit   uint64    `json:"heap_limit,omitempty"`
	RSS         uint64    `json:"rss"`
	PercentUsed float64   `json:"percent_used"`
	SampleError string    `json:"sample_error,omitempty"`
}

// Monitor reads process memory counters. The zero value is usable; NewMonitor
// exists for symmetry with the rest of the daemon's constructors.
type Monitor struct {
	pageSize uint64
}

// NewMonitor returns a ready Monitor.
func NewMonitor() *Monitor {
	return &Monitor{pageSize: uint64(os.Getpagesize())}
}

// Sample captures a fresh snapshot. It only reads local counters and never
// blocks on anything slower than /proc. Failures degrade individual fields
// and are reported through SampleError.
func (m *Monitor) Sample() Info {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)

	info := Info{
		Timestamp: time.Now(),
		HeapUsed:  stats.HeapAlloc,
		HeapTotal: stats.HeapSys,
	}

	if limit := debug.SetMemoryLimit(-1); limit > 0 && limit < math.MaxInt64 {
		info.HeapLimit = uint64(limit)
	}

	rss, err := m.residentSetSize()
	if err != nil {
		info.SampleError = err.Error()
	}
	info.RSS = rss

	denominator := info.HeapTotal
	if info.HeapLimit > 0 {
		denominator = info.HeapLimit
	}
	if denominator > 0 {
		info.PercentUsed = float64(info.HeapUsed) / float64(denominator) * 100
		if info.PercentUsed > 100 {
			info.PercentUsed = 100
		}
	}

	return info
}

// Classify samples and classifies in one call.
func (m *Monitor) Classify(emergency bool) (Info, Level) {
	info := m.Sample()
	return info, Classify(info.PercentUsed, emergency)
}

// residentSetSize reads current RSS from /proc/self/statm, falling back to
// the peak RSS reported by getrusage when /proc is unavailable.
func (m *Monitor) residentSetSize() (uint64, error) {
	pageSize := m.pageSize
	if pageSize == 0 {
		pageSize = uint64(os.Getpagesize())
	}

	if data, err := os.ReadFile("/proc/self/statm"); err == nil {
		fields := strings.Fields(string(data))
		if len(fields) >= 2 {
			if pages, parseErr := strconv.ParseUint(fields[1], 10, 64); parseErr == nil {
				return pages * pageSize, nil
			}
		}
	}

	var usage unix.Rusage
	if err := unix.Getrusage(unix.RUSAGE_SELF, &usage); err != nil {
		return 0, fmt.Errorf("read rss: %w", err)
	}
	// Maxrss is reported in kilobytes on Linux.
	return uint64(usage.Maxrss) * 1024, nil
}
