// Package benchmark times the counting stages on real images.
package benchmark

import (
	"fmt"
	"runtime"
	"time"
)

// Timer measures one named span.
type Timer struct {
	start    time.Time
	name     string
	duration time.Duration
}

// NewTimer starts a timer with the given name.
func NewTimer(name string) *Timer {
	return &Timer{name: name, start: time.Now()}
}

// Stop stops the timer and returns the elapsed duration.
func (t *Timer) Stop() time.Duration {
	t.duration = time.Since(t.start)
	return t.duration
}

// Duration returns the recorded duration (only valid after Stop()).
func (t *Timer) Duration() time.Duration {
	return t.duration
}

func (t *Timer) String() string {
	return fmt.Sprintf("%s: %v", t.name, t.duration)
}

// MemoryStats is the subset of runtime.MemStats a benchmark reports.
type MemoryStats struct {
	AllocBytes      uint64  // Currently allocated bytes
	TotalAllocBytes uint64  // Cumulative allocated bytes
	Mallocs         uint64  // Cumulative heap objects allocated
	NumGC           uint32  // Completed GC cycles
	GCCPUFraction   float64 // Fraction of CPU time spent in GC
}

// GetMemoryStats returns current memory statistics.
func GetMemoryStats() MemoryStats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return MemoryStats{
		AllocBytes:      m.Alloc,
		TotalAllocBytes: m.TotalAlloc,
		Mallocs:         m.Mallocs,
		NumGC:           m.NumGC,
		GCCPUFraction:   m.GCCPUFraction,
	}
}

func (m MemoryStats) String() string {
	return fmt.Sprintf("Alloc: %d KB, Total: %d KB, GC: %d (%.2f%% CPU)",
		m.AllocBytes/1024, m.TotalAllocBytes/1024, m.NumGC, m.GCCPUFraction*100)
}
