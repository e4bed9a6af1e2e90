package benchmark

import (
	"context"
	"fmt"
	"io"
	"runtime"
	"sync"
	"time"
)

// Benchmark is one named unit of work.
type Benchmark struct {
	Name string
	Func func() error
}

// Result holds the outcome of running a benchmark for some iterations.
type Result struct {
	Name         string
	Duration     time.Duration
	MemoryBefore MemoryStats
	MemoryAfter  MemoryStats
	Iterations   int
	Error        error
}

// PerIteration returns the mean duration of one iteration.
func (r Result) PerIteration() time.Duration {
	if r.Iterations <= 0 {
		return 0
	}
	return r.Duration / time.Duration(r.Iterations)
}

// AllocatedPerIteration returns the mean bytes allocated by one iteration.
func (r Result) AllocatedPerIteration() uint64 {
	if r.Iterations <= 0 || r.MemoryAfter.TotalAllocBytes < r.MemoryBefore.TotalAllocBytes {
		return 0
	}
	return (r.MemoryAfter.TotalAllocBytes - r.MemoryBefore.TotalAllocBytes) / uint64(r.Iterations)
}

func (r Result) String() string {
	if r.Error != nil {
		return fmt.Sprintf("%s: ERROR - %v", r.Name, r.Error)
	}
	return fmt.Sprintf("%s: %d iterations, avg: %v, total: %v, alloc/op: %d KB",
		r.Name, r.Iterations, r.PerIteration().Round(time.Microsecond),
		r.Duration.Round(time.Microsecond), r.AllocatedPerIteration()/1024)
}

// Suite runs benchmarks in the order they were added.
type Suite struct {
	mu         sync.Mutex
	benchmarks []Benchmark
	results    []Result
}

// NewSuite creates an empty suite.
func NewSuite() *Suite {
	return &Suite{}
}

// Add appends a benchmark.
func (s *Suite) Add(name string, fn func() error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.benchmarks = append(s.benchmarks, Benchmark{Name: name, Func: fn})
}

// Names lists the benchmarks in run order.
func (s *Suite) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, len(s.benchmarks))
	for i, b := range s.benchmarks {
		names[i] = b.Name
	}
	return names
}

// Run runs the named benchmark.
func (s *Suite) Run(name string, iterations int) Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.benchmarks {
		if b.Name == name {
			return run(context.Background(), b, iterations)
		}
	}
	return Result{Name: name, Error: fmt.Errorf("benchmark '%s' not found", name)}
}

// RunAll runs every benchmark. It stops early when ctx ends; benchmarks that
// did not start are absent from the results.
func (s *Suite) RunAll(ctx context.Context, iterations int) []Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.results = make([]Result, 0, len(s.benchmarks))
	for _, b := range s.benchmarks {
		if ctx.Err() != nil {
			break
		}
		s.results = append(s.results, run(ctx, b, iterations))
	}
	return s.results
}

// Results returns the results of the last RunAll.
func (s *Suite) Results() []Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.results
}

// PrintResults writes the last results to w.
func (s *Suite) PrintResults(w io.Writer) {
	_, _ = fmt.Fprintln(w, "Benchmark Results:")
	_, _ = fmt.Fprintln(w, "==================")
	for _, r := range s.Results() {
		_, _ = fmt.Fprintln(w, r.String())
	}
}

func run(ctx context.Context, b Benchmark, iterations int) Result {
	if iterations < 1 {
		iterations = 1
	}
	runtime.GC()
	before := GetMemoryStats()
	timer := NewTimer(b.Name)

	var err error
	done := 0
	for range iterations {
		if err = ctx.Err(); err != nil {
			break
		}
		if err = b.Func(); err != nil {
			break
		}
		done++
	}

	duration := timer.Stop()
	return Result{
		Name:         b.Name,
		Duration:     duration,
		MemoryBefore: before,
		MemoryAfter:  GetMemoryStats(),
		Iterations:   done,
		Error:        err,
	}
}
