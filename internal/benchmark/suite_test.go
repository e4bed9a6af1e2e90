package benchmark

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimer(t *testing.T) {
	timer := NewTimer("decode")
	time.Sleep(5 * time.Millisecond)
	d := timer.Stop()
	assert.GreaterOrEqual(t, d, 5*time.Millisecond)
	assert.Equal(t, d, timer.Duration())
	assert.Contains(t, timer.String(), "decode: ")
}

func TestGetMemoryStats(t *testing.T) {
	stats := GetMemoryStats()
	assert.Positive(t, stats.AllocBytes)
	assert.Positive(t, stats.TotalAllocBytes)
	assert.Contains(t, stats.String(), "KB")
}

func TestResult(t *testing.T) {
	r := Result{
		Name:         "blur",
		Duration:     100 * time.Millisecond,
		Iterations:   10,
		MemoryBefore: MemoryStats{TotalAllocBytes: 1 << 20},
		MemoryAfter:  MemoryStats{TotalAllocBytes: 1<<20 + 10*4096},
	}
	assert.Equal(t, 10*time.Millisecond, r.PerIteration())
	assert.Equal(t, uint64(4096), r.AllocatedPerIteration())
	s := r.String()
	assert.Contains(t, s, "blur: 10 iterations")
	assert.Contains(t, s, "avg: 10ms")
	assert.Contains(t, s, "alloc/op: 4 KB")

	failed := Result{Name: "broken", Error: errors.New("boom")}
	assert.Equal(t, "broken: ERROR - boom", failed.String())
	assert.Zero(t, failed.PerIteration())
	assert.Zero(t, failed.AllocatedPerIteration())
}

func TestSuite_RunAndRunAll(t *testing.T) {
	s := NewSuite()
	calls := 0
	s.Add("ok", func() error { calls++; return nil })
	s.Add("fails", func() error { return errors.New("stage failed") })
	assert.Equal(t, []string{"ok", "fails"}, s.Names())

	r := s.Run("ok", 4)
	require.NoError(t, r.Error)
	assert.Equal(t, 4, r.Iterations)
	assert.Equal(t, 4, calls)

	r = s.Run("fails", 3)
	require.Error(t, r.Error)
	assert.Zero(t, r.Iterations, "the failing iteration is not counted")

	r = s.Run("missing", 1)
	require.Error(t, r.Error)
	assert.Contains(t, r.Error.Error(), "not found")

	results := s.RunAll(context.Background(), 0)
	require.Len(t, results, 2)
	assert.Equal(t, 1, results[0].Iterations, "iterations are at least one")
	assert.Equal(t, results, s.Results())
}

func TestSuite_RunAllStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := NewSuite()
	s.Add("first", func() error { cancel(); return nil })
	s.Add("second", func() error { return nil })

	results := s.RunAll(ctx, 5)
	require.Len(t, results, 1)
	assert.Equal(t, 1, results[0].Iterations)
	require.ErrorIs(t, results[0].Error, context.Canceled)
}
