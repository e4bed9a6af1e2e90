package batch

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/MeKo-Tech/coincount/internal/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCounter fails for paths in fail and counts len(path) otherwise.
type fakeCounter struct {
	mu    sync.Mutex
	fail  map[string]bool
	calls []string
}

func (f *fakeCounter) ProcessFile(ctx context.Context, path string) (*pipeline.CountResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, path)
	f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.fail[path] {
		return nil, errors.New("cannot count")
	}
	return &pipeline.CountResult{Source: path, ObjectCount: len(path)}, nil
}

type countingProgress struct {
	pipeline.NoOpProgressCallback
	mu     sync.Mutex
	last   int
	errors []int
}

func (c *countingProgress) OnProgress(current, _ int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.last = current
}

func (c *countingProgress) OnError(i int, _ error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errors = append(c.errors, i)
}

func TestProcessFiles_OrderAndProgress(t *testing.T) {
	files := []string{"a", "bbb", "cc", "dddd", "e"}
	counter := &fakeCounter{fail: map[string]bool{"cc": true}}
	progress := &countingProgress{}

	items, err := processFiles(context.Background(), counter, files,
		&Config{Workers: 3, ContinueOnError: true}, progress)
	require.NoError(t, err)
	require.Len(t, items, len(files))
	for i, f := range files {
		assert.Equal(t, f, items[i].Path)
	}
	assert.Equal(t, 3, items[1].Result.ObjectCount)
	assert.Equal(t, "cannot count", items[2].Error)
	assert.Nil(t, items[2].Result)
	assert.Equal(t, len(files), progress.last)
	assert.Equal(t, []int{2}, progress.errors)
}

func TestProcessFiles_StopsOnFirstError(t *testing.T) {
	files := []string{"bad", "b", "c", "d"}
	counter := &fakeCounter{fail: map[string]bool{"bad": true}}

	items, err := processFiles(context.Background(), counter, files, &Config{Workers: 1}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad: cannot count")
	assert.Len(t, items, len(files))
	assert.Less(t, len(counter.calls), len(files)+1)
}

func TestProcessFiles_ParentCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := processFiles(ctx, &fakeCounter{}, []string{"a", "b"}, &Config{Workers: 2, ContinueOnError: true}, nil)
	require.ErrorIs(t, err, context.Canceled)
}
