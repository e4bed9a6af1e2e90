package cmd

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/MeKo-Tech/coincount/internal/testutil"
	"github.com/stretchr/testify/require"
)

// isolate points every configuration search path at an empty temp dir and
// makes it the working directory.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "xdg"))
	t.Chdir(dir)
	return dir
}

// execute runs a fresh command tree and returns stdout and stderr.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root := NewRootCommand()
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

// writeScene writes the two-coin default scene and returns its path.
func writeScene(t *testing.T, dir, name string) string {
	t.Helper()
	return testutil.WriteScene(t, dir, name, testutil.DefaultScene())
}

func mustExist(t *testing.T, path string) {
	t.Helper()
	require.True(t, testutil.FileExists(path), "expected %s to exist", path)
}
