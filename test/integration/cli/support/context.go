// Package support holds the godog step definitions of the CLI suite.
package support

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"
)

// TestContext holds the state of one scenario.
type TestContext struct {
	// Command execution state
	LastCommand  string
	LastOutput   string
	LastStderr   string
	LastError    error
	LastDuration time.Duration

	// Test environment
	TempDir     string
	previousDir string
	envVars     map[string]*string

	// Server management
	ServerURL   string
	stopServer  context.CancelFunc
	serverDone  chan error
	imageServer *http.Server
	ImageURL    string

	// HTTP response state
	LastHTTPStatusCode int
	LastHTTPResponse   string
	LastHTTPHeaders    http.Header
}

// NewTestContext creates a scenario context and makes a fresh temp dir the
// working directory, so relative paths in steps resolve inside it.
func NewTestContext() (*TestContext, error) {
	previous, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get working directory: %w", err)
	}
	tempDir, err := os.MkdirTemp("", "coincount-test-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}
	if err := os.Chdir(tempDir); err != nil {
		return nil, fmt.Errorf("failed to enter temp directory: %w", err)
	}

	testCtx := &TestContext{
		TempDir:     tempDir,
		previousDir: previous,
		envVars:     make(map[string]*string),
	}
	// Keep the user's configuration files out of the scenarios.
	testCtx.SetEnv("HOME", tempDir)
	testCtx.SetEnv("XDG_CONFIG_HOME", tempDir)
	return testCtx, nil
}

// SetEnv sets an environment variable until Cleanup restores it.
func (testCtx *TestContext) SetEnv(name, value string) {
	if _, seen := testCtx.envVars[name]; !seen {
		if old, ok := os.LookupEnv(name); ok {
			testCtx.envVars[name] = &old
		} else {
			testCtx.envVars[name] = nil
		}
	}
	_ = os.Setenv(name, value)
}

// Cleanup stops servers, restores the environment and removes the temp dir.
func (testCtx *TestContext) Cleanup() error {
	var errs []error

	if err := testCtx.StopServer(); err != nil {
		errs = append(errs, fmt.Errorf("failed to stop server: %w", err))
	}
	if testCtx.imageServer != nil {
		_ = testCtx.imageServer.Close()
	}

	for name, old := range testCtx.envVars {
		if old == nil {
			_ = os.Unsetenv(name)
		} else {
			_ = os.Setenv(name, *old)
		}
	}

	if err := os.Chdir(testCtx.previousDir); err != nil {
		errs = append(errs, fmt.Errorf("failed to restore working directory: %w", err))
	}
	if err := os.RemoveAll(testCtx.TempDir); err != nil {
		errs = append(errs, fmt.Errorf("failed to remove temp directory %s: %w", testCtx.TempDir, err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("cleanup errors: %v", errs)
	}
	return nil
}
