package testutil

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// DSNEnv names the environment variable holding the connection string of a
// scratch database for integration tests.
const DSNEnv = "PGSTREAM_TEST_DSN"

// IntegrationDSN returns the scratch database connection string, skipping the
// test in short mode or when none is configured.
func IntegrationDSN(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	dsn := os.Getenv(DSNEnv)
	if dsn == "" {
		t.Skipf("Skipping integration test: %s is not set", DSNEnv)
	}
	return dsn
}

// TestEnvironment bundles a context and a temp directory with ordered cleanup.
type TestEnvironment struct {
	t       *testing.T
	ctx     context.Context
	cancel  context.CancelFunc
	tempDir string
	cleanup []func()
}

// NewTestEnvironment creates a new test environment. Cleanup is registered
// with t and runs in reverse order of AddCleanup calls.
func NewTestEnvironment(t *testing.T) *TestEnvironment {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	env := &TestEnvironment{
		t:       t,
		ctx:     ctx,
		cancel:  cancel,
		tempDir: t.TempDir(),
	}
	t.Cleanup(env.Cleanup)
	return env
}

// Context returns the test context
func (e *TestEnvironment) Context() context.Context {
	return e.ctx
}

// TempDir returns the temporary directory
func (e *TestEnvironment) TempDir() string {
	return e.tempDir
}

// CreateTempFile writes content to name inside the temp directory.
func (e *TestEnvironment) CreateTempFile(name string, content []byte) string {
	e.t.Helper()
	path := filepath.Join(e.tempDir, name)
	require.NoError(e.t, os.WriteFile(path, content, 0o644))
	return path
}

// AddCleanup adds a cleanup function to be called during teardown
func (e *TestEnvironment) AddCleanup(fn func()) {
	e.cleanup = append(e.cleanup, fn)
}

// Cleanup runs all cleanup functions
func (e *TestEnvironment) Cleanup() {
	e.cancel()
	for i := len(e.cleanup) - 1; i >= 0; i-- {
		e.cleanup[i]()
	}
	e.cleanup = nil
}
