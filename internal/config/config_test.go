package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chdir is a stand-in for t.Chdir, which requires Go 1.24+.
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(old) })
}

func TestDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	s, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ".", s.PlanningRoot)
	assert.Equal(t, "1.1", s.SchemaVersion)
	assert.Equal(t, "127.0.0.1:8355", s.Addr())
	assert.Equal(t, "info", s.LogLevel)
	assert.False(t, s.DebugMode)
	assert.True(t, s.AutoCreateDirs)
	assert.Equal(t, 1000, s.CacheMaxSize)
}

func TestConfigFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "trellis.yaml")
	require.NoError(t, os.WriteFile(file, []byte("port: 9001\nlog_level: debug\nplanning_root: /srv/plans\n"), 0o644))

	s, err := Load(file)
	require.NoError(t, err)
	assert.Equal(t, 9001, s.Port)
	assert.Equal(t, "debug", s.LogLevel)
	assert.Equal(t, "/srv/plans", s.PlanningRoot)
	// Untouched keys keep their defaults.
	assert.Equal(t, "127.0.0.1", s.Host)
}

func TestWorkingDirConfigIsOptional(t *testing.T) {
	chdir(t, t.TempDir())
	_, err := Load("")
	assert.NoError(t, err, "a missing trellis.yaml must not fail the load")
}

func TestExplicitMissingConfigFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestEnvironmentOverrides(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("MCP_PORT", "7777")
	t.Setenv("MCP_PLANNING_ROOT", "/data/planning")

	s, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 7777, s.Port)
	assert.Equal(t, "/data/planning", s.PlanningRoot)
}

func TestMalformedConfigRejected(t *testing.T) {
	file := filepath.Join(t.TempDir(), "trellis.yaml")
	require.NoError(t, os.WriteFile(file, []byte("port: [not a port\n"), 0o644))
	_, err := Load(file)
	assert.Error(t, err)
}
