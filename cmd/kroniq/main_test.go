package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// run executes the CLI against a config that keeps all state in dir.
func run(t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()
	cfgPath := filepath.Join(dir, "kroniq.yaml")
	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		cfg := "store:\n  driver: sqlite\n  sqlite_path: " + filepath.Join(dir, "kroniq.db") +
			"\naudit:\n  enabled: true\n  db_path: " + filepath.Join(dir, "audit.db") + "\n"
		require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o644))
	}

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--config", cfgPath, "--env-file", ""}, args...))
	err := root.Execute()
	return out.String(), err
}

func TestTierSetAndUsage(t *testing.T) {
	dir := t.TempDir()

	out, err := run(t, dir, "tier", "set", "acct-1", "pro")
	require.NoError(t, err)
	assert.Contains(t, out, "Pro plan")

	out, err = run(t, dir, "tier", "get", "acct-1")
	require.NoError(t, err)
	assert.Contains(t, out, "acct-1: pro")

	out, err = run(t, dir, "usage", "--account", "acct-1")
	require.NoError(t, err)
	assert.Contains(t, out, "Pro plan")
	assert.Contains(t, out, "presentation")
	assert.Contains(t, out, "220000")

	_, err = run(t, dir, "tier", "set", "acct-1", "platinum")
	assert.Error(t, err)
}

func TestTokensSetLimit(t *testing.T) {
	dir := t.TempDir()

	_, err := run(t, dir, "tokens", "set-limit", "acct-1", "50000")
	require.NoError(t, err)

	out, err := run(t, dir, "tokens", "balance", "acct-1")
	require.NoError(t, err)
	assert.Contains(t, out, "0 of 50000 used")

	_, err = run(t, dir, "tokens", "set-limit", "acct-1", "-3")
	assert.Error(t, err)
}

func TestClassifyCommand(t *testing.T) {
	out, err := run(t, t.TempDir(), "classify", "make", "a", "short", "video", "of", "rain")
	require.NoError(t, err)
	assert.Contains(t, out, "video")
	assert.Contains(t, out, "confirm")
}

func TestRouteCommand(t *testing.T) {
	dir := t.TempDir()

	out, err := run(t, dir, "route", "--tier", "pro", "--resource", "image", "--complexity", "complex")
	require.NoError(t, err)
	assert.Contains(t, out, "flux-pro")
	assert.Contains(t, out, "max_resolution=2048")

	out, err = run(t, dir, "route", "--tier", "free", "--resource", "music")
	require.NoError(t, err)
	assert.Contains(t, out, "unavailable")
}

func TestPolicyValidate(t *testing.T) {
	dir := t.TempDir()

	out, err := run(t, dir, "policy", "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "embedded default is valid")

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("tiers:\n  free:\n    token_budget: 10\n"), 0o644))
	out, err = run(t, dir, "policy", "validate", bad)
	require.Error(t, err)
	assert.Contains(t, out, "tiers.pro: missing")
}

func TestAuditSearchEmpty(t *testing.T) {
	out, err := run(t, t.TempDir(), "audit", "search", "--account", "acct-1")
	require.NoError(t, err)
	assert.Contains(t, out, "No audit entries found.")
}

func TestMissingExplicitConfig(t *testing.T) {
	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"--config", filepath.Join(t.TempDir(), "nope.yaml"), "--env-file", "", "route"})
	assert.Error(t, root.Execute())
}
