package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const passingScenario = `name: cli_roundtrip
description: "insert, hash and dehash one object"
objects:
  - name: libone.so
    symbols:
      - { name: alloc, value: 0x1000 }
      - { name: free, value: 0x2000 }
steps:
  - insert: [libone.so]
  - hash: libone.so
  - dehash: libone.so
assertions:
  - type: store_entries
    entries:
      - { id: 0, name: alloc }
      - { id: 1, name: free }
  - type: symbols
    object: libone.so
    names: [alloc, free]
`

const failingScenario = `name: cli_wrong_names
description: "asserts names the object never had"
objects:
  - name: libone.so
    symbols:
      - { name: alloc, value: 0x1000 }
steps:
  - insert: [libone.so]
  - hash: libone.so
assertions:
  - type: symbols
    object: libone.so
    names: [alloc]
`

func writeScenario(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestTestCommandMissingArgs(t *testing.T) {
	_, _, err := execute(t, t.TempDir(), "test")
	require.Error(t, err)
	assert.Equal(t, ExitUsage, GetExitCode(err))
}

func TestTestCommandNonExistentScenario(t *testing.T) {
	dir := t.TempDir()
	_, _, err := execute(t, dir, "test", filepath.Join(dir, "nope.yaml"))
	require.Error(t, err)
	assert.Equal(t, ExitUsage, GetExitCode(err))
}

func TestTestCommandUpdateRequiresGolden(t *testing.T) {
	dir := t.TempDir()
	path := writeScenario(t, dir, "pass.yaml", passingScenario)
	_, _, err := execute(t, dir, "test", "--update", path)
	require.Error(t, err)
	assert.Equal(t, ExitUsage, GetExitCode(err))
}

func TestTestCommandPassingScenario(t *testing.T) {
	dir := t.TempDir()
	path := writeScenario(t, dir, "pass.yaml", passingScenario)

	stdout, _, err := execute(t, dir, "test", path)
	require.NoError(t, err)
	assert.Contains(t, stdout, "✓ cli_roundtrip")
	assert.Contains(t, stdout, "1 passed, 0 failed, 1 total")
}

func TestTestCommandFailingScenario(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "pass.yaml", passingScenario)
	writeScenario(t, dir, "fail.yaml", failingScenario)

	stdout, _, err := execute(t, dir, "--format", "json", "test", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, 2, resp.Data.Total)
	assert.Equal(t, 1, resp.Data.Passed)
	assert.Equal(t, 1, resp.Data.Failed)

	byName := map[string]ScenarioResult{}
	for _, s := range resp.Data.Scenarios {
		byName[s.Name] = s
	}
	assert.True(t, byName["cli_roundtrip"].Pass)
	failed := byName["cli_wrong_names"]
	assert.False(t, failed.Pass)
	assert.NotEmpty(t, failed.Errors)
}

func TestTestCommandGoldenUpdateThenCompare(t *testing.T) {
	dir := t.TempDir()
	golden := filepath.Join(dir, "golden")
	path := writeScenario(t, dir, "pass.yaml", passingScenario)

	_, _, err := execute(t, dir, "test", "--golden", golden, "--update", path)
	require.NoError(t, err)
	snapshot, err := os.ReadFile(filepath.Join(golden, "cli_roundtrip.golden"))
	require.NoError(t, err)
	assert.Contains(t, string(snapshot), `"scenario_name": "cli_roundtrip"`)

	_, _, err = execute(t, dir, "test", "--golden", golden, path)
	require.NoError(t, err)

	tampered := filepath.Join(golden, "cli_roundtrip.golden")
	require.NoError(t, os.WriteFile(tampered, []byte("{}\n"), 0o644))
	stdout, _, err := execute(t, dir, "test", "--golden", golden, path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, stdout, "does not match")
}

func TestTestCommandBundledScenarios(t *testing.T) {
	scenarios := filepath.Join("..", "harness", "testdata", "scenarios")
	golden := filepath.Join("..", "harness", "testdata", "golden")

	stdout, _, err := execute(t, t.TempDir(), "test", "--golden", golden, scenarios)
	require.NoError(t, err, stdout)
	assert.Contains(t, stdout, "3 passed, 0 failed, 3 total")
}
