package harness

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScenarios_Golden(t *testing.T) {
	paths, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		name := strings.TrimSuffix(filepath.Base(path), ".yaml")
		t.Run(name, func(t *testing.T) {
			scenario, err := LoadScenario(path)
			require.NoError(t, err)
			assert.Equal(t, name, scenario.Name)

			result, err := RunWithGolden(t, scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

const minimalScenario = `
name: minimal
description: "one object"
objects:
  - name: liba.so
    symbols:
      - { name: alpha, value: 0x1000 }
steps:
  - insert: [liba.so]
assertions:
  - type: store_entries
    entries:
      - { id: 0, name: alpha }
`

func TestParseScenario_Minimal(t *testing.T) {
	s, err := ParseScenario([]byte(minimalScenario))
	require.NoError(t, err)
	assert.Equal(t, "minimal", s.Name)
	require.Len(t, s.Objects, 1)
	assert.Equal(t, uint64(0x1000), s.Objects[0].Symbols[0].Value)
	require.Len(t, s.Steps, 1)
	assert.Equal(t, OpInsert, s.Steps[0].Op())
	assert.Equal(t, []string{"liba.so"}, s.Steps[0].Objects())
}

func TestParseScenario_Errors(t *testing.T) {
	tests := []struct {
		name    string
		replace [2]string
		want    string
	}{
		{"unknown field", [2]string{"steps:", "stpes:"}, "field stpes not found"},
		{"missing name", [2]string{"name: minimal", "name: \"\""}, "name is required"},
		{"missing description", [2]string{`description: "one object"`, ""}, "description is required"},
		{"bad format", [2]string{"name: minimal", "name: minimal\nformat: xml"}, "unsupported store format"},
		{"bad prefix", [2]string{"name: minimal", "name: minimal\nprefix: \"a b\""}, "invalid prefix"},
		{"bad class", [2]string{"  - name: liba.so", "  - name: liba.so\n    class: 16"}, "class must be 32 or 64"},
		{"unknown object in step", [2]string{"insert: [liba.so]", "insert: [libz.so]"}, `unknown object "libz.so"`},
		{"step with two ops", [2]string{"insert: [liba.so]", "insert: [liba.so]\n    hash: liba.so"}, "exactly one of"},
		{"unknown assertion", [2]string{"type: store_entries", "type: bogus"}, `unknown assertion type "bogus"`},
		{"assertion without object", [2]string{"type: store_entries", "type: symbols"}, "object is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := strings.Replace(minimalScenario, tt.replace[0], tt.replace[1], 1)
			_, err := ParseScenario([]byte(src))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func runScenario(t *testing.T, src string) *Result {
	t.Helper()
	s, err := ParseScenario([]byte(src))
	require.NoError(t, err)
	result, err := Run(context.Background(), s, t.TempDir())
	require.NoError(t, err)
	return result
}

func TestRun_Minimal(t *testing.T) {
	result := runScenario(t, minimalScenario)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, DefaultRunID, result.RunID)
	require.Len(t, result.Trace, 1)
	require.NotNil(t, result.Trace[0].Collect)
	assert.Equal(t, 1, result.Trace[0].Collect.Registered)

	data, err := os.ReadFile(result.StorePath)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"alpha"`)
}

func TestRun_AssertionFailureIsReported(t *testing.T) {
	src := strings.Replace(minimalScenario, "{ id: 0, name: alpha }", "{ id: 0, name: beta }", 1)
	result := runScenario(t, src)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "store_entries")
}

func TestRun_UnexpectedStepFailureStops(t *testing.T) {
	src := strings.Replace(minimalScenario, "  - insert: [liba.so]", "  - dehash: liba.so\n  - insert: [liba.so]", 1)
	result := runScenario(t, src)
	assert.False(t, result.Pass)
	require.Len(t, result.Trace, 1, "steps after a failure must not run")
	assert.True(t, result.Trace[0].Failed)
	assert.Contains(t, result.Errors[0], "step 1 (dehash)")
}

func TestRun_ExpectedErrorThatDoesNotHappen(t *testing.T) {
	src := strings.Replace(minimalScenario, "  - insert: [liba.so]", "  - insert: [liba.so]\n    expect_error: boom", 1)
	result := runScenario(t, src)
	assert.False(t, result.Pass)
	assert.Contains(t, result.Errors[0], "got success")
}

func TestRun_ExpectedErrorWithWrongText(t *testing.T) {
	src := strings.Replace(minimalScenario, "  - insert: [liba.so]", "  - hash: liba.so\n    expect_error: boom\n  - insert: [liba.so]", 1)
	result := runScenario(t, src)
	assert.False(t, result.Pass)
	assert.Contains(t, result.Errors[0], `expected error containing "boom"`)
}

func TestRun_HashOutputBecomesCurrent(t *testing.T) {
	src := strings.Replace(minimalScenario, "  - insert: [liba.so]", "  - insert: [liba.so]\n  - hash: liba.so", 1)
	result := runScenario(t, src)
	require.True(t, result.Pass, "errors: %v", result.Errors)

	current := result.Current["liba.so"]
	assert.Equal(t, filepath.Join(result.Dir, "out", "2-liba.so"), current)
	require.Len(t, result.Trace, 2)
	assert.Equal(t, []Rename{{Index: 1, From: "alpha", To: "symslash0"}}, result.Trace[1].Renames)

	info, err := os.Stat(current)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o755), info.Mode().Perm())
}
