package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/symslash/internal/slasher"
)

// execute runs the CLI with config lookup confined to dir and a fixed run ID.
func execute(t *testing.T, dir string, args ...string) (string, string, error) {
	t.Helper()
	opts := &RootOptions{ConfigDir: dir, RunIDs: slasher.NewFixedGenerator("test-run")}
	cmd := newRootCommand(opts, "1.2.3")
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand("dev")
	require.NotNil(t, cmd)
	assert.Equal(t, "symslash", cmd.Use)
	assert.Contains(t, cmd.Long, "opaque identifiers")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand("dev")
	commands := []string{"insert", "hash", "dehash", "lookup", "export", "convert", "test", "version"}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand("dev")

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	symbolsFlag := cmd.PersistentFlags().Lookup("symbols")
	require.NotNil(t, symbolsFlag)
	assert.Equal(t, "s", symbolsFlag.Shorthand)

	for _, name := range []string{"config", "prefix", "store-format"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(name), name)
	}
}

func TestHashCommandFlags(t *testing.T) {
	cmd := NewRootCommand("dev")
	hashCmd, _, err := cmd.Find([]string{"hash"})
	require.NoError(t, err)

	keepFlag := hashCmd.Flags().Lookup("keep-static")
	require.NotNil(t, keepFlag)
	assert.Equal(t, "false", keepFlag.DefValue)
}

func TestHelpExitsZero(t *testing.T) {
	for _, args := range [][]string{{"--help"}, {"hash", "-h"}, {}} {
		stdout, _, err := execute(t, t.TempDir(), args...)
		require.NoError(t, err, "args %v", args)
		assert.Contains(t, stdout, "symslash")
		assert.Equal(t, ExitSuccess, GetExitCode(err))
	}
}

func TestUsageErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"unknown command", []string{"bogus"}},
		{"unknown flag", []string{"insert", "--bogus", "lib.so"}},
		{"invalid output format", []string{"--format", "xml", "version"}},
		{"invalid store format", []string{"--store-format", "xml", "version"}},
		{"invalid prefix", []string{"--prefix", "a b", "version"}},
		{"empty prefix", []string{"--prefix", "", "version"}},
		{"missing config", []string{"--config", "/nonexistent/symslash.yaml", "version"}},
		{"insert without objects", []string{"insert"}},
		{"version with args", []string{"version", "extra"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := execute(t, t.TempDir(), tt.args...)
			require.Error(t, err)
			assert.Equal(t, ExitUsage, GetExitCode(err), "error: %v", err)
		})
	}
}

func TestInvalidDefaultConfigIsUsageError(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".symslash.yaml"), []byte("stroe: x\n"), 0o644))

	_, _, err := execute(t, dir, "version")
	require.Error(t, err)
	assert.Equal(t, ExitUsage, GetExitCode(err))
	assert.Contains(t, err.Error(), "stroe")
}

func TestVersion(t *testing.T) {
	stdout, _, err := execute(t, t.TempDir(), "version")
	require.NoError(t, err)
	assert.Equal(t, "symslash 1.2.3\n", stdout)

	stdout, _, err = execute(t, t.TempDir(), "--format", "json", "version")
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"ok","data":{"version":"1.2.3"}}`, stdout)
}

func TestVerboseLogsToStderr(t *testing.T) {
	_, stderr, err := execute(t, t.TempDir(), "-v", "version")
	require.NoError(t, err)
	assert.Contains(t, stderr, "configuration resolved")

	_, stderr, err = execute(t, t.TempDir(), "version")
	require.NoError(t, err)
	assert.Empty(t, stderr)
}
