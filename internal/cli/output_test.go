package cli

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExitError(t *testing.T) {
	err := NewExitError(ExitUsage, "bad args")
	assert.Equal(t, "bad args", err.Error())
	assert.Nil(t, errors.Unwrap(err))

	cause := errors.New("disk full")
	wrapped := WrapExitError(ExitFailure, "write failed", cause)
	assert.Equal(t, "write failed: disk full", wrapped.Error())
	assert.ErrorIs(t, wrapped, cause)
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, GetExitCode(nil))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))
	assert.Equal(t, ExitUsage, GetExitCode(usageErrorf("x")))
	assert.Equal(t, ExitUsage, GetExitCode(fmt.Errorf("outer: %w", usageErrorf("x"))))
}

type stringer struct{}

func (stringer) String() string { return "text form" }

func TestOutputFormatter(t *testing.T) {
	var buf bytes.Buffer
	f := &OutputFormatter{Format: "text", Writer: &buf}
	assert.NoError(t, f.Success(stringer{}))
	assert.Equal(t, "text form\n", buf.String())

	buf.Reset()
	f = &OutputFormatter{Format: "json", Writer: &buf, RunID: "run-1"}
	assert.NoError(t, f.Success(map[string]int{"n": 2}))
	assert.JSONEq(t, `{"status":"ok","data":{"n":2},"run_id":"run-1"}`, buf.String())
}
