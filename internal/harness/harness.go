package harness

import (
	"context"
	"debug/elf"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/roach88/symslash/internal/codec"
	"github.com/roach88/symslash/internal/ident"
	"github.com/roach88/symslash/internal/object"
	"github.com/roach88/symslash/internal/slasher"
	"github.com/roach88/symslash/internal/store"
	"github.com/roach88/symslash/internal/testutil"
)

// DefaultRunID is the run ID of scenarios that do not set one.
const DefaultRunID = "test-run-default"

// StoreFile is the store file name inside the scratch directory.
const StoreFile = "symbol_hashes"

// Harness executes one scenario.
type Harness struct {
	scenario *Scenario
	dir      string
	opts     store.Options
	driver   *slasher.Driver
	rec      *recorder
	result   *Result
}

// recorder is an object.Opener that remembers the last object it opened, so
// the harness can see which symbols a rewrite renamed.
type recorder struct {
	last object.Binary
}

func (r *recorder) open(path string) (object.Binary, error) {
	bin, err := object.OpenBinary(path)
	if err != nil {
		return nil, err
	}
	r.last = bin
	return bin, nil
}

// Run executes scenario in dir, which must be an empty writable directory.
//
// The returned error covers harness failures only (fixtures that cannot be
// written, a scenario with an invalid format). Step and assertion failures
// are reported through Result.Pass and Result.Errors.
func Run(ctx context.Context, scenario *Scenario, dir string) (*Result, error) {
	format, err := codec.ParseFormat(scenario.Format)
	if err != nil {
		return nil, err
	}
	prefix := ident.DefaultPrefix
	if scenario.Prefix != "" {
		if prefix, err = ident.ParsePrefix(scenario.Prefix); err != nil {
			return nil, err
		}
	}
	runID := scenario.RunID
	if runID == "" {
		runID = DefaultRunID
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	rec := &recorder{}
	h := &Harness{
		scenario: scenario,
		dir:      dir,
		opts:     store.Options{Format: format, Prefix: prefix, Logger: logger},
		rec:      rec,
		driver: slasher.New(slasher.Config{
			Open:   rec.open,
			Logger: logger,
			RunID:  slasher.NewFixedGenerator(runID),
		}),
		result: NewResult(),
	}
	h.result.Dir = dir
	h.result.StorePath = filepath.Join(dir, StoreFile)
	h.result.RunID = h.driver.RunID()

	if err := h.setup(); err != nil {
		return nil, err
	}

	for i, step := range scenario.Steps {
		if !h.runStep(ctx, i+1, step) {
			break
		}
	}

	if h.result.Pass {
		for i, a := range scenario.Assertions {
			if err := h.evaluate(a); err != nil {
				h.result.AddError(fmt.Sprintf("assertions[%d] (%s): %v", i, a.Type, err))
			}
		}
	}
	return h.result, nil
}

// setup writes the initial store and the fixture objects.
func (h *Harness) setup() error {
	if h.scenario.Store != "" {
		if err := os.WriteFile(h.result.StorePath, []byte(h.scenario.Store), 0o644); err != nil {
			return fmt.Errorf("write initial store: %w", err)
		}
	}

	objDir := filepath.Join(h.dir, "objects")
	if err := os.MkdirAll(filepath.Join(h.dir, "out"), 0o755); err != nil {
		return err
	}
	if err := os.MkdirAll(objDir, 0o755); err != nil {
		return err
	}
	for _, o := range h.scenario.Objects {
		path := filepath.Join(objDir, o.Name)
		if err := os.WriteFile(path, testutil.BuildELF(o.elfSpec()), 0o755); err != nil {
			return fmt.Errorf("write fixture %s: %w", o.Name, err)
		}
		h.result.Current[o.Name] = path
	}
	return nil
}

func (o ObjectSpec) elfSpec() testutil.ELFSpec {
	spec := testutil.ELFSpec{
		Class:       elf.ELFCLASS64,
		Order:       binary.LittleEndian,
		Soname:      o.Soname,
		Needed:      o.Needed,
		Static:      o.Static,
		Version:     o.Version,
		NeedVersion: o.NeedVersion,
		DynstrSlack: o.DynstrSlack,
		NoNote:      o.NoNote,
	}
	if o.Class == 32 {
		spec.Class = elf.ELFCLASS32
	}
	if o.BigEndian {
		spec.Order = binary.BigEndian
	}
	for _, s := range o.Symbols {
		spec.Symbols = append(spec.Symbols, testutil.Symbol{Name: s.Name, Value: s.Value})
	}
	return spec
}

// runStep executes one step and reports whether the scenario may continue.
func (h *Harness) runStep(ctx context.Context, seq int, step Step) bool {
	event := TraceEvent{Seq: seq, Op: step.Op(), Objects: step.Objects()}
	h.rec.last = nil

	var err error
	switch step.Op() {
	case OpInsert:
		err = h.insert(ctx, step, &event)
	case OpHash:
		err = h.hash(ctx, seq, step, &event)
	case OpDehash:
		err = h.dehash(ctx, seq, step, &event)
	}
	event.Failed = err != nil
	h.result.Trace = append(h.result.Trace, event)

	switch {
	case err == nil && step.ExpectError != "":
		h.result.AddError(fmt.Sprintf("step %d (%s): expected error containing %q, got success", seq, event.Op, step.ExpectError))
		return false
	case err != nil && step.ExpectError == "":
		h.result.AddError(fmt.Sprintf("step %d (%s): %v", seq, event.Op, err))
		return false
	case err != nil && !strings.Contains(err.Error(), step.ExpectError):
		h.result.AddError(fmt.Sprintf("step %d (%s): expected error containing %q, got %v", seq, event.Op, step.ExpectError, err))
		return false
	}
	return true
}

func (h *Harness) insert(ctx context.Context, step Step, event *TraceEvent) error {
	opts := h.opts
	opts.Mode = store.ReadWrite
	fwd, err := store.OpenForward(h.result.StorePath, opts)
	if err != nil {
		return err
	}
	defer fwd.Close()

	paths := make([]string, len(step.Insert))
	for i, name := range step.Insert {
		paths[i] = h.result.Current[name]
	}
	stats, err := h.driver.Collect(ctx, fwd, paths...)
	event.Collect = &stats
	if err != nil {
		return err
	}
	return fwd.Commit()
}

func (h *Harness) hash(ctx context.Context, seq int, step Step, event *TraceEvent) error {
	opts := h.opts
	opts.Mode = store.ReadOnly
	fwd, err := store.OpenForward(h.result.StorePath, opts)
	if err != nil {
		return err
	}
	defer fwd.Close()

	in, out := h.result.Current[step.Hash], h.outputPath(seq, step.Hash)
	stats, err := h.driver.Hash(ctx, fwd, in, out, slasher.HashOptions{KeepStatic: h.scenario.KeepStatic})
	return h.finishRewrite(step.Hash, out, stats, err, event)
}

func (h *Harness) dehash(ctx context.Context, seq int, step Step, event *TraceEvent) error {
	rev, err := store.OpenReverse(h.result.StorePath, h.opts)
	if err != nil {
		return err
	}
	defer rev.Close()

	in, out := h.result.Current[step.Dehash], h.outputPath(seq, step.Dehash)
	stats, err := h.driver.Dehash(ctx, rev, in, out)
	return h.finishRewrite(step.Dehash, out, stats, err, event)
}

func (h *Harness) finishRewrite(name, out string, stats slasher.RewriteStats, err error, event *TraceEvent) error {
	event.Rewrite = &stats
	if h.rec.last != nil {
		for _, s := range h.rec.last.DynamicSymbols() {
			if s.Renamed() {
				event.Renames = append(event.Renames, Rename{Index: s.Index, From: s.Original(), To: s.Name})
			}
		}
	}
	if err != nil {
		return err
	}
	h.result.Current[name] = out
	return nil
}

func (h *Harness) outputPath(seq int, name string) string {
	return filepath.Join(h.dir, "out", fmt.Sprintf("%d-%s", seq, name))
}
