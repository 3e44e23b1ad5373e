package slasher

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/symslash/internal/fileutil"
	"github.com/roach88/symslash/internal/ident"
	"github.com/roach88/symslash/internal/object"
)

// Registrar assigns identities to names. *store.Forward implements it.
type Registrar interface {
	Lookup(name string) (ident.Identity, bool)
	Register(name string) (ident.Identity, error)
}

// Hasher maps a name to its opaque identifier, or returns it unchanged.
// *store.Forward implements it.
type Hasher interface {
	Hash(name string) string
}

// Dehasher maps an opaque identifier to its name, or returns it unchanged.
// *store.Reverse implements it.
type Dehasher interface {
	Dehash(opaque string) string
}

// Config configures a Driver.
type Config struct {
	// Open parses objects. Defaults to object.OpenBinary.
	Open object.Opener

	// Logger receives progress records. Defaults to a discarding logger.
	Logger *slog.Logger

	// RunID names the invocation. Defaults to UUIDv7Generator.
	RunID RunIDGenerator
}

// Driver runs Collect, Hash and Dehash for one invocation.
type Driver struct {
	open   object.Opener
	logger *slog.Logger
	runID  string
}

// New creates a Driver. The run ID is drawn once, here.
func New(cfg Config) *Driver {
	if cfg.Open == nil {
		cfg.Open = object.OpenBinary
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.RunID == nil {
		cfg.RunID = UUIDv7Generator{}
	}
	id := cfg.RunID.Generate()
	return &Driver{
		open:   cfg.Open,
		logger: cfg.Logger.With("run", id),
		runID:  id,
	}
}

// RunID returns the identifier attached to every log record of d.
func (d *Driver) RunID() string { return d.runID }

// CollectStats summarizes a Collect run.
type CollectStats struct {
	Objects    int `json:"objects"`
	Symbols    int `json:"symbols"`
	Registered int `json:"registered"`
	Skipped    int `json:"skipped"`
}

// RewriteStats summarizes a Hash or Dehash run.
type RewriteStats struct {
	Symbols  int  `json:"symbols"`
	Renamed  int  `json:"renamed"`
	Stripped bool `json:"stripped"`
}

// HashOptions adjusts Hash.
type HashOptions struct {
	// KeepStatic leaves the static symbol table in place.
	KeepStatic bool
}

// Collect registers the defined dynamic symbols of every object in paths.
//
// Symbols with value 0 or an empty name are skipped. Each object is parsed
// completely before any of its names are registered. The first failure
// stops the run; names registered for earlier objects stay pending in fwd
// and are discarded unless the caller commits.
func (d *Driver) Collect(ctx context.Context, fwd Registrar, paths ...string) (CollectStats, error) {
	var stats CollectStats
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		bin, err := d.open(path)
		if err != nil {
			return stats, err
		}

		var staged []string
		for _, s := range bin.DynamicSymbols() {
			stats.Symbols++
			if s.Value == 0 || s.Name == "" {
				stats.Skipped++
				continue
			}
			staged = append(staged, s.Name)
		}

		registered := 0
		for _, name := range staged {
			if _, ok := fwd.Lookup(name); ok {
				continue
			}
			if _, err := fwd.Register(name); err != nil {
				return stats, fmt.Errorf("register %q from %s: %w", name, path, err)
			}
			registered++
		}
		stats.Objects++
		stats.Registered += registered

		d.logger.Debug("object collected",
			"object", path,
			"symbols", len(staged),
			"registered", registered,
		)
	}

	d.logger.Info("collect finished",
		"objects", stats.Objects,
		"registered", stats.Registered,
		"skipped", stats.Skipped,
	)
	return stats, nil
}

// Hash writes a copy of in to out with every dynamic symbol known to fwd
// renamed to its opaque identifier. The static symbol table is stripped
// unless opts.KeepStatic is set. out gets the permission bits of in.
func (d *Driver) Hash(ctx context.Context, fwd Hasher, in, out string, opts HashOptions) (RewriteStats, error) {
	return d.rewrite(ctx, "hash", in, out, fwd.Hash, !opts.KeepStatic)
}

// Dehash writes a copy of in to out with every opaque identifier known to
// rev renamed back to its original name. out gets the permission bits of in.
func (d *Driver) Dehash(ctx context.Context, rev Dehasher, in, out string) (RewriteStats, error) {
	return d.rewrite(ctx, "dehash", in, out, rev.Dehash, false)
}

func (d *Driver) rewrite(ctx context.Context, op, in, out string, rename func(string) string, strip bool) (RewriteStats, error) {
	var stats RewriteStats
	if err := ctx.Err(); err != nil {
		return stats, err
	}

	bin, err := d.open(in)
	if err != nil {
		return stats, err
	}
	perm, err := fileutil.ExistingPerm(in, fileutil.DefaultPerm)
	if err != nil {
		return stats, fmt.Errorf("stat %s: %w", in, err)
	}

	for _, s := range bin.DynamicSymbols() {
		stats.Symbols++
		if s.Name == "" {
			continue
		}
		if name := rename(s.Name); name != s.Name {
			d.logger.Debug("symbol renamed", "op", op, "index", s.Index, "from", s.Name, "to", name)
			s.Name = name
			stats.Renamed++
		}
	}
	if strip {
		stats.Stripped = bin.StripStatic()
	}

	if err := bin.WriteFile(out, perm); err != nil {
		return stats, err
	}

	d.logger.Info(op+" finished",
		"in", in,
		"out", out,
		"renamed", stats.Renamed,
		"stripped", stats.Stripped,
	)
	return stats, nil
}
