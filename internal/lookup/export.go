package lookup

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"

	"github.com/roach88/symslash/internal/codec"
	"github.com/roach88/symslash/internal/ident"
)

// ExportRecord describes one export run.
type ExportRecord struct {
	// ID is the run ID of the invocation that exported.
	ID string `json:"id"`

	// StorePath is the store file that was exported.
	StorePath string `json:"store_path"`

	// Prefix formed the opaque identifiers.
	Prefix ident.Prefix `json:"prefix"`

	// Count is the number of entries in the export. Export fills it in.
	Count int `json:"count"`

	// Seq orders exports. Export fills it in.
	Seq int64 `json:"seq"`
}

// Export writes entries, with opaque identifiers formed from rec.Prefix, and
// records the run. It returns the number of symbols that were not in the
// table before.
//
// Exporting under an ID that is already recorded is a no-op. Rows that
// disagree with existing rows fail the whole export with ErrConflict.
func (d *DB) Export(ctx context.Context, rec ExportRecord, entries []codec.Entry) (int, error) {
	if rec.Prefix == "" {
		rec.Prefix = ident.DefaultPrefix
	}
	rec.Count = len(entries)

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("export: begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO exports (id, store_path, prefix, count)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, rec.ID, rec.StorePath, string(rec.Prefix), rec.Count)
	if err != nil {
		return 0, fmt.Errorf("export: record run: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return 0, fmt.Errorf("export: record run: %w", err)
	} else if n == 0 {
		return 0, nil
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("export: record run: %w", err)
	}

	inserted := 0
	for _, e := range entries {
		added, err := exportSymbol(ctx, tx, seq, rec.Prefix, e)
		if err != nil {
			return 0, fmt.Errorf("export: %w", err)
		}
		if added {
			inserted++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("export: commit: %w", err)
	}
	return inserted, nil
}

func exportSymbol(ctx context.Context, tx *sql.Tx, seq int64, prefix ident.Prefix, e codec.Entry) (bool, error) {
	if uint64(e.ID) > math.MaxInt64 {
		return false, fmt.Errorf("identity %d of %q exceeds the SQLite integer range", e.ID, e.Name)
	}
	id := int64(e.ID)
	opaque := prefix.Format(e.ID)

	res, err := tx.ExecContext(ctx, `
		INSERT INTO symbols (identity, name, opaque)
		VALUES (?, ?, ?)
		ON CONFLICT DO NOTHING
	`, id, e.Name, opaque)
	if err != nil {
		return false, fmt.Errorf("insert %q: %w", e.Name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert %q: %w", e.Name, err)
	}

	if n == 0 {
		var name, existing string
		err := tx.QueryRowContext(ctx,
			`SELECT name, opaque FROM symbols WHERE identity = ?`, id,
		).Scan(&name, &existing)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return false, fmt.Errorf("%w: %q or %q already belongs to another identity", ErrConflict, e.Name, opaque)
		case err != nil:
			return false, fmt.Errorf("check %q: %w", e.Name, err)
		case name != e.Name || existing != opaque:
			return false, fmt.Errorf("%w: identity %d is %q (%s), not %q (%s)", ErrConflict, e.ID, name, existing, e.Name, opaque)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO export_symbols (export_seq, identity)
		VALUES (?, ?)
		ON CONFLICT DO NOTHING
	`, seq, id); err != nil {
		return false, fmt.Errorf("link %q: %w", e.Name, err)
	}
	return n > 0, nil
}
