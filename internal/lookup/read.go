package lookup

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/symslash/internal/ident"
)

// Symbol is one row of the lookup table.
type Symbol struct {
	Identity ident.Identity `json:"identity"`
	Name     string         `json:"name"`
	Opaque   string         `json:"opaque"`
}

// Resolve finds the row whose opaque identifier or name is key. An opaque
// identifier match wins over a name match.
func (d *DB) Resolve(ctx context.Context, key string) (Symbol, bool, error) {
	var (
		s  Symbol
		id int64
	)
	err := d.db.QueryRowContext(ctx, `
		SELECT identity, name, opaque
		FROM symbols
		WHERE opaque = ? OR name = ?
		ORDER BY opaque = ? DESC
		LIMIT 1
	`, key, key, key).Scan(&id, &s.Name, &s.Opaque)
	if errors.Is(err, sql.ErrNoRows) {
		return Symbol{}, false, nil
	}
	if err != nil {
		return Symbol{}, false, fmt.Errorf("resolve %q: %w", key, err)
	}
	s.Identity = ident.Identity(id)
	return s, true, nil
}

// Count returns the number of symbols in the table.
func (d *DB) Count(ctx context.Context) (int, error) {
	var n int
	if err := d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM symbols`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count symbols: %w", err)
	}
	return n, nil
}

// Symbols returns every row ordered by identity.
//
// Returns an empty slice (not nil) for an empty table.
func (d *DB) Symbols(ctx context.Context) ([]Symbol, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT identity, name, opaque
		FROM symbols
		ORDER BY identity ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query symbols: %w", err)
	}
	defer rows.Close()

	syms := []Symbol{}
	for rows.Next() {
		var (
			s  Symbol
			id int64
		)
		if err := rows.Scan(&id, &s.Name, &s.Opaque); err != nil {
			return nil, fmt.Errorf("scan symbol: %w", err)
		}
		s.Identity = ident.Identity(id)
		syms = append(syms, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate symbols: %w", err)
	}
	return syms, nil
}

// Exports returns the recorded export runs, oldest first.
//
// Returns an empty slice (not nil) when nothing was exported.
func (d *DB) Exports(ctx context.Context) ([]ExportRecord, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT seq, id, store_path, prefix, count
		FROM exports
		ORDER BY seq ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query exports: %w", err)
	}
	defer rows.Close()

	records := []ExportRecord{}
	for rows.Next() {
		var (
			r      ExportRecord
			prefix string
		)
		if err := rows.Scan(&r.Seq, &r.ID, &r.StorePath, &prefix, &r.Count); err != nil {
			return nil, fmt.Errorf("scan export: %w", err)
		}
		r.Prefix = ident.Prefix(prefix)
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate exports: %w", err)
	}
	return records, nil
}
