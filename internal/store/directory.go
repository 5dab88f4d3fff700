package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/wesm/mailsaver/internal/model"
)

// DirectoryEntry is an address the development server can return from a
// search.
type DirectoryEntry struct {
	Address   string
	Source    string
	Engine    model.Engine
	Keywords  string
	CreatedAt time.Time
}

// AddDirectoryEntries inserts entries, replacing existing rows for the same
// address and engine.
func (s *Store) AddDirectoryEntries(ctx context.Context, entries []DirectoryEntry) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO directory (address, source, engine, keywords) VALUES (?, ?, ?, ?)
			ON CONFLICT(address, engine) DO UPDATE SET source = excluded.source, keywords = excluded.keywords
		`)
		if err != nil {
			return fmt.Errorf("prepare directory insert: %w", err)
		}
		defer stmt.Close()
		for _, e := range entries {
			if _, err := stmt.ExecContext(ctx, e.Address, e.Source, e.Engine.String(), strings.ToLower(e.Keywords)); err != nil {
				return fmt.Errorf("insert directory entry %s: %w", e.Address, err)
			}
		}
		return nil
	})
}

// escapeLike escapes LIKE wildcards in s.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// SearchDirectory returns up to limit entries for engine whose keywords or
// address contain key.
func (s *Store) SearchDirectory(ctx context.Context, key string, engine model.Engine, limit int) ([]DirectoryEntry, error) {
	pattern := "%" + escapeLike(strings.ToLower(key)) + "%"
	rows, err := s.db.QueryContext(ctx, `
		SELECT address, source, engine, keywords, created_at
		FROM directory
		WHERE engine = ? AND (keywords LIKE ? ESCAPE '\' OR lower(address) LIKE ? ESCAPE '\')
		ORDER BY id
		LIMIT ?
	`, engine.String(), pattern, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("search directory: %w", err)
	}
	defer rows.Close()

	var out []DirectoryEntry
	for rows.Next() {
		var e DirectoryEntry
		var eng string
		var created sql.NullTime
		if err := rows.Scan(&e.Address, &e.Source, &eng, &e.Keywords, &created); err != nil {
			return nil, fmt.Errorf("scan directory entry: %w", err)
		}
		if err := e.Engine.UnmarshalText([]byte(eng)); err != nil {
			return nil, fmt.Errorf("directory entry %s: %w", e.Address, err)
		}
		e.CreatedAt = created.Time
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate directory: %w", err)
	}
	return out, nil
}
