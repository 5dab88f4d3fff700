package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wesm/mailsaver/internal/model"
)

// itemColumns maps queryable item fields to their columns.
var itemColumns = map[string]string{
	"key":        "key",
	"id":         "id",
	"user_id":    "user_id",
	"address":    "address",
	"engine":     "engine",
	"kind":       "kind",
	"search_key": "search_key",
}

// IsQueryableField reports whether field may be used in item filters.
func IsQueryableField(field string) bool {
	_, ok := itemColumns[field]
	return ok
}

// InsertItem stores it under userID and returns the new storage key.
// Returns ErrConflict if the user already saved an item with the same id.
func (s *Store) InsertItem(ctx context.Context, userID string, it *model.Item) (string, error) {
	key := uuid.NewString()
	created := it.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO items (key, id, user_id, address, source, created_at, engine, search_key, comment, kind)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, key, it.ID, userID, it.Address, it.Source, created.UTC(),
		it.Engine.String(), it.SearchKey, it.Comment, it.Kind.String())
	if err != nil {
		if isUniqueViolation(err) {
			return "", ErrConflict
		}
		return "", fmt.Errorf("insert item: %w", err)
	}
	return key, nil
}

// QueryItems returns userID's items whose field equals value, oldest first.
// Results are always scoped to userID, whatever field is filtered on.
func (s *Store) QueryItems(ctx context.Context, userID, field, value string) ([]*model.Item, error) {
	col, ok := itemColumns[field]
	if !ok {
		return nil, fmt.Errorf("field %q is not queryable", field)
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT key, id, user_id, address, source, created_at, engine, search_key, comment, kind
		FROM items
		WHERE user_id = ? AND `+col+` = ?
		ORDER BY stored_at, rowid
	`, userID, value)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	defer rows.Close()

	items := []*model.Item{}
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate items: %w", err)
	}
	return items, nil
}

func scanItem(rows *sql.Rows) (*model.Item, error) {
	var it model.Item
	var created sql.NullTime
	var engine, kind string
	if err := rows.Scan(&it.Key, &it.ID, &it.UserID, &it.Address, &it.Source, &created,
		&engine, &it.SearchKey, &it.Comment, &kind); err != nil {
		return nil, fmt.Errorf("scan item: %w", err)
	}
	it.CreatedAt = created.Time
	if err := it.Engine.UnmarshalText([]byte(engine)); err != nil {
		return nil, fmt.Errorf("item %s: %w", it.Key, err)
	}
	if err := it.Kind.UnmarshalText([]byte(kind)); err != nil {
		return nil, fmt.Errorf("item %s: %w", it.Key, err)
	}
	return &it, nil
}

// CountItems counts userID's items whose field equals value.
func (s *Store) CountItems(ctx context.Context, userID, field, value string) (int, error) {
	col, ok := itemColumns[field]
	if !ok {
		return 0, fmt.Errorf("field %q is not queryable", field)
	}
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM items WHERE user_id = ? AND `+col+` = ?`, userID, value,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count items: %w", err)
	}
	return n, nil
}

// DeleteItem removes userID's item stored under key. Returns ErrNotFound if
// no such item exists for that user.
func (s *Store) DeleteItem(ctx context.Context, userID, key string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM items WHERE user_id = ? AND key = ?`, userID, key)
	if err != nil {
		return fmt.Errorf("delete item: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete item: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
