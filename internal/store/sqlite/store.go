// Package sqlite implements the key-value store on an embedded SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"example.com/parkactivity/internal/store"
)

// Store persists items as JSON text in kv_items(pk, sk, data).
type Store struct {
	db *sql.DB
}

var _ store.Store = (*Store)(nil)

// NewStore opens (creating if needed) the database at path.
func NewStore(path string) (*Store, error) {
	if path == "" {
		path = "activity.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer at a time; conditional updates stay single statements.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS kv_items (
		pk TEXT NOT NULL,
		sk TEXT NOT NULL,
		data TEXT NOT NULL,
		PRIMARY KEY (pk, sk)
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create kv_items table: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// GetOne implements store.Store.
func (s *Store) GetOne(ctx context.Context, key store.Key) (store.Item, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM kv_items WHERE pk = ? AND sk = ?`, key.PK, key.SK).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get item: %w", err)
	}
	return decodeItem(raw)
}

// Query implements store.Store.
func (s *Store) Query(ctx context.Context, q store.Query) ([]store.Item, error) {
	args := []any{q.PK}
	query := `SELECT data FROM kv_items WHERE pk = ?`
	if q.SKFrom != "" {
		query += ` AND sk >= ?`
		args = append(args, q.SKFrom)
	}
	if q.SKTo != "" {
		query += ` AND sk <= ?`
		args = append(args, q.SKTo)
	}
	if q.SKPrefix != "" {
		query += ` AND sk LIKE ? ESCAPE '\'`
		args = append(args, escapeLike(q.SKPrefix)+"%")
	}
	query += ` ORDER BY sk`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	defer func() { _ = rows.Close() }()

	results := make([]store.Item, 0)
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		item, err := decodeItem(raw)
		if err != nil {
			return nil, err
		}
		results = append(results, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// ConditionalUpdate implements store.Store with a single UPDATE ... RETURNING.
func (s *Store) ConditionalUpdate(ctx context.Context, key store.Key, set map[string]any, cond store.Condition) (store.UpdateResult, error) {
	if err := key.Validate(); err != nil {
		return store.UpdateResult{}, err
	}
	patch := make(map[string]any, len(set))
	for k, v := range set {
		if k == store.AttrPK || k == store.AttrSK {
			continue
		}
		patch[k] = v
	}
	body, err := json.Marshal(patch)
	if err != nil {
		return store.UpdateResult{}, err
	}

	const stmt = `UPDATE kv_items SET data = json_patch(data, ?)
		WHERE pk = ? AND sk = ? AND json_extract(data, ?) IS NOT ?
		RETURNING data`

	var raw string
	err = s.db.QueryRowContext(ctx, stmt, string(body), key.PK, key.SK, jsonPath(cond.Attribute), sqlValue(cond.NotEqual)).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.UpdateResult{}, nil
		}
		return store.UpdateResult{}, fmt.Errorf("conditional update: %w", err)
	}
	item, err := decodeItem(raw)
	if err != nil {
		return store.UpdateResult{}, err
	}
	return store.UpdateResult{Applied: true, Item: item}, nil
}

// Put implements store.Store.
func (s *Store) Put(ctx context.Context, item store.Item) error {
	key := item.Key()
	if err := key.Validate(); err != nil {
		return err
	}
	body, err := json.Marshal(item)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `INSERT INTO kv_items (pk, sk, data) VALUES (?, ?, ?)
		ON CONFLICT(pk, sk) DO UPDATE SET data = excluded.data`, key.PK, key.SK, string(body)); err != nil {
		return fmt.Errorf("put item: %w", err)
	}
	return nil
}

func decodeItem(raw string) (store.Item, error) {
	var item store.Item
	if err := json.Unmarshal([]byte(raw), &item); err != nil {
		return nil, fmt.Errorf("decode item: %w", err)
	}
	return item, nil
}

func jsonPath(attr string) string {
	return `$."` + strings.ReplaceAll(attr, `"`, `\"`) + `"`
}

// sqlValue converts a condition value to what json_extract yields for it;
// JSON booleans come back from SQLite as 0/1.
func sqlValue(v any) any {
	switch val := v.(type) {
	case bool:
		if val {
			return 1
		}
		return 0
	default:
		return val
	}
}

func escapeLike(value string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(value)
}
