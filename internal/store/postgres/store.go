// Package postgres implements the key-value store on a single Postgres table.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/parkactivity/internal/store"
)

// Store persists items as JSONB documents in kv_items(pk, sk, data).
type Store struct {
	pool *pgxpool.Pool
}

var _ store.Store = (*Store)(nil)

// NewStore constructs a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// GetOne implements store.Store.
func (s *Store) GetOne(ctx context.Context, key store.Key) (store.Item, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}

	var raw []byte
	err := s.pool.QueryRow(ctx, `SELECT data FROM kv_items WHERE pk=$1 AND sk=$2`, key.PK, key.SK).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get item: %w", err)
	}
	return decodeItem(raw)
}

// Query implements store.Store.
func (s *Store) Query(ctx context.Context, q store.Query) ([]store.Item, error) {
	args := []any{q.PK}
	query := `SELECT data FROM kv_items WHERE pk=$1`

	if q.SKFrom != "" {
		args = append(args, q.SKFrom)
		query += ` AND sk >= $` + strconv.Itoa(len(args))
	}
	if q.SKTo != "" {
		args = append(args, q.SKTo)
		query += ` AND sk <= $` + strconv.Itoa(len(args))
	}
	if q.SKPrefix != "" {
		args = append(args, escapeLike(q.SKPrefix)+"%")
		query += ` AND sk LIKE $` + strconv.Itoa(len(args))
	}
	query += ` ORDER BY sk`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	defer rows.Close()

	results := make([]store.Item, 0)
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
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

// ConditionalUpdate implements store.Store with a single UPDATE ... RETURNING,
// so the condition is evaluated by Postgres under the row lock.
func (s *Store) ConditionalUpdate(ctx context.Context, key store.Key, set map[string]any, cond store.Condition) (store.UpdateResult, error) {
	if err := key.Validate(); err != nil {
		return store.UpdateResult{}, err
	}

	patch, err := json.Marshal(withoutKeyAttrs(set))
	if err != nil {
		return store.UpdateResult{}, err
	}
	expected, err := json.Marshal(cond.NotEqual)
	if err != nil {
		return store.UpdateResult{}, err
	}

	const stmt = `UPDATE kv_items SET data = data || $3::jsonb
        WHERE pk=$1 AND sk=$2 AND (data -> $4::text) IS DISTINCT FROM $5::jsonb
        RETURNING data`

	var raw []byte
	err = s.pool.QueryRow(ctx, stmt, key.PK, key.SK, string(patch), cond.Attribute, string(expected)).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
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

	const stmt = `INSERT INTO kv_items (pk, sk, data) VALUES ($1,$2,$3::jsonb)
        ON CONFLICT (pk, sk) DO UPDATE SET data = EXCLUDED.data`

	if _, err := s.pool.Exec(ctx, stmt, key.PK, key.SK, string(body)); err != nil {
		return fmt.Errorf("put item: %w", err)
	}
	return nil
}

func decodeItem(raw []byte) (store.Item, error) {
	var item store.Item
	if err := json.Unmarshal(raw, &item); err != nil {
		return nil, fmt.Errorf("decode item: %w", err)
	}
	return item, nil
}

func withoutKeyAttrs(set map[string]any) map[string]any {
	out := make(map[string]any, len(set))
	for k, v := range set {
		if k == store.AttrPK || k == store.AttrSK {
			continue
		}
		out[k] = v
	}
	return out
}

func escapeLike(value string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(value)
}
