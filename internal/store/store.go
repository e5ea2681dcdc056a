// Package store defines the key-value contract shared by every persistence backend.
//
// Items live in a single logical table addressed by a partition key (pk) and a
// sort key (sk). Backends must apply ConditionalUpdate atomically: the condition
// is evaluated by the store itself, never by a read followed by a write in the
// caller.
package store

import (
	"context"
	"errors"
	"reflect"
	"strings"
)

// Attribute names reserved for the composite key.
const (
	AttrPK = "pk"
	AttrSK = "sk"
)

// ErrInvalidKey is returned when an item or key is missing pk or sk.
var ErrInvalidKey = errors.New("store: pk and sk are required")

// Key addresses a single item.
type Key struct {
	PK string
	SK string
}

// Validate reports whether both key parts are present.
func (k Key) Validate() error {
	if strings.TrimSpace(k.PK) == "" || strings.TrimSpace(k.SK) == "" {
		return ErrInvalidKey
	}
	return nil
}

// Item is a schemaless document. It always carries its pk and sk attributes.
type Item map[string]any

// Key extracts the composite key from the item.
func (i Item) Key() Key {
	pk, _ := i[AttrPK].(string)
	sk, _ := i[AttrSK].(string)
	return Key{PK: pk, SK: sk}
}

// Clone returns a shallow copy of the item.
func (i Item) Clone() Item {
	if i == nil {
		return nil
	}
	out := make(Item, len(i))
	for k, v := range i {
		out[k] = v
	}
	return out
}

// Query selects items within one partition.
// SKFrom/SKTo bound the sort key inclusively when set; SKPrefix restricts the
// sort key to a prefix. Results are ordered by sort key ascending.
type Query struct {
	PK       string
	SKFrom   string
	SKTo     string
	SKPrefix string
}

// MatchesSK reports whether sk satisfies the sort key conditions of q.
func (q Query) MatchesSK(sk string) bool {
	if q.SKFrom != "" && sk < q.SKFrom {
		return false
	}
	if q.SKTo != "" && sk > q.SKTo {
		return false
	}
	if q.SKPrefix != "" && !strings.HasPrefix(sk, q.SKPrefix) {
		return false
	}
	return true
}

// Condition is the precondition of a conditional update: the stored value of
// Attribute must differ from NotEqual. A missing attribute differs from any value.
// The item itself must exist.
type Condition struct {
	Attribute string
	NotEqual  any
}

// Holds evaluates the condition against a stored item.
func (c Condition) Holds(item Item) bool {
	if item == nil {
		return false
	}
	current, ok := item[c.Attribute]
	if !ok {
		return true
	}
	return !reflect.DeepEqual(current, c.NotEqual)
}

// UpdateResult is the outcome of a conditional update. Applied is false when
// the precondition did not hold; Item then is nil.
type UpdateResult struct {
	Applied bool
	Item    Item
}

// Store is the persistence contract consumed by the domain.
type Store interface {
	// GetOne returns the item for key, or nil when it does not exist.
	GetOne(ctx context.Context, key Key) (Item, error)
	Query(ctx context.Context, q Query) ([]Item, error)
	// ConditionalUpdate merges set into the stored item when cond holds.
	ConditionalUpdate(ctx context.Context, key Key, set map[string]any, cond Condition) (UpdateResult, error)
	// Put overwrites the item unconditionally.
	Put(ctx context.Context, item Item) error
}
