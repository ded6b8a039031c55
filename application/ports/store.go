// Package ports defines the contracts between the stats engine and its
// storage adapters.
package ports

import (
	"context"
	"errors"
)

// Table names one logical record family owned by the engine.
type Table string

const (
	TableStats    Table = "stats"
	TableSessions Table = "sessions"
	TableLogs     Table = "logs"
)

// Tables lists every owned record family.
func Tables() []Table {
	return []Table{TableStats, TableSessions, TableLogs}
}

// Shared attribute conventions across adapters.
const (
	AttrCreatedAt = "createdAt"
	AttrUpdatedAt = "updatedAt"
	AttrTTL       = "ttl"
)

// ErrConditionalFailed reports a conditional write that found an existing
// row. Adapters translate their native conditional-check failures to it.
var ErrConditionalFailed = errors.New("conditional write failed")

// Item is one stored row: attribute name to string, float64 number or
// nested document (map[string]any).
type Item map[string]any

// Update is a store-neutral atomic upsert instruction. Set assigns
// absolutely, SetIfNotExists assigns only on first write, Add increments
// numeric attributes atomically (upserting from zero when the row or the
// attribute is absent). The store applies it without reading first.
type Update struct {
	Set            map[string]any
	SetIfNotExists map[string]any
	Add            map[string]float64
}

// Query describes a range read within one namespace partition. Sort-key
// bounds are inclusive; Prefix and the Range bounds are mutually exclusive.
type Query struct {
	Namespace   string
	Prefix      string // begins_with on the sort key
	RangeFrom   string // inclusive sort-key lower bound
	RangeTo     string // inclusive sort-key upper bound
	CreatedFrom string // optional createdAt filter lower bound
	CreatedTo   string // optional createdAt filter upper bound
	Limit       int32  // page size; 0 means the adapter default
	Desc        bool   // descending sort-key order
	StartKey    string // opaque cursor from a previous page
}

// QueryResult is one page of items plus the cursor resuming after it.
type QueryResult struct {
	Items   []Item
	Count   int
	NextKey string
}

// Store is the partition+sort-keyed backing store contract. Numeric adds are
// atomic; missing rows read as (nil, nil), not errors. EnsureTables is the
// explicit provisioning step callers await before first use.
type Store interface {
	Get(ctx context.Context, table Table, namespace, key string) (Item, error)
	GetLast(ctx context.Context, table Table, namespace, prefix string) (Item, error)
	Query(ctx context.Context, table Table, q Query) (*QueryResult, error)
	Put(ctx context.Context, table Table, namespace, key string, item Item, overwrite bool) error
	Update(ctx context.Context, table Table, namespace, key string, update Update) (Item, error)
	Clear(ctx context.Context, table Table, namespace string) (int, error)
	EnsureTables(ctx context.Context) error
}
