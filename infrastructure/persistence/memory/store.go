// Package memory provides an in-memory implementation of the store contract
// for unit tests and local development. It mirrors the semantics the engine
// relies on: atomic numeric adds, conditional puts, lexicographic sort-key
// order and cursor pagination.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"statbucket/application/ports"
)

// Store is an in-memory ports.Store. Rows live under table -> namespace ->
// sort key. Safe for concurrent use.
type Store struct {
	mu   sync.RWMutex
	rows map[ports.Table]map[string]map[string]ports.Item

	// For testing error scenarios
	shouldFailOn map[string]error
}

// New creates an empty in-memory store.
func New() *Store {
	s := &Store{
		rows:         make(map[ports.Table]map[string]map[string]ports.Item),
		shouldFailOn: make(map[string]error),
	}
	for _, table := range ports.Tables() {
		s.rows[table] = make(map[string]map[string]ports.Item)
	}
	return s
}

// SetError configures the store to return err from the named method.
func (s *Store) SetError(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shouldFailOn[method] = err
}

// ClearErrors removes all configured errors.
func (s *Store) ClearErrors() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shouldFailOn = make(map[string]error)
}

func (s *Store) checkError(method string) error {
	if err, exists := s.shouldFailOn[method]; exists {
		return err
	}
	return nil
}

// Len reports the number of rows stored in a table across all namespaces.
func (s *Store) Len(table ports.Table) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, partition := range s.rows[table] {
		n += len(partition)
	}
	return n
}

func (s *Store) Get(ctx context.Context, table ports.Table, namespace, key string) (ports.Item, error) {
	if err := s.checkError("Get"); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	item, exists := s.rows[table][namespace][key]
	if !exists {
		return nil, nil
	}
	return copyItem(item, namespace, key), nil
}

func (s *Store) GetLast(ctx context.Context, table ports.Table, namespace, prefix string) (ports.Item, error) {
	if err := s.checkError("GetLast"); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	last := ""
	for key := range s.rows[table][namespace] {
		if strings.HasPrefix(key, prefix) && key > last {
			last = key
		}
	}
	if last == "" {
		return nil, nil
	}
	return copyItem(s.rows[table][namespace][last], namespace, last), nil
}

func (s *Store) Query(ctx context.Context, table ports.Table, q ports.Query) (*ports.QueryResult, error) {
	if err := s.checkError("Query"); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	partition := s.rows[table][q.Namespace]

	keys := make([]string, 0, len(partition))
	for key, item := range partition {
		if q.Prefix != "" && !strings.HasPrefix(key, q.Prefix) {
			continue
		}
		if q.RangeFrom != "" && key < q.RangeFrom {
			continue
		}
		if q.RangeTo != "" && key > q.RangeTo {
			continue
		}
		if !matchesCreated(item, q.CreatedFrom, q.CreatedTo) {
			continue
		}
		keys = append(keys, key)
	}

	sort.Strings(keys)
	if q.Desc {
		for i, j := 0, len(keys)-1; i < j; i, j = i+1, j-1 {
			keys[i], keys[j] = keys[j], keys[i]
		}
	}

	// Resume strictly after the cursor key in the current order.
	if q.StartKey != "" {
		resume := len(keys)
		for i, key := range keys {
			if (!q.Desc && key > q.StartKey) || (q.Desc && key < q.StartKey) {
				resume = i
				break
			}
		}
		keys = keys[resume:]
	}

	next := ""
	if q.Limit > 0 && len(keys) > int(q.Limit) {
		keys = keys[:q.Limit]
		next = keys[len(keys)-1]
	}

	items := make([]ports.Item, 0, len(keys))
	for _, key := range keys {
		items = append(items, copyItem(partition[key], q.Namespace, key))
	}
	return &ports.QueryResult{Items: items, Count: len(items), NextKey: next}, nil
}

func (s *Store) Put(ctx context.Context, table ports.Table, namespace, key string, item ports.Item, overwrite bool) error {
	if err := s.checkError("Put"); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	partition := s.rows[table][namespace]
	if partition == nil {
		partition = make(map[string]ports.Item)
		s.rows[table][namespace] = partition
	}
	if _, exists := partition[key]; exists && !overwrite {
		return ports.ErrConditionalFailed
	}
	partition[key] = copyItem(item, "", "")
	return nil
}

func (s *Store) Update(ctx context.Context, table ports.Table, namespace, key string, update ports.Update) (ports.Item, error) {
	if err := s.checkError("Update"); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	partition := s.rows[table][namespace]
	if partition == nil {
		partition = make(map[string]ports.Item)
		s.rows[table][namespace] = partition
	}
	item := partition[key]
	if item == nil {
		item = make(ports.Item)
		partition[key] = item
	}

	for name, v := range update.Set {
		item[name] = normalizeValue(v)
	}
	for name, v := range update.SetIfNotExists {
		if _, exists := item[name]; !exists {
			item[name] = normalizeValue(v)
		}
	}
	for name, delta := range update.Add {
		current, _ := item[name].(float64)
		item[name] = current + delta
	}

	return copyItem(item, namespace, key), nil
}

func (s *Store) Clear(ctx context.Context, table ports.Table, namespace string) (int, error) {
	if err := s.checkError("Clear"); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	count := len(s.rows[table][namespace])
	delete(s.rows[table], namespace)
	return count, nil
}

func (s *Store) EnsureTables(ctx context.Context) error {
	if err := s.checkError("EnsureTables"); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, table := range ports.Tables() {
		if s.rows[table] == nil {
			s.rows[table] = make(map[string]map[string]ports.Item)
		}
	}
	return nil
}

func matchesCreated(item ports.Item, from, to string) bool {
	if from == "" && to == "" {
		return true
	}
	created, ok := item[ports.AttrCreatedAt].(string)
	if !ok {
		return false
	}
	if from != "" && created < from {
		return false
	}
	if to != "" && created > to {
		return false
	}
	return true
}

// copyItem returns a one-level copy, decorated with the logical namespace
// and key when given, to prevent callers mutating stored rows.
func copyItem(item ports.Item, namespace, key string) ports.Item {
	out := make(ports.Item, len(item)+2)
	for name, v := range item {
		out[name] = v
	}
	if namespace != "" {
		out["namespace"] = namespace
	}
	if key != "" {
		out["key"] = key
	}
	return out
}

// normalizeValue widens integer writes to float64 so numeric reads are
// uniform across adapters.
func normalizeValue(v any) any {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case float32:
		return float64(n)
	default:
		return v
	}
}
