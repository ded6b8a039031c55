package observability

import (
	"context"
	"time"

	"statbucket/application/ports"
)

// InstrumentedStore decorates a ports.Store with latency and outcome metrics.
// It is transparent to callers and adds no behavior beyond recording.
type InstrumentedStore struct {
	inner     ports.Store
	collector *Collector
}

// NewInstrumentedStore wraps the given store with metrics collection.
func NewInstrumentedStore(inner ports.Store, collector *Collector) *InstrumentedStore {
	return &InstrumentedStore{inner: inner, collector: collector}
}

func (s *InstrumentedStore) Get(ctx context.Context, table ports.Table, namespace, key string) (ports.Item, error) {
	start := time.Now()
	item, err := s.inner.Get(ctx, table, namespace, key)
	s.collector.ObserveStore("get", string(table), err, time.Since(start))
	return item, err
}

func (s *InstrumentedStore) GetLast(ctx context.Context, table ports.Table, namespace, prefix string) (ports.Item, error) {
	start := time.Now()
	item, err := s.inner.GetLast(ctx, table, namespace, prefix)
	s.collector.ObserveStore("get_last", string(table), err, time.Since(start))
	return item, err
}

func (s *InstrumentedStore) Query(ctx context.Context, table ports.Table, q ports.Query) (*ports.QueryResult, error) {
	start := time.Now()
	result, err := s.inner.Query(ctx, table, q)
	s.collector.ObserveStore("query", string(table), err, time.Since(start))
	return result, err
}

func (s *InstrumentedStore) Put(ctx context.Context, table ports.Table, namespace, key string, item ports.Item, overwrite bool) error {
	start := time.Now()
	err := s.inner.Put(ctx, table, namespace, key, item, overwrite)
	s.collector.ObserveStore("put", string(table), err, time.Since(start))
	return err
}

func (s *InstrumentedStore) Update(ctx context.Context, table ports.Table, namespace, key string, update ports.Update) (ports.Item, error) {
	start := time.Now()
	item, err := s.inner.Update(ctx, table, namespace, key, update)
	s.collector.ObserveStore("update", string(table), err, time.Since(start))
	return item, err
}

func (s *InstrumentedStore) Clear(ctx context.Context, table ports.Table, namespace string) (int, error) {
	start := time.Now()
	count, err := s.inner.Clear(ctx, table, namespace)
	s.collector.ObserveStore("clear", string(table), err, time.Since(start))
	return count, err
}

func (s *InstrumentedStore) EnsureTables(ctx context.Context) error {
	start := time.Now()
	err := s.inner.EnsureTables(ctx)
	s.collector.ObserveStore("ensure_tables", "all", err, time.Since(start))
	return err
}
