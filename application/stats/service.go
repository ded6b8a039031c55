// Package stats implements the metrics aggregation engine: ingestion of
// nested payloads into hour buckets, range totals, period histograms,
// session tracking and raw event logs.
package stats

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"statbucket/application/ports"
	"statbucket/domain/metrics"
	"statbucket/domain/normalize"
	"statbucket/domain/timebucket"
	apperrors "statbucket/pkg/errors"
)

const (
	// DefaultLimit is the page size applied when a paginated read does not
	// name one.
	DefaultLimit = 100
	// MaxLimit bounds the page size of paginated reads.
	MaxLimit = 1000
)

// Config carries the engine policies.
type Config struct {
	// SessionTimeout is the idle gap after which a session instance is
	// considered expired and a continuation starts a new instance.
	SessionTimeout time.Duration
	// UniqueUserTimeout is the independently configured idle gap after which
	// an event counts as a new unique user.
	UniqueUserTimeout time.Duration
	// TTLDays sets record expiry, refreshed on every touching write.
	TTLDays int
	// NormalizeKeys passes metric keys and text values through the Key
	// Normalizer during flattening.
	NormalizeKeys bool
}

// DefaultConfig returns the stock policies: 30 minute session and
// unique-user timeouts, 30 day record expiry.
func DefaultConfig() Config {
	return Config{
		SessionTimeout:    30 * time.Minute,
		UniqueUserTimeout: 30 * time.Minute,
		TTLDays:           30,
	}
}

// Recorder observes engine operation outcomes.
type Recorder interface {
	ObserveOperation(operation string, err error, elapsed time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) ObserveOperation(string, error, time.Duration) {}

// Service is the stats engine orchestrator. It holds no mutable state of its
// own; all consistency is delegated to the store's atomic adds and
// conditional puts, so a single instance is safe for concurrent use.
type Service struct {
	store      ports.Store
	normalizer *normalize.Normalizer
	logger     *zap.Logger
	recorder   Recorder
	cfg        Config
}

// NewService wires the engine. Zero config fields fall back to
// DefaultConfig; logger and recorder may be nil.
func NewService(store ports.Store, normalizer *normalize.Normalizer, cfg Config, logger *zap.Logger, recorder Recorder) *Service {
	def := DefaultConfig()
	if cfg.SessionTimeout <= 0 {
		cfg.SessionTimeout = def.SessionTimeout
	}
	if cfg.UniqueUserTimeout <= 0 {
		cfg.UniqueUserTimeout = def.UniqueUserTimeout
	}
	if cfg.TTLDays <= 0 {
		cfg.TTLDays = def.TTLDays
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	if normalizer == nil {
		normalizer = normalize.New(normalize.Options{})
	}
	return &Service{
		store:      store,
		normalizer: normalizer,
		logger:     logger,
		recorder:   recorder,
		cfg:        cfg,
	}
}

// PutInput is one incoming event. A zero Timestamp means now; an empty
// Session leaves the event untracked.
type PutInput struct {
	Namespace string
	Metrics   metrics.Object
	Session   string
	Timestamp time.Time
}

// Put ingests one event: it resolves the session transition, appends the raw
// log row for tracked sessions, flattens the payload and issues one atomic
// upsert against the event's hour bucket, returning the post-update record.
//
// The store round-trips are sequential and unprotected: if a later write
// fails after an earlier one succeeded, the earlier effect stays (best-effort
// sequence, no compensation).
func (s *Service) Put(ctx context.Context, in PutInput) (rec *StatsRecord, err error) {
	start := time.Now()
	defer func() { s.recorder.ObserveOperation("put", err, time.Since(start)) }()

	if err := validateNamespace(in.Namespace); err != nil {
		return nil, err
	}

	now := in.Timestamp
	if now.IsZero() {
		now = time.Now()
	}
	now = now.UTC()

	track, err := s.trackSession(ctx, in.Namespace, in.Session, now)
	if err != nil {
		return nil, err
	}
	if track.Session != nil {
		if _, err := s.appendLog(ctx, in.Namespace, track.Session.Key, in.Metrics, now); err != nil {
			return nil, err
		}
	}

	counters := metrics.Flatten(in.Metrics, s.flattenOptions())
	update := buildUpdate(counters, track.IncrementSession, track.IncrementUniqueUser, now, s.cfg.TTLDays)
	bucketID := timebucket.Format(timebucket.HourFloor(now))

	item, err := s.store.Update(ctx, ports.TableStats, in.Namespace, bucketID, update)
	if err != nil {
		return nil, apperrors.NewStore("failed to update stats bucket", err)
	}

	s.logger.Debug("event ingested",
		zap.String("namespace", in.Namespace),
		zap.String("bucket", bucketID),
		zap.Int("counters", len(counters)),
		zap.Bool("newSession", track.IncrementSession),
		zap.Bool("newUniqueUser", track.IncrementUniqueUser),
	)

	return statsFromItem(item), nil
}

// RangeInput selects an inclusive time range within one namespace.
type RangeInput struct {
	Namespace string
	From      time.Time
	To        time.Time
}

// Summary is the aggregate over a time range. Metrics is the unflattened
// nested mapping.
type Summary struct {
	Namespace   string         `json:"namespace"`
	From        string         `json:"from"`
	To          string         `json:"to"`
	Hits        int64          `json:"hits"`
	Sessions    int64          `json:"sessions"`
	UniqueUsers int64          `json:"uniqueUsers"`
	Metrics     map[string]any `json:"metrics"`
}

// GetStats sums every tracked aggregate across the hour buckets between
// From's hour start and To's hour end, both inclusive.
func (s *Service) GetStats(ctx context.Context, in RangeInput) (sum *Summary, err error) {
	start := time.Now()
	defer func() { s.recorder.ObserveOperation("get_stats", err, time.Since(start)) }()

	if err := validateRange(in.Namespace, in.From, in.To); err != nil {
		return nil, err
	}

	from := timebucket.HourFloor(in.From)
	to := timebucket.HourCeil(in.To)

	items, err := s.queryRange(ctx, in.Namespace, from, to)
	if err != nil {
		return nil, err
	}

	var acc bucketAccumulator
	for _, it := range items {
		acc.add(it)
	}

	return &Summary{
		Namespace:   in.Namespace,
		From:        timebucket.Format(from),
		To:          timebucket.Format(to),
		Hits:        acc.hits,
		Sessions:    acc.sessions,
		UniqueUsers: acc.uniqueUsers,
		Metrics:     metrics.Unflatten(acc.flat),
	}, nil
}

// HistogramInput selects a time range and its bucketing period.
type HistogramInput struct {
	Namespace string
	From      time.Time
	To        time.Time
	Period    timebucket.Period
}

// BucketStats is one histogram entry; empty buckets render as {}.
type BucketStats struct {
	Hits        int64          `json:"hits,omitempty"`
	Sessions    int64          `json:"sessions,omitempty"`
	UniqueUsers int64          `json:"uniqueUsers,omitempty"`
	Metrics     map[string]any `json:"metrics,omitempty"`
}

// Histogram is a contiguous, gap-free series of period buckets.
type Histogram struct {
	Namespace string                  `json:"namespace"`
	From      string                  `json:"from"`
	To        string                  `json:"to"`
	Period    timebucket.Period       `json:"period"`
	Histogram map[string]*BucketStats `json:"histogram"`
}

// GetStatsHistogram groups the same range read by period bucket and emits
// one entry per period step from PeriodFloor(From) to PeriodFloor(To)
// inclusive, even for buckets with no data.
func (s *Service) GetStatsHistogram(ctx context.Context, in HistogramInput) (h *Histogram, err error) {
	start := time.Now()
	defer func() { s.recorder.ObserveOperation("get_stats_histogram", err, time.Since(start)) }()

	if err := validateRange(in.Namespace, in.From, in.To); err != nil {
		return nil, err
	}
	period, perr := timebucket.ParsePeriod(string(in.Period))
	if perr != nil {
		return nil, apperrors.NewValidation(perr.Error())
	}

	items, err := s.queryRange(ctx, in.Namespace, timebucket.HourFloor(in.From), timebucket.HourCeil(in.To))
	if err != nil {
		return nil, err
	}

	grouped := make(map[string]*bucketAccumulator)
	for _, it := range items {
		bucketTime, perr := timebucket.Parse(itemString(it, "key"))
		if perr != nil {
			s.logger.Warn("skipping stats row with malformed bucket id",
				zap.String("namespace", in.Namespace),
				zap.String("key", itemString(it, "key")),
			)
			continue
		}
		id := timebucket.Format(timebucket.PeriodFloor(bucketTime, period))
		acc := grouped[id]
		if acc == nil {
			acc = &bucketAccumulator{}
			grouped[id] = acc
		}
		acc.add(it)
	}

	series := make(map[string]*BucketStats)
	last := timebucket.PeriodFloor(in.To, period)
	for t := timebucket.PeriodFloor(in.From, period); !t.After(last); t = timebucket.Next(t, period) {
		id := timebucket.Format(t)
		entry := &BucketStats{}
		if acc, ok := grouped[id]; ok {
			entry.Hits = acc.hits
			entry.Sessions = acc.sessions
			entry.UniqueUsers = acc.uniqueUsers
			if len(acc.flat) > 0 {
				entry.Metrics = metrics.Unflatten(acc.flat)
			}
		}
		series[id] = entry
	}

	return &Histogram{
		Namespace: in.Namespace,
		From:      timebucket.Format(timebucket.HourFloor(in.From)),
		To:        timebucket.Format(timebucket.HourCeil(in.To)),
		Period:    period,
		Histogram: series,
	}, nil
}

// Clear deletes every record for the namespace across all owned tables and
// returns the total deleted count.
func (s *Service) Clear(ctx context.Context, namespace string) (count int, err error) {
	start := time.Now()
	defer func() { s.recorder.ObserveOperation("clear", err, time.Since(start)) }()

	if err := validateNamespace(namespace); err != nil {
		return 0, err
	}

	total := 0
	for _, table := range ports.Tables() {
		n, err := s.store.Clear(ctx, table, namespace)
		if err != nil {
			return total, apperrors.NewStore("failed to clear "+string(table), err)
		}
		total += n
	}

	s.logger.Info("namespace cleared",
		zap.String("namespace", namespace),
		zap.Int("count", total),
	)
	return total, nil
}

// Ping verifies store reachability with a cheap point read.
func (s *Service) Ping(ctx context.Context) error {
	_, err := s.store.Get(ctx, ports.TableStats, "health", "probe")
	return err
}

// queryRange pages through every stats row whose bucket id falls in
// [from, to].
func (s *Service) queryRange(ctx context.Context, namespace string, from, to time.Time) ([]ports.Item, error) {
	var items []ports.Item
	q := ports.Query{
		Namespace: namespace,
		RangeFrom: timebucket.Format(from),
		RangeTo:   timebucket.Format(to),
	}
	for {
		res, err := s.store.Query(ctx, ports.TableStats, q)
		if err != nil {
			return nil, apperrors.NewStore("failed to query stats range", err)
		}
		items = append(items, res.Items...)
		if res.NextKey == "" {
			return items, nil
		}
		q.StartKey = res.NextKey
	}
}

// bucketAccumulator folds stats rows into family totals. Numeric attributes
// outside the tracked families (ttl and friends) are ignored.
type bucketAccumulator struct {
	hits        int64
	sessions    int64
	uniqueUsers int64
	flat        map[string]float64
}

func (a *bucketAccumulator) add(it ports.Item) {
	for name, v := range it {
		f, ok := v.(float64)
		if !ok {
			continue
		}
		switch {
		case name == attrHits:
			a.hits += int64(f)
		case name == attrSessions:
			a.sessions += int64(f)
		case name == attrUniqueUsers:
			a.uniqueUsers += int64(f)
		case strings.HasPrefix(name, metricPrefix):
			if a.flat == nil {
				a.flat = make(map[string]float64)
			}
			a.flat[strings.TrimPrefix(name, metricPrefix)] += f
		}
	}
}

func (s *Service) flattenOptions() metrics.FlattenOptions {
	return metrics.FlattenOptions{
		Normalize:  s.cfg.NormalizeKeys,
		Normalizer: s.normalizer,
	}
}

func validateNamespace(namespace string) error {
	if strings.TrimSpace(namespace) == "" {
		return apperrors.NewValidation("namespace is required")
	}
	return nil
}

func validateRange(namespace string, from, to time.Time) error {
	if err := validateNamespace(namespace); err != nil {
		return err
	}
	if from.IsZero() || to.IsZero() {
		return apperrors.NewValidation("from and to are required")
	}
	if from.After(to) {
		return apperrors.NewValidation("from must not be after to")
	}
	return nil
}

func normalizeLimit(limit int) (int32, error) {
	if limit == 0 {
		return DefaultLimit, nil
	}
	if limit < 1 || limit > MaxLimit {
		return 0, apperrors.NewValidationf("limit must be between 1 and %d", MaxLimit)
	}
	return int32(limit), nil
}
