package stats

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"statbucket/application/ports"
	"statbucket/domain/metrics"
	"statbucket/domain/timebucket"
	"statbucket/infrastructure/persistence/memory"
	apperrors "statbucket/pkg/errors"
)

type captureRecorder struct {
	operations []string
	errs       []error
}

func (r *captureRecorder) ObserveOperation(operation string, err error, _ time.Duration) {
	r.operations = append(r.operations, operation)
	r.errs = append(r.errs, err)
}

func samplePayload() metrics.Object {
	return metrics.Object{
		"clicks": metrics.Number(10),
		"browser": metrics.Nest(metrics.Object{
			"name": metrics.Text("Firefox"),
		}),
	}
}

func TestPut(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 10, 15, 0, 0, time.UTC)

	t.Run("RejectsBlankNamespaceBeforeStoreAccess", func(t *testing.T) {
		store := memory.New()
		for _, method := range []string{"Get", "GetLast", "Query", "Put", "Update", "Clear"} {
			store.SetError(method, errors.New("must not be called"))
		}
		svc := newTestService(store, DefaultConfig())

		_, err := svc.Put(ctx, PutInput{Namespace: "   ", Metrics: samplePayload()})
		require.Error(t, err)
		assert.True(t, apperrors.IsValidation(err))
	})

	t.Run("AnonymousEvent", func(t *testing.T) {
		store := memory.New()
		svc := newTestService(store, DefaultConfig())

		rec, err := svc.Put(ctx, PutInput{Namespace: "app", Metrics: samplePayload(), Timestamp: base})
		require.NoError(t, err)

		assert.Equal(t, "app", rec.Namespace)
		assert.Equal(t, "2024-01-01T10:00:00.000Z", rec.BucketID)
		assert.Equal(t, int64(1), rec.Hits)
		assert.Equal(t, int64(0), rec.Sessions)
		assert.Equal(t, int64(0), rec.UniqueUsers)
		assert.Equal(t, float64(10), rec.Metrics["clicks"])
		assert.Equal(t, float64(1), rec.Metrics["browser.name.Firefox"])

		assert.Equal(t, 0, store.Len(ports.TableSessions))
		assert.Equal(t, 0, store.Len(ports.TableLogs))
	})

	t.Run("RepeatedPutsAccumulate", func(t *testing.T) {
		store := memory.New()
		svc := newTestService(store, DefaultConfig())

		_, err := svc.Put(ctx, PutInput{Namespace: "app", Metrics: samplePayload(), Timestamp: base})
		require.NoError(t, err)
		rec, err := svc.Put(ctx, PutInput{Namespace: "app", Metrics: samplePayload(), Timestamp: base.Add(time.Minute)})
		require.NoError(t, err)

		assert.Equal(t, int64(2), rec.Hits)
		assert.Equal(t, float64(20), rec.Metrics["clicks"])
		assert.Equal(t, float64(2), rec.Metrics["browser.name.Firefox"])
		assert.Equal(t, 1, store.Len(ports.TableStats), "same hour lands in the same bucket")
	})

	t.Run("TrackedSessionWritesLogAndCounters", func(t *testing.T) {
		store := memory.New()
		svc := newTestService(store, DefaultConfig())

		rec, err := svc.Put(ctx, PutInput{Namespace: "app", Metrics: samplePayload(), Session: "sess-1", Timestamp: base})
		require.NoError(t, err)
		assert.Equal(t, int64(1), rec.Sessions)
		assert.Equal(t, int64(1), rec.UniqueUsers)

		rec, err = svc.Put(ctx, PutInput{Namespace: "app", Metrics: samplePayload(), Session: "sess-1", Timestamp: base.Add(5 * time.Minute)})
		require.NoError(t, err)
		assert.Equal(t, int64(2), rec.Hits)
		assert.Equal(t, int64(1), rec.Sessions, "continued session adds zero")
		assert.Equal(t, int64(1), rec.UniqueUsers)

		assert.Equal(t, 1, store.Len(ports.TableSessions))
		assert.Equal(t, 2, store.Len(ports.TableLogs))
	})

	t.Run("NormalizesKeysWhenConfigured", func(t *testing.T) {
		store := memory.New()
		cfg := DefaultConfig()
		cfg.NormalizeKeys = true
		svc := newTestService(store, cfg)

		payload := metrics.Object{
			"Response Time": metrics.Number(120),
			"browser":       metrics.Nest(metrics.Object{"name": metrics.Text("Firefox Mobíle")}),
		}
		rec, err := svc.Put(ctx, PutInput{Namespace: "app", Metrics: payload, Timestamp: base})
		require.NoError(t, err)
		assert.Equal(t, float64(120), rec.Metrics["response-time"])
		assert.Equal(t, float64(1), rec.Metrics["browser.name.firefox-mobile"])
	})

	t.Run("StoreFailurePropagatesUnretried", func(t *testing.T) {
		store := memory.New()
		svc := newTestService(store, DefaultConfig())
		store.SetError("Update", errors.New("throttled"))

		_, err := svc.Put(ctx, PutInput{Namespace: "app", Metrics: samplePayload(), Timestamp: base})
		require.Error(t, err)
		assert.True(t, apperrors.IsStore(err))
	})

	t.Run("ObservesOutcome", func(t *testing.T) {
		store := memory.New()
		recorder := &captureRecorder{}
		svc := NewService(store, nil, DefaultConfig(), nil, recorder)

		_, err := svc.Put(ctx, PutInput{Namespace: "app", Metrics: samplePayload(), Timestamp: base})
		require.NoError(t, err)
		_, err = svc.Put(ctx, PutInput{Namespace: "", Metrics: samplePayload()})
		require.Error(t, err)

		require.Equal(t, []string{"put", "put"}, recorder.operations)
		assert.NoError(t, recorder.errs[0])
		assert.Error(t, recorder.errs[1])
	})
}

func TestGetStats(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 10, 15, 0, 0, time.UTC)

	t.Run("ValidatesRange", func(t *testing.T) {
		svc := newTestService(memory.New(), DefaultConfig())

		_, err := svc.GetStats(ctx, RangeInput{Namespace: "app"})
		assert.True(t, apperrors.IsValidation(err))

		_, err = svc.GetStats(ctx, RangeInput{Namespace: "app", From: base, To: base.Add(-time.Hour)})
		assert.True(t, apperrors.IsValidation(err))
	})

	t.Run("SumsAcrossHourBuckets", func(t *testing.T) {
		store := memory.New()
		svc := newTestService(store, DefaultConfig())

		_, err := svc.Put(ctx, PutInput{Namespace: "app", Metrics: samplePayload(), Session: "sess-1", Timestamp: base})
		require.NoError(t, err)
		_, err = svc.Put(ctx, PutInput{Namespace: "app", Metrics: samplePayload(), Session: "sess-1", Timestamp: base.Add(90 * time.Minute)})
		require.NoError(t, err)

		sum, err := svc.GetStats(ctx, RangeInput{Namespace: "app", From: base, To: base.Add(2 * time.Hour)})
		require.NoError(t, err)

		assert.Equal(t, "2024-01-01T10:00:00.000Z", sum.From)
		assert.Equal(t, "2024-01-01T12:59:59.999Z", sum.To)
		assert.Equal(t, int64(2), sum.Hits)
		assert.Equal(t, int64(2), sum.Sessions, "the 90 minute gap expired the session")
		assert.Equal(t, int64(2), sum.UniqueUsers)

		assert.Equal(t, float64(20), sum.Metrics["clicks"])
		browser, ok := sum.Metrics["browser"].(map[string]any)
		require.True(t, ok)
		name, ok := browser["name"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, float64(2), name["Firefox"])
	})

	t.Run("ExcludesBucketsOutsideRange", func(t *testing.T) {
		store := memory.New()
		svc := newTestService(store, DefaultConfig())

		for _, offset := range []time.Duration{0, time.Hour, 2 * time.Hour} {
			_, err := svc.Put(ctx, PutInput{Namespace: "app", Metrics: samplePayload(), Timestamp: base.Add(offset)})
			require.NoError(t, err)
		}

		sum, err := svc.GetStats(ctx, RangeInput{Namespace: "app", From: base.Add(time.Hour), To: base.Add(time.Hour)})
		require.NoError(t, err)
		assert.Equal(t, int64(1), sum.Hits)
	})

	t.Run("EmptyRange", func(t *testing.T) {
		svc := newTestService(memory.New(), DefaultConfig())

		sum, err := svc.GetStats(ctx, RangeInput{Namespace: "app", From: base, To: base.Add(time.Hour)})
		require.NoError(t, err)
		assert.Equal(t, int64(0), sum.Hits)
		assert.Empty(t, sum.Metrics)
	})
}

func TestGetStatsHistogram(t *testing.T) {
	ctx := context.Background()
	day1 := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	day3 := time.Date(2024, 1, 3, 17, 30, 0, 0, time.UTC)

	t.Run("RejectsUnknownPeriod", func(t *testing.T) {
		svc := newTestService(memory.New(), DefaultConfig())

		_, err := svc.GetStatsHistogram(ctx, HistogramInput{
			Namespace: "app",
			From:      day1,
			To:        day3,
			Period:    timebucket.Period("decade"),
		})
		require.Error(t, err)
		assert.True(t, apperrors.IsValidation(err))
	})

	t.Run("EmitsGapFreeSeries", func(t *testing.T) {
		store := memory.New()
		svc := newTestService(store, DefaultConfig())

		_, err := svc.Put(ctx, PutInput{Namespace: "app", Metrics: samplePayload(), Timestamp: day1})
		require.NoError(t, err)
		_, err = svc.Put(ctx, PutInput{Namespace: "app", Metrics: samplePayload(), Timestamp: day1.Add(2 * time.Hour)})
		require.NoError(t, err)
		_, err = svc.Put(ctx, PutInput{Namespace: "app", Metrics: samplePayload(), Timestamp: day3})
		require.NoError(t, err)

		h, err := svc.GetStatsHistogram(ctx, HistogramInput{
			Namespace: "app",
			From:      day1,
			To:        day3,
			Period:    timebucket.PeriodDay,
		})
		require.NoError(t, err)
		require.Len(t, h.Histogram, 3)

		first := h.Histogram["2024-01-01T00:00:00.000Z"]
		require.NotNil(t, first)
		assert.Equal(t, int64(2), first.Hits)
		assert.Equal(t, float64(20), first.Metrics["clicks"])

		gap := h.Histogram["2024-01-02T00:00:00.000Z"]
		require.NotNil(t, gap, "empty periods must still appear")
		encoded, err := json.Marshal(gap)
		require.NoError(t, err)
		assert.JSONEq(t, `{}`, string(encoded))

		last := h.Histogram["2024-01-03T00:00:00.000Z"]
		require.NotNil(t, last)
		assert.Equal(t, int64(1), last.Hits)
	})

	t.Run("WeekBucketsFloorToSunday", func(t *testing.T) {
		store := memory.New()
		svc := newTestService(store, DefaultConfig())

		// Wednesday January 3rd belongs to the week of Sunday December 31st.
		wednesday := time.Date(2024, 1, 3, 12, 0, 0, 0, time.UTC)
		_, err := svc.Put(ctx, PutInput{Namespace: "app", Metrics: samplePayload(), Timestamp: wednesday})
		require.NoError(t, err)

		h, err := svc.GetStatsHistogram(ctx, HistogramInput{
			Namespace: "app",
			From:      wednesday,
			To:        wednesday,
			Period:    timebucket.PeriodWeek,
		})
		require.NoError(t, err)
		require.Len(t, h.Histogram, 1)
		entry := h.Histogram["2023-12-31T00:00:00.000Z"]
		require.NotNil(t, entry)
		assert.Equal(t, int64(1), entry.Hits)
	})
}

func TestFetchLogs(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 10, 15, 0, 0, time.UTC)

	store := memory.New()
	svc := newTestService(store, DefaultConfig())

	_, err := svc.Put(ctx, PutInput{Namespace: "app", Metrics: samplePayload(), Session: "sess-1", Timestamp: base})
	require.NoError(t, err)
	_, err = svc.Put(ctx, PutInput{Namespace: "app", Metrics: samplePayload(), Session: "sess-1", Timestamp: base.Add(time.Minute)})
	require.NoError(t, err)

	page, err := svc.FetchLogs(ctx, LogQuery{Namespace: "app", Session: "sess-1#", Limit: MaxLimit})
	require.NoError(t, err)
	require.Equal(t, 2, page.Count)

	rec := page.Items[0]
	assert.Equal(t, "sess-1#000001", rec.Session)
	assert.Equal(t, map[string]any{
		"clicks":  float64(10),
		"browser": map[string]any{"name": "Firefox"},
	}, rec.Payload)
	assert.Equal(t, "2024-01-01T10:15:00.000Z", rec.CreatedAt)

	_, err = svc.FetchLogs(ctx, LogQuery{Namespace: "app", Limit: MaxLimit + 1})
	assert.True(t, apperrors.IsValidation(err))
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 10, 15, 0, 0, time.UTC)

	store := memory.New()
	svc := newTestService(store, DefaultConfig())

	_, err := svc.Put(ctx, PutInput{Namespace: "app", Metrics: samplePayload(), Session: "sess-1", Timestamp: base})
	require.NoError(t, err)
	_, err = svc.Put(ctx, PutInput{Namespace: "app", Metrics: samplePayload(), Session: "sess-1", Timestamp: base.Add(2 * time.Hour)})
	require.NoError(t, err)
	_, err = svc.Put(ctx, PutInput{Namespace: "other", Metrics: samplePayload(), Timestamp: base})
	require.NoError(t, err)

	// Two hour buckets, two session instances, two logs.
	count, err := svc.Clear(ctx, "app")
	require.NoError(t, err)
	assert.Equal(t, 6, count)

	sum, err := svc.GetStats(ctx, RangeInput{Namespace: "app", From: base, To: base.Add(3 * time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, int64(0), sum.Hits)

	// The untouched namespace survives.
	sum, err = svc.GetStats(ctx, RangeInput{Namespace: "other", From: base, To: base.Add(time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, int64(1), sum.Hits)

	_, err = svc.Clear(ctx, " ")
	assert.True(t, apperrors.IsValidation(err))
}

func TestPing(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	svc := newTestService(store, DefaultConfig())

	require.NoError(t, svc.Ping(ctx))

	store.SetError("Get", errors.New("down"))
	assert.Error(t, svc.Ping(ctx))
}
