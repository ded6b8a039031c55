package stats

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"statbucket/application/ports"
	"statbucket/domain/metrics"
	"statbucket/domain/timebucket"
	apperrors "statbucket/pkg/errors"
)

// logKey composes the session instance key with the event's epoch
// milliseconds and a random three-digit tiebreaker, keeping concurrent
// same-millisecond writes unique.
func logKey(sessionKey string, now time.Time) string {
	return fmt.Sprintf("%s#%d#%03d", sessionKey, now.UnixMilli(), rand.IntN(1000))
}

// appendLog writes the raw event row for a tracked session. The put is
// conditional (no overwrite): a tiebreaker collision surfaces as a store
// error rather than silently replacing an event.
func (s *Service) appendLog(ctx context.Context, namespace, sessionKey string, payload metrics.Object, now time.Time) (*LogRecord, error) {
	rec := &LogRecord{
		Namespace: namespace,
		Key:       logKey(sessionKey, now),
		Session:   sessionKey,
		Payload:   payload.Plain(),
		CreatedAt: timebucket.Format(now),
		TTL:       expiryEpoch(now, s.cfg.TTLDays),
	}

	if err := s.store.Put(ctx, ports.TableLogs, namespace, rec.Key, rec.item(), false); err != nil {
		return nil, apperrors.NewStore("failed to append log", err)
	}
	return rec, nil
}

// LogQuery selects raw event rows within one namespace.
type LogQuery struct {
	Namespace string
	Session   string    // optional sort-key prefix (session id or instance key)
	From      time.Time // optional createdAt lower bound
	To        time.Time // optional createdAt upper bound
	Limit     int
	Desc      bool
	StartKey  string
}

// LogPage is one page of raw event rows.
type LogPage struct {
	Items            []*LogRecord `json:"items"`
	Count            int          `json:"count"`
	LastEvaluatedKey string       `json:"lastEvaluatedKey,omitempty"`
}

// FetchLogs returns a page of raw event rows.
func (s *Service) FetchLogs(ctx context.Context, q LogQuery) (page *LogPage, err error) {
	start := time.Now()
	defer func() { s.recorder.ObserveOperation("fetch_logs", err, time.Since(start)) }()

	if err := validateNamespace(q.Namespace); err != nil {
		return nil, err
	}
	limit, err := normalizeLimit(q.Limit)
	if err != nil {
		return nil, err
	}

	pq := ports.Query{
		Namespace: q.Namespace,
		Prefix:    q.Session,
		Limit:     limit,
		Desc:      q.Desc,
		StartKey:  q.StartKey,
	}
	if !q.From.IsZero() {
		pq.CreatedFrom = timebucket.Format(q.From)
	}
	if !q.To.IsZero() {
		pq.CreatedTo = timebucket.Format(q.To)
	}

	res, err := s.store.Query(ctx, ports.TableLogs, pq)
	if err != nil {
		// A rejected pagination cursor is the caller's mistake, not an outage.
		if apperrors.IsValidation(err) {
			return nil, err
		}
		return nil, apperrors.NewStore("failed to query logs", err)
	}

	items := make([]*LogRecord, 0, len(res.Items))
	for _, it := range res.Items {
		items = append(items, logFromItem(it))
	}
	return &LogPage{Items: items, Count: len(items), LastEvaluatedKey: res.NextKey}, nil
}
