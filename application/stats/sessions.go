package stats

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"

	"statbucket/application/ports"
	"statbucket/domain/timebucket"
	apperrors "statbucket/pkg/errors"
)

// TrackResult reports the session transition decided for one event. Session
// is nil for anonymous events (empty session id).
type TrackResult struct {
	IncrementSession    bool
	IncrementUniqueUser bool
	Session             *SessionRecord
}

// trackSession runs the session state machine for one event. An empty id is
// a logical no-op. Otherwise the latest instance for the logical id decides:
// absent creates index 1; an idle gap strictly beyond the session timeout
// creates index+1; anything else continues the instance in place. The
// unique-user decision applies its own timeout to the same prior-activity
// timestamp.
func (s *Service) trackSession(ctx context.Context, namespace, id string, now time.Time) (TrackResult, error) {
	if id == "" {
		return TrackResult{}, nil
	}

	prior, err := s.store.GetLast(ctx, ports.TableSessions, namespace, id+"#")
	if err != nil {
		return TrackResult{}, apperrors.NewStore("failed to read last session instance", err)
	}
	if prior == nil {
		return s.createSession(ctx, namespace, id, 1, now, true)
	}

	prev := sessionFromItem(prior)
	lastSeen, err := timebucket.Parse(prev.UpdatedAt)
	if err != nil {
		return TrackResult{}, apperrors.NewInternal("malformed session activity timestamp", err)
	}

	elapsed := now.Sub(lastSeen)
	newUniqueUser := elapsed > s.cfg.UniqueUserTimeout

	if elapsed > s.cfg.SessionTimeout {
		return s.createSession(ctx, namespace, id, prev.Index+1, now, newUniqueUser)
	}

	update := ports.Update{
		Set: map[string]any{
			attrDuration:        math.Floor(elapsed.Seconds()),
			ports.AttrUpdatedAt: timebucket.Format(now),
			ports.AttrTTL:       expiryEpoch(now, s.cfg.TTLDays),
		},
		Add: map[string]float64{attrHits: 1},
	}
	item, err := s.store.Update(ctx, ports.TableSessions, namespace, prev.Key, update)
	if err != nil {
		return TrackResult{}, apperrors.NewStore("failed to continue session instance", err)
	}

	return TrackResult{
		IncrementSession:    false,
		IncrementUniqueUser: newUniqueUser,
		Session:             sessionFromItem(item),
	}, nil
}

// createSession writes a fresh instance. The put overwrites: two concurrent
// events racing on the same snapshot resolve last-write-wins.
func (s *Service) createSession(ctx context.Context, namespace, id string, index int64, now time.Time, newUniqueUser bool) (TrackResult, error) {
	rec := &SessionRecord{
		Namespace:       namespace,
		ID:              id,
		Key:             sessionKey(id, index),
		Index:           index,
		Hits:            1,
		DurationSeconds: 0,
		CreatedAt:       timebucket.Format(now),
		UpdatedAt:       timebucket.Format(now),
		TTL:             expiryEpoch(now, s.cfg.TTLDays),
	}

	if err := s.store.Put(ctx, ports.TableSessions, namespace, rec.Key, rec.item(), true); err != nil {
		return TrackResult{}, apperrors.NewStore("failed to create session instance", err)
	}

	s.logger.Debug("session instance created",
		zap.String("namespace", namespace),
		zap.String("key", rec.Key),
		zap.Int64("index", index),
	)

	return TrackResult{
		IncrementSession:    true,
		IncrementUniqueUser: newUniqueUser,
		Session:             rec,
	}, nil
}

// SessionQuery selects session instances within one namespace.
type SessionQuery struct {
	Namespace string
	ID        string    // optional sort-key prefix (logical session id)
	From      time.Time // optional createdAt lower bound
	To        time.Time // optional createdAt upper bound
	Limit     int
	Desc      bool
	StartKey  string
}

// SessionPage is one page of session instances.
type SessionPage struct {
	Items            []*SessionRecord `json:"items"`
	Count            int              `json:"count"`
	LastEvaluatedKey string           `json:"lastEvaluatedKey,omitempty"`
}

// FetchSessions returns a page of session instances, newest or oldest first.
func (s *Service) FetchSessions(ctx context.Context, q SessionQuery) (page *SessionPage, err error) {
	start := time.Now()
	defer func() { s.recorder.ObserveOperation("fetch_sessions", err, time.Since(start)) }()

	if err := validateNamespace(q.Namespace); err != nil {
		return nil, err
	}
	limit, err := normalizeLimit(q.Limit)
	if err != nil {
		return nil, err
	}

	pq := ports.Query{
		Namespace: q.Namespace,
		Prefix:    q.ID,
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

	res, err := s.store.Query(ctx, ports.TableSessions, pq)
	if err != nil {
		// A rejected pagination cursor is the caller's mistake, not an outage.
		if apperrors.IsValidation(err) {
			return nil, err
		}
		return nil, apperrors.NewStore("failed to query sessions", err)
	}

	items := make([]*SessionRecord, 0, len(res.Items))
	for _, it := range res.Items {
		items = append(items, sessionFromItem(it))
	}
	return &SessionPage{Items: items, Count: len(items), LastEvaluatedKey: res.NextKey}, nil
}
