package stats

import (
	"time"

	"statbucket/application/ports"
	"statbucket/domain/metrics"
	"statbucket/domain/timebucket"
)

// buildUpdate assembles the atomic upsert instruction for one stats bucket
// write. Every write refreshes the ttl (set, not added) and increments hits;
// sessions and uniqueUsers are always present as explicit adds, 0 when the
// event continues an existing session or repeats a known user, so the
// attributes exist for future reads. Each flattened counter contributes one
// add term; duplicate paths (possible after normalization) accumulate.
func buildUpdate(counters []metrics.Counter, incrementSession, incrementUniqueUser bool, now time.Time, ttlDays int) ports.Update {
	u := ports.Update{
		Set: map[string]any{
			ports.AttrTTL:       expiryEpoch(now, ttlDays),
			ports.AttrUpdatedAt: timebucket.Format(now),
		},
		SetIfNotExists: map[string]any{
			ports.AttrCreatedAt: timebucket.Format(now),
		},
		Add: map[string]float64{
			attrHits:        1,
			attrSessions:    0,
			attrUniqueUsers: 0,
		},
	}

	if incrementSession {
		u.Add[attrSessions] = 1
	}
	if incrementUniqueUser {
		u.Add[attrUniqueUsers] = 1
	}
	for _, c := range counters {
		u.Add[metricPrefix+c.Key] += c.Value
	}
	return u
}

// expiryEpoch is the record expiry in epoch seconds, ttlDays from now.
func expiryEpoch(now time.Time, ttlDays int) int64 {
	return now.Add(time.Duration(ttlDays) * 24 * time.Hour).Unix()
}
