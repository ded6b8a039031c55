package stats

import (
	"fmt"
	"strings"

	"statbucket/application/ports"
)

// Aggregate families tracked on stats records. Flat metric counters live
// under the metricPrefix name family; the dots are part of the attribute
// name, not a document path.
const (
	attrHits        = "hits"
	attrSessions    = "sessions"
	attrUniqueUsers = "uniqueUsers"
	metricPrefix    = "metrics."

	attrID       = "id"
	attrIndex    = "index"
	attrDuration = "durationSeconds"
	attrSession  = "session"
	attrPayload  = "payload"
)

// StatsRecord is the aggregate row for one (namespace, hour bucket). Metrics
// holds the flat dot-path counters exactly as stored.
type StatsRecord struct {
	Namespace   string             `json:"namespace"`
	BucketID    string             `json:"bucketId"`
	Hits        int64              `json:"hits"`
	Sessions    int64              `json:"sessions"`
	UniqueUsers int64              `json:"uniqueUsers"`
	Metrics     map[string]float64 `json:"metrics"`
	CreatedAt   string             `json:"createdAt,omitempty"`
	UpdatedAt   string             `json:"updatedAt,omitempty"`
	TTL         int64              `json:"ttl,omitempty"`
}

// SessionRecord is one session instance row. Key is the instance sort key
// (logical id plus zero-padded index); Index is the numeric continuation
// counter.
type SessionRecord struct {
	Namespace       string `json:"namespace"`
	ID              string `json:"id"`
	Key             string `json:"key"`
	Index           int64  `json:"index"`
	Hits            int64  `json:"hits"`
	DurationSeconds int64  `json:"durationSeconds"`
	CreatedAt       string `json:"createdAt"`
	UpdatedAt       string `json:"updatedAt"`
	TTL             int64  `json:"ttl,omitempty"`
}

// LogRecord is one immutable raw event row.
type LogRecord struct {
	Namespace string         `json:"namespace"`
	Key       string         `json:"key"`
	Session   string         `json:"session"`
	Payload   map[string]any `json:"payload"`
	CreatedAt string         `json:"createdAt"`
	TTL       int64          `json:"ttl,omitempty"`
}

// sessionKey builds the instance sort key. The index is zero-padded so
// lexicographic order equals numeric order and the latest instance is the
// first result of a descending prefix read.
func sessionKey(id string, index int64) string {
	return fmt.Sprintf("%s#%06d", id, index)
}

func statsFromItem(it ports.Item) *StatsRecord {
	rec := &StatsRecord{
		Namespace:   itemString(it, "namespace"),
		BucketID:    itemString(it, "key"),
		Hits:        int64(itemNumber(it, attrHits)),
		Sessions:    int64(itemNumber(it, attrSessions)),
		UniqueUsers: int64(itemNumber(it, attrUniqueUsers)),
		Metrics:     make(map[string]float64),
		CreatedAt:   itemString(it, ports.AttrCreatedAt),
		UpdatedAt:   itemString(it, ports.AttrUpdatedAt),
		TTL:         int64(itemNumber(it, ports.AttrTTL)),
	}
	for name, v := range it {
		f, ok := v.(float64)
		if ok && strings.HasPrefix(name, metricPrefix) {
			rec.Metrics[strings.TrimPrefix(name, metricPrefix)] = f
		}
	}
	return rec
}

func sessionFromItem(it ports.Item) *SessionRecord {
	return &SessionRecord{
		Namespace:       itemString(it, "namespace"),
		ID:              itemString(it, attrID),
		Key:             itemString(it, "key"),
		Index:           int64(itemNumber(it, attrIndex)),
		Hits:            int64(itemNumber(it, attrHits)),
		DurationSeconds: int64(itemNumber(it, attrDuration)),
		CreatedAt:       itemString(it, ports.AttrCreatedAt),
		UpdatedAt:       itemString(it, ports.AttrUpdatedAt),
		TTL:             int64(itemNumber(it, ports.AttrTTL)),
	}
}

func (r *SessionRecord) item() ports.Item {
	return ports.Item{
		attrID:              r.ID,
		attrIndex:           float64(r.Index),
		attrHits:            float64(r.Hits),
		attrDuration:        float64(r.DurationSeconds),
		ports.AttrCreatedAt: r.CreatedAt,
		ports.AttrUpdatedAt: r.UpdatedAt,
		ports.AttrTTL:       float64(r.TTL),
	}
}

func logFromItem(it ports.Item) *LogRecord {
	rec := &LogRecord{
		Namespace: itemString(it, "namespace"),
		Key:       itemString(it, "key"),
		Session:   itemString(it, attrSession),
		CreatedAt: itemString(it, ports.AttrCreatedAt),
		TTL:       int64(itemNumber(it, ports.AttrTTL)),
	}
	if payload, ok := it[attrPayload].(map[string]any); ok {
		rec.Payload = payload
	}
	return rec
}

func (r *LogRecord) item() ports.Item {
	return ports.Item{
		attrSession:         r.Session,
		attrPayload:         r.Payload,
		ports.AttrCreatedAt: r.CreatedAt,
		ports.AttrTTL:       float64(r.TTL),
	}
}

func itemNumber(it ports.Item, name string) float64 {
	if v, ok := it[name].(float64); ok {
		return v
	}
	return 0
}

func itemString(it ports.Item, name string) string {
	if v, ok := it[name].(string); ok {
		return v
	}
	return ""
}
