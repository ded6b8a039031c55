package stats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"statbucket/application/ports"
	"statbucket/domain/metrics"
)

func TestBuildUpdate(t *testing.T) {
	now := time.Date(2024, 1, 1, 15, 30, 45, 0, time.UTC)
	counters := []metrics.Counter{
		{Key: "clicks", Value: 10},
		{Key: "errors.validation", Value: 1},
	}

	t.Run("NewSessionAndUser", func(t *testing.T) {
		u := buildUpdate(counters, true, true, now, 30)

		assert.Equal(t, now.Add(30*24*time.Hour).Unix(), u.Set[ports.AttrTTL])
		assert.Equal(t, "2024-01-01T15:30:45.000Z", u.Set[ports.AttrUpdatedAt])
		assert.Equal(t, "2024-01-01T15:30:45.000Z", u.SetIfNotExists[ports.AttrCreatedAt])

		assert.Equal(t, float64(1), u.Add["hits"])
		assert.Equal(t, float64(1), u.Add["sessions"])
		assert.Equal(t, float64(1), u.Add["uniqueUsers"])
		assert.Equal(t, float64(10), u.Add["metrics.clicks"])
		assert.Equal(t, float64(1), u.Add["metrics.errors.validation"])
	})

	t.Run("ContinuedSessionKeepsExplicitZeros", func(t *testing.T) {
		u := buildUpdate(nil, false, false, now, 30)

		hits, ok := u.Add["hits"]
		require.True(t, ok)
		assert.Equal(t, float64(1), hits)

		sessions, ok := u.Add["sessions"]
		require.True(t, ok, "sessions must be an explicit add even when zero")
		assert.Equal(t, float64(0), sessions)

		users, ok := u.Add["uniqueUsers"]
		require.True(t, ok, "uniqueUsers must be an explicit add even when zero")
		assert.Equal(t, float64(0), users)
	})

	t.Run("DuplicateCounterPathsAccumulate", func(t *testing.T) {
		dup := []metrics.Counter{
			{Key: "browser.firefox", Value: 1},
			{Key: "browser.firefox", Value: 1},
		}
		u := buildUpdate(dup, false, false, now, 30)
		assert.Equal(t, float64(2), u.Add["metrics.browser.firefox"])
	})
}

func TestExpiryEpoch(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, now.AddDate(0, 0, 7).Unix(), expiryEpoch(now, 7))
	assert.Equal(t, now.AddDate(0, 0, 30).Unix(), expiryEpoch(now, 30))
}
