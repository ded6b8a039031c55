package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"statbucket/application/ports"
)

func TestPutGet(t *testing.T) {
	ctx := context.Background()
	store := New()

	err := store.Put(ctx, ports.TableStats, "app", "row", ports.Item{"hits": float64(3)}, true)
	require.NoError(t, err)

	item, err := store.Get(ctx, ports.TableStats, "app", "row")
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, float64(3), item["hits"])
	assert.Equal(t, "app", item["namespace"])
	assert.Equal(t, "row", item["key"])

	// Missing rows read as nil, nil.
	item, err = store.Get(ctx, ports.TableStats, "app", "absent")
	require.NoError(t, err)
	assert.Nil(t, item)
}

func TestGetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	store := New()

	require.NoError(t, store.Put(ctx, ports.TableStats, "app", "row", ports.Item{"hits": float64(1)}, true))

	first, err := store.Get(ctx, ports.TableStats, "app", "row")
	require.NoError(t, err)
	first["hits"] = float64(99)

	second, err := store.Get(ctx, ports.TableStats, "app", "row")
	require.NoError(t, err)
	assert.Equal(t, float64(1), second["hits"])
}

func TestConditionalPut(t *testing.T) {
	ctx := context.Background()
	store := New()

	require.NoError(t, store.Put(ctx, ports.TableLogs, "app", "row", ports.Item{"v": float64(1)}, false))

	err := store.Put(ctx, ports.TableLogs, "app", "row", ports.Item{"v": float64(2)}, false)
	assert.ErrorIs(t, err, ports.ErrConditionalFailed)

	// Overwrite replaces without complaint.
	require.NoError(t, store.Put(ctx, ports.TableLogs, "app", "row", ports.Item{"v": float64(2)}, true))
	item, err := store.Get(ctx, ports.TableLogs, "app", "row")
	require.NoError(t, err)
	assert.Equal(t, float64(2), item["v"])
}

func TestGetLast(t *testing.T) {
	ctx := context.Background()
	store := New()

	for _, key := range []string{"sess#000001", "sess#000002", "sess#000010", "other#000005"} {
		require.NoError(t, store.Put(ctx, ports.TableSessions, "app", key, ports.Item{}, true))
	}

	item, err := store.GetLast(ctx, ports.TableSessions, "app", "sess#")
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, "sess#000010", item["key"])

	item, err = store.GetLast(ctx, ports.TableSessions, "app", "missing#")
	require.NoError(t, err)
	assert.Nil(t, item)
}

func TestUpdateUpsertsAndAdds(t *testing.T) {
	ctx := context.Background()
	store := New()

	update := ports.Update{
		Set:            map[string]any{"updatedAt": "a"},
		SetIfNotExists: map[string]any{"createdAt": "a"},
		Add:            map[string]float64{"hits": 1, "metrics.clicks": 2.5},
	}

	item, err := store.Update(ctx, ports.TableStats, "app", "bucket", update)
	require.NoError(t, err)
	assert.Equal(t, float64(1), item["hits"])
	assert.Equal(t, float64(2.5), item["metrics.clicks"])
	assert.Equal(t, "a", item["createdAt"])

	update.Set["updatedAt"] = "b"
	update.SetIfNotExists["createdAt"] = "b"
	item, err = store.Update(ctx, ports.TableStats, "app", "bucket", update)
	require.NoError(t, err)
	assert.Equal(t, float64(2), item["hits"])
	assert.Equal(t, float64(5), item["metrics.clicks"])
	assert.Equal(t, "b", item["updatedAt"])
	assert.Equal(t, "a", item["createdAt"], "createdAt must survive later writes")
}

func TestUpdateWidensIntegers(t *testing.T) {
	ctx := context.Background()
	store := New()

	item, err := store.Update(ctx, ports.TableStats, "app", "bucket", ports.Update{
		Set: map[string]any{"ttl": int64(1700000000)},
	})
	require.NoError(t, err)
	assert.Equal(t, float64(1700000000), item["ttl"])
}

func TestQueryRangeAndOrder(t *testing.T) {
	ctx := context.Background()
	store := New()

	for i := 1; i <= 5; i++ {
		key := fmt.Sprintf("2024-01-01T%02d:00:00.000Z", i)
		require.NoError(t, store.Put(ctx, ports.TableStats, "app", key, ports.Item{"n": float64(i)}, true))
	}

	res, err := store.Query(ctx, ports.TableStats, ports.Query{
		Namespace: "app",
		RangeFrom: "2024-01-01T02:00:00.000Z",
		RangeTo:   "2024-01-01T04:00:00.000Z",
	})
	require.NoError(t, err)
	require.Equal(t, 3, res.Count)
	assert.Equal(t, "2024-01-01T02:00:00.000Z", res.Items[0]["key"])
	assert.Equal(t, "2024-01-01T04:00:00.000Z", res.Items[2]["key"])
	assert.Empty(t, res.NextKey)

	res, err = store.Query(ctx, ports.TableStats, ports.Query{Namespace: "app", Desc: true})
	require.NoError(t, err)
	require.Equal(t, 5, res.Count)
	assert.Equal(t, "2024-01-01T05:00:00.000Z", res.Items[0]["key"])
}

func TestQueryPrefixAndCreatedFilter(t *testing.T) {
	ctx := context.Background()
	store := New()

	rows := []struct {
		key     string
		created string
	}{
		{"sess#000001", "2024-01-01T10:00:00.000Z"},
		{"sess#000002", "2024-01-01T11:00:00.000Z"},
		{"sess#000003", "2024-01-01T12:00:00.000Z"},
		{"other#000001", "2024-01-01T11:00:00.000Z"},
	}
	for _, row := range rows {
		item := ports.Item{ports.AttrCreatedAt: row.created}
		require.NoError(t, store.Put(ctx, ports.TableSessions, "app", row.key, item, true))
	}

	res, err := store.Query(ctx, ports.TableSessions, ports.Query{
		Namespace:   "app",
		Prefix:      "sess#",
		CreatedFrom: "2024-01-01T10:30:00.000Z",
		CreatedTo:   "2024-01-01T11:30:00.000Z",
	})
	require.NoError(t, err)
	require.Equal(t, 1, res.Count)
	assert.Equal(t, "sess#000002", res.Items[0]["key"])
}

func TestQueryPagination(t *testing.T) {
	ctx := context.Background()
	store := New()

	for i := 1; i <= 7; i++ {
		key := fmt.Sprintf("row#%03d", i)
		require.NoError(t, store.Put(ctx, ports.TableLogs, "app", key, ports.Item{}, true))
	}

	var seen []string
	cursor := ""
	pages := 0
	for {
		res, err := store.Query(ctx, ports.TableLogs, ports.Query{
			Namespace: "app",
			Limit:     3,
			StartKey:  cursor,
		})
		require.NoError(t, err)
		for _, it := range res.Items {
			seen = append(seen, it["key"].(string))
		}
		pages++
		if res.NextKey == "" {
			break
		}
		cursor = res.NextKey
	}

	assert.Equal(t, 3, pages)
	require.Len(t, seen, 7)
	assert.Equal(t, "row#001", seen[0])
	assert.Equal(t, "row#007", seen[6])
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	store := New()

	require.NoError(t, store.Put(ctx, ports.TableStats, "app", "a", ports.Item{}, true))
	require.NoError(t, store.Put(ctx, ports.TableStats, "app", "b", ports.Item{}, true))
	require.NoError(t, store.Put(ctx, ports.TableStats, "other", "c", ports.Item{}, true))

	count, err := store.Clear(ctx, ports.TableStats, "app")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.Equal(t, 1, store.Len(ports.TableStats))

	count, err = store.Clear(ctx, ports.TableStats, "app")
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestErrorInjection(t *testing.T) {
	ctx := context.Background()
	store := New()
	boom := errors.New("boom")

	store.SetError("Query", boom)
	_, err := store.Query(ctx, ports.TableStats, ports.Query{Namespace: "app"})
	assert.ErrorIs(t, err, boom)

	store.ClearErrors()
	_, err = store.Query(ctx, ports.TableStats, ports.Query{Namespace: "app"})
	assert.NoError(t, err)
}

func TestConcurrentAdds(t *testing.T) {
	ctx := context.Background()
	store := New()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Update(ctx, ports.TableStats, "app", "bucket", ports.Update{
				Add: map[string]float64{"hits": 1},
			})
			if err != nil {
				t.Errorf("update: %v", err)
			}
		}()
	}
	wg.Wait()

	item, err := store.Get(ctx, ports.TableStats, "app", "bucket")
	require.NoError(t, err)
	assert.Equal(t, float64(50), item["hits"])
}
