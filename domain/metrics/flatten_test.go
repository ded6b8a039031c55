package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"statbucket/domain/normalize"
)

func TestFlatten(t *testing.T) {
	t.Run("numbers pass through, text becomes a tally", func(t *testing.T) {
		obj := Object{
			"value1": Number(10),
			"value2": Number(20),
			"value3": Text("test"),
		}

		got := Flatten(obj, FlattenOptions{})

		assert.Equal(t, []Counter{
			{Key: "value1", Value: 10},
			{Key: "value2", Value: 20},
			{Key: "value3.test", Value: 1},
		}, got)
	})

	t.Run("nested objects thread the prefix", func(t *testing.T) {
		obj := Object{
			"errors": Nest(Object{
				"validation": Number(2),
				"kind":       Text("fatal"),
			}),
			"hits": Number(1),
		}

		got := Flatten(obj, FlattenOptions{})

		assert.Equal(t, []Counter{
			{Key: "errors.kind.fatal", Value: 1},
			{Key: "errors.validation", Value: 2},
			{Key: "hits", Value: 1},
		}, got)
	})

	t.Run("output order is deterministic", func(t *testing.T) {
		obj := Object{
			"b": Number(2),
			"a": Number(1),
			"c": Number(3),
		}

		for i := 0; i < 20; i++ {
			got := Flatten(obj, FlattenOptions{})
			require.Equal(t, []Counter{
				{Key: "a", Value: 1},
				{Key: "b", Value: 2},
				{Key: "c", Value: 3},
			}, got)
		}
	})

	t.Run("normalization mode canonicalizes keys and text", func(t *testing.T) {
		obj := Object{
			"Response Time": Number(120),
			"browserName":   Text("Firefox Mobíle"),
		}

		got := Flatten(obj, FlattenOptions{
			Normalize:  true,
			Normalizer: normalize.New(normalize.Options{}),
		})

		assert.Equal(t, []Counter{
			{Key: "response-time", Value: 120},
			{Key: "browser-name.firefox-mobile", Value: 1},
		}, got)
	})

	t.Run("empty object yields no counters", func(t *testing.T) {
		assert.Empty(t, Flatten(Object{}, FlattenOptions{}))
	})
}

func TestUnflatten(t *testing.T) {
	t.Run("rebuilds nesting segment by segment", func(t *testing.T) {
		got := Unflatten(map[string]float64{
			"value3.test": 1,
		})

		assert.Equal(t, map[string]any{
			"value3": map[string]any{"test": 1.0},
		}, got)
	})

	t.Run("merges siblings under one parent", func(t *testing.T) {
		got := Unflatten(map[string]float64{
			"errors.validation": 2,
			"errors.kind.fatal": 1,
			"hits":              7,
		})

		assert.Equal(t, map[string]any{
			"errors": map[string]any{
				"validation": 2.0,
				"kind":       map[string]any{"fatal": 1.0},
			},
			"hits": 7.0,
		}, got)
	})

	t.Run("nested path shadows its scalar prefix", func(t *testing.T) {
		// Both shapes land in one bucket when successive payloads disagree,
		// e.g. {"a": 5} followed by {"a": {"b": 2}}.
		for i := 0; i < 20; i++ {
			got := Unflatten(map[string]float64{
				"metrics.a":   5,
				"metrics.a.b": 2,
			})

			require.Equal(t, map[string]any{
				"metrics": map[string]any{
					"a": map[string]any{"b": 2.0},
				},
			}, got)
		}
	})

	t.Run("empty input yields empty mapping", func(t *testing.T) {
		assert.Equal(t, map[string]any{}, Unflatten(nil))
	})
}

func TestFlattenUnflatten_RoundTrip(t *testing.T) {
	obj := Object{
		"value1": Number(10),
		"value2": Number(20),
		"value3": Text("test"),
		"deep": Nest(Object{
			"count": Number(4),
			"tag":   Text("beta"),
		}),
	}

	flat := make(map[string]float64)
	for _, c := range Flatten(obj, FlattenOptions{}) {
		flat[c.Key] += c.Value
	}

	assert.Equal(t, map[string]any{
		"value1": 10.0,
		"value2": 20.0,
		"value3": map[string]any{"test": 1.0},
		"deep": map[string]any{
			"count": 4.0,
			"tag":   map[string]any{"beta": 1.0},
		},
	}, Unflatten(flat))
}

func BenchmarkFlatten(b *testing.B) {
	obj := Object{
		"value1": Number(10),
		"value2": Number(20),
		"value3": Text("test"),
		"deep": Nest(Object{
			"count": Number(4),
			"tag":   Text("beta"),
		}),
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Flatten(obj, FlattenOptions{})
	}
}
