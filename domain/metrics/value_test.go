package metrics

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObject_UnmarshalJSON(t *testing.T) {
	t.Run("keeps numbers, text and nested objects", func(t *testing.T) {
		var obj Object
		err := json.Unmarshal([]byte(`{
			"count": 10,
			"ratio": 0.5,
			"label": "ok",
			"inner": {"depth": 2}
		}`), &obj)

		require.NoError(t, err)
		assert.Equal(t, Object{
			"count": Number(10),
			"ratio": Number(0.5),
			"label": Text("ok"),
			"inner": Nest(Object{"depth": Number(2)}),
		}, obj)
	})

	t.Run("drops arrays, booleans and nulls", func(t *testing.T) {
		var obj Object
		err := json.Unmarshal([]byte(`{
			"kept": 1,
			"list": [1, 2, 3],
			"flag": true,
			"off": false,
			"gone": null,
			"inner": {"alsoGone": [1], "alsoKept": "x"}
		}`), &obj)

		require.NoError(t, err)
		assert.Equal(t, Object{
			"kept":  Number(1),
			"inner": Nest(Object{"alsoKept": Text("x")}),
		}, obj)
	})

	t.Run("rejects non-object payloads", func(t *testing.T) {
		var obj Object
		assert.Error(t, json.Unmarshal([]byte(`[1,2,3]`), &obj))
		assert.Error(t, json.Unmarshal([]byte(`"text"`), &obj))
		assert.Error(t, json.Unmarshal([]byte(`42`), &obj))
	})
}

func TestValue_MarshalJSON(t *testing.T) {
	obj := Object{
		"count": Number(3),
		"label": Text("ok"),
		"inner": Nest(Object{"depth": Number(2)}),
	}

	data, err := json.Marshal(obj)
	require.NoError(t, err)

	var back Object
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, obj, back)
}

func TestObject_Plain(t *testing.T) {
	obj := Object{
		"count": Number(3),
		"label": Text("ok"),
		"inner": Nest(Object{"depth": Number(2)}),
	}

	assert.Equal(t, map[string]any{
		"count": 3.0,
		"label": "ok",
		"inner": map[string]any{"depth": 2.0},
	}, obj.Plain())
}
