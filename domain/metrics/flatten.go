package metrics

import (
	"sort"
	"strings"

	"statbucket/domain/normalize"
)

// Counter is one flattened metric: a dot-joined path and its increment.
type Counter struct {
	Key   string  `json:"key"`
	Value float64 `json:"value"`
}

// FlattenOptions control optional key/value normalization during flattening.
type FlattenOptions struct {
	Normalize  bool
	Normalizer *normalize.Normalizer
}

// Flatten converts a nested payload into an ordered counter sequence.
// Numeric leaves keep their value at the dot-joined path; text leaves append
// the text itself to the path and count 1 (categorical tally). Keys are
// visited in lexicographic order at every level, so the output is
// deterministic for any given payload.
func Flatten(obj Object, opts FlattenOptions) []Counter {
	var out []Counter
	flattenInto(&out, obj, "", opts)
	return out
}

func flattenInto(out *[]Counter, obj Object, prefix string, opts FlattenOptions) {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		v := obj[k]

		key := k
		if opts.Normalize && opts.Normalizer != nil {
			key = opts.Normalizer.Normalize(key)
		}
		path := key
		if prefix != "" {
			path = prefix + "." + key
		}

		switch v.Kind() {
		case KindNested:
			flattenInto(out, v.Nested(), path, opts)
		case KindNumber:
			*out = append(*out, Counter{Key: path, Value: v.Number()})
		case KindText:
			text := v.Text()
			if opts.Normalize && opts.Normalizer != nil {
				text = opts.Normalizer.Normalize(text)
			}
			*out = append(*out, Counter{Key: path + "." + text, Value: 1})
		}
	}
}

// Unflatten is the inverse read-path transform: it rebuilds a nested mapping
// from dot-path counters, creating intermediate objects as needed. Text-leaf
// semantics are not reconstructed; counts stay at the terminal segment.
// Paths are applied in lexicographic order, so when a counter collides with
// a longer path's prefix the nested object shadows the scalar.
func Unflatten(flat map[string]float64) map[string]any {
	paths := make([]string, 0, len(flat))
	for path := range flat {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	out := make(map[string]any)
	for _, path := range paths {
		value := flat[path]
		segments := strings.Split(path, ".")
		node := out
		for i, seg := range segments {
			if i == len(segments)-1 {
				node[seg] = value
				break
			}
			next, ok := node[seg].(map[string]any)
			if !ok {
				next = make(map[string]any)
				node[seg] = next
			}
			node = next
		}
	}
	return out
}
