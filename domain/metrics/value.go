// Package metrics models nested metric payloads and their flat dot-path
// counter representation.
package metrics

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Kind discriminates the closed set of metric value variants.
type Kind int

const (
	KindNumber Kind = iota
	KindText
	KindNested
)

// Value is a closed tagged variant over the shapes a metric leaf may take:
// a number, a piece of text, or a nested object. Arrays, booleans and nulls
// have no representation; JSON decoding drops them silently.
type Value struct {
	kind   Kind
	num    float64
	text   string
	nested Object
}

// Object is a nested metric payload mapping keys to values.
type Object map[string]Value

// Number creates a numeric value.
func Number(v float64) Value {
	return Value{kind: KindNumber, num: v}
}

// Text creates a text value.
func Text(s string) Value {
	return Value{kind: KindText, text: s}
}

// Nest creates a nested object value.
func Nest(o Object) Value {
	return Value{kind: KindNested, nested: o}
}

// Kind reports which variant this value holds.
func (v Value) Kind() Kind { return v.kind }

// Number returns the numeric payload; zero unless Kind is KindNumber.
func (v Value) Number() float64 { return v.num }

// Text returns the text payload; empty unless Kind is KindText.
func (v Value) Text() string { return v.text }

// Nested returns the nested payload; nil unless Kind is KindNested.
func (v Value) Nested() Object { return v.nested }

// MarshalJSON renders the variant as its natural JSON shape.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindText:
		return json.Marshal(v.text)
	case KindNested:
		return json.Marshal(v.nested)
	default:
		return json.Marshal(v.num)
	}
}

// UnmarshalJSON decodes an arbitrary JSON object into the variant. Non-object
// input is a shape error; object members that are arrays, booleans or nulls
// are dropped.
func (o *Object) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("metrics payload must be an object: %w", err)
	}

	out := make(Object, len(raw))
	for key, rv := range raw {
		v, ok, err := decodeValue(rv)
		if err != nil {
			return fmt.Errorf("metrics key %q: %w", key, err)
		}
		if ok {
			out[key] = v
		}
	}
	*o = out
	return nil
}

func decodeValue(raw json.RawMessage) (Value, bool, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return Value{}, false, nil
	}

	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return Value{}, false, err
		}
		return Text(s), true, nil
	case '{':
		var nested Object
		if err := json.Unmarshal(trimmed, &nested); err != nil {
			return Value{}, false, err
		}
		return Nest(nested), true, nil
	case 't', 'f', 'n', '[':
		// Booleans, nulls and arrays carry no counter semantics.
		return Value{}, false, nil
	default:
		var f float64
		if err := json.Unmarshal(trimmed, &f); err != nil {
			return Value{}, false, err
		}
		return Number(f), true, nil
	}
}

// Plain converts the payload into plain Go values (float64, string, nested
// map[string]any) for storage adapters and JSON-agnostic consumers.
func (o Object) Plain() map[string]any {
	out := make(map[string]any, len(o))
	for k, v := range o {
		switch v.kind {
		case KindNumber:
			out[k] = v.num
		case KindText:
			out[k] = v.text
		case KindNested:
			out[k] = v.nested.Plain()
		}
	}
	return out
}
