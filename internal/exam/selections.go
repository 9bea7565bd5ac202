package exam

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// OrderedMap is a string-keyed map that remembers insertion order and
// serializes as a JSON object in that order.
type OrderedMap[V comparable] struct {
	keys   []string
	values map[string]V
}

// Selections maps a statement or column id to the chosen value.
type Selections = OrderedMap[string]

// DropdownSelections maps a dropdown id to the chosen option index.
type DropdownSelections = OrderedMap[int]

func NewOrderedMap[V comparable]() *OrderedMap[V] {
	return &OrderedMap[V]{values: map[string]V{}}
}

func (m *OrderedMap[V]) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

func (m *OrderedMap[V]) Get(k string) (V, bool) {
	var zero V
	if m == nil {
		return zero, false
	}
	v, ok := m.values[k]
	return v, ok
}

func (m *OrderedMap[V]) Set(k string, v V) {
	if m.values == nil {
		m.values = map[string]V{}
	}
	if _, ok := m.values[k]; !ok {
		m.keys = append(m.keys, k)
	}
	m.values[k] = v
}

func (m *OrderedMap[V]) Keys() []string {
	if m == nil {
		return nil
	}
	return append([]string(nil), m.keys...)
}

// Clone returns an independent copy; nil stays nil.
func (m *OrderedMap[V]) Clone() *OrderedMap[V] {
	if m == nil {
		return nil
	}
	out := &OrderedMap[V]{keys: append([]string(nil), m.keys...), values: make(map[string]V, len(m.values))}
	for k, v := range m.values {
		out.values[k] = v
	}
	return out
}

// Merge overlays incoming onto existing and returns the result. Keys of
// existing keep their position; incoming wins on overlap and its new keys
// are appended. Neither argument is modified.
func Merge[V comparable](existing, incoming *OrderedMap[V]) *OrderedMap[V] {
	if existing == nil && incoming == nil {
		return nil
	}
	out := existing.Clone()
	if out == nil {
		out = NewOrderedMap[V]()
	}
	if incoming == nil {
		return out
	}
	for _, k := range incoming.keys {
		out.Set(k, incoming.values[k])
	}
	return out
}

func (m *OrderedMap[V]) Equal(o *OrderedMap[V]) bool {
	if m.Len() != o.Len() {
		return false
	}
	for i, k := range m.Keys() {
		if o.keys[i] != k || o.values[k] != m.values[k] {
			return false
		}
	}
	return true
}

func (m OrderedMap[V]) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range m.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(m.values[k])
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (m *OrderedMap[V]) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		m.keys, m.values = nil, nil
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("selections: expected object, got %v", tok)
	}
	m.keys = nil
	m.values = map[string]V{}
	for dec.More() {
		kt, err := dec.Token()
		if err != nil {
			return err
		}
		k, ok := kt.(string)
		if !ok {
			return fmt.Errorf("selections: bad key %v", kt)
		}
		var v V
		if err := dec.Decode(&v); err != nil {
			return fmt.Errorf("selections: key %q: %w", k, err)
		}
		m.Set(k, v)
	}
	_, err = dec.Token()
	return err
}

// Map returns a plain map copy, or nil for an empty map.
func (m *OrderedMap[V]) Map() map[string]V {
	if m.Len() == 0 {
		return nil
	}
	out := make(map[string]V, len(m.values))
	for k, v := range m.values {
		out[k] = v
	}
	return out
}
