// Package ordered provides a string-keyed map that remembers insertion order.
//
// Settings documents and reports are keyed by encoder, metric and file names, and
// the order those names appear in matters: it decides report layout, table
// columns and the plot style each encoder gets. Map keeps that order through
// JSON and YAML round trips.
package ordered

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Entry is a single key/value pair in a Map.
type Entry[V any] struct {
	Key   string
	Value V
}

// Map is an insertion-ordered map backed by a slice.
// Lookups are linear; the maps in this project hold tens of entries, not thousands.
type Map[V any] []Entry[V]

// Get returns the value stored under key.
func (m Map[V]) Get(key string) (V, bool) {
	for _, e := range m {
		if e.Key == key {
			return e.Value, true
		}
	}
	var zero V
	return zero, false
}

// Has reports whether key is present.
func (m Map[V]) Has(key string) bool {
	_, ok := m.Get(key)
	return ok
}

// Set replaces the value under key, or appends a new entry at the end.
func (m *Map[V]) Set(key string, value V) {
	for i := range *m {
		if (*m)[i].Key == key {
			(*m)[i].Value = value
			return
		}
	}
	*m = append(*m, Entry[V]{Key: key, Value: value})
}

// Keys returns the keys in insertion order.
func (m Map[V]) Keys() []string {
	keys := make([]string, len(m))
	for i, e := range m {
		keys[i] = e.Key
	}
	return keys
}

// Index returns the position of key, or -1.
func (m Map[V]) Index(key string) int {
	for i, e := range m {
		if e.Key == key {
			return i
		}
	}
	return -1
}

// MarshalJSON writes the map as a JSON object with keys in insertion order.
func (m Map[V]) MarshalJSON() ([]byte, error) {
	if m == nil {
		return []byte("{}"), nil
	}

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range m {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(e.Key)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(e.Value)
		if err != nil {
			return nil, fmt.Errorf("encoding %q: %w", e.Key, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a JSON object, keeping the order keys appear in the document.
// Duplicate keys are rejected, and so are unknown fields inside the values.
func (m *Map[V]) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*m = nil
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("expected JSON object, got %v", tok)
	}

	var out Map[V]
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("expected object key, got %v", tok)
		}
		if out.Has(key) {
			return fmt.Errorf("duplicate key %q", key)
		}

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("decoding %q: %w", key, err)
		}
		vdec := json.NewDecoder(bytes.NewReader(raw))
		vdec.DisallowUnknownFields()
		var value V
		if err := vdec.Decode(&value); err != nil {
			return fmt.Errorf("decoding %q: %w", key, err)
		}
		out = append(out, Entry[V]{Key: key, Value: value})
	}

	if _, err := dec.Token(); err != nil {
		return err
	}

	if len(out) == 0 {
		out = nil
	}
	*m = out
	return nil
}

// UnmarshalYAML reads a YAML mapping node, keeping document order. Unknown
// fields inside the values are rejected.
func (m *Map[V]) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode && node.ShortTag() == "!!null" {
		*m = nil
		return nil
	}
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: expected a mapping", node.Line)
	}

	out := make(Map[V], 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		keyNode, valueNode := node.Content[i], node.Content[i+1]
		key := keyNode.Value
		if out.Has(key) {
			return fmt.Errorf("line %d: duplicate key %q", keyNode.Line, key)
		}

		var value V
		if err := decodeKnownFields(valueNode, &value); err != nil {
			return fmt.Errorf("line %d: decoding %q: %w", valueNode.Line, key, err)
		}
		out = append(out, Entry[V]{Key: key, Value: value})
	}

	if len(out) == 0 {
		out = nil
	}
	*m = out
	return nil
}

// decodeKnownFields decodes node into out, failing on fields out does not
// have. Node.Decode ignores the KnownFields setting of the outer decoder.
func decodeKnownFields(node *yaml.Node, out interface{}) error {
	data, err := yaml.Marshal(node)
	if err != nil {
		return err
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	return dec.Decode(out)
}
