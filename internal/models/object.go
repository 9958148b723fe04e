package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNotObject is returned when a JSON value expected to be an object is something else.
var ErrNotObject = errors.New("json value is not an object")

// Object is a JSON object that remembers the order of its keys and keeps every
// value as raw JSON, so documents round-trip without reshuffling or losing fields.
type Object struct {
	keys   []string
	values map[string]json.RawMessage
}

// Keys returns the keys in document order.
func (o *Object) Keys() []string {
	return o.keys
}

// Has reports whether the key is present.
func (o *Object) Has(key string) bool {
	_, ok := o.values[key]
	return ok
}

// Get returns the raw value stored under key.
func (o *Object) Get(key string) (json.RawMessage, bool) {
	raw, ok := o.values[key]
	return raw, ok
}

// Set stores a raw value. New keys are appended after the existing ones.
func (o *Object) Set(key string, raw json.RawMessage) {
	if o.values == nil {
		o.values = make(map[string]json.RawMessage)
	}
	if _, ok := o.values[key]; !ok {
		o.keys = append(o.keys, key)
	}
	o.values[key] = raw
}

// SetValue marshals v and stores it under key.
func (o *Object) SetValue(key string, v any) error {
	raw, err := marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %q: %w", key, err)
	}
	o.Set(key, raw)
	return nil
}

// Delete removes a key.
func (o *Object) Delete(key string) {
	if _, ok := o.values[key]; !ok {
		return
	}
	delete(o.values, key)
	for i, k := range o.keys {
		if k == key {
			o.keys = append(o.keys[:i], o.keys[i+1:]...)
			break
		}
	}
}

// Clone returns a copy that shares no key slice or map with o.
func (o *Object) Clone() Object {
	out := Object{
		keys:   append([]string(nil), o.keys...),
		values: make(map[string]json.RawMessage, len(o.values)),
	}
	for k, v := range o.values {
		out.values[k] = v
	}
	return out
}

// UnmarshalJSON implements json.Unmarshaler.
func (o *Object) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("failed to read object: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return ErrNotObject
	}

	o.keys = nil
	o.values = make(map[string]json.RawMessage)
	for dec.More() {
		tok, err = dec.Token()
		if err != nil {
			return fmt.Errorf("failed to read object key: %w", err)
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("unexpected object key %v", tok)
		}
		var raw json.RawMessage
		if err = dec.Decode(&raw); err != nil {
			return fmt.Errorf("failed to read value of %q: %w", key, err)
		}
		o.Set(key, raw)
	}

	if _, err = dec.Token(); err != nil {
		return fmt.Errorf("failed to close object: %w", err)
	}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (o Object) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range o.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		encodedKey, err := marshal(key)
		if err != nil {
			return nil, err
		}
		buf.Write(encodedKey)
		buf.WriteByte(':')
		raw := o.values[key]
		if len(raw) == 0 {
			raw = json.RawMessage("null")
		}
		buf.Write(raw)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// marshal encodes v without HTML escaping, matching how datasets are written.
func marshal(v any) (json.RawMessage, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
