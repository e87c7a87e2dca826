// Package protocol implements the framed message channel shared by every
// connection in the system: a 4-byte big-endian length prefix followed by a
// UTF-8 JSON object, encoded and decoded against fixed, ordered schemas.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Kind identifies the JSON type a schema field carries.
type Kind int

const (
	KindString Kind = iota
	KindInt
	KindFloat
	KindBool
	KindMap
	KindList
	KindAny
)

// Field is one named, typed slot in a Schema.
type Field struct {
	Name string
	Kind Kind
}

// Schema fixes the field set and order for one message kind. Higher layers
// send and receive against a named schema only; new message kinds are added
// by declaring a schema, never by touching framing code.
type Schema struct {
	name   string
	fields []Field
}

// NewSchema declares a schema with the given name and ordered fields.
//
// Precondition: field names must be unique and non-empty.
func NewSchema(name string, fields ...Field) Schema {
	return Schema{name: name, fields: fields}
}

// Name returns the schema's declared name, used in error messages and logs.
func (s Schema) Name() string { return s.name }

// Encode serializes values into the schema's named fields as a JSON object.
//
// Precondition: len(values) must equal the number of declared fields, in
// declaration order.
func (s Schema) Encode(values ...any) ([]byte, error) {
	if len(values) != len(s.fields) {
		return nil, fmt.Errorf("schema %s: expected %d values, got %d", s.name, len(s.fields), len(values))
	}

	obj := make(map[string]any, len(s.fields))
	for i, f := range s.fields {
		if err := checkKind(f, values[i]); err != nil {
			return nil, fmt.Errorf("schema %s: %w", s.name, err)
		}
		obj[f.Name] = values[i]
	}

	body, err := json.Marshal(obj)
	if err != nil {
		return nil, fmt.Errorf("schema %s: marshalling body: %w", s.name, err)
	}
	return body, nil
}

// Decode parses a JSON object body and returns the values in schema-declared
// order. A body missing a declared field is rejected; extra fields are ignored.
func (s Schema) Decode(body []byte) ([]any, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("schema %s: parsing body: %w", s.name, err)
	}

	values := make([]any, 0, len(s.fields))
	for _, f := range s.fields {
		fieldRaw, ok := raw[f.Name]
		if !ok {
			return nil, fmt.Errorf("schema %s: missing field %q", s.name, f.Name)
		}
		v, err := decodeField(f, fieldRaw)
		if err != nil {
			return nil, fmt.Errorf("schema %s: field %q: %w", s.name, f.Name, err)
		}
		values = append(values, v)
	}
	return values, nil
}

func checkKind(f Field, v any) error {
	if v == nil {
		// Nullable maps and lists are allowed; scalars are not.
		switch f.Kind {
		case KindMap, KindList, KindAny:
			return nil
		}
		return fmt.Errorf("field %q: nil value for scalar field", f.Name)
	}

	switch f.Kind {
	case KindString:
		if _, ok := v.(string); !ok {
			return fmt.Errorf("field %q: expected string, got %T", f.Name, v)
		}
	case KindInt:
		switch v.(type) {
		case int, int32, int64:
		default:
			return fmt.Errorf("field %q: expected integer, got %T", f.Name, v)
		}
	case KindFloat:
		switch v.(type) {
		case float32, float64, int:
		default:
			return fmt.Errorf("field %q: expected number, got %T", f.Name, v)
		}
	case KindBool:
		if _, ok := v.(bool); !ok {
			return fmt.Errorf("field %q: expected bool, got %T", f.Name, v)
		}
	case KindMap:
		if _, ok := v.(map[string]any); !ok {
			return fmt.Errorf("field %q: expected object, got %T", f.Name, v)
		}
	case KindList:
		switch v.(type) {
		case []any, []string:
		default:
			return fmt.Errorf("field %q: expected array, got %T", f.Name, v)
		}
	case KindAny:
	}
	return nil
}

func decodeField(f Field, raw json.RawMessage) (any, error) {
	switch f.Kind {
	case KindString:
		var v string
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		return v, nil
	case KindInt:
		var v int
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		return v, nil
	case KindFloat:
		var v float64
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		return v, nil
	case KindBool:
		var v bool
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		return v, nil
	case KindMap:
		var v map[string]any
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		return v, nil
	case KindList:
		var v []any
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		return v, nil
	default:
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		return v, nil
	}
}
