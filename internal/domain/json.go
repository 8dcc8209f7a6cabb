package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"

	"github.com/timmy/geoimport/internal/reader"
)

// StringArray stores a string slice as JSON text.
type StringArray []string

// Value implements the driver.Valuer interface for database serialization.
func (a StringArray) Value() (driver.Value, error) {
	if a == nil {
		return "[]", nil
	}
	return marshalText(a)
}

// Scan implements the sql.Scanner interface for database deserialization.
func (a *StringArray) Scan(value interface{}) error {
	if value == nil {
		*a = StringArray{}
		return nil
	}
	return unmarshalText(value, a, "StringArray")
}

// AttributeList stores a layer schema as JSON text.
type AttributeList []reader.Attribute

func (a AttributeList) Value() (driver.Value, error) {
	if a == nil {
		return "[]", nil
	}
	return marshalText(a)
}

func (a *AttributeList) Scan(value interface{}) error {
	if value == nil {
		*a = AttributeList{}
		return nil
	}
	return unmarshalText(value, a, "AttributeList")
}

// JSONMap stores feature properties as a JSON object.
type JSONMap map[string]interface{}

func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	return marshalText(m)
}

func (m *JSONMap) Scan(value interface{}) error {
	if value == nil {
		*m = JSONMap{}
		return nil
	}
	return unmarshalText(value, m, "JSONMap")
}

// RawJSON stores an already encoded JSON document, such as a geometry.
type RawJSON []byte

func (r RawJSON) Value() (driver.Value, error) {
	if len(r) == 0 {
		return nil, nil
	}
	return string(r), nil
}

func (r *RawJSON) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*r = nil
	case []byte:
		*r = append(RawJSON(nil), v...)
	case string:
		*r = RawJSON(v)
	default:
		return errors.New("failed to scan RawJSON")
	}
	return nil
}

// MarshalJSON emits the stored document as is.
func (r RawJSON) MarshalJSON() ([]byte, error) {
	if len(r) == 0 {
		return []byte("null"), nil
	}
	return r, nil
}

func marshalText(v interface{}) (driver.Value, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func unmarshalText(value interface{}, dst interface{}, name string) error {
	bytes, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return errors.New("failed to scan " + name)
		}
		bytes = []byte(str)
	}
	return json.Unmarshal(bytes, dst)
}
