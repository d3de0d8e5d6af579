package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
)

// JSONMap is a JSON document stored in a single column. It backs both class
// schemas and object payloads, which arrive as arbitrary JSON objects.
type JSONMap map[string]interface{}

// Value serializes the document for storage.
func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan deserializes the document from storage.
func (m *JSONMap) Scan(value interface{}) error {
	if value == nil {
		*m = nil
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return errors.New("unsupported type for JSONMap")
	}
	if len(data) == 0 {
		*m = nil
		return nil
	}
	return json.Unmarshal(data, m)
}
