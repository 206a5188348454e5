package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
)

// JSONText stores a JSON document in a CLOB column. An invalid value is stored as NULL.
type JSONText[T any] struct {
	Data  T
	Valid bool
}

// NewJSONText wraps v as a valid JSON column value.
func NewJSONText[T any](v T) JSONText[T] {
	return JSONText[T]{Data: v, Valid: true}
}

// Value implements the driver.Valuer interface
func (j JSONText[T]) Value() (driver.Value, error) {
	if !j.Valid {
		return nil, nil
	}
	jsonData, err := json.Marshal(j.Data)
	if err != nil {
		return nil, err
	}
	// Oracle CLOB binds accept strings, not []byte
	return string(jsonData), nil
}

// Scan implements the sql.Scanner interface
func (j *JSONText[T]) Scan(value interface{}) error {
	var zero T
	j.Data, j.Valid = zero, false
	if value == nil {
		return nil
	}

	var bytesToParse []byte
	switch v := value.(type) {
	case []byte:
		bytesToParse = v
	case string:
		bytesToParse = []byte(v)
	default:
		return errors.New("JSONText Scan: unsupported type " + fmt.Sprintf("%T", value))
	}

	if len(bytesToParse) == 0 || string(bytesToParse) == "null" {
		return nil
	}
	if err := json.Unmarshal(bytesToParse, &j.Data); err != nil {
		return err
	}
	j.Valid = true
	return nil
}
