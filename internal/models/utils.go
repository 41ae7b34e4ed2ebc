package models

import (
	"database/sql/driver"
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/customeros/mailwarden/internal/enum"
)

// JSONMap represents a JSON object that can be stored in PostgreSQL
type JSONMap map[string]interface{}

// Value implements the driver.Valuer interface for JSONMap
func (j JSONMap) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// Scan implements the sql.Scanner interface for JSONMap
func (j *JSONMap) Scan(value interface{}) error {
	if value == nil {
		*j = make(JSONMap)
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return nil
	}

	return json.Unmarshal(bytes, j)
}

// BounceRule maps a bounce type to the substrings that identify it.
type BounceRule struct {
	Type     enum.BounceType `json:"type" yaml:"type"`
	Patterns []string        `json:"patterns" yaml:"patterns"`
}

// BounceRules is an ordered rule list; the first matching rule wins.
type BounceRules []BounceRule

func (r BounceRules) Value() (driver.Value, error) {
	if len(r) == 0 {
		return nil, nil
	}
	return json.Marshal(r)
}

func (r *BounceRules) Scan(value interface{}) error {
	if value == nil {
		*r = nil
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return errors.Errorf("unsupported bounce rules type %T", value)
	}

	return json.Unmarshal(bytes, r)
}
