package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JSONB is a custom type for handling JSONB fields
type JSONB map[string]interface{}

// Value implements the driver.Valuer interface
// Returns JSON as string for compatibility with simple protocol mode
func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	bytes, err := json.Marshal(j)
	if err != nil {
		return nil, err
	}
	return string(bytes), nil
}

// Scan implements the sql.Scanner interface
func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	return json.Unmarshal(jsonBytes(value), j)
}

// ToJSONB converts any JSON-serialisable value into a JSONB map.
// Used to snapshot entities for audit entries.
func ToJSONB(v interface{}) JSONB {
	if v == nil {
		return nil
	}
	bytes, err := json.Marshal(v)
	if err != nil {
		return JSONB{"marshal_error": err.Error()}
	}
	var out JSONB
	if err := json.Unmarshal(bytes, &out); err != nil {
		return JSONB{"value": string(bytes)}
	}
	return out
}

// jsonBytes normalises driver values; lib/pq hands back []byte, simple protocol may give string
func jsonBytes(value interface{}) []byte {
	switch v := value.(type) {
	case []byte:
		return v
	case string:
		return []byte(v)
	default:
		return []byte(fmt.Sprintf("%v", v))
	}
}
