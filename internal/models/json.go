package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// jsonValue marshals v for storage in a JSONB column.
func jsonValue(v interface{}) (driver.Value, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal jsonb value: %w", err)
	}
	return data, nil
}

// jsonScan unmarshals a JSONB column into dest, tolerating NULL and empty
// payloads.
func jsonScan(src interface{}, dest interface{}) error {
	if src == nil {
		return nil
	}
	var data []byte
	switch v := src.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for jsonb scan", src)
	}
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, dest)
}
