package sqlutil

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/sqlc-dev/pqtype"
)

// ToNullRawMessage marshals v into a nullable JSONB value. A nil v is NULL.
func ToNullRawMessage(v any) (pqtype.NullRawMessage, error) {
	if v == nil {
		return pqtype.NullRawMessage{Valid: false}, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return pqtype.NullRawMessage{}, fmt.Errorf("marshal jsonb: %w", err)
	}
	return pqtype.NullRawMessage{RawMessage: raw, Valid: true}, nil
}

// FromNullRawMessage unmarshals a nullable JSONB value into dst.
// It reports false for NULL.
func FromNullRawMessage(val pqtype.NullRawMessage, dst any) (bool, error) {
	if !val.Valid {
		return false, nil
	}
	if err := json.Unmarshal(val.RawMessage, dst); err != nil {
		return false, fmt.Errorf("unmarshal jsonb: %w", err)
	}
	return true, nil
}

// FromSqlString converts sql.NullString to Go string with default
func FromSqlString(val sql.NullString, defaultVal string) string {
	if !val.Valid {
		return defaultVal
	}
	return val.String
}
