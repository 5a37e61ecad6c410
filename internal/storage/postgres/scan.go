package postgres

import (
	"github.com/jackc/pgx/v5"

	"ashare-data-lab/internal/storage"
)

// qualified returns a sanitized schema-qualified relation name.
func qualified(schema, table string) string {
	return pgx.Identifier{schema, table}.Sanitize()
}

// Row mapping helpers. The accessors return column values with pgx native
// Go types; numeric columns are DOUBLE PRECISION (float64) and integer
// columns surface as int16/int32/int64 depending on width.

func rowString(r storage.Row, col string) string {
	if v, ok := r[col].(string); ok {
		return v
	}
	return ""
}

func rowInt64(r storage.Row, col string) int64 {
	switch v := r[col].(type) {
	case int64:
		return v
	case int32:
		return int64(v)
	case int16:
		return int64(v)
	}
	return 0
}

func rowFloat(r storage.Row, col string) float64 {
	if v, ok := r[col].(float64); ok {
		return v
	}
	return 0
}

func rowFloatPtr(r storage.Row, col string) *float64 {
	if v, ok := r[col].(float64); ok {
		return &v
	}
	return nil
}

func rowBool(r storage.Row, col string) bool {
	v, _ := r[col].(bool)
	return v
}
