package storage

import (
	"database/sql"
	"strings"
)

func closeWithError(cl interface{ Close() error }, err *error) {
	if cErr := cl.Close(); cErr != nil && *err == nil {
		*err = cErr
	}
}

func rollbackWithError(rb interface{ Rollback() error }, err *error) {
	if cErr := rb.Rollback(); cErr != nil && *err == nil && cErr != sql.ErrTxDone {
		*err = cErr
	}
}

// nullableDroneID maps drone ID 0 to NULL for event rows.
func nullableDroneID(id int) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(id), Valid: id != 0}
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

// valuesPlaceholder returns an n-column VALUES tuple, "(?, ?, ..., ?)".
func valuesPlaceholder(n int) string {
	return "(" + strings.Repeat("?, ", n-1) + "?)"
}
