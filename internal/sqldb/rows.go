package sqldb

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/shineum/skillkit/internal/format"
)

// scanRows drains rows into a Result, keeping driver values as scanned.
func scanRows(rows *sql.Rows) (*format.Result, error) {
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}

	res := &format.Result{Columns: cols}
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		for i, v := range vals {
			vals[i] = normalize(v)
		}
		res.Rows = append(res.Rows, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}
	return res, nil
}

// normalize turns driver-specific values into ones format renders readably.
func normalize(v any) any {
	switch t := v.(type) {
	case [16]byte:
		return uuid.UUID(t).String()
	case []byte:
		return string(t)
	default:
		return v
	}
}
