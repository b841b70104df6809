package frame

import (
	"database/sql"
)

// FromRows drains a database/sql result set into a Frame. The rows are
// fully materialized and closed before returning; column order follows
// the query's projection.
func FromRows(rows *sql.Rows) (Frame, error) {
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []map[string]any
	values := make([]any, len(columns))
	scan := make([]any, len(columns))
	for i := range values {
		scan[i] = &values[i]
	}
	for rows.Next() {
		if err := rows.Scan(scan...); err != nil {
			return nil, err
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			v := values[i]
			// Drivers hand back []byte for text columns; keep rows
			// JSON-friendly.
			if b, ok := v.([]byte); ok {
				v = string(b)
			}
			row[col] = v
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &mapFrame{columns: columns, rows: out}, nil
}
