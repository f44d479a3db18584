package sqlite

import (
	"context"
	"database/sql"
	"fmt"
)

// sqlRows adapts *sql.Rows to port.Rows.
type sqlRows struct {
	rows   *sql.Rows
	cols   []string
	cancel context.CancelFunc
}

func (r *sqlRows) Next() bool        { return r.rows.Next() }
func (r *sqlRows) Err() error        { return r.rows.Err() }
func (r *sqlRows) Columns() []string { return r.cols }

// Values scans the current row. TEXT values arrive as []byte for some
// declared types and are returned as strings.
func (r *sqlRows) Values() (map[string]any, error) {
	vals := make([]any, len(r.cols))
	ptrs := make([]any, len(r.cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	if err := r.rows.Scan(ptrs...); err != nil {
		return nil, fmt.Errorf("reading row values: %w", err)
	}
	row := make(map[string]any, len(r.cols))
	for i, c := range r.cols {
		if b, ok := vals[i].([]byte); ok {
			row[c] = string(b)
			continue
		}
		row[c] = vals[i]
	}
	return row, nil
}

func (r *sqlRows) Close() error {
	defer r.cancel()
	return r.rows.Close()
}
