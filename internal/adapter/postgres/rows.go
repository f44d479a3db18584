package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

// pgRows adapts pgx.Rows to port.Rows and ends the statement's transaction
// on Close.
type pgRows struct {
	ctx    context.Context
	tx     pgx.Tx
	rows   pgx.Rows
	cols   []string
	cancel context.CancelFunc
	closed bool
}

func newPgRows(ctx context.Context, tx pgx.Tx, rows pgx.Rows, cancel context.CancelFunc) *pgRows {
	fields := rows.FieldDescriptions()
	cols := make([]string, len(fields))
	for i, fd := range fields {
		cols[i] = fd.Name
	}
	return &pgRows{ctx: ctx, tx: tx, rows: rows, cols: cols, cancel: cancel}
}

func (r *pgRows) Next() bool        { return r.rows.Next() }
func (r *pgRows) Err() error        { return r.rows.Err() }
func (r *pgRows) Columns() []string { return r.cols }

// Values returns the current row keyed by column name, with numeric, time
// and uuid values converted to types the core understands.
func (r *pgRows) Values() (map[string]any, error) {
	vals, err := r.rows.Values()
	if err != nil {
		return nil, fmt.Errorf("reading row values: %w", err)
	}
	row := make(map[string]any, len(r.cols))
	for i, name := range r.cols {
		v, err := normalize(vals[i])
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", name, err)
		}
		row[name] = v
	}
	return row, nil
}

func (r *pgRows) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	defer r.cancel()

	r.rows.Close()
	if err := r.rows.Err(); err != nil {
		_ = r.tx.Rollback(r.ctx)
		return fmt.Errorf("executing query: %w", err)
	}
	if err := r.tx.Commit(r.ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func normalize(v any) (any, error) {
	switch x := v.(type) {
	case pgtype.Numeric:
		return numericValue(x)
	case pgtype.Time:
		if !x.Valid {
			return nil, nil
		}
		return time.UnixMicro(x.Microseconds).UTC().Format("15:04:05.999999"), nil
	case [16]byte:
		return fmt.Sprintf("%x-%x-%x-%x-%x", x[0:4], x[4:6], x[6:8], x[8:10], x[10:16]), nil
	default:
		return v, nil
	}
}

// numericValue keeps finite numerics exact and maps NaN and infinities to
// float64.
func numericValue(n pgtype.Numeric) (any, error) {
	if !n.Valid {
		return nil, nil
	}
	if n.NaN || n.InfinityModifier != pgtype.Finite {
		f, err := n.Float64Value()
		if err != nil {
			return nil, err
		}
		return f.Float64, nil
	}
	return decimal.NewFromBigInt(n.Int, n.Exp), nil
}
