// Package postgres runs generated statements on PostgreSQL through a pgx
// pool. Every statement gets its own transaction so the statement timeout
// and the access mode stay scoped to it.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/guillermoBallester/whydiff/internal/core/domain"
	"github.com/guillermoBallester/whydiff/internal/core/port"
	"github.com/guillermoBallester/whydiff/internal/core/sqlplan"
)

type Executor struct {
	pool         *pgxpool.Pool
	readOnly     bool
	queryTimeout time.Duration
}

func NewExecutor(pool *pgxpool.Pool, readOnly bool, queryTimeout time.Duration) *Executor {
	return &Executor{
		pool:         pool,
		readOnly:     readOnly,
		queryTimeout: queryTimeout,
	}
}

func (e *Executor) Dialect() sqlplan.Dialect {
	return sqlplan.Postgres
}

// Columns reads the result columns of the relation without fetching rows.
func (e *Executor) Columns(ctx context.Context, rel domain.Relation) ([]string, error) {
	q, err := sqlplan.Render(sqlplan.Postgres, sqlplan.ColumnsQuery(rel))
	if err != nil {
		return nil, err
	}
	rows, err := e.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	cols := rows.Columns()
	if err := rows.Close(); err != nil {
		return nil, err
	}
	return cols, nil
}

func (e *Executor) RowCount(ctx context.Context, rel domain.Relation) (n int64, err error) {
	q, err := sqlplan.Render(sqlplan.Postgres, sqlplan.CountQuery(rel))
	if err != nil {
		return 0, err
	}
	rows, err := e.Query(ctx, q)
	if err != nil {
		return 0, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("counting rows: %w", cerr)
		}
	}()

	if !rows.Next() {
		return 0, fmt.Errorf("counting rows: no result")
	}
	row, err := rows.Values()
	if err != nil {
		return 0, fmt.Errorf("counting rows: %w", err)
	}
	n, err = domain.NewConstant(row["n"]).Int64()
	if err != nil {
		return 0, fmt.Errorf("counting rows: %w", err)
	}
	return n, nil
}

// Query starts sql inside its own transaction. The transaction commits when
// the rows are closed after a clean read and rolls back otherwise.
func (e *Executor) Query(ctx context.Context, sql string) (port.Rows, error) {
	ctx, cancel := e.withTimeout(ctx)

	tx, err := e.pool.BeginTx(ctx, pgx.TxOptions{
		AccessMode: e.accessMode(),
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}

	// SET LOCAL makes PostgreSQL cancel the statement server-side even when
	// the client stops waiting first.
	if e.queryTimeout > 0 {
		timeoutMS := e.queryTimeout.Milliseconds()
		if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL statement_timeout = '%d'", timeoutMS)); err != nil {
			_ = tx.Rollback(ctx)
			cancel()
			return nil, fmt.Errorf("setting statement timeout: %w", err)
		}
	}

	rows, err := tx.Query(ctx, sql)
	if err != nil {
		_ = tx.Rollback(ctx)
		cancel()
		return nil, fmt.Errorf("executing query: %w", err)
	}
	return newPgRows(ctx, tx, rows, cancel), nil
}

func (e *Executor) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.queryTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, e.queryTimeout)
}

func (e *Executor) accessMode() pgx.TxAccessMode {
	if e.readOnly {
		return pgx.ReadOnly
	}
	return pgx.ReadWrite
}
