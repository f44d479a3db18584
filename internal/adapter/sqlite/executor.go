// Package sqlite runs generated statements on SQLite through database/sql
// and mattn/go-sqlite3. SQLite has no GROUPING SETS, so plans built for it
// use the synthetic strategy.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/guillermoBallester/whydiff/internal/core/domain"
	"github.com/guillermoBallester/whydiff/internal/core/port"
	"github.com/guillermoBallester/whydiff/internal/core/sqlplan"
)

// Open opens a SQLite database. URL may be a plain path, a file: URI or a
// sqlite:// URL. readOnly sets the query_only pragma on every connection.
func Open(ctx context.Context, url string, readOnly bool) (*sql.DB, error) {
	dsn := DSN(url, readOnly)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging sqlite database (10s timeout): %w", err)
	}
	return db, nil
}

// DSN converts a database URL into a go-sqlite3 data source name.
func DSN(url string, readOnly bool) string {
	dsn := url
	for _, prefix := range []string{"sqlite3://", "sqlite://"} {
		if strings.HasPrefix(dsn, prefix) {
			dsn = strings.TrimPrefix(dsn, prefix)
			break
		}
	}
	if !readOnly {
		return dsn
	}
	if !strings.HasPrefix(dsn, "file:") {
		dsn = "file:" + dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_query_only=true"
}

type Executor struct {
	db           *sql.DB
	queryTimeout time.Duration
}

func NewExecutor(db *sql.DB, queryTimeout time.Duration) *Executor {
	return &Executor{db: db, queryTimeout: queryTimeout}
}

func (e *Executor) Dialect() sqlplan.Dialect {
	return sqlplan.SQLite
}

// Columns reads the result columns of the relation without fetching rows.
func (e *Executor) Columns(ctx context.Context, rel domain.Relation) ([]string, error) {
	q, err := sqlplan.Render(sqlplan.SQLite, sqlplan.ColumnsQuery(rel))
	if err != nil {
		return nil, err
	}
	rows, err := e.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	cols := rows.Columns()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return cols, nil
}

func (e *Executor) RowCount(ctx context.Context, rel domain.Relation) (int64, error) {
	q, err := sqlplan.Render(sqlplan.SQLite, sqlplan.CountQuery(rel))
	if err != nil {
		return 0, err
	}

	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	var n int64
	if err := e.db.QueryRowContext(ctx, q).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting rows: %w", err)
	}
	return n, nil
}

// Query starts a statement. The statement's deadline lasts until the rows
// are closed.
func (e *Executor) Query(ctx context.Context, query string) (port.Rows, error) {
	ctx, cancel := e.withTimeout(ctx)
	rows, err := e.db.QueryContext(ctx, query)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("executing query: %w", err)
	}
	cols, err := rows.Columns()
	if err != nil {
		_ = rows.Close()
		cancel()
		return nil, fmt.Errorf("reading columns: %w", err)
	}
	return &sqlRows{rows: rows, cols: cols, cancel: cancel}, nil
}

func (e *Executor) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.queryTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, e.queryTimeout)
}
