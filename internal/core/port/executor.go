package port

import (
	"context"

	"github.com/guillermoBallester/whydiff/internal/core/domain"
	"github.com/guillermoBallester/whydiff/internal/core/sqlplan"
)

// Rows iterates a result set by column name. Callers must Close it on every
// path; Close releases the underlying connection or transaction.
type Rows interface {
	Next() bool
	// Values returns the current row keyed by column name.
	Values() (map[string]any, error)
	Columns() []string
	Err() error
	Close() error
}

// RelationalExecutor runs generated SQL against one backend.
type RelationalExecutor interface {
	// Columns returns the ordered column names of a relation.
	Columns(ctx context.Context, r domain.Relation) ([]string, error)
	RowCount(ctx context.Context, r domain.Relation) (int64, error)
	Query(ctx context.Context, sql string) (Rows, error)
	// Dialect selects rendering and planner strategy.
	Dialect() sqlplan.Dialect
}

// SchemaProvider reads declared column types of base tables.
type SchemaProvider interface {
	// ResolveTable finds the table an optionally qualified name refers to
	// and reads its columns in declaration order. It returns
	// domain.ErrNotFound when no visible table matches. Statements about
	// the table must use the returned qualified name.
	ResolveTable(ctx context.Context, table string) (domain.TableSchema, error)
}
