package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/guillermoBallester/whydiff/internal/core/domain"
	"github.com/guillermoBallester/whydiff/internal/core/sqlplan"
)

// SchemaProvider reads declared column types from pragma_table_info.
type SchemaProvider struct {
	db *sql.DB
}

func NewSchemaProvider(db *sql.DB) *SchemaProvider {
	return &SchemaProvider{db: db}
}

// ResolveTable accepts table or schema.table, where schema is an attached
// database name such as main. An unqualified name stays unqualified, and
// resolves the way SQLite resolves it in statements.
func (p *SchemaProvider) ResolveTable(ctx context.Context, table string) (domain.TableSchema, error) {
	parts := sqlplan.SplitQualified(table)
	var ts domain.TableSchema
	switch len(parts) {
	case 1:
		ts.Name = parts[0]
	case 2:
		ts.Schema, ts.Name = parts[0], parts[1]
	default:
		return ts, fmt.Errorf("%w: invalid table name %q", domain.ErrInvalidArgument, table)
	}
	cols, err := p.columnTypes(ctx, ts)
	if err != nil {
		return domain.TableSchema{}, err
	}
	ts.Columns = cols
	return ts, nil
}

func (p *SchemaProvider) columnTypes(ctx context.Context, ts domain.TableSchema) ([]domain.ColumnType, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if ts.Schema == "" {
		rows, err = p.db.QueryContext(ctx, "SELECT name, type FROM pragma_table_info(?) ORDER BY cid", ts.Name)
	} else {
		rows, err = p.db.QueryContext(ctx, "SELECT name, type FROM pragma_table_info(?, ?) ORDER BY cid", ts.Name, ts.Schema)
	}
	if err != nil {
		return nil, fmt.Errorf("querying table info: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []domain.ColumnType
	for rows.Next() {
		var name, declared string
		if err := rows.Scan(&name, &declared); err != nil {
			return nil, fmt.Errorf("scanning table info: %w", err)
		}
		out = append(out, domain.ColumnType{Name: domain.Column(name), DeclaredType: declared})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating table info: %w", err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("table %s: %w", ts.QualifiedName(), domain.ErrNotFound)
	}
	return out, nil
}
