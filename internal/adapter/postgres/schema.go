package postgres

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/guillermoBallester/whydiff/internal/core/domain"
	"github.com/guillermoBallester/whydiff/internal/core/sqlplan"
)

// SchemaProvider reads declared column types from the system catalog.
// Unqualified names resolve within schemas, or within every non-system
// schema when schemas is empty.
type SchemaProvider struct {
	pool    *pgxpool.Pool
	schemas []string
}

func NewSchemaProvider(pool *pgxpool.Pool, schemas []string) *SchemaProvider {
	return &SchemaProvider{pool: pool, schemas: schemas}
}

// ResolveTable always qualifies the result with its schema. Types are
// reported as format_type renders them, e.g. "character varying(8)" or
// "timestamp with time zone".
func (p *SchemaProvider) ResolveTable(ctx context.Context, table string) (domain.TableSchema, error) {
	schema, name, err := p.resolve(ctx, table)
	if err != nil {
		return domain.TableSchema{}, err
	}
	cols, err := p.columnTypes(ctx, schema, name)
	if err != nil {
		return domain.TableSchema{}, err
	}
	return domain.TableSchema{Schema: schema, Name: name, Columns: cols}, nil
}

func (p *SchemaProvider) columnTypes(ctx context.Context, schema, name string) ([]domain.ColumnType, error) {
	rows, err := p.pool.Query(ctx, queryColumnTypes, schema, name)
	if err != nil {
		return nil, fmt.Errorf("querying column types: %w", err)
	}
	defer rows.Close()

	var out []domain.ColumnType
	for rows.Next() {
		var col, declared string
		if err := rows.Scan(&col, &declared); err != nil {
			return nil, fmt.Errorf("scanning column type: %w", err)
		}
		out = append(out, domain.ColumnType{Name: domain.Column(col), DeclaredType: declared})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating column types: %w", err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("table %q %w in schema %q", name, domain.ErrNotFound, schema)
	}
	return out, nil
}

func (p *SchemaProvider) resolve(ctx context.Context, table string) (schema, name string, err error) {
	parts := sqlplan.SplitQualified(table)
	switch len(parts) {
	case 2:
		if len(p.schemas) > 0 && !slices.Contains(p.schemas, parts[0]) {
			return "", "", fmt.Errorf("table %q %w in schemas %v", table, domain.ErrNotFound, p.schemas)
		}
		return parts[0], parts[1], nil
	case 1:
		name = parts[0]
	default:
		return "", "", fmt.Errorf("%w: invalid table name %q", domain.ErrInvalidArgument, table)
	}

	filter, filterArgs := schemaFilter(p.schemas, "n.nspname", 2)
	args := append([]any{name}, filterArgs...)
	err = p.pool.QueryRow(ctx, fmt.Sprintf(queryResolveSchema, filter), args...).Scan(&schema)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", "", fmt.Errorf("table %q %w", name, domain.ErrNotFound)
		}
		return "", "", fmt.Errorf("resolving schema of %q: %w", name, err)
	}
	return schema, name, nil
}
