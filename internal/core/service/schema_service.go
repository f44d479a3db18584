package service

import (
	"context"
	"fmt"

	"github.com/guillermoBallester/whydiff/internal/core/domain"
	"github.com/guillermoBallester/whydiff/internal/core/port"
)

// ColumnDescription is a base-table column with the statistics its type
// supports.
type ColumnDescription struct {
	Name         domain.Column    `json:"name"`
	DeclaredType string           `json:"declared_type"`
	Class        domain.TypeClass `json:"class"`
}

// TableDescription is a table under its resolved name.
type TableDescription struct {
	Table   string              `json:"table"`
	Columns []ColumnDescription `json:"columns"`
}

// SchemaService describes tables for callers choosing explanation columns.
type SchemaService struct {
	schema port.SchemaProvider
}

func NewSchemaService(schema port.SchemaProvider) *SchemaService {
	return &SchemaService{schema: schema}
}

// DescribeTable lists the columns of table in declaration order. Table in
// the result is the qualified name the backend resolved.
func (s *SchemaService) DescribeTable(ctx context.Context, table string) (TableDescription, error) {
	ts, err := s.schema.ResolveTable(ctx, table)
	if err != nil {
		return TableDescription{}, fmt.Errorf("describing %s: %w", table, err)
	}
	out := TableDescription{
		Table:   ts.QualifiedName(),
		Columns: make([]ColumnDescription, len(ts.Columns)),
	}
	for i, ct := range ts.Columns {
		out.Columns[i] = ColumnDescription{
			Name:         ct.Name,
			DeclaredType: ct.DeclaredType,
			Class:        domain.ClassifyType(ct.DeclaredType),
		}
	}
	return out, nil
}

// SplitColumns partitions described columns into candidates for value
// explanations and for range explanations.
func SplitColumns(cols []ColumnDescription) (values, ranges []domain.Column) {
	for _, c := range cols {
		switch {
		case c.Class == domain.TypeClassRange:
			ranges = append(ranges, c.Name)
		case c.Class.SetValued():
			values = append(values, c.Name)
		}
	}
	return values, ranges
}
