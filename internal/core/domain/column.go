package domain

import (
	"regexp"
	"strings"
)

// Column is the canonical identity of a relation column. Two columns with
// the same name are the same column.
type Column string

// AllRows is the source of COUNT(*).
const AllRows Column = "*"

func (c Column) String() string { return string(c) }

// Columns converts plain names into Columns.
func Columns(names ...string) []Column {
	out := make([]Column, len(names))
	for i, n := range names {
		out[i] = Column(n)
	}
	return out
}

// ColumnType is a base-table column and the type it was declared with.
type ColumnType struct {
	Name         Column `json:"name"`
	DeclaredType string `json:"declared_type"`
}

// TableSchema is a base table under the schema it resolved to, with its
// columns in declaration order. Schema is empty when the backend needs no
// qualifier to reach the table.
type TableSchema struct {
	Schema  string       `json:"schema,omitempty"`
	Name    string       `json:"name"`
	Columns []ColumnType `json:"columns"`
}

// QualifiedName returns schema.name, or name without a schema.
func (t TableSchema) QualifiedName() string {
	if t.Schema == "" {
		return t.Name
	}
	return t.Schema + "." + t.Name
}

// TypeClass says which statistics can be computed for a declared type.
type TypeClass uint8

const (
	TypeClassNeither TypeClass = 0
	TypeClassSet     TypeClass = 1
	TypeClassRange   TypeClass = 2
	TypeClassBoth              = TypeClassSet | TypeClassRange
)

func (c TypeClass) SetValued() bool   { return c&TypeClassSet != 0 }
func (c TypeClass) RangeValued() bool { return c&TypeClassRange != 0 }

func (c TypeClass) String() string {
	switch c {
	case TypeClassSet:
		return "set"
	case TypeClassRange:
		return "range"
	case TypeClassBoth:
		return "both"
	default:
		return "neither"
	}
}

func (c TypeClass) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

var typeTable = map[string]TypeClass{
	"boolean":  TypeClassSet,
	"char":     TypeClassSet,
	"nchar":    TypeClassSet,
	"nvarchar": TypeClassSet,
	"varchar":  TypeClassSet,
	"text":     TypeClassSet,

	"bigint":    TypeClassRange,
	"date":      TypeClassRange,
	"datetime":  TypeClassRange,
	"decimal":   TypeClassRange,
	"float":     TypeClassRange,
	"numeric":   TypeClassRange,
	"real":      TypeClassRange,
	"time":      TypeClassRange,
	"timestamp": TypeClassRange,

	"integer":  TypeClassBoth,
	"smallint": TypeClassBoth,
}

// typeAliases folds Postgres and SQLite spellings onto the names in typeTable.
var typeAliases = map[string]string{
	"bool":                        "boolean",
	"character":                   "char",
	"bpchar":                      "char",
	"character varying":           "varchar",
	"national character":          "nchar",
	"national character varying":  "nvarchar",
	"int":                         "integer",
	"int4":                        "integer",
	"int2":                        "smallint",
	"int8":                        "bigint",
	"float4":                      "real",
	"float8":                      "float",
	"double":                      "float",
	"double precision":            "float",
	"timestamp without time zone": "timestamp",
	"timestamp with time zone":    "timestamp",
	"timestamptz":                 "timestamp",
	"time without time zone":      "time",
	"time with time zone":         "time",
	"timetz":                      "time",
}

var typeParams = regexp.MustCompile(`\s*\([^)]*\)`)

// NormalizeType lower-cases a declared type, strips its parameters and folds
// known aliases. Array types are returned unchanged so they classify as
// neither.
func NormalizeType(declared string) string {
	t := strings.ToLower(strings.TrimSpace(declared))
	t = typeParams.ReplaceAllString(t, "")
	t = strings.Join(strings.Fields(t), " ")
	if alias, ok := typeAliases[t]; ok {
		return alias
	}
	return t
}

// ClassifyType maps a declared column type onto the statistics it supports.
func ClassifyType(declared string) TypeClass {
	return typeTable[NormalizeType(declared)]
}
