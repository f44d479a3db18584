// Package sqlplan is a small query-plan representation rendered to SQL text
// per backend dialect. Services build plans from values; only the renderer
// produces text, so no placeholder substitution is ever needed.
package sqlplan

import (
	"strings"

	"github.com/guillermoBallester/whydiff/internal/core/domain"
)

// Query is a statement that yields rows.
type Query interface{ isQuery() }

// Raw is caller-supplied SELECT text, used verbatim.
type Raw struct{ SQL string }

// Select is a single SELECT block.
type Select struct {
	Items        []Item
	From         Source
	Joins        []Join
	Where        Expr
	GroupBy      []Expr
	GroupingSets [][]Expr
	Having       Expr
	OrderBy      []Order
	Limit        *int64
}

// UnionAll concatenates the rows of its branches.
type UnionAll struct{ Queries []Query }

// CTE is one named WITH entry.
type CTE struct {
	Name  string
	Query Query
}

// With prefixes Body with common table expressions.
type With struct {
	CTEs []CTE
	Body Query
}

func (Raw) isQuery()      {}
func (Select) isQuery()   {}
func (UnionAll) isQuery() {}
func (With) isQuery()     {}

// Item is one SELECT list entry.
type Item struct {
	Expr Expr
	As   string
}

// Source is something a FROM clause can read.
type Source interface{ isSource() }

// TableRef names a table; dots separate schema and table.
type TableRef struct {
	Name  string
	Alias string
}

// Subquery reads from a nested query.
type Subquery struct {
	Query Query
	Alias string
}

func (TableRef) isSource() {}
func (Subquery) isSource() {}

// Join is a JOIN clause; Left selects LEFT JOIN.
type Join struct {
	Left   bool
	Source Source
	On     Expr
}

// Order is one ORDER BY key.
type Order struct {
	Expr      Expr
	Desc      bool
	NullsLast bool
}

// Expr is a scalar expression.
type Expr interface{ isExpr() }

// Col is a possibly table-qualified column reference.
type Col struct{ Table, Name string }

// AllColumns is * or table.*.
type AllColumns struct{ Table string }

type Lit struct{ Value domain.Constant }

type Compare struct {
	Left  Expr
	Op    domain.Operator
	Right Expr
}

type And []Expr

type Or []Expr

type IsNull struct {
	Expr Expr
	Not  bool
}

type When struct{ Cond, Then Expr }

// Case is a searched CASE when Operand is nil, a simple CASE otherwise.
type Case struct {
	Operand Expr
	Whens   []When
	Else    Expr
}

type Call struct {
	Name     string
	Args     []Expr
	Distinct bool
}

// Star is the * argument of COUNT(*).
type Star struct{}

// Over applies a window to a function call.
type Over struct {
	Call        Call
	PartitionBy []Expr
	OrderBy     []Order
}

// Arith is a parenthesized binary arithmetic expression.
type Arith struct {
	Left  Expr
	Op    string
	Right Expr
}

// TypedNull is a NULL carrying the type of Source.Column where the dialect
// needs it for UNION type resolution.
type TypedNull struct{ Source, Column string }

func (Col) isExpr()        {}
func (AllColumns) isExpr() {}
func (Lit) isExpr()        {}
func (Compare) isExpr()    {}
func (And) isExpr()        {}
func (Or) isExpr()         {}
func (IsNull) isExpr()     {}
func (Case) isExpr()       {}
func (Call) isExpr()       {}
func (Star) isExpr()       {}
func (Over) isExpr()       {}
func (Arith) isExpr()      {}
func (TypedNull) isExpr()  {}

// C references an unqualified column.
func C(name string) Col { return Col{Name: name} }

// Q references a table-qualified column.
func Q(table, name string) Col { return Col{Table: table, Name: name} }

// L wraps a Go value as a literal.
func L(v any) Lit { return Lit{Value: domain.NewConstant(v)} }

func Eq(l, r Expr) Compare { return Compare{Left: l, Op: domain.Equals, Right: r} }
func Gt(l, r Expr) Compare { return Compare{Left: l, Op: domain.GreaterThan, Right: r} }

func CountStar() Call { return Call{Name: "COUNT", Args: []Expr{Star{}}} }

// Int64 returns a pointer for Select.Limit.
func Int64(n int64) *int64 { return &n }

// PredicateExpr turns a domain predicate into an expression over an
// unqualified column. Comparisons against NULL become IS [NOT] NULL.
func PredicateExpr(p domain.Predicate) Expr {
	col := C(string(p.Column))
	if p.Constant.IsNull() {
		switch p.Operator {
		case domain.Equals:
			return IsNull{Expr: col}
		case domain.NotEquals:
			return IsNull{Expr: col, Not: true}
		}
	}
	return Compare{Left: col, Op: p.Operator, Right: Lit{Value: p.Constant}}
}

// Conjunction ANDs the expressions of predicates.
func Conjunction(preds []domain.Predicate) Expr {
	if len(preds) == 1 {
		return PredicateExpr(preds[0])
	}
	and := make(And, len(preds))
	for i, p := range preds {
		and[i] = PredicateExpr(p)
	}
	return and
}

// RelationQuery reads every column of a relation.
func RelationQuery(r domain.Relation) Query {
	if r.IsQuery() {
		return Raw{SQL: r.Text()}
	}
	return Select{
		Items: []Item{{Expr: AllColumns{}}},
		From:  TableRef{Name: r.Text()},
	}
}

// ColumnsQuery selects no rows from r; its result columns are r's columns.
func ColumnsQuery(r domain.Relation) Query {
	return Select{
		Items: []Item{{Expr: AllColumns{}}},
		From:  Subquery{Query: RelationQuery(r), Alias: "shape"},
		Limit: Int64(0),
	}
}

// CountQuery counts the rows of r into the column n.
func CountQuery(r domain.Relation) Query {
	return Select{
		Items: []Item{{Expr: CountStar(), As: "n"}},
		From:  Subquery{Query: RelationQuery(r), Alias: "counted"},
	}
}

// SplitQualified splits schema.table, ignoring empty parts.
func SplitQualified(name string) []string {
	var parts []string
	for _, p := range strings.Split(name, ".") {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}
