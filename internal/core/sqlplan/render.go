package sqlplan

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrUnsupported is returned when a plan uses a construct the dialect lacks.
var ErrUnsupported = errors.New("construct not supported by dialect")

// Render turns a query plan into SQL text for d.
func Render(d Dialect, q Query) (string, error) {
	r := &renderer{d: d}
	if err := r.query(q); err != nil {
		return "", err
	}
	return r.sb.String(), nil
}

// RenderExpr renders a single expression.
func RenderExpr(d Dialect, e Expr) (string, error) {
	r := &renderer{d: d}
	if err := r.expr(e); err != nil {
		return "", err
	}
	return r.sb.String(), nil
}

type renderer struct {
	d  Dialect
	sb strings.Builder
}

func (r *renderer) write(parts ...string) {
	for _, p := range parts {
		r.sb.WriteString(p)
	}
}

func (r *renderer) ident(name string) {
	r.write(r.d.QuoteIdent(name))
}

func (r *renderer) query(q Query) error {
	switch q := q.(type) {
	case Raw:
		if strings.TrimSpace(q.SQL) == "" {
			return fmt.Errorf("empty raw query")
		}
		r.write(q.SQL)
		return nil
	case Select:
		return r.selectQuery(q)
	case UnionAll:
		return r.union(q)
	case With:
		return r.with(q)
	case nil:
		return fmt.Errorf("nil query")
	default:
		return fmt.Errorf("unknown query type %T", q)
	}
}

func (r *renderer) with(w With) error {
	if len(w.CTEs) == 0 {
		return r.query(w.Body)
	}
	r.write("WITH ")
	for i, cte := range w.CTEs {
		if i > 0 {
			r.write(", ")
		}
		r.ident(cte.Name)
		r.write(" AS (\n")
		if err := r.query(cte.Query); err != nil {
			return fmt.Errorf("cte %s: %w", cte.Name, err)
		}
		r.write("\n)")
	}
	r.write("\n")
	return r.query(w.Body)
}

func (r *renderer) union(u UnionAll) error {
	if len(u.Queries) == 0 {
		return fmt.Errorf("empty UNION ALL")
	}
	for i, q := range u.Queries {
		if i > 0 {
			r.write("\nUNION ALL\n")
		}
		sel, ok := q.(Select)
		if !ok {
			return fmt.Errorf("UNION ALL branch %d must be a SELECT, got %T", i, q)
		}
		if len(sel.OrderBy) > 0 || sel.Limit != nil {
			return fmt.Errorf("UNION ALL branch %d may not order or limit", i)
		}
		if err := r.selectQuery(sel); err != nil {
			return err
		}
	}
	return nil
}

func (r *renderer) selectQuery(s Select) error {
	if len(s.Items) == 0 {
		return fmt.Errorf("SELECT without items")
	}
	r.write("SELECT ")
	for i, item := range s.Items {
		if i > 0 {
			r.write(", ")
		}
		if err := r.expr(item.Expr); err != nil {
			return err
		}
		if item.As != "" {
			r.write(" AS ")
			r.ident(item.As)
		}
	}

	if s.From != nil {
		r.write("\nFROM ")
		if err := r.source(s.From); err != nil {
			return err
		}
	}
	for _, j := range s.Joins {
		if j.Left {
			r.write("\nLEFT JOIN ")
		} else {
			r.write("\nJOIN ")
		}
		if err := r.source(j.Source); err != nil {
			return err
		}
		r.write(" ON ")
		if err := r.expr(j.On); err != nil {
			return err
		}
	}

	if s.Where != nil {
		r.write("\nWHERE ")
		if err := r.expr(s.Where); err != nil {
			return err
		}
	}

	if len(s.GroupBy) > 0 && len(s.GroupingSets) > 0 {
		return fmt.Errorf("GROUP BY and GROUPING SETS are exclusive")
	}
	if len(s.GroupBy) > 0 {
		r.write("\nGROUP BY ")
		if err := r.exprList(s.GroupBy); err != nil {
			return err
		}
	}
	if len(s.GroupingSets) > 0 {
		if !r.d.SupportsGroupingSets() {
			return fmt.Errorf("%w: %s has no GROUPING SETS", ErrUnsupported, r.d.Name())
		}
		r.write("\nGROUP BY GROUPING SETS (")
		for i, set := range s.GroupingSets {
			if i > 0 {
				r.write(", ")
			}
			r.write("(")
			if err := r.exprList(set); err != nil {
				return err
			}
			r.write(")")
		}
		r.write(")")
	}

	if s.Having != nil {
		r.write("\nHAVING ")
		if err := r.expr(s.Having); err != nil {
			return err
		}
	}

	if len(s.OrderBy) > 0 {
		r.write("\nORDER BY ")
		if err := r.orderList(s.OrderBy); err != nil {
			return err
		}
	}

	if s.Limit != nil {
		if *s.Limit < 0 {
			return fmt.Errorf("negative LIMIT %d", *s.Limit)
		}
		r.write("\nLIMIT ", strconv.FormatInt(*s.Limit, 10))
	}
	return nil
}

func (r *renderer) source(s Source) error {
	switch s := s.(type) {
	case TableRef:
		parts := SplitQualified(s.Name)
		if len(parts) == 0 {
			return fmt.Errorf("empty table name")
		}
		for i, p := range parts {
			if i > 0 {
				r.write(".")
			}
			r.ident(p)
		}
		if s.Alias != "" {
			r.write(" AS ")
			r.ident(s.Alias)
		}
	case Subquery:
		r.write("(\n")
		if err := r.query(s.Query); err != nil {
			return err
		}
		r.write("\n)")
		if s.Alias == "" {
			return fmt.Errorf("subquery in FROM needs an alias")
		}
		r.write(" AS ")
		r.ident(s.Alias)
	default:
		return fmt.Errorf("unknown source type %T", s)
	}
	return nil
}

func (r *renderer) exprList(exprs []Expr) error {
	for i, e := range exprs {
		if i > 0 {
			r.write(", ")
		}
		if err := r.expr(e); err != nil {
			return err
		}
	}
	return nil
}

func (r *renderer) orderList(orders []Order) error {
	for i, o := range orders {
		if i > 0 {
			r.write(", ")
		}
		if err := r.expr(o.Expr); err != nil {
			return err
		}
		if o.Desc {
			r.write(" DESC")
		} else {
			r.write(" ASC")
		}
		if o.NullsLast {
			r.write(" NULLS LAST")
		}
	}
	return nil
}

func (r *renderer) expr(e Expr) error {
	switch e := e.(type) {
	case Col:
		if e.Table != "" {
			r.ident(e.Table)
			r.write(".")
		}
		r.ident(e.Name)
	case AllColumns:
		if e.Table != "" {
			r.ident(e.Table)
			r.write(".")
		}
		r.write("*")
	case Lit:
		r.write(r.d.Literal(e.Value))
	case Compare:
		if !e.Op.Valid() {
			return fmt.Errorf("unknown operator %q", e.Op)
		}
		if err := r.expr(e.Left); err != nil {
			return err
		}
		r.write(" ", string(e.Op), " ")
		return r.expr(e.Right)
	case And:
		return r.junction([]Expr(e), " AND ", "1 = 1")
	case Or:
		return r.junction([]Expr(e), " OR ", "1 = 0")
	case IsNull:
		if err := r.expr(e.Expr); err != nil {
			return err
		}
		if e.Not {
			r.write(" IS NOT NULL")
		} else {
			r.write(" IS NULL")
		}
	case Case:
		return r.caseExpr(e)
	case Call:
		return r.call(e)
	case Star:
		r.write("*")
	case Over:
		if err := r.call(e.Call); err != nil {
			return err
		}
		r.write(" OVER (")
		if len(e.PartitionBy) > 0 {
			r.write("PARTITION BY ")
			if err := r.exprList(e.PartitionBy); err != nil {
				return err
			}
			if len(e.OrderBy) > 0 {
				r.write(" ")
			}
		}
		if len(e.OrderBy) > 0 {
			r.write("ORDER BY ")
			if err := r.orderList(e.OrderBy); err != nil {
				return err
			}
		}
		r.write(")")
	case Arith:
		switch e.Op {
		case "+", "-", "*", "/":
		default:
			return fmt.Errorf("unknown arithmetic operator %q", e.Op)
		}
		r.write("(")
		if err := r.expr(e.Left); err != nil {
			return err
		}
		r.write(" ", e.Op, " ")
		if err := r.expr(e.Right); err != nil {
			return err
		}
		r.write(")")
	case TypedNull:
		if !r.d.TypedNullsInUnion() {
			r.write("NULL")
			return nil
		}
		r.write("(SELECT ")
		r.ident(e.Column)
		r.write(" FROM ")
		r.ident(e.Source)
		r.write(" WHERE 1 = 0)")
	case nil:
		return fmt.Errorf("nil expression")
	default:
		return fmt.Errorf("unknown expression type %T", e)
	}
	return nil
}

func (r *renderer) junction(exprs []Expr, sep, empty string) error {
	switch len(exprs) {
	case 0:
		r.write(empty)
		return nil
	case 1:
		return r.expr(exprs[0])
	}
	r.write("(")
	for i, e := range exprs {
		if i > 0 {
			r.write(sep)
		}
		if err := r.expr(e); err != nil {
			return err
		}
	}
	r.write(")")
	return nil
}

func (r *renderer) caseExpr(c Case) error {
	if len(c.Whens) == 0 {
		return fmt.Errorf("CASE without WHEN")
	}
	r.write("CASE")
	if c.Operand != nil {
		r.write(" ")
		if err := r.expr(c.Operand); err != nil {
			return err
		}
	}
	for _, w := range c.Whens {
		r.write(" WHEN ")
		if err := r.expr(w.Cond); err != nil {
			return err
		}
		r.write(" THEN ")
		if err := r.expr(w.Then); err != nil {
			return err
		}
	}
	if c.Else != nil {
		r.write(" ELSE ")
		if err := r.expr(c.Else); err != nil {
			return err
		}
	}
	r.write(" END")
	return nil
}

func (r *renderer) call(c Call) error {
	if c.Name == "" {
		return fmt.Errorf("call without function name")
	}
	r.write(c.Name, "(")
	if c.Distinct {
		r.write("DISTINCT ")
	}
	if err := r.exprList(c.Args); err != nil {
		return err
	}
	r.write(")")
	return nil
}
