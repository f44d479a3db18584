package service

import (
	"fmt"

	"github.com/guillermoBallester/whydiff/internal/core/domain"
	"github.com/guillermoBallester/whydiff/internal/core/sqlplan"
)

const (
	GroupingIDColumn      = "grouping_id"
	ExplanationSizeColumn = "explanation_size"

	groupingSource = "grouping_source"

	// GROUPING() takes at most 31 arguments on Postgres.
	maxNativeGroupingColumns = 31
)

// Strategy is how a grouping-sets query is expressed.
type Strategy string

const (
	StrategyNative    Strategy = "native"
	StrategySynthetic Strategy = "synthetic"
)

// GroupingSetsQuery aggregates Source over every set in Sets at once.
type GroupingSetsQuery struct {
	Source    sqlplan.Query
	Sets      []domain.GroupingSet
	Aggregate domain.Aggregate
	// MinAggregate keeps only groups whose aggregate exceeds it.
	MinAggregate *int64
}

// GroupingPlan is a planned grouping-sets query. Its rows carry
// grouping_id, then Columns (NULL outside the row's set), then the aggregate.
type GroupingPlan struct {
	Query    sqlplan.Query
	Index    domain.GroupIndex
	Columns  []domain.Column
	Strategy Strategy
}

// Planner builds grouping-sets queries for one dialect.
type Planner struct {
	dialect        sqlplan.Dialect
	forceSynthetic bool
}

// PlannerOption configures a Planner.
type PlannerOption func(*Planner)

// WithSyntheticGroupingSets makes the planner use UNION ALL even when the
// dialect has native grouping sets.
func WithSyntheticGroupingSets() PlannerOption {
	return func(p *Planner) { p.forceSynthetic = true }
}

func NewPlanner(dialect sqlplan.Dialect, opts ...PlannerOption) *Planner {
	p := &Planner{dialect: dialect}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Plan builds the query. Both strategies yield the same columns in the same
// order and the same GroupIndex, where a set's grouping_id is its position
// in q.Sets.
func (p *Planner) Plan(q GroupingSetsQuery) (GroupingPlan, error) {
	if q.Source == nil {
		return GroupingPlan{}, fmt.Errorf("%w: grouping source is nil", domain.ErrInvalidArgument)
	}
	if len(q.Sets) == 0 {
		return GroupingPlan{}, fmt.Errorf("%w: no grouping sets", domain.ErrInvalidArgument)
	}
	if err := q.Aggregate.Validate(); err != nil {
		return GroupingPlan{}, err
	}
	if q.MinAggregate != nil && *q.MinAggregate < 0 {
		return GroupingPlan{}, fmt.Errorf("%w: negative minimum aggregate %d", domain.ErrInvalidArgument, *q.MinAggregate)
	}
	index, err := domain.NewGroupIndex(q.Sets)
	if err != nil {
		return GroupingPlan{}, err
	}

	cols := groupingColumns(q.Sets)
	for _, c := range cols {
		if c == GroupingIDColumn || c == q.Aggregate.Alias {
			return GroupingPlan{}, fmt.Errorf("%w: %q is reserved for plan output", domain.ErrInvalidColumn, c)
		}
	}
	if q.Aggregate.Alias == GroupingIDColumn {
		return GroupingPlan{}, fmt.Errorf("%w: %q is reserved for plan output", domain.ErrInvalidColumn, q.Aggregate.Alias)
	}

	plan := GroupingPlan{Index: index, Columns: cols}
	var body sqlplan.Query
	if p.native(cols) {
		plan.Strategy = StrategyNative
		body = p.nativeQuery(q, cols)
	} else {
		plan.Strategy = StrategySynthetic
		body = p.syntheticQuery(q, cols)
	}
	plan.Query = sqlplan.With{
		CTEs: []sqlplan.CTE{{Name: groupingSource, Query: q.Source}},
		Body: body,
	}
	return plan, nil
}

func (p *Planner) native(cols []domain.Column) bool {
	return !p.forceSynthetic &&
		p.dialect.SupportsGroupingSets() &&
		len(cols) > 0 && len(cols) <= maxNativeGroupingColumns
}

// nativeQuery maps the GROUPING(c1..cn) bitmask, where bit n-1-i is set when
// ci is absent from the row's set, onto the set's position.
func (p *Planner) nativeQuery(q GroupingSetsQuery, cols []domain.Column) sqlplan.Query {
	n := len(cols)
	args := make([]sqlplan.Expr, n)
	for i, c := range cols {
		args[i] = sqlplan.C(string(c))
	}

	whens := make([]sqlplan.When, len(q.Sets))
	sets := make([][]sqlplan.Expr, len(q.Sets))
	for pos, set := range q.Sets {
		var mask int64
		for i, c := range cols {
			if !set.Contains(c) {
				mask |= 1 << (n - 1 - i)
			}
		}
		whens[pos] = sqlplan.When{Cond: sqlplan.L(mask), Then: sqlplan.L(pos)}

		exprs := make([]sqlplan.Expr, len(set))
		for i, c := range set {
			exprs[i] = sqlplan.C(string(c))
		}
		sets[pos] = exprs
	}

	items := []sqlplan.Item{{
		Expr: sqlplan.Case{Operand: sqlplan.Call{Name: "GROUPING", Args: args}, Whens: whens},
		As:   GroupingIDColumn,
	}}
	for _, c := range cols {
		items = append(items, sqlplan.Item{Expr: sqlplan.C(string(c))})
	}
	items = append(items, aggregateItem(q.Aggregate))

	return sqlplan.Select{
		Items:        items,
		From:         sqlplan.TableRef{Name: groupingSource},
		GroupingSets: sets,
		Having:       having(q),
	}
}

func (p *Planner) syntheticQuery(q GroupingSetsQuery, cols []domain.Column) sqlplan.Query {
	branches := make([]sqlplan.Query, len(q.Sets))
	for pos, set := range q.Sets {
		items := []sqlplan.Item{{Expr: sqlplan.L(pos), As: GroupingIDColumn}}
		for _, c := range cols {
			var e sqlplan.Expr = sqlplan.TypedNull{Source: groupingSource, Column: string(c)}
			if set.Contains(c) {
				e = sqlplan.C(string(c))
			}
			items = append(items, sqlplan.Item{Expr: e, As: string(c)})
		}
		items = append(items, aggregateItem(q.Aggregate))

		groupBy := make([]sqlplan.Expr, len(set))
		for i, c := range set {
			groupBy[i] = sqlplan.C(string(c))
		}
		branches[pos] = sqlplan.Select{
			Items:   items,
			From:    sqlplan.TableRef{Name: groupingSource},
			GroupBy: groupBy,
			Having:  having(q),
		}
	}
	if len(branches) == 1 {
		return branches[0]
	}
	return sqlplan.UnionAll{Queries: branches}
}

// groupingColumns lists the columns of all sets in first-appearance order.
func groupingColumns(sets []domain.GroupingSet) []domain.Column {
	seen := make(map[domain.Column]struct{})
	var cols []domain.Column
	for _, set := range sets {
		for _, c := range set {
			if _, ok := seen[c]; ok {
				continue
			}
			seen[c] = struct{}{}
			cols = append(cols, c)
		}
	}
	return cols
}

func aggregateExpr(a domain.Aggregate) sqlplan.Expr {
	var arg sqlplan.Expr = sqlplan.C(string(a.Source))
	if a.Source == domain.AllRows {
		arg = sqlplan.Star{}
	}
	return sqlplan.Call{Name: string(a.Function), Args: []sqlplan.Expr{arg}}
}

func aggregateItem(a domain.Aggregate) sqlplan.Item {
	return sqlplan.Item{Expr: aggregateExpr(a), As: string(a.Alias)}
}

func having(q GroupingSetsQuery) sqlplan.Expr {
	if q.MinAggregate == nil {
		return nil
	}
	return sqlplan.Gt(aggregateExpr(q.Aggregate), sqlplan.L(*q.MinAggregate))
}
