package service

import (
	"fmt"
	"math"
	"slices"

	"github.com/guillermoBallester/whydiff/internal/core/domain"
	"github.com/guillermoBallester/whydiff/internal/core/sqlplan"
)

const (
	TestCountColumn    = "test_explanation_size"
	ControlCountColumn = "control_explanation_size"
	RiskRatioColumn    = "risk_ratio"

	testCTE       = "test"
	controlCTE    = "control"
	comparisonCTE = "comparison"
)

// ScoreQuery joins a test grouping plan against a control one.
type ScoreQuery struct {
	Test         GroupingPlan
	Control      GroupingPlan
	TestRows     int64
	ControlRows  int64
	MinRiskRatio float64
}

// ScorePlan builds the scoring query. Every test group is kept, matched to
// the control group with the same grouping_id and NULL-safe equal values,
// and scored as
//
//	[t / (t + c)] / [((T+1) - t) / (((T+1) - t) + ((C+1) - c))]
//
// with c = 0 for unmatched groups. Rows with risk_ratio above MinRiskRatio
// come back ordered by risk_ratio descending, grouping_id ascending, then
// column values ascending with NULLs last.
func ScorePlan(q ScoreQuery) (sqlplan.Query, error) {
	if !slices.Equal(q.Test.Columns, q.Control.Columns) {
		return nil, fmt.Errorf("%w: test groups on %v, control groups on %v", domain.ErrSchemaMismatch, q.Test.Columns, q.Control.Columns)
	}
	if q.TestRows < 0 || q.ControlRows < 0 {
		return nil, fmt.Errorf("%w: negative row count", domain.ErrInvalidArgument)
	}
	if math.IsNaN(q.MinRiskRatio) {
		return nil, fmt.Errorf("%w: min_risk_ratio is NaN", domain.ErrInvalidArgument)
	}

	t := sqlplan.Q(testCTE, ExplanationSizeColumn)
	c := sqlplan.Call{Name: "COALESCE", Args: []sqlplan.Expr{sqlplan.Q(controlCTE, ExplanationSizeColumn), sqlplan.L(0)}}

	// Float literals keep every division out of integer arithmetic.
	testShare := sqlplan.Arith{
		Left:  sqlplan.Arith{Left: sqlplan.L(1.0), Op: "*", Right: t},
		Op:    "/",
		Right: sqlplan.Arith{Left: t, Op: "+", Right: c},
	}
	testRest := sqlplan.Arith{Left: sqlplan.L(float64(q.TestRows + 1)), Op: "-", Right: t}
	controlRest := sqlplan.Arith{Left: sqlplan.L(float64(q.ControlRows + 1)), Op: "-", Right: c}
	restShare := sqlplan.Arith{
		Left:  testRest,
		Op:    "/",
		Right: sqlplan.Arith{Left: testRest, Op: "+", Right: controlRest},
	}
	risk := sqlplan.Arith{Left: testShare, Op: "/", Right: restShare}

	on := sqlplan.And{sqlplan.Eq(sqlplan.Q(testCTE, GroupingIDColumn), sqlplan.Q(controlCTE, GroupingIDColumn))}
	items := []sqlplan.Item{{Expr: sqlplan.Q(testCTE, GroupingIDColumn), As: GroupingIDColumn}}
	order := []sqlplan.Order{
		{Expr: sqlplan.C(RiskRatioColumn), Desc: true},
		{Expr: sqlplan.C(GroupingIDColumn)},
	}
	for _, col := range q.Test.Columns {
		name := string(col)
		tc, cc := sqlplan.Q(testCTE, name), sqlplan.Q(controlCTE, name)
		on = append(on, sqlplan.Or{
			sqlplan.Eq(tc, cc),
			sqlplan.And{sqlplan.IsNull{Expr: tc}, sqlplan.IsNull{Expr: cc}},
		})
		items = append(items, sqlplan.Item{Expr: tc, As: name})
		order = append(order, sqlplan.Order{Expr: sqlplan.C(name), NullsLast: true})
	}
	items = append(items,
		sqlplan.Item{Expr: t, As: TestCountColumn},
		sqlplan.Item{Expr: c, As: ControlCountColumn},
		sqlplan.Item{Expr: risk, As: RiskRatioColumn},
	)

	return sqlplan.With{
		CTEs: []sqlplan.CTE{
			{Name: testCTE, Query: q.Test.Query},
			{Name: controlCTE, Query: q.Control.Query},
			{Name: comparisonCTE, Query: sqlplan.Select{
				Items: items,
				From:  sqlplan.TableRef{Name: testCTE},
				Joins: []sqlplan.Join{{Left: true, Source: sqlplan.TableRef{Name: controlCTE}, On: on}},
			}},
		},
		Body: sqlplan.Select{
			Items:   []sqlplan.Item{{Expr: sqlplan.AllColumns{}}},
			From:    sqlplan.TableRef{Name: comparisonCTE},
			Where:   sqlplan.Gt(sqlplan.C(RiskRatioColumn), sqlplan.L(q.MinRiskRatio)),
			OrderBy: order,
		},
	}, nil
}
