package sqlplan

import (
	"math"
	"testing"
	"time"

	pg_query "github.com/pganalyze/pg_query_go/v6"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guillermoBallester/whydiff/internal/core/domain"
)

func TestRender_SelectClauses(t *testing.T) {
	t.Parallel()
	q := Select{
		Items: []Item{
			{Expr: C("sensor_id")},
			{Expr: CountStar(), As: "n"},
		},
		From:    TableRef{Name: "public.sensors"},
		Where:   Gt(C("temperature"), L(50)),
		GroupBy: []Expr{C("sensor_id")},
		Having:  Gt(CountStar(), L(1)),
		OrderBy: []Order{{Expr: C("n"), Desc: true}, {Expr: C("sensor_id"), NullsLast: true}},
		Limit:   Int64(10),
	}
	got, err := Render(Postgres, q)
	require.NoError(t, err)
	assert.Equal(t, `SELECT "sensor_id", COUNT(*) AS "n"
FROM "public"."sensors"
WHERE "temperature" > 50
GROUP BY "sensor_id"
HAVING COUNT(*) > 1
ORDER BY "n" DESC, "sensor_id" ASC NULLS LAST
LIMIT 10`, got)
}

func TestRender_WithAndJoin(t *testing.T) {
	t.Parallel()
	q := With{
		CTEs: []CTE{
			{Name: "a", Query: Raw{SQL: "SELECT 1 AS x"}},
			{Name: "b", Query: Raw{SQL: "SELECT 1 AS x"}},
		},
		Body: Select{
			Items: []Item{{Expr: AllColumns{Table: "a"}}},
			From:  TableRef{Name: "a"},
			Joins: []Join{{
				Left:   true,
				Source: TableRef{Name: "b"},
				On: Or{
					Eq(Q("a", "x"), Q("b", "x")),
					And{IsNull{Expr: Q("a", "x")}, IsNull{Expr: Q("b", "x")}},
				},
			}},
		},
	}
	got, err := Render(SQLite, q)
	require.NoError(t, err)
	assert.Equal(t, `WITH "a" AS (
SELECT 1 AS x
), "b" AS (
SELECT 1 AS x
)
SELECT "a".*
FROM "a"
LEFT JOIN "b" ON ("a"."x" = "b"."x" OR ("a"."x" IS NULL AND "b"."x" IS NULL))`, got)
}

func TestRender_GroupingSets(t *testing.T) {
	t.Parallel()
	q := Select{
		Items: []Item{{Expr: Call{Name: "GROUPING", Args: []Expr{C("a"), C("b")}}}},
		From:  TableRef{Name: "t"},
		GroupingSets: [][]Expr{
			{C("a")},
			{C("a"), C("b")},
			{},
		},
	}
	got, err := Render(Postgres, q)
	require.NoError(t, err)
	assert.Equal(t, `SELECT GROUPING("a", "b")
FROM "t"
GROUP BY GROUPING SETS (("a"), ("a", "b"), ())`, got)

	_, err = Render(SQLite, q)
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestRender_UnionAllRejectsOrderedBranches(t *testing.T) {
	t.Parallel()
	branch := Select{Items: []Item{{Expr: L(1)}}}
	got, err := Render(SQLite, UnionAll{Queries: []Query{branch, branch}})
	require.NoError(t, err)
	assert.Equal(t, "SELECT 1\nUNION ALL\nSELECT 1", got)

	ordered := branch
	ordered.OrderBy = []Order{{Expr: L(1)}}
	_, err = Render(SQLite, UnionAll{Queries: []Query{branch, ordered}})
	assert.Error(t, err)
}

func TestRender_Expressions(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		dialect Dialect
		expr    Expr
		want    string
	}{
		{"case", Postgres, Case{Whens: []When{{Cond: Compare{Left: C("v"), Op: domain.LessThan, Right: L(2.6)}, Then: L(0)}}}, `CASE WHEN "v" < 2.6 THEN 0 END`},
		{"simple case", Postgres, Case{Operand: C("g"), Whens: []When{{Cond: L(1), Then: L(0)}}, Else: L(-1)}, `CASE "g" WHEN 1 THEN 0 ELSE -1 END`},
		{"distinct count", Postgres, Call{Name: "COUNT", Args: []Expr{C("c")}, Distinct: true}, `COUNT(DISTINCT "c")`},
		{"window", SQLite, Over{Call: Call{Name: "NTILE", Args: []Expr{L(3)}}, OrderBy: []Order{{Expr: C("c")}}}, `NTILE(3) OVER (ORDER BY "c" ASC)`},
		{"arith", Postgres, Arith{Left: L(3.0), Op: "-", Right: C("t")}, `(3.0 - "t")`},
		{"typed null postgres", Postgres, TypedNull{Source: "src", Column: "c"}, `(SELECT "c" FROM "src" WHERE 1 = 0)`},
		{"typed null sqlite", SQLite, TypedNull{Source: "src", Column: "c"}, `NULL`},
		{"empty and", SQLite, And{}, `1 = 1`},
		{"quoted ident", Postgres, C(`we"ird`), `"we""ird"`},
		{"null predicate", Postgres, PredicateExpr(domain.NewPredicate("h", domain.Equals, domain.Null())), `"h" IS NULL`},
		{"interior bucket", Postgres, Conjunction([]domain.Predicate{
			domain.NewPredicate("v", domain.GreaterOrEqual, domain.Float(2)),
			domain.NewPredicate("v", domain.LessThan, domain.Float(3)),
		}), `("v" >= 2.0 AND "v" < 3.0)`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := RenderExpr(tt.dialect, tt.expr)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRender_Errors(t *testing.T) {
	t.Parallel()
	_, err := RenderExpr(Postgres, Compare{Left: C("a"), Op: "LIKE", Right: L("x")})
	assert.Error(t, err)
	_, err = RenderExpr(Postgres, Arith{Left: L(1), Op: "%", Right: L(2)})
	assert.Error(t, err)
	_, err = Render(Postgres, Select{})
	assert.Error(t, err)
	_, err = Render(Postgres, Select{Items: []Item{{Expr: Star{}}}, From: Subquery{Query: Raw{SQL: "SELECT 1"}}})
	assert.Error(t, err)
}

func TestDialect_Literals(t *testing.T) {
	t.Parallel()
	noon := time.Date(2021, 5, 5, 12, 30, 0, 0, time.UTC)
	midnight := time.Date(2021, 5, 5, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name    string
		dialect Dialect
		value   domain.Constant
		want    string
	}{
		{"pg float keeps point", Postgres, domain.Float(9), "9.0"},
		{"pg float", Postgres, domain.Float(2.65), "2.65"},
		{"pg infinity", Postgres, domain.Float(math.Inf(1)), "CAST('Infinity' AS DOUBLE PRECISION)"},
		{"pg nan", Postgres, domain.Float(math.NaN()), "CAST('NaN' AS DOUBLE PRECISION)"},
		{"pg bool", Postgres, domain.Bool(true), "TRUE"},
		{"pg time", Postgres, domain.Time(noon), "'2021-05-05T12:30:00Z'"},
		{"pg decimal", Postgres, domain.Decimal(decimal.RequireFromString("2.30")), "2.3"},
		{"pg string", Postgres, domain.String("it's"), "'it''s'"},
		{"pg null", Postgres, domain.Null(), "NULL"},
		{"sqlite bool", SQLite, domain.Bool(false), "0"},
		{"sqlite time", SQLite, domain.Time(noon), "'2021-05-05 12:30:00'"},
		{"sqlite date", SQLite, domain.Time(midnight), "'2021-05-05'"},
		{"sqlite int", SQLite, domain.Int(-3), "-3"},
		{"sqlite large float", SQLite, domain.Float(1e21), "1000000000000000000000.0"},
		{"sqlite infinity", SQLite, domain.Float(math.Inf(-1)), "-9e999"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.dialect.Literal(tt.value))
		})
	}
}

func TestRelationQuery(t *testing.T) {
	t.Parallel()
	got, err := Render(Postgres, RelationQuery(domain.TableRelation("public.sensors")))
	require.NoError(t, err)
	assert.Equal(t, "SELECT *\nFROM \"public\".\"sensors\"", got)

	got, err = Render(Postgres, RelationQuery(domain.QueryRelation("SELECT 1;")))
	require.NoError(t, err)
	assert.Equal(t, "SELECT 1", got)
}

func TestRender_PostgresOutputParses(t *testing.T) {
	t.Parallel()
	q := With{
		CTEs: []CTE{{Name: "src", Query: RelationQuery(domain.TableRelation("sensors"))}},
		Body: Select{
			Items: []Item{
				{Expr: Case{Operand: Call{Name: "GROUPING", Args: []Expr{C("a"), C("b")}}, Whens: []When{
					{Cond: L(1), Then: L(0)},
					{Cond: L(2), Then: L(1)},
				}}, As: "grouping_id"},
				{Expr: C("a")},
				{Expr: C("b")},
				{Expr: Over{Call: Call{Name: "NTILE", Args: []Expr{L(3)}}, OrderBy: []Order{{Expr: C("a")}}}, As: "tile"},
				{Expr: TypedNull{Source: "src", Column: "a"}, As: "typed"},
			},
			From:         TableRef{Name: "src"},
			GroupingSets: [][]Expr{{C("a")}, {C("b")}},
		},
	}
	sql, err := Render(Postgres, q)
	require.NoError(t, err)
	_, err = pg_query.Parse(sql)
	assert.NoError(t, err, sql)
}
