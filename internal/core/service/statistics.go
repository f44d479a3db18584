package service

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/guillermoBallester/whydiff/internal/core/domain"
	"github.com/guillermoBallester/whydiff/internal/core/port"
	"github.com/guillermoBallester/whydiff/internal/core/sqlplan"
)

const (
	DefaultMaxSetValues      = 100
	DefaultStatsRangeBuckets = 3

	statsSource = "source"
)

// StatisticsOptions tunes the statistics computed by ColumnStatistics.
type StatisticsOptions struct {
	MaxSetValues int
	RangeBuckets int
}

// StatisticsEngine computes value-frequency and equal-frequency range
// statistics of relation columns.
type StatisticsEngine struct {
	runner *QueryRunner
	schema port.SchemaProvider
	logger *slog.Logger
	opts   StatisticsOptions
}

func NewStatisticsEngine(runner *QueryRunner, schema port.SchemaProvider, logger *slog.Logger, opts StatisticsOptions) *StatisticsEngine {
	if opts.MaxSetValues <= 0 {
		opts.MaxSetValues = DefaultMaxSetValues
	}
	if opts.RangeBuckets <= 0 {
		opts.RangeBuckets = DefaultStatsRangeBuckets
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &StatisticsEngine{runner: runner, schema: schema, logger: logger, opts: opts}
}

// SetValuedStatistics counts distinct values of every column and lists the
// limit most frequent ones, most frequent first and ties by value. NULLs are
// not values. A non-positive limit uses the configured default.
func (e *StatisticsEngine) SetValuedStatistics(ctx context.Context, rel domain.Relation, columns []domain.Column, limit int) (map[domain.Column]domain.SetValued, error) {
	out := make(map[domain.Column]domain.SetValued, len(columns))
	if len(columns) == 0 {
		return out, nil
	}
	if limit <= 0 {
		limit = e.opts.MaxSetValues
	}

	total, err := e.runner.RowCount(ctx, rel)
	if err != nil {
		return nil, err
	}

	items := make([]sqlplan.Item, len(columns))
	for i, c := range columns {
		items[i] = sqlplan.Item{
			Expr: sqlplan.Call{Name: "COUNT", Args: []sqlplan.Expr{sqlplan.C(string(c))}, Distinct: true},
			As:   distinctAlias(i),
		}
	}
	rows, err := e.runner.Collect(ctx, "set_statistics", withSource(rel, sqlplan.Select{
		Items: items,
		From:  sqlplan.TableRef{Name: statsSource},
	}))
	if err != nil {
		return nil, err
	}
	if len(rows) != 1 {
		return nil, fmt.Errorf("set_statistics: expected one row, got %d", len(rows))
	}

	for i, c := range columns {
		distinct, err := domain.NewConstant(rows[0][distinctAlias(i)]).Int64()
		if err != nil {
			return nil, fmt.Errorf("distinct count of %s: %w", c, err)
		}
		values, err := e.mostCommonValues(ctx, rel, c, limit)
		if err != nil {
			return nil, err
		}
		out[c] = domain.SetValued{
			DistinctCount:    distinct,
			MostCommonValues: values,
			Cardinality:      domain.ClassifyByDistinctCount(distinct, total),
		}
	}
	return out, nil
}

func (e *StatisticsEngine) mostCommonValues(ctx context.Context, rel domain.Relation, c domain.Column, limit int) ([]domain.Constant, error) {
	col := sqlplan.C(string(c))
	rows, err := e.runner.Collect(ctx, "set_statistics", withSource(rel, sqlplan.Select{
		Items: []sqlplan.Item{
			{Expr: col, As: "value"},
			{Expr: sqlplan.CountStar(), As: "num_rows"},
		},
		From:    sqlplan.TableRef{Name: statsSource},
		Where:   sqlplan.IsNull{Expr: col, Not: true},
		GroupBy: []sqlplan.Expr{col},
		OrderBy: []sqlplan.Order{
			{Expr: sqlplan.C("num_rows"), Desc: true},
			{Expr: col},
		},
		Limit: sqlplan.Int64(int64(limit)),
	}))
	if err != nil {
		return nil, err
	}
	values := make([]domain.Constant, 0, len(rows))
	for _, row := range rows {
		values = append(values, domain.NewConstant(row["value"]))
	}
	return values, nil
}

// RangeValuedStatistics partitions the non-null values of every column into
// numBuckets equal-frequency tiles and returns the ascending, de-duplicated
// tile minimums. Empty strings stored in loosely typed columns are skipped.
func (e *StatisticsEngine) RangeValuedStatistics(ctx context.Context, rel domain.Relation, columns []domain.Column, numBuckets int) (map[domain.Column]domain.RangeValued, error) {
	if numBuckets <= 0 {
		return nil, fmt.Errorf("%w: bucket count must be positive, got %d", domain.ErrInvalidArgument, numBuckets)
	}
	out := make(map[domain.Column]domain.RangeValued, len(columns))
	for _, c := range columns {
		minimums, err := e.tileMinimums(ctx, rel, c, numBuckets)
		if err != nil {
			return nil, err
		}
		out[c] = domain.RangeValued{BucketMinimums: minimums}
	}
	return out, nil
}

func (e *StatisticsEngine) tileMinimums(ctx context.Context, rel domain.Relation, c domain.Column, numBuckets int) ([]domain.Constant, error) {
	col := sqlplan.C(string(c))
	var where sqlplan.Expr = sqlplan.IsNull{Expr: col, Not: true}
	if e.runner.Dialect().LooselyTyped() {
		where = sqlplan.And{where, sqlplan.Compare{Left: col, Op: domain.NotEquals, Right: sqlplan.L("")}}
	}

	q := sqlplan.With{
		CTEs: []sqlplan.CTE{
			{Name: statsSource, Query: sqlplan.RelationQuery(rel)},
			{Name: "tiles", Query: sqlplan.Select{
				Items: []sqlplan.Item{
					{Expr: col, As: "value"},
					{Expr: sqlplan.Over{
						Call:    sqlplan.Call{Name: "NTILE", Args: []sqlplan.Expr{sqlplan.L(numBuckets)}},
						OrderBy: []sqlplan.Order{{Expr: col}},
					}, As: "tile"},
				},
				From:  sqlplan.TableRef{Name: statsSource},
				Where: where,
			}},
		},
		Body: sqlplan.Select{
			Items: []sqlplan.Item{
				{Expr: sqlplan.C("tile")},
				{Expr: sqlplan.Call{Name: "MIN", Args: []sqlplan.Expr{sqlplan.C("value")}}, As: "minimum"},
			},
			From:    sqlplan.TableRef{Name: "tiles"},
			GroupBy: []sqlplan.Expr{sqlplan.C("tile")},
			OrderBy: []sqlplan.Order{{Expr: sqlplan.C("tile")}},
		},
	}
	rows, err := e.runner.Collect(ctx, "range_statistics", q)
	if err != nil {
		return nil, err
	}

	minimums := make([]domain.Constant, 0, len(rows))
	for _, row := range rows {
		v := domain.NewConstant(row["minimum"])
		if v.IsNull() || (v.Kind() == domain.KindString && v.Value() == "") {
			continue
		}
		if n := len(minimums); n > 0 && minimums[n-1].Equal(v) {
			continue
		}
		minimums = append(minimums, v)
	}
	e.logger.DebugContext(ctx, "range statistics",
		slog.String("column", string(c)),
		slog.Int("tiles", len(rows)),
		slog.Int("minimums", len(minimums)),
	)
	return minimums, nil
}

// ColumnStatistics classifies every column of a base table by its declared
// type and computes the statistics that type supports. Columns in ignore and
// columns of unsupported types are skipped. Results follow declaration order.
func (e *StatisticsEngine) ColumnStatistics(ctx context.Context, table string, ignore []domain.Column) ([]domain.ColumnStatistics, error) {
	if e.schema == nil {
		return nil, fmt.Errorf("%w: no schema provider", domain.ErrInvalidArgument)
	}
	ts, err := e.schema.ResolveTable(ctx, table)
	if err != nil {
		return nil, fmt.Errorf("reading column types of %s: %w", table, err)
	}

	skip := make(map[domain.Column]struct{}, len(ignore))
	for _, c := range ignore {
		skip[c] = struct{}{}
	}

	var setCols, rangeCols []domain.Column
	var classified []domain.ColumnStatistics
	for _, ct := range ts.Columns {
		if _, ok := skip[ct.Name]; ok {
			continue
		}
		class := domain.ClassifyType(ct.DeclaredType)
		if class == domain.TypeClassNeither {
			e.logger.DebugContext(ctx, "skipping column of unsupported type",
				slog.String("column", string(ct.Name)),
				slog.String("declared_type", ct.DeclaredType),
			)
			continue
		}
		if class.SetValued() {
			setCols = append(setCols, ct.Name)
		}
		if class.RangeValued() {
			rangeCols = append(rangeCols, ct.Name)
		}
		classified = append(classified, domain.ColumnStatistics{
			Column:       ct.Name,
			DeclaredType: ct.DeclaredType,
			Class:        class,
		})
	}

	// The resolved name, so statistics read the table that was classified.
	rel := domain.TableRelation(ts.QualifiedName())
	sets, err := e.SetValuedStatistics(ctx, rel, setCols, e.opts.MaxSetValues)
	if err != nil {
		return nil, err
	}
	ranges, err := e.RangeValuedStatistics(ctx, rel, rangeCols, e.opts.RangeBuckets)
	if err != nil {
		return nil, err
	}

	for i := range classified {
		c := classified[i].Column
		if s, ok := sets[c]; ok {
			classified[i].Statistics = append(classified[i].Statistics, s)
		}
		if r, ok := ranges[c]; ok {
			classified[i].Statistics = append(classified[i].Statistics, r)
		}
	}
	return classified, nil
}

func withSource(rel domain.Relation, body sqlplan.Query) sqlplan.Query {
	return sqlplan.With{
		CTEs: []sqlplan.CTE{{Name: statsSource, Query: sqlplan.RelationQuery(rel)}},
		Body: body,
	}
}

func distinctAlias(i int) string {
	return "distinct_" + strconv.Itoa(i)
}
