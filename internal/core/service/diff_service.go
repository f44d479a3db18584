package service

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/guillermoBallester/whydiff/internal/core/domain"
	"github.com/guillermoBallester/whydiff/internal/core/port"
	"github.com/guillermoBallester/whydiff/internal/core/sqlplan"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// reservedColumns are produced by the generated queries and may not be
// explained.
var reservedColumns = []domain.Column{
	GroupingIDColumn,
	ExplanationSizeColumn,
	TestCountColumn,
	ControlCountColumn,
	RiskRatioColumn,
}

// DiffOptions tunes DiffService.
type DiffOptions struct {
	// RangeBuckets is the number of equal-frequency tiles range columns are
	// cut into before degenerate boundaries are merged.
	RangeBuckets int
	// ForceSynthetic plans grouping sets with UNION ALL on every backend.
	ForceSynthetic bool
}

// DiffResult is the outcome of one explanation run.
type DiffResult struct {
	Explanations []domain.Explanation `json:"explanations"`
	TestRows     int64                `json:"test_rows"`
	ControlRows  int64                `json:"control_rows"`
	Buckets      []string             `json:"buckets,omitempty"`
	Strategy     Strategy             `json:"strategy,omitempty"`
}

// DiffService explains why test rows differ from control rows.
type DiffService struct {
	runner    *QueryRunner
	stats     *StatisticsEngine
	validator port.RelationValidator
	planner   *Planner
	logger    *slog.Logger
	tracer    trace.Tracer
	inst      port.Instrumentation
	opts      DiffOptions
}

func NewDiffService(runner *QueryRunner, stats *StatisticsEngine, validator port.RelationValidator, logger *slog.Logger, tracer trace.Tracer, inst port.Instrumentation, opts DiffOptions) *DiffService {
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("noop")
	}
	if inst == nil {
		inst = port.NoopInstrumentation{}
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if opts.RangeBuckets <= 0 {
		opts.RangeBuckets = DefaultRangeBuckets
	}
	var plannerOpts []PlannerOption
	if opts.ForceSynthetic {
		plannerOpts = append(plannerOpts, WithSyntheticGroupingSets())
	}
	return &DiffService{
		runner:    runner,
		stats:     stats,
		validator: validator,
		planner:   NewPlanner(runner.Dialect(), plannerOpts...),
		logger:    logger,
		tracer:    tracer,
		inst:      inst,
		opts:      opts,
	}
}

// Diff runs the explanation pipeline: validate, count, bucket range columns
// on the test relation, rewrite both relations, aggregate every column on
// its own, score and assemble. Explanations come back ranked.
func (s *DiffService) Diff(ctx context.Context, req domain.DiffRequest) (res *DiffResult, err error) {
	ctx, span := s.tracer.Start(ctx, "DiffService.Diff",
		trace.WithAttributes(
			attribute.String("db.system", s.runner.Dialect().Name()),
			attribute.Int("diff.value_columns", len(req.ValueColumns)),
			attribute.Int("diff.range_columns", len(req.RangeColumns)),
		),
	)
	start := time.Now()
	defer func() {
		s.inst.RecordDiffDuration(ctx, float64(time.Since(start).Milliseconds()))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			s.inst.RecordExplanations(ctx, len(res.Explanations))
			span.SetAttributes(attribute.Int("diff.explanations", len(res.Explanations)))
		}
		span.End()
	}()

	if err := req.Validate(); err != nil {
		s.logger.WarnContext(ctx, "diff request rejected", slog.String("error", err.Error()))
		return nil, err
	}
	if err := s.validateRelations(ctx, req); err != nil {
		return nil, err
	}

	s.stage(ctx, "schema")
	columns, err := s.checkSchemas(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := checkColumns(columns, req); err != nil {
		return nil, err
	}

	s.stage(ctx, StageRowCount)
	testRows, err := s.runner.RowCount(ctx, req.Test)
	if err != nil {
		return nil, err
	}
	controlRows, err := s.runner.RowCount(ctx, req.Control)
	if err != nil {
		return nil, err
	}
	res = &DiffResult{Explanations: []domain.Explanation{}, TestRows: testRows, ControlRows: controlRows}

	s.stage(ctx, "range_statistics")
	bucketings, err := s.stats.Bucketize(ctx, req.Test, req.RangeColumns, s.opts.RangeBuckets)
	if err != nil {
		return nil, err
	}
	for _, b := range bucketings {
		res.Buckets = append(res.Buckets, b.String())
	}

	order := slices.Clone(req.ValueColumns)
	for _, b := range bucketings {
		order = append(order, b.BucketColumn())
	}
	if len(order) == 0 {
		s.logger.InfoContext(ctx, "nothing to explain", slog.Int("range_columns", len(req.RangeColumns)))
		return res, nil
	}

	s.stage(ctx, "plan")
	testSource, err := RewriteWithBuckets(sqlplan.RelationQuery(req.Test), bucketings)
	if err != nil {
		return nil, err
	}
	controlSource, err := RewriteWithBuckets(sqlplan.RelationQuery(req.Control), bucketings)
	if err != nil {
		return nil, err
	}

	sets := domain.SingleColumnSets(order)
	agg := domain.CountRows(ExplanationSizeColumn)
	minSupport := req.MinSupportRows(testRows)
	testPlan, err := s.planner.Plan(GroupingSetsQuery{Source: testSource, Sets: sets, Aggregate: agg, MinAggregate: &minSupport})
	if err != nil {
		return nil, fmt.Errorf("planning test groups: %w", err)
	}
	controlPlan, err := s.planner.Plan(GroupingSetsQuery{Source: controlSource, Sets: sets, Aggregate: agg})
	if err != nil {
		return nil, fmt.Errorf("planning control groups: %w", err)
	}
	res.Strategy = testPlan.Strategy

	scoreQuery, err := ScorePlan(ScoreQuery{
		Test:         testPlan,
		Control:      controlPlan,
		TestRows:     testRows,
		ControlRows:  controlRows,
		MinRiskRatio: req.MinRiskRatio,
	})
	if err != nil {
		return nil, err
	}

	s.stage(ctx, "score",
		slog.String("diff.strategy", string(testPlan.Strategy)),
		slog.Int("diff.groups", len(sets)),
		slog.Int64("diff.min_support_rows", minSupport),
	)
	explanations, err := s.score(ctx, scoreQuery, NewAssembler(testPlan.Index, order, bucketings))
	if err != nil {
		return nil, err
	}
	res.Explanations = explanations
	return res, nil
}

func (s *DiffService) score(ctx context.Context, q sqlplan.Query, asm *Assembler) (out []domain.Explanation, err error) {
	rows, err := s.runner.Run(ctx, "score", q)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("score: closing rows: %w", cerr)
		}
	}()

	out = []domain.Explanation{}
	for rows.Next() {
		row, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("score: reading row: %w", err)
		}
		e, err := asm.Assemble(row)
		if err != nil {
			return nil, fmt.Errorf("assembling explanation: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("score: iterating rows: %w", err)
	}
	return out, nil
}

func (s *DiffService) validateRelations(ctx context.Context, req domain.DiffRequest) error {
	if s.validator == nil {
		return nil
	}
	for _, r := range []struct {
		name string
		rel  domain.Relation
	}{{"test", req.Test}, {"control", req.Control}} {
		if err := s.validator.ValidateRelation(r.rel); err != nil {
			s.logger.WarnContext(ctx, "relation rejected",
				slog.String("relation", r.name),
				slog.String("error.type", "validation_error"),
			)
			return fmt.Errorf("%s relation: %w", r.name, err)
		}
	}
	return nil
}

// checkSchemas requires test and control to expose the same columns in the
// same order and returns them.
func (s *DiffService) checkSchemas(ctx context.Context, req domain.DiffRequest) ([]string, error) {
	testCols, err := s.runner.Columns(ctx, req.Test)
	if err != nil {
		return nil, err
	}
	controlCols, err := s.runner.Columns(ctx, req.Control)
	if err != nil {
		return nil, err
	}
	if !slices.Equal(testCols, controlCols) {
		return nil, fmt.Errorf("%w: test has %v, control has %v", domain.ErrSchemaMismatch, testCols, controlCols)
	}
	return testCols, nil
}

func checkColumns(columns []string, req domain.DiffRequest) error {
	present := make(map[domain.Column]struct{}, len(columns))
	for _, c := range columns {
		present[domain.Column(c)] = struct{}{}
	}
	for _, c := range slices.Concat(req.ValueColumns, req.RangeColumns) {
		if _, ok := present[c]; !ok {
			return fmt.Errorf("%w: %q is not a column of the relation", domain.ErrInvalidColumn, c)
		}
		if slices.Contains(reservedColumns, c) {
			return fmt.Errorf("%w: %q is reserved", domain.ErrInvalidColumn, c)
		}
	}
	for _, c := range req.RangeColumns {
		derived := domain.BucketColumn(c)
		if _, clash := present[derived]; clash {
			return fmt.Errorf("%w: bucket column %q already exists", domain.ErrInvalidColumn, derived)
		}
		if slices.Contains(req.ValueColumns, derived) {
			return fmt.Errorf("%w: bucket column %q is also a value column", domain.ErrInvalidColumn, derived)
		}
	}
	return nil
}

func (s *DiffService) stage(ctx context.Context, name string, attrs ...any) {
	s.logger.DebugContext(ctx, "diff stage", append([]any{slog.String("diff.stage", name)}, attrs...)...)
}
