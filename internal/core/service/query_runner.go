package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/guillermoBallester/whydiff/internal/core/domain"
	"github.com/guillermoBallester/whydiff/internal/core/port"
	"github.com/guillermoBallester/whydiff/internal/core/sqlplan"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

type toolNameKey struct{}

// WithToolName returns a context carrying the MCP tool name for audit logging.
func WithToolName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, toolNameKey{}, name)
}

func toolNameFromCtx(ctx context.Context) string {
	if v, ok := ctx.Value(toolNameKey{}).(string); ok {
		return v
	}
	return ""
}

// QueryRunner renders query plans for the executor's dialect and runs them,
// tracing, measuring and auditing every statement.
type QueryRunner struct {
	executor port.RelationalExecutor
	auditor  port.QueryAuditor
	logger   *slog.Logger
	tracer   trace.Tracer
	inst     port.Instrumentation
}

func NewQueryRunner(executor port.RelationalExecutor, auditor port.QueryAuditor, logger *slog.Logger, tracer trace.Tracer, inst port.Instrumentation) *QueryRunner {
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("noop")
	}
	if inst == nil {
		inst = port.NoopInstrumentation{}
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &QueryRunner{
		executor: executor,
		auditor:  auditor,
		logger:   logger,
		tracer:   tracer,
		inst:     inst,
	}
}

func (r *QueryRunner) Dialect() sqlplan.Dialect {
	return r.executor.Dialect()
}

// Render renders a plan for the executor's dialect.
func (r *QueryRunner) Render(q sqlplan.Query) (string, error) {
	sql, err := sqlplan.Render(r.executor.Dialect(), q)
	if err != nil {
		return "", fmt.Errorf("rendering query: %w", err)
	}
	return sql, nil
}

// Stages of the statements the executor builds itself.
const (
	StageColumns  = "columns"
	StageRowCount = "row_count"
)

// Columns reads the ordered column names of a relation.
func (r *QueryRunner) Columns(ctx context.Context, rel domain.Relation) ([]string, error) {
	sql, err := r.Render(sqlplan.ColumnsQuery(rel))
	if err != nil {
		return nil, err
	}
	ctx, span := r.startStatement(ctx, "QueryRunner.Columns", StageColumns, sql)

	start := time.Now()
	cols, err := r.executor.Columns(ctx, rel)
	r.finish(ctx, span, StageColumns, sql, start, 0, err)
	if err != nil {
		return nil, fmt.Errorf("reading columns of %s: %w", rel, err)
	}
	return cols, nil
}

// RowCount counts the rows of a relation.
func (r *QueryRunner) RowCount(ctx context.Context, rel domain.Relation) (int64, error) {
	sql, err := r.Render(sqlplan.CountQuery(rel))
	if err != nil {
		return 0, err
	}
	ctx, span := r.startStatement(ctx, "QueryRunner.RowCount", StageRowCount, sql)

	start := time.Now()
	n, err := r.executor.RowCount(ctx, rel)
	r.finish(ctx, span, StageRowCount, sql, start, 1, err)
	if err != nil {
		return 0, fmt.Errorf("counting rows of %s: %w", rel, err)
	}
	return n, nil
}

func (r *QueryRunner) startStatement(ctx context.Context, name, stage, sql string) (context.Context, trace.Span) {
	r.logger.DebugContext(ctx, "executing statement",
		slog.String("diff.stage", stage),
		slog.String("db.statement", sql),
	)
	return r.tracer.Start(ctx, name,
		trace.WithAttributes(
			attribute.String("db.system", r.executor.Dialect().Name()),
			attribute.String("db.operation.name", "query"),
			attribute.String("db.statement", sql),
			attribute.String("diff.stage", stage),
		),
	)
}

// Run executes a plan. The returned Rows must be closed; closing ends the
// statement's span and writes its audit entry.
func (r *QueryRunner) Run(ctx context.Context, stage string, q sqlplan.Query) (port.Rows, error) {
	sql, err := r.Render(q)
	if err != nil {
		return nil, err
	}

	ctx, span := r.startStatement(ctx, "QueryRunner.Run", stage, sql)

	start := time.Now()
	rows, err := r.executor.Query(ctx, sql)
	if err != nil {
		r.finish(ctx, span, stage, sql, start, 0, err)
		return nil, fmt.Errorf("%s: %w", stage, err)
	}
	return &auditedRows{Rows: rows, runner: r, ctx: ctx, span: span, stage: stage, sql: sql, start: start}, nil
}

// Collect executes a plan and reads every row.
func (r *QueryRunner) Collect(ctx context.Context, stage string, q sqlplan.Query) (results []map[string]any, err error) {
	rows, err := r.Run(ctx, stage, q)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("%s: closing rows: %w", stage, cerr)
		}
	}()

	for rows.Next() {
		row, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("%s: reading row: %w", stage, err)
		}
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: iterating rows: %w", stage, err)
	}
	return results, nil
}

func (r *QueryRunner) finish(ctx context.Context, span trace.Span, stage, sql string, start time.Time, n int, err error) {
	defer span.End()
	durationMS := time.Since(start).Milliseconds()
	r.inst.RecordQueryDuration(ctx, float64(durationMS))

	if r.auditor != nil {
		r.auditor.Record(ctx, port.AuditEntry{
			Tool:         toolNameFromCtx(ctx),
			Stage:        stage,
			SQL:          sql,
			RowsReturned: n,
			DurationMS:   durationMS,
			Err:          err,
		})
	}

	if err != nil {
		r.logger.ErrorContext(ctx, "statement failed",
			slog.String("diff.stage", stage),
			slog.String("error", err.Error()),
		)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.inst.IncrementQueryErrors(ctx)
		return
	}
	r.inst.IncrementQueryCount(ctx)
	span.SetAttributes(attribute.Int("db.response.rows", n))
}

// auditedRows counts rows as they are read and reports the statement once
// on Close.
type auditedRows struct {
	port.Rows
	runner *QueryRunner
	ctx    context.Context
	span   trace.Span
	stage  string
	sql    string
	start  time.Time
	n      int
	closed bool
}

func (a *auditedRows) Next() bool {
	if a.Rows.Next() {
		a.n++
		return true
	}
	return false
}

func (a *auditedRows) Close() error {
	if a.closed {
		return nil
	}
	a.closed = true
	closeErr := a.Rows.Close()
	err := a.Rows.Err()
	if err == nil {
		err = closeErr
	}
	a.runner.finish(a.ctx, a.span, a.stage, a.sql, a.start, a.n, err)
	return closeErr
}
