package service

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/guillermoBallester/whydiff/internal/core/domain"
	"github.com/guillermoBallester/whydiff/internal/core/port"
	"github.com/guillermoBallester/whydiff/internal/core/sqlplan"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- mock RelationalExecutor ---

type mockExecutor struct {
	dialect  sqlplan.Dialect
	columns  map[string][]string
	counts   map[string]int64
	results  [][]map[string]any
	queryErr error

	columnCalls int
	countCalls  int
	queries     []string
}

func (m *mockExecutor) Dialect() sqlplan.Dialect {
	if m.dialect == nil {
		return sqlplan.SQLite
	}
	return m.dialect
}

func (m *mockExecutor) Columns(_ context.Context, r domain.Relation) ([]string, error) {
	m.columnCalls++
	cols, ok := m.columns[r.Text()]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cols, nil
}

func (m *mockExecutor) RowCount(_ context.Context, r domain.Relation) (int64, error) {
	m.countCalls++
	return m.counts[r.Text()], nil
}

func (m *mockExecutor) Query(_ context.Context, sql string) (port.Rows, error) {
	m.queries = append(m.queries, sql)
	if m.queryErr != nil {
		return nil, m.queryErr
	}
	var rows []map[string]any
	if len(m.results) > 0 {
		rows, m.results = m.results[0], m.results[1:]
	}
	return &mockRows{rows: rows, pos: -1}, nil
}

func (m *mockExecutor) calls() int {
	return m.columnCalls + m.countCalls + len(m.queries)
}

type mockRows struct {
	rows   []map[string]any
	pos    int
	closed bool
}

func (r *mockRows) Next() bool {
	r.pos++
	return r.pos < len(r.rows)
}

func (r *mockRows) Values() (map[string]any, error) { return r.rows[r.pos], nil }
func (r *mockRows) Columns() []string                { return nil }
func (r *mockRows) Err() error                       { return nil }

func (r *mockRows) Close() error {
	r.closed = true
	return nil
}

// --- recording auditor ---

type recordingAuditor struct {
	mu      sync.Mutex
	entries []port.AuditEntry
}

func (a *recordingAuditor) Record(_ context.Context, e port.AuditEntry) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, e)
}

func (a *recordingAuditor) Close() error { return nil }

// --- recording instrumentation ---

type recordingInstrumentation struct {
	port.NoopInstrumentation
	queries      int
	errors       int
	diffs        int
	explanations int
}

func (r *recordingInstrumentation) IncrementQueryCount(context.Context)  { r.queries++ }
func (r *recordingInstrumentation) IncrementQueryErrors(context.Context) { r.errors++ }
func (r *recordingInstrumentation) RecordDiffDuration(context.Context, float64) {
	r.diffs++
}
func (r *recordingInstrumentation) RecordExplanations(_ context.Context, n int) {
	r.explanations += n
}
