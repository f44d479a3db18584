package port

import "context"

// AuditEntry describes one generated statement after it ran.
type AuditEntry struct {
	// Tool is the MCP tool that triggered the statement, empty for jobs.
	Tool string
	// Stage is the diff stage, such as "row_count" or "score".
	Stage        string
	SQL          string
	RowsReturned int
	DurationMS   int64
	Err          error
}

// QueryAuditor keeps a trail of every statement sent to the backend.
type QueryAuditor interface {
	Record(ctx context.Context, entry AuditEntry)
	Close() error
}
