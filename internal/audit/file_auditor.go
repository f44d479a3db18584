package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/guillermoBallester/whydiff/internal/core/port"
)

// fileEntry is one NDJSON line of the audit log.
type fileEntry struct {
	Seq          uint64  `json:"seq"`
	Timestamp    string  `json:"ts"`
	Tool         string  `json:"tool,omitempty"`
	Stage        string  `json:"stage"`
	Status       string  `json:"status"`
	SQL          string  `json:"sql"`
	RowsReturned int     `json:"rows_returned"`
	DurationMS   int64   `json:"duration_ms"`
	Error        *string `json:"error"`
}

// FileAuditor appends every generated statement to an NDJSON file, tagged
// with the diff stage that issued it. Seq orders entries written by one
// process, since statements of concurrent diffs interleave.
type FileAuditor struct {
	mu   sync.Mutex
	seq  uint64
	file *os.File
	enc  *json.Encoder
}

func NewFileAuditor(path string) (*FileAuditor, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening audit log %s: %w", path, err)
	}
	return &FileAuditor{file: f, enc: json.NewEncoder(f)}, nil
}

// Record never fails the statement it describes; write errors are dropped.
func (a *FileAuditor) Record(_ context.Context, entry port.AuditEntry) {
	fe := fileEntry{
		Timestamp:    time.Now().UTC().Format(time.RFC3339Nano),
		Tool:         entry.Tool,
		Stage:        entry.Stage,
		Status:       "ok",
		SQL:          entry.SQL,
		RowsReturned: entry.RowsReturned,
		DurationMS:   entry.DurationMS,
	}
	if entry.Err != nil {
		msg := entry.Err.Error()
		fe.Error = &msg
		fe.Status = "error"
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.seq++
	fe.Seq = a.seq
	_ = a.enc.Encode(fe)
}

func (a *FileAuditor) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.file.Close()
}

// NoopAuditor discards all audit entries.
type NoopAuditor struct{}

func (NoopAuditor) Record(context.Context, port.AuditEntry) {}
func (NoopAuditor) Close() error                            { return nil }
