// Package audit persists a best-effort trail of chat lifecycle actions to a
// local SQLite database. Recording failures are logged and swallowed so the
// trail never blocks or fails a caller's request.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

// Actions recorded by the gateway.
const (
	ActionChatCreate   = "agent.chat.create"
	ActionChatArchive  = "agent.chat.archive"
	ActionChatRestore  = "agent.chat.restore"
	ActionChatDelete   = "agent.chat.delete"
	ActionWriteAttempt = "agent.chat.write_attempt"
)

const schema = `
CREATE TABLE IF NOT EXISTS audit_log (
    id TEXT PRIMARY KEY,
    occurred_at TEXT NOT NULL,
    organization_id TEXT NOT NULL,
    action TEXT NOT NULL,
    chat_id TEXT,
    detail TEXT
);
CREATE INDEX IF NOT EXISTS idx_audit_log_org_time ON audit_log(organization_id, occurred_at);
`

// Entry is one audit row. Detail carries an optional JSON fragment with
// action-specific context.
type Entry struct {
	OrganizationID string
	Action         string
	ChatID         string
	Detail         string
}

// Recorder writes audit entries. A nil Recorder is valid and records nothing,
// so callers never need to branch on whether auditing is configured.
type Recorder struct {
	db *sql.DB
}

// Open creates or opens the audit database at path and ensures the schema
// exists. The parent directory is created if missing.
func Open(path string) (*Recorder, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create audit directory: %w", err)
		}
	}

	dsn := path + "?_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit database: %w", err)
	}
	if _, err = db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create audit schema: %w", err)
	}
	return &Recorder{db: db}, nil
}

// Record inserts one entry. Errors are logged, never returned: the audit
// trail is advisory and must not affect the caller's request.
func (r *Recorder) Record(ctx context.Context, e Entry) {
	if r == nil || r.db == nil {
		return
	}
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO audit_log (id, occurred_at, organization_id, action, chat_id, detail) VALUES (?, ?, ?, ?, ?, ?)",
		uuid.NewString(),
		time.Now().UTC().Format(time.RFC3339Nano),
		e.OrganizationID,
		e.Action,
		e.ChatID,
		e.Detail,
	)
	if err != nil {
		log.Errorf("audit: failed to record %s for org %s: %v", e.Action, e.OrganizationID, err)
	}
}

// Close releases the underlying database handle.
func (r *Recorder) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}
