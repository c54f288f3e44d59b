package audit

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/stratomesh/stratomesh/core"
	_ "modernc.org/sqlite"
)

// SQLiteLog is a durable AuditLog backed by an embedded SQLite database.
// Entries are stored append-only with a monotonic rowid so ordered reads do
// not depend on timestamp resolution. The detail map is serialized as JSON.
type SQLiteLog struct {
	db *sql.DB
}

// NewSQLiteLog opens (creating if necessary) the database at path and applies
// the schema. Use ":memory:" for an ephemeral database in tests.
func NewSQLiteLog(path string) (*SQLiteLog, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open audit database: %w", err)
	}

	// database/sql pools connections; a second connection to an in-memory
	// SQLite database would see an empty schema.
	db.SetMaxOpenConns(1)

	l := &SQLiteLog{db: db}
	if err := l.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return l, nil
}

// Close releases the underlying database handle.
func (l *SQLiteLog) Close() error {
	return l.db.Close()
}

func (l *SQLiteLog) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS audit_entries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		workflow_id TEXT NOT NULL DEFAULT '',
		kind TEXT NOT NULL,
		detail TEXT,
		created_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_audit_workflow ON audit_entries(workflow_id);
	`

	if _, err := l.db.Exec(schema); err != nil {
		return fmt.Errorf("migrate audit schema: %w", err)
	}

	return nil
}

// Append records one entry at the tail of the trail.
func (l *SQLiteLog) Append(entry core.AuditEntry) error {
	var detailJSON *string
	if entry.Detail != nil {
		data, err := json.Marshal(entry.Detail)
		if err != nil {
			return fmt.Errorf("marshal audit detail: %w", err)
		}
		str := string(data)
		detailJSON = &str
	}

	_, err := l.db.Exec(
		`INSERT INTO audit_entries (workflow_id, kind, detail, created_at)
		 VALUES (?, ?, ?, ?)`,
		entry.WorkflowID, string(entry.Kind), detailJSON, entry.Timestamp.UTC(),
	)
	if err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

// Entries returns the entries recorded under the given workflow correlation
// id, in append order. Unknown ids yield an empty slice, not an error.
func (l *SQLiteLog) Entries(workflowID string) ([]core.AuditEntry, error) {
	rows, err := l.db.Query(
		`SELECT workflow_id, kind, detail, created_at
		 FROM audit_entries WHERE workflow_id = ? ORDER BY id`, workflowID,
	)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// All returns every recorded entry in append order, including registry-scope
// entries that carry no workflow id.
func (l *SQLiteLog) All() ([]core.AuditEntry, error) {
	rows, err := l.db.Query(
		`SELECT workflow_id, kind, detail, created_at
		 FROM audit_entries ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

func scanEntries(rows *sql.Rows) ([]core.AuditEntry, error) {
	entries := []core.AuditEntry{}
	for rows.Next() {
		var (
			entry      core.AuditEntry
			kind       string
			detailJSON sql.NullString
			createdAt  time.Time
		)
		if err := rows.Scan(&entry.WorkflowID, &kind, &detailJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		entry.Kind = core.AuditKind(kind)
		entry.Timestamp = createdAt
		if detailJSON.Valid {
			var detail map[string]any
			if err := json.Unmarshal([]byte(detailJSON.String), &detail); err == nil {
				entry.Detail = detail
			}
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
