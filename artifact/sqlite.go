package artifact

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore is a durable ArtifactStore backed by an embedded SQLite
// database. Artifact bytes are stored as BLOBs keyed by the workflow
// correlation id and artifact id; saving under an existing pair overwrites.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if necessary) the database at path and
// applies the schema. Use ":memory:" for an ephemeral database in tests.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open artifact database: %w", err)
	}

	// database/sql pools connections; a second connection to an in-memory
	// SQLite database would see an empty schema.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS artifacts (
		workflow_id TEXT NOT NULL,
		artifact_id TEXT NOT NULL,
		data BLOB NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		PRIMARY KEY (workflow_id, artifact_id)
	);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("migrate artifact schema: %w", err)
	}

	return nil
}

// Save stores (or overwrites) the artifact bytes under the given workflow
// and artifact id.
func (s *SQLiteStore) Save(workflowID, artifactID string, data []byte) error {
	_, err := s.db.Exec(
		`INSERT INTO artifacts (workflow_id, artifact_id, data, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (workflow_id, artifact_id)
		 DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		workflowID, artifactID, data, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("save artifact: %w", err)
	}
	return nil
}

// Get returns the stored artifact bytes or ErrNotFound.
func (s *SQLiteStore) Get(workflowID, artifactID string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRow(
		`SELECT data FROM artifacts WHERE workflow_id = ? AND artifact_id = ?`,
		workflowID, artifactID,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get artifact: %w", err)
	}
	return data, nil
}

// List returns the artifact ids stored for the workflow in sorted order.
func (s *SQLiteStore) List(workflowID string) ([]string, error) {
	rows, err := s.db.Query(
		`SELECT artifact_id FROM artifacts WHERE workflow_id = ? ORDER BY artifact_id`,
		workflowID,
	)
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan artifact id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Delete removes the artifact if present or returns ErrNotFound.
func (s *SQLiteStore) Delete(workflowID, artifactID string) error {
	res, err := s.db.Exec(
		`DELETE FROM artifacts WHERE workflow_id = ? AND artifact_id = ?`,
		workflowID, artifactID,
	)
	if err != nil {
		return fmt.Errorf("delete artifact: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete artifact: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
