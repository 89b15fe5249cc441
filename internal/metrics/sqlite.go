package metrics

import (
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schema string

// SQLiteStore keeps snapshots in a SQLite database file.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens or creates the database at path and applies the
// schema.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("execute schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Save(snapshot Snapshot) error {
	_, err := s.db.Exec(`
		INSERT INTO snapshots (
			id, run_id, recorded_at, state, total, normalized, failed_normalization,
			duplicates_removed, quality_score, discrepancies, grid_issues, errors
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		snapshot.ID, snapshot.RunID, snapshot.RecordedAt.UnixNano(), snapshot.State,
		snapshot.Total, snapshot.Normalized, snapshot.FailedNormalization,
		snapshot.DuplicatesRemoved, snapshot.QualityScore, snapshot.Discrepancies,
		snapshot.GridIssues, snapshot.Errors,
	)
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Recent(n int) ([]Snapshot, error) {
	query := `
		SELECT id, run_id, recorded_at, state, total, normalized, failed_normalization,
			duplicates_removed, quality_score, discrepancies, grid_issues, errors
		FROM snapshots
		ORDER BY recorded_at DESC, rowid DESC`
	args := []interface{}{}
	if n > 0 {
		query += " LIMIT ?"
		args = append(args, n)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	defer rows.Close()

	var out []Snapshot
	for rows.Next() {
		var snap Snapshot
		var recordedAt int64
		if err := rows.Scan(
			&snap.ID, &snap.RunID, &recordedAt, &snap.State, &snap.Total, &snap.Normalized,
			&snap.FailedNormalization, &snap.DuplicatesRemoved, &snap.QualityScore,
			&snap.Discrepancies, &snap.GridIssues, &snap.Errors,
		); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		snap.RecordedAt = time.Unix(0, recordedAt).UTC()
		out = append(out, snap)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
