package store

import (
	"database/sql"
	"fmt"
)

// Metadata returns the singleton bookkeeping row.
func (s *Store) Metadata() (*IndexMetadata, error) {
	m := &IndexMetadata{}
	err := s.db.QueryRow(
		"SELECT schema_version, last_indexed_commit, total_symbols, total_files FROM index_metadata WHERE id = 1",
	).Scan(&m.SchemaVersion, &m.LastIndexedCommit, &m.TotalSymbols, &m.TotalFiles)
	if err != nil {
		return nil, fmt.Errorf("read metadata: %w", err)
	}
	return m, nil
}

// AdvanceCommit records a completed update cycle: the new commit plus fresh
// row counts, in one transaction. This is the last step of any cycle; a
// cycle that fails earlier never reaches it, leaving the previous snapshot's
// metadata intact.
func (s *Store) AdvanceCommit(commit string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var symbols, files int
	if err := tx.QueryRow("SELECT COUNT(*) FROM symbols").Scan(&symbols); err != nil {
		return fmt.Errorf("count symbols: %w", err)
	}
	if err := tx.QueryRow("SELECT COUNT(*) FROM files").Scan(&files); err != nil {
		return fmt.Errorf("count files: %w", err)
	}
	if _, err := tx.Exec(
		`UPDATE index_metadata SET last_indexed_commit = ?, total_symbols = ?, total_files = ? WHERE id = 1`,
		commit, symbols, files,
	); err != nil {
		return fmt.Errorf("advance commit: %w", err)
	}
	return tx.Commit()
}

// LastIndexedCommit returns the revision the index currently reflects, empty
// before the first successful cycle.
func (s *Store) LastIndexedCommit() (string, error) {
	var commit string
	err := s.db.QueryRow("SELECT last_indexed_commit FROM index_metadata WHERE id = 1").Scan(&commit)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("last indexed commit: %w", err)
	}
	return commit, nil
}
