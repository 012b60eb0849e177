package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// SchemaVersion gates incremental updates: a delta computed against an index
// with a different schema version is invalid and forces a full reindex.
const SchemaVersion = 1

// Store is the SQLite data access layer for the symbol index. Writes go
// through exclusive transactions; readers always see the last committed
// snapshot (WAL mode).
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (or creates) the index database at dbPath with WAL mode enabled,
// migrates the schema, and verifies the stored schema version. A version
// mismatch or a failed integrity check is an *IndexCorruptionError.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db, path: dbPath}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.verify(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for use in transactions.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) migrate() error {
	if _, err := s.db.Exec(schemaDDL); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	// Seed the singleton metadata row on first open.
	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO index_metadata (id, schema_version, last_indexed_commit, total_symbols, total_files)
		 VALUES (1, ?, '', 0, 0)`,
		SchemaVersion,
	)
	if err != nil {
		return fmt.Errorf("seed metadata: %w", err)
	}
	return nil
}

// verify checks the stored schema version and runs SQLite's quick integrity
// check. Either failing means the index cannot be trusted.
func (s *Store) verify() error {
	var version int
	err := s.db.QueryRow("SELECT schema_version FROM index_metadata WHERE id = 1").Scan(&version)
	if err != nil {
		return &IndexCorruptionError{Path: s.path, Reason: fmt.Sprintf("metadata row unreadable: %v", err)}
	}
	if version != SchemaVersion {
		return &IndexCorruptionError{
			Path:   s.path,
			Reason: fmt.Sprintf("schema version %d, expected %d", version, SchemaVersion),
		}
	}
	var result string
	if err := s.db.QueryRow("PRAGMA quick_check(1)").Scan(&result); err != nil || result != "ok" {
		return &IndexCorruptionError{Path: s.path, Reason: "integrity check failed: " + result}
	}
	return nil
}

const schemaDDL = `
-- Extraction tables

CREATE TABLE IF NOT EXISTS files (
  id                   INTEGER PRIMARY KEY,
  path                 TEXT NOT NULL UNIQUE,
  language             TEXT NOT NULL,
  size                 INTEGER NOT NULL DEFAULT 0,
  mtime                TIMESTAMP,
  content_hash         TEXT NOT NULL,
  last_indexed_commit  TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS symbols (
  id               INTEGER PRIMARY KEY,
  file_id          INTEGER NOT NULL REFERENCES files(id),
  name             TEXT NOT NULL,
  kind             TEXT NOT NULL,
  language         TEXT NOT NULL,
  signature        TEXT,
  doc              TEXT,
  return_type      TEXT,
  parameters       TEXT,
  start_line       INTEGER NOT NULL,
  end_line         INTEGER NOT NULL,
  parent_symbol_id INTEGER REFERENCES symbols(id),
  signature_hash   TEXT,
  UNIQUE (file_id, name, start_line)
);

CREATE TABLE IF NOT EXISTS import_links (
  id                        INTEGER PRIMARY KEY,
  file_id                   INTEGER NOT NULL REFERENCES files(id),
  imported_name             TEXT NOT NULL,
  source_module             TEXT NOT NULL,
  alias                     TEXT,
  resolved_target_symbol_id INTEGER REFERENCES symbols(id),
  confidence                REAL NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS call_edges (
  id               INTEGER PRIMARY KEY,
  caller_symbol_id INTEGER REFERENCES symbols(id),
  file_id          INTEGER NOT NULL REFERENCES files(id),
  callee_name      TEXT NOT NULL,
  receiver_expr    TEXT,
  receiver_type    TEXT,
  line             INTEGER NOT NULL
);

-- Resolution tables

CREATE TABLE IF NOT EXISTS references_ (
  id                INTEGER PRIMARY KEY,
  source_symbol_id  INTEGER REFERENCES symbols(id),
  source_file_id    INTEGER NOT NULL REFERENCES files(id),
  source_line       INTEGER NOT NULL,
  name              TEXT NOT NULL,
  target_symbol_id  INTEGER REFERENCES symbols(id),
  reference_type    TEXT NOT NULL,
  confidence        REAL NOT NULL DEFAULT 0,
  resolution_method TEXT NOT NULL DEFAULT 'unresolved',
  stale             BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS type_info (
  id              INTEGER PRIMARY KEY,
  owner_symbol_id INTEGER NOT NULL REFERENCES symbols(id),
  declared_type   TEXT,
  inferred_type   TEXT,
  source          TEXT NOT NULL,
  confidence      REAL NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS inheritance_edges (
  id                            INTEGER PRIMARY KEY,
  subclass_symbol_id            INTEGER NOT NULL REFERENCES symbols(id),
  superclass_name               TEXT NOT NULL,
  resolved_superclass_symbol_id INTEGER REFERENCES symbols(id),
  position                      INTEGER NOT NULL DEFAULT 0
);

-- Vector index

CREATE TABLE IF NOT EXISTS embeddings (
  symbol_id  INTEGER PRIMARY KEY,
  vector     BLOB NOT NULL,
  tombstoned BOOLEAN NOT NULL DEFAULT FALSE
);

-- Bookkeeping (single row, id = 1)

CREATE TABLE IF NOT EXISTS index_metadata (
  id                  INTEGER PRIMARY KEY CHECK (id = 1),
  schema_version      INTEGER NOT NULL,
  last_indexed_commit TEXT NOT NULL DEFAULT '',
  total_symbols       INTEGER NOT NULL DEFAULT 0,
  total_files         INTEGER NOT NULL DEFAULT 0
);

-- Indexes

CREATE INDEX IF NOT EXISTS idx_files_language ON files(language);
CREATE INDEX IF NOT EXISTS idx_symbols_file ON symbols(file_id);
CREATE INDEX IF NOT EXISTS idx_symbols_name ON symbols(name);
CREATE INDEX IF NOT EXISTS idx_symbols_kind ON symbols(kind);
CREATE INDEX IF NOT EXISTS idx_symbols_parent ON symbols(parent_symbol_id);
CREATE INDEX IF NOT EXISTS idx_imports_file ON import_links(file_id);
CREATE INDEX IF NOT EXISTS idx_imports_name ON import_links(imported_name);
CREATE INDEX IF NOT EXISTS idx_imports_target ON import_links(resolved_target_symbol_id);
CREATE INDEX IF NOT EXISTS idx_call_edges_caller ON call_edges(caller_symbol_id);
CREATE INDEX IF NOT EXISTS idx_call_edges_file ON call_edges(file_id);
CREATE INDEX IF NOT EXISTS idx_call_edges_callee ON call_edges(callee_name);
CREATE INDEX IF NOT EXISTS idx_references_file ON references_(source_file_id);
CREATE INDEX IF NOT EXISTS idx_references_name ON references_(name);
CREATE INDEX IF NOT EXISTS idx_references_source ON references_(source_symbol_id);
CREATE INDEX IF NOT EXISTS idx_references_target ON references_(target_symbol_id);
CREATE INDEX IF NOT EXISTS idx_references_stale ON references_(stale);
CREATE INDEX IF NOT EXISTS idx_type_info_owner ON type_info(owner_symbol_id);
CREATE INDEX IF NOT EXISTS idx_inheritance_subclass ON inheritance_edges(subclass_symbol_id);
CREATE INDEX IF NOT EXISTS idx_inheritance_superclass ON inheritance_edges(superclass_name);
CREATE INDEX IF NOT EXISTS idx_inheritance_resolved ON inheritance_edges(resolved_superclass_symbol_id);
CREATE INDEX IF NOT EXISTS idx_embeddings_tombstoned ON embeddings(tombstoned);
`

// DeleteFile transactionally removes a file and every row derived from it:
// symbols, import links, call edges, references, type info, inheritance
// edges. Embeddings for the file's symbols are tombstoned, not deleted, so
// the vector index does not need a rebuild on every delete.
func (s *Store) DeleteFile(path string) error {
	f, err := s.FileByPath(path)
	if err != nil {
		return err
	}
	if f == nil {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := deleteFileDataTx(tx, f.ID); err != nil {
		return err
	}
	if _, err := tx.Exec("DELETE FROM files WHERE id = ?", f.ID); err != nil {
		return fmt.Errorf("delete file record: %w", err)
	}
	return tx.Commit()
}

// deleteFileDataTx removes all rows owned by fileID inside an open
// transaction, in reverse-dependency order. Rows in other files that pointed
// at this file's symbols are unresolved, not deleted: their target becomes
// NULL and they are marked stale for re-resolution.
func deleteFileDataTx(tx *sql.Tx, fileID int64) error {
	symbolIDs, err := symbolIDsForFileTx(tx, fileID)
	if err != nil {
		return err
	}

	if len(symbolIDs) > 0 {
		placeholders := placeholderList(len(symbolIDs))
		args := int64sToArgs(symbolIDs)

		// Cross-file rows pointing at the dying symbols: unresolve and stale-mark.
		if _, err := tx.Exec(
			`UPDATE references_ SET target_symbol_id = NULL, confidence = 0,
				resolution_method = 'unresolved', stale = TRUE
			 WHERE target_symbol_id IN (`+placeholders+`) AND source_file_id != ?`,
			append(append([]any{}, args...), fileID)...,
		); err != nil {
			return fmt.Errorf("unresolve dependent references: %w", err)
		}
		if _, err := tx.Exec(
			`UPDATE import_links SET resolved_target_symbol_id = NULL, confidence = 0
			 WHERE resolved_target_symbol_id IN (`+placeholders+`) AND file_id != ?`,
			append(append([]any{}, args...), fileID)...,
		); err != nil {
			return fmt.Errorf("unresolve dependent imports: %w", err)
		}
		if _, err := tx.Exec(
			`UPDATE inheritance_edges SET resolved_superclass_symbol_id = NULL
			 WHERE resolved_superclass_symbol_id IN (`+placeholders+`)
			   AND subclass_symbol_id NOT IN (`+placeholders+`)`,
			repeatArgs(args, 2)...,
		); err != nil {
			return fmt.Errorf("unresolve dependent inheritance edges: %w", err)
		}

		// Tombstone vectors for the dying symbols.
		if _, err := tx.Exec(
			"UPDATE embeddings SET tombstoned = TRUE WHERE symbol_id IN ("+placeholders+")",
			args...,
		); err != nil {
			return fmt.Errorf("tombstone embeddings: %w", err)
		}

		for _, q := range []string{
			"DELETE FROM type_info WHERE owner_symbol_id IN (" + placeholders + ")",
			"DELETE FROM inheritance_edges WHERE subclass_symbol_id IN (" + placeholders + ")",
			"DELETE FROM call_edges WHERE caller_symbol_id IN (" + placeholders + ")",
		} {
			if _, err := tx.Exec(q, args...); err != nil {
				return fmt.Errorf("delete symbol-owned rows: %w", err)
			}
		}
	}

	for _, q := range []string{
		"DELETE FROM references_ WHERE source_file_id = ?",
		"DELETE FROM call_edges WHERE file_id = ?",
		"DELETE FROM import_links WHERE file_id = ?",
		"DELETE FROM symbols WHERE file_id = ?",
	} {
		if _, err := tx.Exec(q, fileID); err != nil {
			return fmt.Errorf("delete file-owned rows: %w", err)
		}
	}
	return nil
}

func symbolIDsForFileTx(tx *sql.Tx, fileID int64) ([]int64, error) {
	rows, err := tx.Query("SELECT id FROM symbols WHERE file_id = ?", fileID)
	if err != nil {
		return nil, fmt.Errorf("query symbols: %w", err)
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan symbol id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
