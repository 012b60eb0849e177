package store

import (
	"database/sql"
	"fmt"
)

// --- File operations ---

func (s *Store) InsertFile(f *FileRecord) (int64, error) {
	res, err := s.db.Exec(
		`INSERT INTO files (path, language, size, mtime, content_hash, last_indexed_commit)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		f.Path, f.Language, f.Size, f.Mtime, f.ContentHash, f.LastIndexedCommit,
	)
	if err != nil {
		return 0, fmt.Errorf("insert file: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	f.ID = id
	return id, nil
}

const fileCols = `id, path, language, size, mtime, content_hash, last_indexed_commit`

func scanFile(scanner interface{ Scan(...any) error }) (*FileRecord, error) {
	f := &FileRecord{}
	err := scanner.Scan(&f.ID, &f.Path, &f.Language, &f.Size, &f.Mtime, &f.ContentHash, &f.LastIndexedCommit)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// FileByPath returns the record for a normalized path, or nil if not indexed.
func (s *Store) FileByPath(path string) (*FileRecord, error) {
	f, err := scanFile(s.db.QueryRow("SELECT "+fileCols+" FROM files WHERE path = ?", path))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("file by path: %w", err)
	}
	return f, nil
}

func (s *Store) queryFiles(query string, args ...any) ([]*FileRecord, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var files []*FileRecord
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

func (s *Store) AllFiles() ([]*FileRecord, error) {
	return s.queryFiles("SELECT " + fileCols + " FROM files ORDER BY path")
}

func (s *Store) FilesByLanguage(language string) ([]*FileRecord, error) {
	return s.queryFiles("SELECT "+fileCols+" FROM files WHERE language = ? ORDER BY path", language)
}

// FilePaths returns file ID -> path for every indexed file.
func (s *Store) FilePaths() (map[int64]string, error) {
	rows, err := s.db.Query("SELECT id, path FROM files")
	if err != nil {
		return nil, fmt.Errorf("file paths: %w", err)
	}
	defer rows.Close()
	paths := make(map[int64]string)
	for rows.Next() {
		var id int64
		var p string
		if err := rows.Scan(&id, &p); err != nil {
			return nil, fmt.Errorf("scan file path: %w", err)
		}
		paths[id] = p
	}
	return paths, rows.Err()
}

func (s *Store) CountFiles() (int, error) {
	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM files").Scan(&n); err != nil {
		return 0, fmt.Errorf("count files: %w", err)
	}
	return n, nil
}

// --- Symbol operations ---

const symbolCols = `id, file_id, name, kind, language, signature, doc, return_type, parameters,
	start_line, end_line, parent_symbol_id, signature_hash`

func (s *Store) InsertSymbol(sym *Symbol) (int64, error) {
	res, err := s.db.Exec(
		`INSERT INTO symbols (file_id, name, kind, language, signature, doc, return_type, parameters,
			start_line, end_line, parent_symbol_id, signature_hash)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sym.FileID, sym.Name, sym.Kind, sym.Language, sym.Signature, sym.Doc, sym.ReturnType,
		marshalParams(sym.Parameters), sym.StartLine, sym.EndLine, sym.ParentSymbolID, sym.SignatureHash,
	)
	if err != nil {
		return 0, fmt.Errorf("insert symbol: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	sym.ID = id
	return id, nil
}

func scanSymbol(scanner interface{ Scan(...any) error }) (*Symbol, error) {
	sym := &Symbol{}
	var params string
	err := scanner.Scan(
		&sym.ID, &sym.FileID, &sym.Name, &sym.Kind, &sym.Language, &sym.Signature, &sym.Doc,
		&sym.ReturnType, &params, &sym.StartLine, &sym.EndLine, &sym.ParentSymbolID, &sym.SignatureHash,
	)
	if err != nil {
		return nil, err
	}
	sym.Parameters = unmarshalParams(params)
	return sym, nil
}

func (s *Store) querySymbols(query string, args ...any) ([]*Symbol, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var symbols []*Symbol
	for rows.Next() {
		sym, err := scanSymbol(rows)
		if err != nil {
			return nil, fmt.Errorf("scan symbol: %w", err)
		}
		symbols = append(symbols, sym)
	}
	return symbols, rows.Err()
}

func (s *Store) SymbolByID(id int64) (*Symbol, error) {
	sym, err := scanSymbol(s.db.QueryRow("SELECT "+symbolCols+" FROM symbols WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("symbol by id: %w", err)
	}
	return sym, nil
}

func (s *Store) SymbolsByName(name string) ([]*Symbol, error) {
	return s.querySymbols("SELECT "+symbolCols+" FROM symbols WHERE name = ? ORDER BY id", name)
}

func (s *Store) SymbolsByFile(fileID int64) ([]*Symbol, error) {
	return s.querySymbols("SELECT "+symbolCols+" FROM symbols WHERE file_id = ? ORDER BY start_line", fileID)
}

func (s *Store) SymbolsByIDs(ids []int64) ([]*Symbol, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return s.querySymbols(
		"SELECT "+symbolCols+" FROM symbols WHERE id IN ("+placeholderList(len(ids))+")",
		int64sToArgs(ids)...,
	)
}

func (s *Store) CountSymbols() (int, error) {
	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM symbols").Scan(&n); err != nil {
		return 0, fmt.Errorf("count symbols: %w", err)
	}
	return n, nil
}

// --- ImportLink operations ---

const importCols = `id, file_id, imported_name, source_module, alias, resolved_target_symbol_id, confidence`

func (s *Store) InsertImportLink(imp *ImportLink) (int64, error) {
	var alias any
	if imp.Alias != "" {
		alias = imp.Alias
	}
	res, err := s.db.Exec(
		`INSERT INTO import_links (file_id, imported_name, source_module, alias, resolved_target_symbol_id, confidence)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		imp.FileID, imp.ImportedName, imp.SourceModule, alias, imp.ResolvedTargetSymbolID, imp.Confidence,
	)
	if err != nil {
		return 0, fmt.Errorf("insert import link: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	imp.ID = id
	return id, nil
}

func (s *Store) queryImports(query string, args ...any) ([]*ImportLink, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var imports []*ImportLink
	for rows.Next() {
		imp := &ImportLink{}
		var alias sql.NullString
		if err := rows.Scan(&imp.ID, &imp.FileID, &imp.ImportedName, &imp.SourceModule,
			&alias, &imp.ResolvedTargetSymbolID, &imp.Confidence); err != nil {
			return nil, fmt.Errorf("scan import link: %w", err)
		}
		imp.Alias = alias.String
		imports = append(imports, imp)
	}
	return imports, rows.Err()
}

func (s *Store) ImportsByFile(fileID int64) ([]*ImportLink, error) {
	return s.queryImports("SELECT "+importCols+" FROM import_links WHERE file_id = ? ORDER BY id", fileID)
}

// FilesImportingName returns file IDs with an import of the given name,
// under any alias.
func (s *Store) FilesImportingName(name string) ([]int64, error) {
	return s.queryFileIDs(
		"SELECT DISTINCT file_id FROM import_links WHERE imported_name = ? OR alias = ?",
		name, name,
	)
}

// FilesImportingModule returns file IDs importing from the given module path.
func (s *Store) FilesImportingModule(module string) ([]int64, error) {
	return s.queryFileIDs("SELECT DISTINCT file_id FROM import_links WHERE source_module = ?", module)
}

func (s *Store) UpdateImportResolution(importID int64, targetSymbolID *int64, confidence float64) error {
	_, err := s.db.Exec(
		"UPDATE import_links SET resolved_target_symbol_id = ?, confidence = ? WHERE id = ?",
		targetSymbolID, confidence, importID,
	)
	if err != nil {
		return fmt.Errorf("update import resolution: %w", err)
	}
	return nil
}

// --- CallEdge operations ---

const callEdgeCols = `id, caller_symbol_id, file_id, callee_name, receiver_expr, receiver_type, line`

func (s *Store) InsertCallEdge(ce *CallEdge) (int64, error) {
	res, err := s.db.Exec(
		`INSERT INTO call_edges (caller_symbol_id, file_id, callee_name, receiver_expr, receiver_type, line)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		ce.CallerSymbolID, ce.FileID, ce.CalleeName, ce.ReceiverExpr, ce.ReceiverType, ce.Line,
	)
	if err != nil {
		return 0, fmt.Errorf("insert call edge: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	ce.ID = id
	return id, nil
}

func (s *Store) queryCallEdges(query string, args ...any) ([]*CallEdge, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var edges []*CallEdge
	for rows.Next() {
		ce := &CallEdge{}
		if err := rows.Scan(&ce.ID, &ce.CallerSymbolID, &ce.FileID, &ce.CalleeName,
			&ce.ReceiverExpr, &ce.ReceiverType, &ce.Line); err != nil {
			return nil, fmt.Errorf("scan call edge: %w", err)
		}
		edges = append(edges, ce)
	}
	return edges, rows.Err()
}

func (s *Store) CallEdgesByFile(fileID int64) ([]*CallEdge, error) {
	return s.queryCallEdges("SELECT "+callEdgeCols+" FROM call_edges WHERE file_id = ? ORDER BY line", fileID)
}

func (s *Store) CallEdgesByCaller(callerSymbolID int64) ([]*CallEdge, error) {
	return s.queryCallEdges("SELECT "+callEdgeCols+" FROM call_edges WHERE caller_symbol_id = ?", callerSymbolID)
}

func (s *Store) queryFileIDs(query string, args ...any) ([]int64, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan file id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
