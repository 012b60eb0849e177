package store

import "fmt"

// --- Reference operations ---

const referenceCols = `id, source_symbol_id, source_file_id, source_line, name,
	target_symbol_id, reference_type, confidence, resolution_method, stale`

func (s *Store) InsertReference(ref *Reference) (int64, error) {
	res, err := s.db.Exec(
		`INSERT INTO references_ (source_symbol_id, source_file_id, source_line, name,
			target_symbol_id, reference_type, confidence, resolution_method, stale)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ref.SourceSymbolID, ref.SourceFileID, ref.SourceLine, ref.Name,
		ref.TargetSymbolID, ref.ReferenceType, ref.Confidence, ref.ResolutionMethod, ref.Stale,
	)
	if err != nil {
		return 0, fmt.Errorf("insert reference: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	ref.ID = id
	return id, nil
}

func scanReference(scanner interface{ Scan(...any) error }) (*Reference, error) {
	ref := &Reference{}
	err := scanner.Scan(
		&ref.ID, &ref.SourceSymbolID, &ref.SourceFileID, &ref.SourceLine, &ref.Name,
		&ref.TargetSymbolID, &ref.ReferenceType, &ref.Confidence, &ref.ResolutionMethod, &ref.Stale,
	)
	if err != nil {
		return nil, err
	}
	return ref, nil
}

func (s *Store) queryReferences(query string, args ...any) ([]*Reference, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var refs []*Reference
	for rows.Next() {
		ref, err := scanReference(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reference: %w", err)
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

func (s *Store) ReferencesByTarget(symbolID int64) ([]*Reference, error) {
	return s.queryReferences(
		"SELECT "+referenceCols+" FROM references_ WHERE target_symbol_id = ? ORDER BY source_file_id, source_line",
		symbolID,
	)
}

func (s *Store) ReferencesByName(name string) ([]*Reference, error) {
	return s.queryReferences(
		"SELECT "+referenceCols+" FROM references_ WHERE name = ? ORDER BY source_file_id, source_line",
		name,
	)
}

func (s *Store) ReferencesByFile(fileID int64) ([]*Reference, error) {
	return s.queryReferences(
		"SELECT "+referenceCols+" FROM references_ WHERE source_file_id = ? ORDER BY source_line",
		fileID,
	)
}

func (s *Store) StaleReferences() ([]*Reference, error) {
	return s.queryReferences("SELECT " + referenceCols + " FROM references_ WHERE stale = TRUE ORDER BY id")
}

// UpdateReferenceResolution records a (re-)resolution outcome and clears the
// stale flag in one statement.
func (s *Store) UpdateReferenceResolution(refID int64, targetSymbolID *int64, confidence float64, method string) error {
	_, err := s.db.Exec(
		`UPDATE references_ SET target_symbol_id = ?, confidence = ?, resolution_method = ?, stale = FALSE
		 WHERE id = ?`,
		targetSymbolID, confidence, method, refID,
	)
	if err != nil {
		return fmt.Errorf("update reference resolution: %w", err)
	}
	return nil
}

// MarkReferencesStale flags every reference targeting one of the given
// symbols so the next resolve pass revisits it without its source file being
// re-parsed.
func (s *Store) MarkReferencesStale(targetSymbolIDs []int64) error {
	if len(targetSymbolIDs) == 0 {
		return nil
	}
	placeholders := placeholderList(len(targetSymbolIDs))
	_, err := s.db.Exec(
		"UPDATE references_ SET stale = TRUE WHERE target_symbol_id IN ("+placeholders+")",
		int64sToArgs(targetSymbolIDs)...,
	)
	if err != nil {
		return fmt.Errorf("mark references stale: %w", err)
	}
	return nil
}

// MarkReferencesStaleByName flags unresolved or name-matching references, used
// when a symbol with that name appears or disappears.
func (s *Store) MarkReferencesStaleByName(names []string) error {
	if len(names) == 0 {
		return nil
	}
	placeholders := placeholderList(len(names))
	args := make([]any, len(names))
	for i, n := range names {
		args[i] = n
	}
	_, err := s.db.Exec(
		"UPDATE references_ SET stale = TRUE WHERE name IN ("+placeholders+")", args...,
	)
	if err != nil {
		return fmt.Errorf("mark references stale by name: %w", err)
	}
	return nil
}

// FilesImportingNames returns the IDs of files holding an import link whose
// imported name or alias matches any of the given names. These files need
// import resolution re-run when a definition for one of the names appears or
// disappears, even if nothing in them references the name.
func (s *Store) FilesImportingNames(names []string) ([]int64, error) {
	if len(names) == 0 {
		return nil, nil
	}
	placeholders := placeholderList(len(names))
	args := make([]any, 0, len(names)*2)
	for _, n := range names {
		args = append(args, n)
	}
	for _, n := range names {
		args = append(args, n)
	}
	return s.queryFileIDs(
		"SELECT DISTINCT file_id FROM import_links WHERE imported_name IN ("+placeholders+") OR alias IN ("+placeholders+")",
		args...,
	)
}

// FilesReferencingSymbols returns source-file IDs holding references that
// target any of the given symbols: the blast radius of a signature change.
func (s *Store) FilesReferencingSymbols(symbolIDs []int64) ([]int64, error) {
	if len(symbolIDs) == 0 {
		return nil, nil
	}
	placeholders := placeholderList(len(symbolIDs))
	return s.queryFileIDs(
		"SELECT DISTINCT source_file_id FROM references_ WHERE target_symbol_id IN ("+placeholders+")",
		int64sToArgs(symbolIDs)...,
	)
}

// --- TypeInfo operations ---

const typeInfoCols = `id, owner_symbol_id, declared_type, inferred_type, source, confidence`

func (s *Store) InsertTypeInfo(ti *TypeInfo) (int64, error) {
	res, err := s.db.Exec(
		`INSERT INTO type_info (owner_symbol_id, declared_type, inferred_type, source, confidence)
		 VALUES (?, ?, ?, ?, ?)`,
		ti.OwnerSymbolID, ti.DeclaredType, ti.InferredType, ti.Source, ti.Confidence,
	)
	if err != nil {
		return 0, fmt.Errorf("insert type info: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	ti.ID = id
	return id, nil
}

func (s *Store) TypeInfoByOwner(symbolID int64) ([]*TypeInfo, error) {
	rows, err := s.db.Query(
		"SELECT "+typeInfoCols+" FROM type_info WHERE owner_symbol_id = ? ORDER BY confidence DESC, id",
		symbolID,
	)
	if err != nil {
		return nil, fmt.Errorf("type info by owner: %w", err)
	}
	defer rows.Close()
	var infos []*TypeInfo
	for rows.Next() {
		ti := &TypeInfo{}
		if err := rows.Scan(&ti.ID, &ti.OwnerSymbolID, &ti.DeclaredType, &ti.InferredType,
			&ti.Source, &ti.Confidence); err != nil {
			return nil, fmt.Errorf("scan type info: %w", err)
		}
		infos = append(infos, ti)
	}
	return infos, rows.Err()
}

// --- InheritanceEdge operations ---

const inheritanceCols = `id, subclass_symbol_id, superclass_name, resolved_superclass_symbol_id, position`

func (s *Store) InsertInheritanceEdge(ie *InheritanceEdge) (int64, error) {
	res, err := s.db.Exec(
		`INSERT INTO inheritance_edges (subclass_symbol_id, superclass_name, resolved_superclass_symbol_id, position)
		 VALUES (?, ?, ?, ?)`,
		ie.SubclassSymbolID, ie.SuperclassName, ie.ResolvedSuperclassSymbolID, ie.Position,
	)
	if err != nil {
		return 0, fmt.Errorf("insert inheritance edge: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	ie.ID = id
	return id, nil
}

func (s *Store) queryInheritanceEdges(query string, args ...any) ([]*InheritanceEdge, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var edges []*InheritanceEdge
	for rows.Next() {
		ie := &InheritanceEdge{}
		if err := rows.Scan(&ie.ID, &ie.SubclassSymbolID, &ie.SuperclassName,
			&ie.ResolvedSuperclassSymbolID, &ie.Position); err != nil {
			return nil, fmt.Errorf("scan inheritance edge: %w", err)
		}
		edges = append(edges, ie)
	}
	return edges, rows.Err()
}

// InheritanceEdgesBySubclass returns a class's superclass declarations in
// declaration order.
func (s *Store) InheritanceEdgesBySubclass(symbolID int64) ([]*InheritanceEdge, error) {
	return s.queryInheritanceEdges(
		"SELECT "+inheritanceCols+" FROM inheritance_edges WHERE subclass_symbol_id = ? ORDER BY position",
		symbolID,
	)
}

// AllInheritanceEdges returns the full inheritance graph, ordered so each
// subclass's bases come back in declaration order.
func (s *Store) AllInheritanceEdges() ([]*InheritanceEdge, error) {
	return s.queryInheritanceEdges(
		"SELECT " + inheritanceCols + " FROM inheritance_edges ORDER BY subclass_symbol_id, position",
	)
}

func (s *Store) UpdateInheritanceResolution(edgeID int64, superclassSymbolID *int64) error {
	_, err := s.db.Exec(
		"UPDATE inheritance_edges SET resolved_superclass_symbol_id = ? WHERE id = ?",
		superclassSymbolID, edgeID,
	)
	if err != nil {
		return fmt.Errorf("update inheritance resolution: %w", err)
	}
	return nil
}

// DeleteResolutionDataForFiles removes the derived rows for the given source
// files so a resolve pass can rebuild them from extraction facts.
func (s *Store) DeleteResolutionDataForFiles(fileIDs []int64) error {
	if len(fileIDs) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	placeholders := placeholderList(len(fileIDs))
	args := int64sToArgs(fileIDs)

	if _, err := tx.Exec(
		"DELETE FROM references_ WHERE source_file_id IN ("+placeholders+")", args...,
	); err != nil {
		return fmt.Errorf("delete references: %w", err)
	}
	// Annotation and instantiation rows are extraction facts; only the
	// import-propagated rows are resolver output.
	if _, err := tx.Exec(
		`DELETE FROM type_info WHERE source = 'import' AND owner_symbol_id IN
			(SELECT id FROM symbols WHERE file_id IN (`+placeholders+`))`, args...,
	); err != nil {
		return fmt.Errorf("delete propagated type info: %w", err)
	}
	if _, err := tx.Exec(
		`UPDATE inheritance_edges SET resolved_superclass_symbol_id = NULL
		 WHERE subclass_symbol_id IN (SELECT id FROM symbols WHERE file_id IN (`+placeholders+`))`, args...,
	); err != nil {
		return fmt.Errorf("clear inheritance resolution: %w", err)
	}
	if _, err := tx.Exec(
		`UPDATE import_links SET resolved_target_symbol_id = NULL, confidence = 0
		 WHERE file_id IN (`+placeholders+`)`, args...,
	); err != nil {
		return fmt.Errorf("clear import resolution: %w", err)
	}
	return tx.Commit()
}

// SymbolIDsByFiles returns all symbol IDs defined in the given files.
func (s *Store) SymbolIDsByFiles(fileIDs []int64) ([]int64, error) {
	if len(fileIDs) == 0 {
		return nil, nil
	}
	rows, err := s.db.Query(
		"SELECT id FROM symbols WHERE file_id IN ("+placeholderList(len(fileIDs))+")",
		int64sToArgs(fileIDs)...,
	)
	if err != nil {
		return nil, fmt.Errorf("symbol ids by files: %w", err)
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
