package store

import (
	"context"
	"database/sql"
	"fmt"
)

// ReplaceFileData swaps a file's rows wholesale: cascade-delete whatever the
// previous parse produced, insert the file record and the new batch, all in
// one transaction. This is the surgical-update write path; readers never see
// a half-replaced file. The transaction is retried once before failing
// closed with *IndexWriteError.
func (s *Store) ReplaceFileData(ctx context.Context, f *FileRecord, batch *Batch) (int64, error) {
	var fileID int64
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		fileID, lastErr = s.replaceFileOnce(ctx, f, batch)
		if lastErr == nil {
			return fileID, nil
		}
	}
	return 0, &IndexWriteError{Op: "replace " + f.Path, Err: lastErr}
}

func (s *Store) replaceFileOnce(ctx context.Context, f *FileRecord, batch *Batch) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Drop the previous generation, if any.
	var oldID int64
	err = tx.QueryRow("SELECT id FROM files WHERE path = ?", f.Path).Scan(&oldID)
	switch {
	case err == sql.ErrNoRows:
		// brand-new file: pure insert, no delete step
	case err != nil:
		return 0, fmt.Errorf("lookup file: %w", err)
	default:
		if err := deleteFileDataTx(tx, oldID); err != nil {
			return 0, err
		}
		if _, err := tx.Exec("DELETE FROM files WHERE id = ?", oldID); err != nil {
			return 0, fmt.Errorf("delete file record: %w", err)
		}
	}

	res, err := tx.Exec(
		`INSERT INTO files (path, language, size, mtime, content_hash, last_indexed_commit)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		f.Path, f.Language, f.Size, f.Mtime, f.ContentHash, f.LastIndexedCommit,
	)
	if err != nil {
		return 0, fmt.Errorf("insert file: %w", err)
	}
	fileID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}

	if err := commitBatchTx(tx, batch, fileID); err != nil {
		return 0, err
	}
	return fileID, tx.Commit()
}

// commitBatchTx inserts a batch inside an open transaction in FK dependency
// order, remapping fake IDs and stamping fileID onto every row.
func commitBatchTx(tx *sql.Tx, batch *Batch, fileID int64) error {
	fakeToReal := make(map[int64]int64)

	for _, sym := range batch.Symbols {
		sym.FileID = fileID
		sym.ParentSymbolID = remapPtr(sym.ParentSymbolID, fakeToReal)
		realID, err := upsertSymbolTx(tx, &sym)
		if err != nil {
			return fmt.Errorf("symbol %q: %w", sym.Name, err)
		}
		fakeToReal[sym.ID] = realID
	}
	for _, imp := range batch.ImportLinks {
		imp.FileID = fileID
		imp.ResolvedTargetSymbolID = remapPtr(imp.ResolvedTargetSymbolID, fakeToReal)
		if err := insertImportLinkTx(tx, &imp); err != nil {
			return fmt.Errorf("import %q: %w", imp.ImportedName, err)
		}
	}
	for _, ce := range batch.CallEdges {
		ce.FileID = fileID
		ce.CallerSymbolID = remapPtr(ce.CallerSymbolID, fakeToReal)
		if err := insertCallEdgeTx(tx, &ce); err != nil {
			return fmt.Errorf("call edge %q: %w", ce.CalleeName, err)
		}
	}
	for _, ref := range batch.References {
		ref.SourceFileID = fileID
		ref.SourceSymbolID = remapPtr(ref.SourceSymbolID, fakeToReal)
		ref.TargetSymbolID = remapPtr(ref.TargetSymbolID, fakeToReal)
		if err := insertReferenceTx(tx, &ref); err != nil {
			return fmt.Errorf("reference %q: %w", ref.Name, err)
		}
	}
	for _, ti := range batch.TypeInfos {
		ti.OwnerSymbolID = remap(ti.OwnerSymbolID, fakeToReal)
		if err := insertTypeInfoTx(tx, &ti); err != nil {
			return fmt.Errorf("type info: %w", err)
		}
	}
	for _, ie := range batch.InheritanceEdges {
		ie.SubclassSymbolID = remap(ie.SubclassSymbolID, fakeToReal)
		ie.ResolvedSuperclassSymbolID = remapPtr(ie.ResolvedSuperclassSymbolID, fakeToReal)
		if err := insertInheritanceEdgeTx(tx, &ie); err != nil {
			return fmt.Errorf("inheritance edge %q: %w", ie.SuperclassName, err)
		}
	}
	return nil
}
