package store

import (
	"context"
	"database/sql"
	"fmt"
)

// chunkSize bounds the number of rows per transaction so a large batch
// commits as a sequence of small transactions instead of one giant one.
const chunkSize = 1000

// Batch buffers extraction entities in memory using fake (negative) IDs for
// rows that reference other rows in the same batch. WriteBatch remaps fake
// IDs to real AUTOINCREMENT IDs at commit time.
type Batch struct {
	Symbols          []Symbol
	ImportLinks      []ImportLink
	CallEdges        []CallEdge
	References       []Reference
	TypeInfos        []TypeInfo
	InheritanceEdges []InheritanceEdge

	nextFakeID int64 // starts at -1, decrements
}

// NewBatch returns an empty batch ready for Add calls.
func NewBatch() *Batch {
	return &Batch{nextFakeID: -1}
}

func (b *Batch) allocFakeID() int64 {
	id := b.nextFakeID
	b.nextFakeID--
	return id
}

// AddSymbol buffers a symbol and returns its fake ID, usable as a parent or
// owner reference by later adds in the same batch.
func (b *Batch) AddSymbol(sym Symbol) int64 {
	sym.ID = b.allocFakeID()
	b.Symbols = append(b.Symbols, sym)
	return sym.ID
}

func (b *Batch) AddImportLink(imp ImportLink) {
	imp.ID = b.allocFakeID()
	b.ImportLinks = append(b.ImportLinks, imp)
}

func (b *Batch) AddCallEdge(ce CallEdge) {
	ce.ID = b.allocFakeID()
	b.CallEdges = append(b.CallEdges, ce)
}

func (b *Batch) AddReference(ref Reference) {
	ref.ID = b.allocFakeID()
	b.References = append(b.References, ref)
}

func (b *Batch) AddTypeInfo(ti TypeInfo) {
	ti.ID = b.allocFakeID()
	b.TypeInfos = append(b.TypeInfos, ti)
}

func (b *Batch) AddInheritanceEdge(ie InheritanceEdge) {
	ie.ID = b.allocFakeID()
	b.InheritanceEdges = append(b.InheritanceEdges, ie)
}

// Len reports the total number of buffered rows.
func (b *Batch) Len() int {
	return len(b.Symbols) + len(b.ImportLinks) + len(b.CallEdges) +
		len(b.References) + len(b.TypeInfos) + len(b.InheritanceEdges)
}

// WriteBatch commits a batch as a sequence of chunked transactions in FK
// dependency order: symbols first, then everything that points at them. Each
// chunk is retried once on failure; a second failure aborts with
// *IndexWriteError and the caller must roll back the surrounding update
// cycle. Symbol inserts are upsert-keyed on (file_id, name, start_line), so
// replaying a chunk after a retry cannot duplicate rows.
func (s *Store) WriteBatch(ctx context.Context, batch *Batch) error {
	fakeToReal := make(map[int64]int64)

	// 1. Symbols. Parents may be fake (same batch) or real (already stored).
	if err := s.writeChunked(ctx, "symbols", len(batch.Symbols), func(tx *sql.Tx, lo, hi int) error {
		for i := lo; i < hi; i++ {
			sym := batch.Symbols[i]
			sym.ParentSymbolID = remapPtr(sym.ParentSymbolID, fakeToReal)
			realID, err := upsertSymbolTx(tx, &sym)
			if err != nil {
				return fmt.Errorf("symbol %q: %w", sym.Name, err)
			}
			fakeToReal[batch.Symbols[i].ID] = realID
		}
		return nil
	}); err != nil {
		return err
	}

	// 2. Import links.
	if err := s.writeChunked(ctx, "import_links", len(batch.ImportLinks), func(tx *sql.Tx, lo, hi int) error {
		for i := lo; i < hi; i++ {
			imp := batch.ImportLinks[i]
			imp.ResolvedTargetSymbolID = remapPtr(imp.ResolvedTargetSymbolID, fakeToReal)
			if err := insertImportLinkTx(tx, &imp); err != nil {
				return fmt.Errorf("import %q: %w", imp.ImportedName, err)
			}
		}
		return nil
	}); err != nil {
		return err
	}

	// 3. Call edges.
	if err := s.writeChunked(ctx, "call_edges", len(batch.CallEdges), func(tx *sql.Tx, lo, hi int) error {
		for i := lo; i < hi; i++ {
			ce := batch.CallEdges[i]
			ce.CallerSymbolID = remapPtr(ce.CallerSymbolID, fakeToReal)
			if err := insertCallEdgeTx(tx, &ce); err != nil {
				return fmt.Errorf("call edge %q: %w", ce.CalleeName, err)
			}
		}
		return nil
	}); err != nil {
		return err
	}

	// 4. References.
	if err := s.writeChunked(ctx, "references", len(batch.References), func(tx *sql.Tx, lo, hi int) error {
		for i := lo; i < hi; i++ {
			ref := batch.References[i]
			ref.SourceSymbolID = remapPtr(ref.SourceSymbolID, fakeToReal)
			ref.TargetSymbolID = remapPtr(ref.TargetSymbolID, fakeToReal)
			if err := insertReferenceTx(tx, &ref); err != nil {
				return fmt.Errorf("reference %q: %w", ref.Name, err)
			}
		}
		return nil
	}); err != nil {
		return err
	}

	// 5. Type info.
	if err := s.writeChunked(ctx, "type_info", len(batch.TypeInfos), func(tx *sql.Tx, lo, hi int) error {
		for i := lo; i < hi; i++ {
			ti := batch.TypeInfos[i]
			ti.OwnerSymbolID = remap(ti.OwnerSymbolID, fakeToReal)
			if err := insertTypeInfoTx(tx, &ti); err != nil {
				return fmt.Errorf("type info: %w", err)
			}
		}
		return nil
	}); err != nil {
		return err
	}

	// 6. Inheritance edges.
	return s.writeChunked(ctx, "inheritance_edges", len(batch.InheritanceEdges), func(tx *sql.Tx, lo, hi int) error {
		for i := lo; i < hi; i++ {
			ie := batch.InheritanceEdges[i]
			ie.SubclassSymbolID = remap(ie.SubclassSymbolID, fakeToReal)
			ie.ResolvedSuperclassSymbolID = remapPtr(ie.ResolvedSuperclassSymbolID, fakeToReal)
			if err := insertInheritanceEdgeTx(tx, &ie); err != nil {
				return fmt.Errorf("inheritance edge %q: %w", ie.SuperclassName, err)
			}
		}
		return nil
	})
}

// writeChunked runs fn over [0,total) in chunkSize slices, one transaction
// per slice, retrying each slice once before failing closed.
func (s *Store) writeChunked(ctx context.Context, op string, total int, fn func(tx *sql.Tx, lo, hi int) error) error {
	for lo := 0; lo < total; lo += chunkSize {
		hi := min(lo+chunkSize, total)
		chunk := lo / chunkSize

		if err := ctx.Err(); err != nil {
			return fmt.Errorf("write batch %s: %w", op, err)
		}

		var lastErr error
		for attempt := 0; attempt < 2; attempt++ {
			lastErr = s.runChunkTx(ctx, fn, lo, hi)
			if lastErr == nil {
				break
			}
		}
		if lastErr != nil {
			return &IndexWriteError{Op: op, Chunk: chunk, Err: lastErr}
		}
	}
	return nil
}

func (s *Store) runChunkTx(ctx context.Context, fn func(tx *sql.Tx, lo, hi int) error, lo, hi int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()
	if err := fn(tx, lo, hi); err != nil {
		return err
	}
	return tx.Commit()
}

func remap(id int64, fakeToReal map[int64]int64) int64 {
	if id < 0 {
		return fakeToReal[id]
	}
	return id
}

func remapPtr(id *int64, fakeToReal map[int64]int64) *int64 {
	if id == nil || *id >= 0 {
		return id
	}
	real := fakeToReal[*id]
	return &real
}

// --- Transaction-scoped inserts ---

func upsertSymbolTx(tx *sql.Tx, sym *Symbol) (int64, error) {
	res, err := tx.Exec(
		`INSERT INTO symbols (file_id, name, kind, language, signature, doc, return_type, parameters,
			start_line, end_line, parent_symbol_id, signature_hash)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (file_id, name, start_line) DO UPDATE SET
			kind = excluded.kind, language = excluded.language, signature = excluded.signature,
			doc = excluded.doc, return_type = excluded.return_type, parameters = excluded.parameters,
			end_line = excluded.end_line, parent_symbol_id = excluded.parent_symbol_id,
			signature_hash = excluded.signature_hash`,
		sym.FileID, sym.Name, sym.Kind, sym.Language, sym.Signature, sym.Doc, sym.ReturnType,
		marshalParams(sym.Parameters), sym.StartLine, sym.EndLine, sym.ParentSymbolID, sym.SignatureHash,
	)
	if err != nil {
		return 0, err
	}
	// last_insert_rowid is unreliable when the conflict-update path fires, so
	// read the row back by its natural key.
	id, err := res.LastInsertId()
	if err == nil && id > 0 {
		var exists int64
		if qerr := tx.QueryRow(
			"SELECT id FROM symbols WHERE file_id = ? AND name = ? AND start_line = ?",
			sym.FileID, sym.Name, sym.StartLine,
		).Scan(&exists); qerr == nil {
			return exists, nil
		}
	}
	return id, err
}

func insertImportLinkTx(tx *sql.Tx, imp *ImportLink) error {
	var alias any
	if imp.Alias != "" {
		alias = imp.Alias
	}
	_, err := tx.Exec(
		`INSERT INTO import_links (file_id, imported_name, source_module, alias, resolved_target_symbol_id, confidence)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		imp.FileID, imp.ImportedName, imp.SourceModule, alias, imp.ResolvedTargetSymbolID, imp.Confidence,
	)
	return err
}

func insertCallEdgeTx(tx *sql.Tx, ce *CallEdge) error {
	_, err := tx.Exec(
		`INSERT INTO call_edges (caller_symbol_id, file_id, callee_name, receiver_expr, receiver_type, line)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		ce.CallerSymbolID, ce.FileID, ce.CalleeName, ce.ReceiverExpr, ce.ReceiverType, ce.Line,
	)
	return err
}

func insertReferenceTx(tx *sql.Tx, ref *Reference) error {
	_, err := tx.Exec(
		`INSERT INTO references_ (source_symbol_id, source_file_id, source_line, name,
			target_symbol_id, reference_type, confidence, resolution_method, stale)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ref.SourceSymbolID, ref.SourceFileID, ref.SourceLine, ref.Name,
		ref.TargetSymbolID, ref.ReferenceType, ref.Confidence, ref.ResolutionMethod, ref.Stale,
	)
	return err
}

func insertTypeInfoTx(tx *sql.Tx, ti *TypeInfo) error {
	_, err := tx.Exec(
		`INSERT INTO type_info (owner_symbol_id, declared_type, inferred_type, source, confidence)
		 VALUES (?, ?, ?, ?, ?)`,
		ti.OwnerSymbolID, ti.DeclaredType, ti.InferredType, ti.Source, ti.Confidence,
	)
	return err
}

func insertInheritanceEdgeTx(tx *sql.Tx, ie *InheritanceEdge) error {
	_, err := tx.Exec(
		`INSERT INTO inheritance_edges (subclass_symbol_id, superclass_name, resolved_superclass_symbol_id, position)
		 VALUES (?, ?, ?, ?)`,
		ie.SubclassSymbolID, ie.SuperclassName, ie.ResolvedSuperclassSymbolID, ie.Position,
	)
	return err
}
