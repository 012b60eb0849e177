package store

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
)

// UpsertEmbedding stores a symbol's vector, clearing any tombstone left by a
// previous generation of that symbol ID.
func (s *Store) UpsertEmbedding(symbolID int64, vector []float32) error {
	_, err := s.db.Exec(
		`INSERT INTO embeddings (symbol_id, vector, tombstoned) VALUES (?, ?, FALSE)
		 ON CONFLICT (symbol_id) DO UPDATE SET vector = excluded.vector, tombstoned = FALSE`,
		symbolID, encodeVector(vector),
	)
	if err != nil {
		return fmt.Errorf("upsert embedding: %w", err)
	}
	return nil
}

// TombstoneEmbeddings marks vectors dead without touching the rest of the
// row. Rebuilding the vector index on every delete is too costly; compaction
// happens out of band.
func (s *Store) TombstoneEmbeddings(symbolIDs []int64) error {
	if len(symbolIDs) == 0 {
		return nil
	}
	_, err := s.db.Exec(
		"UPDATE embeddings SET tombstoned = TRUE WHERE symbol_id IN ("+placeholderList(len(symbolIDs))+")",
		int64sToArgs(symbolIDs)...,
	)
	if err != nil {
		return fmt.Errorf("tombstone embeddings: %w", err)
	}
	return nil
}

// TombstoneRatio reports the dead fraction of the vector index, 0 when empty.
func (s *Store) TombstoneRatio() (float64, error) {
	var total, dead int
	err := s.db.QueryRow(
		"SELECT COUNT(*), COALESCE(SUM(CASE WHEN tombstoned THEN 1 ELSE 0 END), 0) FROM embeddings",
	).Scan(&total, &dead)
	if err != nil {
		return 0, fmt.Errorf("tombstone ratio: %w", err)
	}
	if total == 0 {
		return 0, nil
	}
	return float64(dead) / float64(total), nil
}

// CompactVectors deletes tombstoned embedding rows. Intended to run
// periodically, typically after an update cycle pushes TombstoneRatio past a
// threshold.
func (s *Store) CompactVectors() (int64, error) {
	res, err := s.db.Exec("DELETE FROM embeddings WHERE tombstoned = TRUE")
	if err != nil {
		return 0, fmt.Errorf("compact vectors: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("compact vectors: rows affected: %w", err)
	}
	return n, nil
}

// StreamEmbeddings walks every live vector in constant memory.
func (s *Store) StreamEmbeddings(ctx context.Context, fn func(symbolID int64, vector []float32) error) error {
	rows, err := s.db.QueryContext(ctx,
		"SELECT symbol_id, vector FROM embeddings WHERE tombstoned = FALSE ORDER BY symbol_id",
	)
	if err != nil {
		return fmt.Errorf("stream embeddings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		var symbolID int64
		var blob []byte
		if err := rows.Scan(&symbolID, &blob); err != nil {
			return fmt.Errorf("stream embeddings: scan: %w", err)
		}
		if err := fn(symbolID, decodeVector(blob)); err != nil {
			return err
		}
	}
	return rows.Err()
}

// SymbolsMissingEmbeddings returns symbol IDs with no live vector, capped at
// limit (0 means no cap). Used to schedule embedding work.
func (s *Store) SymbolsMissingEmbeddings(limit int) ([]int64, error) {
	query := `SELECT s.id FROM symbols s
		LEFT JOIN embeddings e ON e.symbol_id = s.id AND e.tombstoned = FALSE
		WHERE e.symbol_id IS NULL ORDER BY s.id`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("symbols missing embeddings: %w", err)
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

// encodeVector packs float32s little-endian; decodeVector reverses it.
func encodeVector(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}
