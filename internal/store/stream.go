package store

import (
	"context"
	"fmt"
	"strings"
)

// SymbolFilter narrows a streaming read. Zero value streams everything.
type SymbolFilter struct {
	Kinds      []string // match any of these kinds
	Language   string   // exact match
	FileID     *int64   // restrict to one file
	PathPrefix string   // restrict to files under this path
	NameLike   string   // SQL LIKE pattern on symbol name
}

// StreamSymbols walks every matching symbol in one pass over a database
// cursor, invoking fn per row. Memory stays constant regardless of corpus
// size; fn returning an error or ctx cancellation stops the walk.
func (s *Store) StreamSymbols(ctx context.Context, filter SymbolFilter, fn func(*Symbol) error) error {
	var (
		conds []string
		args  []any
	)
	query := "SELECT " + qualify(symbolCols, "s") + " FROM symbols s"
	if filter.PathPrefix != "" {
		query += " JOIN files f ON f.id = s.file_id"
		prefix := filter.PathPrefix
		if !strings.HasSuffix(prefix, "/") {
			prefix += "/"
		}
		conds = append(conds, "(f.path LIKE ? OR f.path = ?)")
		args = append(args, prefix+"%", filter.PathPrefix)
	}
	if len(filter.Kinds) > 0 {
		conds = append(conds, "s.kind IN ("+placeholderList(len(filter.Kinds))+")")
		for _, k := range filter.Kinds {
			args = append(args, k)
		}
	}
	if filter.Language != "" {
		conds = append(conds, "s.language = ?")
		args = append(args, filter.Language)
	}
	if filter.FileID != nil {
		conds = append(conds, "s.file_id = ?")
		args = append(args, *filter.FileID)
	}
	if filter.NameLike != "" {
		conds = append(conds, "s.name LIKE ?")
		args = append(args, filter.NameLike)
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY s.id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("stream symbols: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		sym, err := scanSymbol(rows)
		if err != nil {
			return fmt.Errorf("stream symbols: scan: %w", err)
		}
		if err := fn(sym); err != nil {
			return err
		}
	}
	return rows.Err()
}

// StreamReferences walks every reference, optionally restricted to one
// source file, in constant memory.
func (s *Store) StreamReferences(ctx context.Context, fileID *int64, fn func(*Reference) error) error {
	query := "SELECT " + referenceCols + " FROM references_"
	var args []any
	if fileID != nil {
		query += " WHERE source_file_id = ?"
		args = append(args, *fileID)
	}
	query += " ORDER BY id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("stream references: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		ref, err := scanReference(rows)
		if err != nil {
			return fmt.Errorf("stream references: scan: %w", err)
		}
		if err := fn(ref); err != nil {
			return err
		}
	}
	return rows.Err()
}

// qualify prefixes each column in a comma-separated list with a table alias.
func qualify(cols, alias string) string {
	parts := strings.Split(cols, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}
