package update

import (
	"github.com/ahollis/treeline/internal/store"
)

// symbolSnapshot maps a symbol's identity within a file (kind plus qualified
// name) to its signature hash. Snapshots taken before and after a replacement
// tell the updater which declarations genuinely changed shape, independent of
// row IDs, which do not survive a delete-then-insert.
type symbolSnapshot map[string]string

func captureSnapshot(s *store.Store, fileID int64) (symbolSnapshot, error) {
	syms, err := s.SymbolsByFile(fileID)
	if err != nil {
		return nil, err
	}
	names := make(map[int64]string, len(syms))
	for _, sym := range syms {
		names[sym.ID] = sym.Name
	}
	snap := make(symbolSnapshot, len(syms))
	for _, sym := range syms {
		snap[snapshotKey(sym, names)] = sym.SignatureHash
	}
	return snap, nil
}

func snapshotKey(sym *store.Symbol, names map[int64]string) string {
	qualified := sym.Name
	if sym.ParentSymbolID != nil {
		if parent, ok := names[*sym.ParentSymbolID]; ok {
			qualified = parent + "." + sym.Name
		}
	}
	return sym.Kind + "\x00" + qualified
}

// snapshotDelta summarizes one file replacement for reporting and for
// name-based stale marking.
type snapshotDelta struct {
	added, removed, changed int

	// bare names whose candidate set shifted; unresolved references elsewhere
	// that mention them must be re-resolved
	shiftedNames []string
}

func diffSnapshots(before, after symbolSnapshot) snapshotDelta {
	var d snapshotDelta
	names := make(map[string]struct{})

	for key, hash := range after {
		old, ok := before[key]
		switch {
		case !ok:
			d.added++
			names[bareName(key)] = struct{}{}
		case old != hash:
			d.changed++
		}
	}
	for key := range before {
		if _, ok := after[key]; !ok {
			d.removed++
			names[bareName(key)] = struct{}{}
		}
	}
	for name := range names {
		d.shiftedNames = append(d.shiftedNames, name)
	}
	return d
}

func bareName(key string) string {
	for i := len(key) - 1; i >= 0; i-- {
		switch key[i] {
		case '.', '\x00':
			return key[i+1:]
		}
	}
	return key
}
