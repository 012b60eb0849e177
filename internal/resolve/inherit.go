package resolve

import (
	"errors"
	"fmt"

	"github.com/ahollis/treeline/internal/store"
)

// resolveInheritance is pass 3: bind each inheritance edge's
// superclass name to a symbol and mirror the edge as an inherit reference.
func (p *pass) resolveInheritance(fileID int64) error {
	fileSyms, err := p.store.SymbolsByFile(fileID)
	if err != nil {
		return err
	}
	imports, err := p.store.ImportsByFile(fileID)
	if err != nil {
		return err
	}

	for _, sym := range fileSyms {
		edges, err := p.store.InheritanceEdgesBySubclass(sym.ID)
		if err != nil {
			return err
		}
		for _, edge := range edges {
			target, confidence, method, err := p.resolveName(edge.SuperclassName, fileID, fileSyms, imports)
			if err != nil {
				return err
			}
			if err := p.store.UpdateInheritanceResolution(edge.ID, target); err != nil {
				return err
			}
			subID := sym.ID
			if _, err := p.store.InsertReference(&store.Reference{
				SourceSymbolID:   &subID,
				SourceFileID:     fileID,
				SourceLine:       sym.StartLine,
				Name:             edge.SuperclassName,
				TargetSymbolID:   target,
				ReferenceType:    store.RefInherit,
				Confidence:       confidence,
				ResolutionMethod: method,
			}); err != nil {
				return err
			}
		}
	}
	return nil
}

// Linearize computes a class's Method Resolution Order as symbol IDs, the
// class itself first. It uses C3 linearization; when C3 has no consistent
// order (which legal single-inheritance hierarchies never trigger), it falls
// back to left-to-right DFS with duplicate removal. A cycle in the hierarchy
// is a *CyclicInheritanceError for this class only.
func Linearize(s *store.Store, classID int64) ([]int64, error) {
	bases, err := resolvedBases(s, classID)
	if err != nil {
		return nil, err
	}
	return c3(s, classID, bases, map[int64]bool{})
}

func c3(s *store.Store, classID int64, bases []int64, visiting map[int64]bool) ([]int64, error) {
	if visiting[classID] {
		name := className(s, classID)
		return nil, &CyclicInheritanceError{Class: name, Cycle: []string{name}}
	}
	visiting[classID] = true
	defer delete(visiting, classID)

	if len(bases) == 0 {
		return []int64{classID}, nil
	}

	// Linearize each base, then merge: L(C) = C + merge(L(B1)...L(Bn), [B1...Bn]).
	var seqs [][]int64
	for _, base := range bases {
		baseBases, err := resolvedBases(s, base)
		if err != nil {
			return nil, err
		}
		lin, err := c3(s, base, baseBases, visiting)
		if err != nil {
			var cyc *CyclicInheritanceError
			if errors.As(err, &cyc) {
				cyc.Cycle = append(cyc.Cycle, className(s, classID))
			}
			return nil, err
		}
		seqs = append(seqs, lin)
	}
	seqs = append(seqs, append([]int64{}, bases...))

	merged, ok := mergeC3(seqs)
	if !ok {
		// No consistent C3 order; documented fallback for hierarchies that
		// only ever use single inheritance anyway.
		merged = dfsDedup(seqs)
	}
	return append([]int64{classID}, merged...), nil
}

// mergeC3 performs the C3 merge: repeatedly take the first head that appears
// in no sequence's tail. Returns ok=false when stuck.
func mergeC3(seqs [][]int64) ([]int64, bool) {
	work := make([][]int64, 0, len(seqs))
	for _, s := range seqs {
		if len(s) > 0 {
			work = append(work, append([]int64{}, s...))
		}
	}
	var out []int64
	for len(work) > 0 {
		var picked int64
		found := false
		for _, seq := range work {
			head := seq[0]
			if inAnyTail(work, head) {
				continue
			}
			picked = head
			found = true
			break
		}
		if !found {
			return nil, false
		}
		out = append(out, picked)
		next := work[:0]
		for _, seq := range work {
			if seq[0] == picked {
				seq = seq[1:]
			}
			if len(seq) > 0 {
				next = append(next, seq)
			}
		}
		work = next
	}
	return out, true
}

func inAnyTail(seqs [][]int64, id int64) bool {
	for _, seq := range seqs {
		for _, other := range seq[1:] {
			if other == id {
				return true
			}
		}
	}
	return false
}

// dfsDedup flattens sequences left to right keeping first occurrences.
func dfsDedup(seqs [][]int64) []int64 {
	seen := make(map[int64]bool)
	var out []int64
	for _, seq := range seqs {
		for _, id := range seq {
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}
	return out
}

func resolvedBases(s *store.Store, classID int64) ([]int64, error) {
	edges, err := s.InheritanceEdgesBySubclass(classID)
	if err != nil {
		return nil, err
	}
	var bases []int64
	for _, e := range edges {
		if e.ResolvedSuperclassSymbolID != nil {
			bases = append(bases, *e.ResolvedSuperclassSymbolID)
		}
	}
	return bases, nil
}

func className(s *store.Store, classID int64) string {
	sym, err := s.SymbolByID(classID)
	if err != nil || sym == nil {
		return fmt.Sprintf("#%d", classID)
	}
	return sym.Name
}
