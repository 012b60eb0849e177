package resolve

import "fmt"

// CyclicInheritanceError reports a cycle in the inheritance graph. It is
// fatal for the named class's MRO only; the rest of the index stays usable.
type CyclicInheritanceError struct {
	Class string
	Cycle []string
}

func (e *CyclicInheritanceError) Error() string {
	return fmt.Sprintf("inheritance cycle through %q: %v", e.Class, e.Cycle)
}

// AmbiguousTypeError reports two equal-confidence, disagreeing type facts
// for one symbol. The resolver surfaces both instead of picking.
type AmbiguousTypeError struct {
	SymbolID   int64
	TypeA      string
	TypeB      string
	Confidence float64
}

func (e *AmbiguousTypeError) Error() string {
	return fmt.Sprintf("symbol %d has conflicting type facts %q and %q at confidence %.2f",
		e.SymbolID, e.TypeA, e.TypeB, e.Confidence)
}
