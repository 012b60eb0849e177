// Package facts defines the wire contract between the per-language fact
// extractor (the upstream producer) and the index core. The core consumes
// these shapes; how they were parsed out of source text is not its concern.
package facts

import "fmt"

// FileFacts is one file's worth of raw extraction output, keyed by path and
// content hash. Symbols are referenced positionally within the file: a
// SymbolRef is an index into Symbols, or -1 for file scope.
type FileFacts struct {
	Path        string
	Language    string
	ContentHash string
	Size        int64

	Symbols        []SymbolFact
	Imports        []ImportFact
	Calls          []CallFact
	Annotations    []AnnotationFact
	Instantiations []InstantiationFact
	Bases          []InheritanceFact
}

// SymbolRef indexes into FileFacts.Symbols; NoSymbol means file scope.
type SymbolRef = int

const NoSymbol SymbolRef = -1

// SymbolFact is a draft symbol before it gets a stable store ID.
type SymbolFact struct {
	Name       string
	Kind       string // function | method | class | variable | constant | ...
	Signature  string
	Doc        string
	ReturnType string
	Params     []ParamFact
	StartLine  int
	EndLine    int
	Parent     SymbolRef // enclosing symbol, NoSymbol for top level
}

type ParamFact struct {
	Name     string
	TypeExpr string
}

// ImportFact is one imported name: `from source_module import imported_name as alias`.
type ImportFact struct {
	ImportedName string
	SourceModule string
	Alias        string
}

// CallFact is a raw call site. ReceiverExpr is the text left of the dot for
// method calls, empty for bare calls. ReceiverType is set only when the
// extractor can read the receiver's type off the syntax itself, e.g. a
// constructor call receiver.
type CallFact struct {
	Caller       SymbolRef
	CalleeName   string
	ReceiverExpr string
	ReceiverType string
	Line         int
}

// AnnotationFact declares a symbol's type from an explicit annotation.
type AnnotationFact struct {
	Owner    SymbolRef
	TypeExpr string
	Line     int
}

// InstantiationFact records `owner = TypeName(...)`, the basis for
// instantiation-inferred types.
type InstantiationFact struct {
	Owner    SymbolRef
	TypeName string
	Line     int
}

// InheritanceFact is one base in a class declaration; Position preserves the
// declaration order the linearization depends on.
type InheritanceFact struct {
	Subclass       SymbolRef
	SuperclassName string
	Position       int
}

// ParseError reports malformed upstream input for one file. The updater logs
// it and skips the file; the batch continues.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Validate rejects facts that cannot be stored coherently: out-of-range
// symbol refs or symbols with no name. It returns a *ParseError so callers
// can skip the file and continue the batch.
func (f *FileFacts) Validate() error {
	n := len(f.Symbols)
	inRange := func(ref SymbolRef) bool { return ref >= NoSymbol && ref < n }

	for i, sym := range f.Symbols {
		if sym.Name == "" {
			return &ParseError{Path: f.Path, Err: fmt.Errorf("symbol %d has no name", i)}
		}
		if !inRange(sym.Parent) {
			return &ParseError{Path: f.Path, Err: fmt.Errorf("symbol %q parent ref %d out of range", sym.Name, sym.Parent)}
		}
	}
	for _, c := range f.Calls {
		if !inRange(c.Caller) {
			return &ParseError{Path: f.Path, Err: fmt.Errorf("call %q caller ref %d out of range", c.CalleeName, c.Caller)}
		}
	}
	for _, a := range f.Annotations {
		if !inRange(a.Owner) {
			return &ParseError{Path: f.Path, Err: fmt.Errorf("annotation owner ref %d out of range", a.Owner)}
		}
	}
	for _, inst := range f.Instantiations {
		if !inRange(inst.Owner) {
			return &ParseError{Path: f.Path, Err: fmt.Errorf("instantiation owner ref %d out of range", inst.Owner)}
		}
	}
	for _, b := range f.Bases {
		if b.Subclass == NoSymbol || !inRange(b.Subclass) {
			return &ParseError{Path: f.Path, Err: fmt.Errorf("inheritance subclass ref %d out of range", b.Subclass)}
		}
	}
	return nil
}

// Extractor is the upstream capability the core requires: turn one file into
// raw facts. Implementations live outside the core; internal/extract ships a
// tree-sitter reference implementation.
type Extractor interface {
	Extract(path string, content []byte) (*FileFacts, error)
	// Supports reports whether the extractor handles the file's language.
	Supports(path string) bool
}
