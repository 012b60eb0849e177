package store

import "time"

// Extraction domain types. Rows in these tables are owned by a file and are
// replaced wholesale when that file is re-indexed.

type FileRecord struct {
	ID                int64
	Path              string
	Language          string
	Size              int64
	Mtime             time.Time
	ContentHash       string
	LastIndexedCommit string
}

type Symbol struct {
	ID             int64
	FileID         int64
	Name           string
	Kind           string
	Language       string
	Signature      string
	Doc            string
	ReturnType     string
	Parameters     []Param
	StartLine      int
	EndLine        int
	ParentSymbolID *int64
	SignatureHash  string
}

// Param is one parameter in a function/method signature.
type Param struct {
	Name     string `json:"name"`
	TypeExpr string `json:"type,omitempty"`
}

type ImportLink struct {
	ID                     int64
	FileID                 int64
	ImportedName           string
	SourceModule           string
	Alias                  string
	ResolvedTargetSymbolID *int64
	Confidence             float64
}

type CallEdge struct {
	ID             int64
	CallerSymbolID *int64 // nil for module-level call sites
	FileID         int64
	CalleeName     string
	ReceiverExpr   string
	ReceiverType   string
	Line           int
}

// Resolution domain types. Rows here are derived from extraction rows and
// recomputed whenever their inputs change; a nil target is a valid fact.

type Reference struct {
	ID               int64
	SourceSymbolID   *int64
	SourceFileID     int64
	SourceLine       int
	Name             string
	TargetSymbolID   *int64
	ReferenceType    string // call | inherit | instantiate | type_annotation
	Confidence       float64
	ResolutionMethod string
	Stale            bool
}

type TypeInfo struct {
	ID            int64
	OwnerSymbolID int64
	DeclaredType  string
	InferredType  string
	Source        string // annotation | instantiation | import
	Confidence    float64
}

type InheritanceEdge struct {
	ID                         int64
	SubclassSymbolID           int64
	SuperclassName             string
	ResolvedSuperclassSymbolID *int64
	Position                   int // declaration order, significant for linearization
}

// Embedding is a dense vector for one symbol. Deleting a symbol tombstones
// its row rather than rewriting the vector index; CompactVectors reclaims
// tombstones once they pile up.
type Embedding struct {
	SymbolID   int64
	Vector     []float32
	Tombstoned bool
}

// IndexMetadata is the single bookkeeping row gating incremental updates.
type IndexMetadata struct {
	SchemaVersion     int
	LastIndexedCommit string
	TotalSymbols      int
	TotalFiles        int
}

// Reference types.
const (
	RefCall           = "call"
	RefInherit        = "inherit"
	RefInstantiate    = "instantiate"
	RefTypeAnnotation = "type_annotation"
)

// TypeInfo sources, ordered by confidence.
const (
	TypeSourceAnnotation    = "annotation"
	TypeSourceInstantiation = "instantiation"
	TypeSourceImport        = "import"
)

// Resolution methods recorded on references, strongest first.
const (
	MethodExact      = "exact"
	MethodImport     = "import"
	MethodHeuristic  = "heuristic"
	MethodUnresolved = "unresolved"
)
