// Package treeline maintains a deterministic, incrementally-updated index of
// a codebase's symbols, cross-file references, types, and inheritance, and
// answers ranked lexical and semantic queries against it.
package treeline
