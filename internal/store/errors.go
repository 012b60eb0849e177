package store

import "fmt"

// IndexWriteError reports a transaction that failed after its one permitted
// retry. The whole update cycle that contained it must roll back.
type IndexWriteError struct {
	Op    string
	Chunk int
	Err   error
}

func (e *IndexWriteError) Error() string {
	return fmt.Sprintf("index write failed (%s, chunk %d): %v", e.Op, e.Chunk, e.Err)
}

func (e *IndexWriteError) Unwrap() error { return e.Err }

// IndexCorruptionError reports a schema or checksum mismatch discovered when
// opening the index. It is fatal: the only recovery is a full reindex.
type IndexCorruptionError struct {
	Path   string
	Reason string
}

func (e *IndexCorruptionError) Error() string {
	return fmt.Sprintf("index %s is unusable: %s (full reindex required)", e.Path, e.Reason)
}

// AmbiguousSymbolError carries every equally plausible match for a lookup.
// Callers get the candidate list, never an arbitrary winner.
type AmbiguousSymbolError struct {
	Name       string
	Candidates []*Symbol
}

func (e *AmbiguousSymbolError) Error() string {
	return fmt.Sprintf("symbol %q matches %d definitions", e.Name, len(e.Candidates))
}
