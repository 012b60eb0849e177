// Package diff computes the FileChange sets that drive incremental updates,
// either from version control or from content-hash comparison when no
// repository is available.
package diff

type ChangeType string

const (
	Added    ChangeType = "added"
	Modified ChangeType = "modified"
	Deleted  ChangeType = "deleted"
	Renamed  ChangeType = "renamed"
)

// LineRange is a half-open-ended span of touched lines in the new version.
type LineRange struct {
	Start int
	End   int
}

type FileChange struct {
	Path         string
	OldPath      string // set for renames
	Type         ChangeType
	TouchedLines []LineRange
}

// ChangeSet is everything that differs between two revisions.
type ChangeSet struct {
	From    string
	To      string
	Changes []FileChange
}

// Empty reports whether anything changed.
func (cs *ChangeSet) Empty() bool {
	return len(cs.Changes) == 0
}

// FromHashes diffs two path -> content-hash maps: the files the index knows
// against the files on disk. Used as the fallback when git is unavailable;
// it cannot detect renames, which matches the policy of treating renames as
// delete + add anyway.
func FromHashes(indexed, current map[string]string) *ChangeSet {
	cs := &ChangeSet{}
	for path, hash := range current {
		old, ok := indexed[path]
		switch {
		case !ok:
			cs.Changes = append(cs.Changes, FileChange{Path: path, Type: Added})
		case old != hash:
			cs.Changes = append(cs.Changes, FileChange{Path: path, Type: Modified})
		}
	}
	for path := range indexed {
		if _, ok := current[path]; !ok {
			cs.Changes = append(cs.Changes, FileChange{Path: path, Type: Deleted})
		}
	}
	return cs
}
