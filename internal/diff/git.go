package diff

import (
	"bufio"
	"bytes"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
)

// Git computes change sets from a git worktree.
type Git struct {
	Root string
}

// Available reports whether root is inside a git repository with git on PATH.
func (g *Git) Available() bool {
	cmd := exec.Command("git", "rev-parse", "--is-inside-work-tree")
	cmd.Dir = g.Root
	out, err := cmd.Output()
	return err == nil && strings.TrimSpace(string(out)) == "true"
}

// Head returns the current HEAD revision.
func (g *Git) Head() (string, error) {
	cmd := exec.Command("git", "rev-parse", "HEAD")
	cmd.Dir = g.Root
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("git rev-parse HEAD: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}

// Changes diffs two revisions. from may be empty (everything at to is
// added). Statuses come from --name-status -z; touched line ranges from a
// second -U0 pass keyed by path.
func (g *Git) Changes(from, to string) (*ChangeSet, error) {
	cs := &ChangeSet{From: from, To: to}
	if from == "" {
		paths, err := g.lsTree(to)
		if err != nil {
			return nil, err
		}
		for _, p := range paths {
			cs.Changes = append(cs.Changes, FileChange{Path: p, Type: Added})
		}
		return cs, nil
	}

	cmd := exec.Command("git", "diff", "--name-status", "-z", "-M", from, to)
	cmd.Dir = g.Root
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("git diff --name-status: %w", err)
	}
	changes, err := parseNameStatus(out)
	if err != nil {
		return nil, err
	}

	ranges, err := g.touchedRanges(from, to)
	if err != nil {
		return nil, err
	}
	for i := range changes {
		changes[i].TouchedLines = ranges[changes[i].Path]
	}
	cs.Changes = changes
	return cs, nil
}

// LsFiles lists tracked and untracked-but-not-ignored files, so discovery
// respects .gitignore for free.
func (g *Git) LsFiles() ([]string, error) {
	cmd := exec.Command("git", "ls-files", "--cached", "--others", "--exclude-standard", "-z")
	cmd.Dir = g.Root
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("git ls-files: %w", err)
	}
	var paths []string
	for _, p := range strings.Split(string(out), "\x00") {
		if p != "" {
			paths = append(paths, p)
		}
	}
	return paths, nil
}

func (g *Git) lsTree(rev string) ([]string, error) {
	cmd := exec.Command("git", "ls-tree", "-r", "--name-only", "-z", rev)
	cmd.Dir = g.Root
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("git ls-tree: %w", err)
	}
	var paths []string
	for _, p := range strings.Split(string(out), "\x00") {
		if p != "" {
			paths = append(paths, p)
		}
	}
	return paths, nil
}

// parseNameStatus decodes NUL-separated `git diff --name-status -z` output:
// status, path, and for renames a second path.
func parseNameStatus(out []byte) ([]FileChange, error) {
	fields := strings.Split(string(out), "\x00")
	var changes []FileChange
	for i := 0; i < len(fields); {
		status := fields[i]
		if status == "" {
			i++
			continue
		}
		if i+1 >= len(fields) {
			return nil, fmt.Errorf("truncated name-status output at %q", status)
		}
		switch status[0] {
		case 'A':
			changes = append(changes, FileChange{Path: fields[i+1], Type: Added})
			i += 2
		case 'M', 'T':
			changes = append(changes, FileChange{Path: fields[i+1], Type: Modified})
			i += 2
		case 'D':
			changes = append(changes, FileChange{Path: fields[i+1], Type: Deleted})
			i += 2
		case 'R', 'C':
			if i+2 >= len(fields) {
				return nil, fmt.Errorf("truncated rename in name-status output")
			}
			changes = append(changes, FileChange{Path: fields[i+2], OldPath: fields[i+1], Type: Renamed})
			i += 3
		default:
			// Unmerged or unknown statuses: treat as modified, surgical
			// re-parse handles them safely.
			changes = append(changes, FileChange{Path: fields[i+1], Type: Modified})
			i += 2
		}
	}
	return changes, nil
}

// hunkHeader matches @@ -oldStart,oldLen +newStart,newLen @@; only the new
// side matters for touched ranges.
var hunkHeader = regexp.MustCompile(`^@@ -\d+(?:,\d+)? \+(\d+)(?:,(\d+))? @@`)

// touchedRanges runs a zero-context diff and collects per-file line ranges
// in the new revision.
func (g *Git) touchedRanges(from, to string) (map[string][]LineRange, error) {
	cmd := exec.Command("git", "diff", "-U0", from, to)
	cmd.Dir = g.Root
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("git diff -U0: %w", err)
	}
	return parseUnified(out)
}

func parseUnified(out []byte) (map[string][]LineRange, error) {
	ranges := make(map[string][]LineRange)
	var current string

	scanner := bufio.NewScanner(bytes.NewReader(out))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "diff --git") {
			parts := strings.Fields(line)
			if len(parts) >= 4 {
				current = strings.TrimPrefix(parts[3], "b/")
			}
			continue
		}
		if current == "" || !strings.HasPrefix(line, "@@") {
			continue
		}
		m := hunkHeader.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		start, _ := strconv.Atoi(m[1])
		count := 1
		if m[2] != "" {
			count, _ = strconv.Atoi(m[2])
		}
		if count == 0 {
			// Pure deletion: nothing exists at this position in the new file,
			// but note the boundary line so dependents near it re-resolve.
			count = 1
		}
		ranges[current] = append(ranges[current], LineRange{Start: start, End: start + count - 1})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan diff output: %w", err)
	}
	return ranges, nil
}
