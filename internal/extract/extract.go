// Package extract turns source text into the raw facts the index core
// consumes, using tree-sitter grammars. Languages form a closed set: adding
// one means adding a variant here, and nothing else in the system changes.
package extract

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/ahollis/treeline/internal/facts"
)

type language int

const (
	langNone language = iota
	langGo
	langPython
)

func languageForPath(path string) language {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".go":
		return langGo
	case ".py", ".pyi":
		return langPython
	default:
		return langNone
	}
}

func (l language) name() string {
	switch l {
	case langGo:
		return "go"
	case langPython:
		return "python"
	default:
		return ""
	}
}

// Extractor implements facts.Extractor over the built-in language set.
type Extractor struct{}

func New() *Extractor { return &Extractor{} }

func (e *Extractor) Supports(path string) bool {
	return languageForPath(path) != langNone
}

// Extract parses one file and walks its syntax tree into facts. A file the
// grammar cannot parse at all yields *facts.ParseError; partial syntax
// errors degrade to whatever extracted cleanly, matching how editors keep
// working on broken files.
func (e *Extractor) Extract(path string, content []byte) (*facts.FileFacts, error) {
	lang := languageForPath(path)
	if lang == langNone {
		return nil, &facts.ParseError{Path: path, Err: errUnsupported}
	}

	parser := sitter.NewParser()
	parser.SetLanguage(grammar(lang))
	tree, err := parser.ParseCtx(context.Background(), nil, content)
	if err != nil {
		return nil, &facts.ParseError{Path: path, Err: err}
	}
	defer tree.Close()

	sum := sha256.Sum256(content)
	fx := &facts.FileFacts{
		Path:        path,
		Language:    lang.name(),
		ContentHash: hex.EncodeToString(sum[:]),
		Size:        int64(len(content)),
	}

	switch lang {
	case langGo:
		walkGo(tree.RootNode(), content, fx)
	case langPython:
		walkPython(tree.RootNode(), content, fx)
	}
	return fx, nil
}

// enclosing returns the innermost function, method, or class whose span
// contains the line, or facts.NoSymbol at file scope. Symbols arrive in
// declaration order, so the last match is the innermost.
func enclosing(fx *facts.FileFacts, line int) facts.SymbolRef {
	ref := facts.NoSymbol
	for i, sym := range fx.Symbols {
		if sym.StartLine <= line && line <= sym.EndLine {
			ref = i
		}
	}
	return ref
}

func nodeText(n *sitter.Node, src []byte) string {
	if n == nil {
		return ""
	}
	return n.Content(src)
}

func startLine(n *sitter.Node) int { return int(n.StartPoint().Row) + 1 }
func endLine(n *sitter.Node) int   { return int(n.EndPoint().Row) + 1 }

// visit walks every node depth-first.
func visit(n *sitter.Node, fn func(*sitter.Node)) {
	fn(n)
	for i := 0; i < int(n.NamedChildCount()); i++ {
		visit(n.NamedChild(i), fn)
	}
}
