package extract

import (
	"errors"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/python"
)

var errUnsupported = errors.New("unsupported language")

func grammar(l language) *sitter.Language {
	switch l {
	case langGo:
		return golang.GetLanguage()
	case langPython:
		return python.GetLanguage()
	default:
		return nil
	}
}
