package extract

import (
	"strings"
	"unicode"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/ahollis/treeline/internal/facts"
)

// walkPython extracts facts from a Python source tree. Classes, functions,
// and module/class-level assignments become symbols; function locals do not.
func walkPython(root *sitter.Node, src []byte, fx *facts.FileFacts) {
	visit(root, func(n *sitter.Node) {
		switch n.Type() {
		case "class_definition":
			pyClass(n, src, fx)
		case "function_definition":
			pyFunction(n, src, fx)
		case "assignment":
			pyAssignment(n, src, fx)
		case "import_statement":
			pyImport(n, src, fx)
		case "import_from_statement":
			pyImportFrom(n, src, fx)
		}
	})

	visit(root, func(n *sitter.Node) {
		if n.Type() == "call" {
			pyCall(n, src, fx)
		}
	})
}

func pyClass(n *sitter.Node, src []byte, fx *facts.FileFacts) {
	name := nodeText(n.ChildByFieldName("name"), src)
	if name == "" {
		return
	}

	span := definitionSpan(n)
	sym := facts.SymbolFact{
		Name:      name,
		Kind:      "class",
		Signature: pySignature(span, src),
		Doc:       pyDocstring(n, src),
		StartLine: startLine(span),
		EndLine:   endLine(span),
		Parent:    enclosing(fx, startLine(span)),
	}
	idx := len(fx.Symbols)
	fx.Symbols = append(fx.Symbols, sym)

	supers := n.ChildByFieldName("superclasses")
	if supers == nil {
		return
	}
	position := 0
	for i := 0; i < int(supers.NamedChildCount()); i++ {
		base := supers.NamedChild(i)
		var baseName string
		switch base.Type() {
		case "identifier":
			baseName = nodeText(base, src)
		case "attribute":
			baseName = nodeText(base.ChildByFieldName("attribute"), src)
		default:
			continue // keyword arguments like metaclass=
		}
		if baseName == "" || baseName == "object" {
			continue
		}
		fx.Bases = append(fx.Bases, facts.InheritanceFact{
			Subclass:       idx,
			SuperclassName: baseName,
			Position:       position,
		})
		position++
	}
}

func pyFunction(n *sitter.Node, src []byte, fx *facts.FileFacts) {
	name := nodeText(n.ChildByFieldName("name"), src)
	if name == "" {
		return
	}

	span := definitionSpan(n)
	parent := enclosing(fx, startLine(span))
	kind := "function"
	if parent != facts.NoSymbol && fx.Symbols[parent].Kind == "class" {
		kind = "method"
	}

	sym := facts.SymbolFact{
		Name:       name,
		Kind:       kind,
		Signature:  pySignature(span, src),
		Doc:        pyDocstring(n, src),
		ReturnType: nodeText(n.ChildByFieldName("return_type"), src),
		StartLine:  startLine(span),
		EndLine:    endLine(span),
		Parent:     parent,
	}
	if params := n.ChildByFieldName("parameters"); params != nil {
		sym.Params = pyParams(params, src)
	}
	fx.Symbols = append(fx.Symbols, sym)
}

// pyAssignment turns module- and class-level assignments into variable
// symbols, with annotation and instantiation facts where the syntax gives a
// type. Function locals are skipped; they are not index symbols.
func pyAssignment(n *sitter.Node, src []byte, fx *facts.FileFacts) {
	left := n.ChildByFieldName("left")
	if left == nil || left.Type() != "identifier" {
		return
	}
	scope := enclosing(fx, startLine(n))
	if scope != facts.NoSymbol && fx.Symbols[scope].Kind != "class" {
		return
	}

	name := nodeText(left, src)
	kind := "variable"
	if name == strings.ToUpper(name) && len(name) > 1 {
		kind = "constant"
	}

	sym := facts.SymbolFact{
		Name:      name,
		Kind:      kind,
		Signature: firstLineOf(nodeText(n, src)),
		StartLine: startLine(n),
		EndLine:   endLine(n),
		Parent:    scope,
	}
	idx := len(fx.Symbols)
	fx.Symbols = append(fx.Symbols, sym)

	if t := n.ChildByFieldName("type"); t != nil {
		fx.Annotations = append(fx.Annotations, facts.AnnotationFact{
			Owner:    idx,
			TypeExpr: nodeText(t, src),
			Line:     startLine(n),
		})
	}
	if right := n.ChildByFieldName("right"); right != nil {
		if typeName := pyConstructorName(right, src); typeName != "" {
			fx.Instantiations = append(fx.Instantiations, facts.InstantiationFact{
				Owner:    idx,
				TypeName: typeName,
				Line:     startLine(n),
			})
		}
	}
}

// pyConstructorName recognizes `Thing(...)` on the right-hand side. The
// capitalized-name convention is the signal; it is a heuristic and scored as
// one downstream.
func pyConstructorName(right *sitter.Node, src []byte) string {
	if right.Type() != "call" {
		return ""
	}
	fn := right.ChildByFieldName("function")
	if fn == nil {
		return ""
	}
	var name string
	switch fn.Type() {
	case "identifier":
		name = nodeText(fn, src)
	case "attribute":
		name = nodeText(fn.ChildByFieldName("attribute"), src)
	}
	if name == "" || !unicode.IsUpper([]rune(name)[0]) {
		return ""
	}
	return name
}

func pyImport(n *sitter.Node, src []byte, fx *facts.FileFacts) {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		switch child.Type() {
		case "dotted_name":
			module := nodeText(child, src)
			fx.Imports = append(fx.Imports, facts.ImportFact{
				ImportedName: lastDotted(module),
				SourceModule: module,
			})
		case "aliased_import":
			module := nodeText(child.ChildByFieldName("name"), src)
			fx.Imports = append(fx.Imports, facts.ImportFact{
				ImportedName: lastDotted(module),
				SourceModule: module,
				Alias:        nodeText(child.ChildByFieldName("alias"), src),
			})
		}
	}
}

func pyImportFrom(n *sitter.Node, src []byte, fx *facts.FileFacts) {
	module := nodeText(n.ChildByFieldName("module_name"), src)
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		if nodeText(child, src) == module && child.Type() != "aliased_import" {
			continue // the module_name child itself
		}
		switch child.Type() {
		case "dotted_name":
			fx.Imports = append(fx.Imports, facts.ImportFact{
				ImportedName: lastDotted(nodeText(child, src)),
				SourceModule: module,
			})
		case "aliased_import":
			fx.Imports = append(fx.Imports, facts.ImportFact{
				ImportedName: lastDotted(nodeText(child.ChildByFieldName("name"), src)),
				SourceModule: module,
				Alias:        nodeText(child.ChildByFieldName("alias"), src),
			})
		case "wildcard_import":
			fx.Imports = append(fx.Imports, facts.ImportFact{
				ImportedName: "*",
				SourceModule: module,
			})
		}
	}
}

func pyCall(n *sitter.Node, src []byte, fx *facts.FileFacts) {
	fn := n.ChildByFieldName("function")
	if fn == nil {
		return
	}
	call := facts.CallFact{
		Caller: enclosing(fx, startLine(n)),
		Line:   startLine(n),
	}

	switch fn.Type() {
	case "identifier":
		call.CalleeName = nodeText(fn, src)
	case "attribute":
		call.CalleeName = nodeText(fn.ChildByFieldName("attribute"), src)
		object := fn.ChildByFieldName("object")
		call.ReceiverExpr = nodeText(object, src)
		call.ReceiverType = pyReceiverType(object, src, fx, call.Caller)
	default:
		return
	}
	if call.CalleeName == "" {
		return
	}
	fx.Calls = append(fx.Calls, call)
}

// pyReceiverType reads the receiver's type straight off the syntax when it
// can: `Child().method()` is a call on a fresh Child, and `self.method()`
// inside a class is a call on that class.
func pyReceiverType(object *sitter.Node, src []byte, fx *facts.FileFacts, caller facts.SymbolRef) string {
	if object == nil {
		return ""
	}
	switch object.Type() {
	case "call":
		return pyConstructorName(object, src)
	case "identifier":
		text := nodeText(object, src)
		if text != "self" && text != "cls" {
			return ""
		}
		for ref := caller; ref != facts.NoSymbol; ref = fx.Symbols[ref].Parent {
			if fx.Symbols[ref].Kind == "class" {
				return fx.Symbols[ref].Name
			}
		}
	}
	return ""
}

// definitionSpan widens a def/class node to include its decorators.
func definitionSpan(n *sitter.Node) *sitter.Node {
	if p := n.Parent(); p != nil && p.Type() == "decorated_definition" {
		return p
	}
	return n
}

// pySignature is the header line: everything before the body's colon block.
func pySignature(n *sitter.Node, src []byte) string {
	text := nodeText(n, src)
	if i := strings.Index(text, ":\n"); i >= 0 {
		return strings.TrimSpace(text[:i])
	}
	return firstLineOf(text)
}

// pyDocstring pulls the leading string literal out of a def/class body.
func pyDocstring(n *sitter.Node, src []byte) string {
	body := n.ChildByFieldName("body")
	if body == nil || body.NamedChildCount() == 0 {
		return ""
	}
	first := body.NamedChild(0)
	if first.Type() != "expression_statement" || first.NamedChildCount() == 0 {
		return ""
	}
	str := first.NamedChild(0)
	if str.Type() != "string" {
		return ""
	}
	text := nodeText(str, src)
	text = strings.Trim(text, `"'`)
	return strings.TrimSpace(text)
}

func pyParams(params *sitter.Node, src []byte) []facts.ParamFact {
	var out []facts.ParamFact
	for i := 0; i < int(params.NamedChildCount()); i++ {
		p := params.NamedChild(i)
		switch p.Type() {
		case "identifier":
			out = append(out, facts.ParamFact{Name: nodeText(p, src)})
		case "typed_parameter", "typed_default_parameter":
			fact := facts.ParamFact{TypeExpr: nodeText(p.ChildByFieldName("type"), src)}
			if name := p.ChildByFieldName("name"); name != nil {
				fact.Name = nodeText(name, src)
			} else if p.NamedChildCount() > 0 && p.NamedChild(0).Type() == "identifier" {
				fact.Name = nodeText(p.NamedChild(0), src)
			}
			out = append(out, fact)
		case "default_parameter":
			out = append(out, facts.ParamFact{Name: nodeText(p.ChildByFieldName("name"), src)})
		}
	}
	return out
}

func lastDotted(name string) string {
	if i := strings.LastIndex(name, "."); i >= 0 {
		return name[i+1:]
	}
	return name
}

func firstLineOf(text string) string {
	if i := strings.Index(text, "\n"); i >= 0 {
		return strings.TrimSpace(text[:i])
	}
	return strings.TrimSpace(text)
}
