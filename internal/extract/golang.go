package extract

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/ahollis/treeline/internal/facts"
)

// walkGo extracts facts from a Go source tree. Types map onto the shared
// model as: type declarations are "class" symbols, embedded fields are
// inheritance edges, and composite literals are instantiations.
func walkGo(root *sitter.Node, src []byte, fx *facts.FileFacts) {
	// method index -> receiver base type name, linked to parents below
	receivers := make(map[int]string)

	visit(root, func(n *sitter.Node) {
		switch n.Type() {
		case "function_declaration":
			goFunction(n, src, fx, "function", receivers)
		case "method_declaration":
			goFunction(n, src, fx, "method", receivers)
		case "type_spec":
			goType(n, src, fx)
		case "const_spec":
			goValueSpec(n, src, fx, "constant")
		case "var_spec":
			goValueSpec(n, src, fx, "variable")
		case "import_spec":
			goImport(n, src, fx)
		}
	})

	// Receiver types may be declared after their methods; link once every
	// symbol exists.
	classIdx := make(map[string]int)
	for i, sym := range fx.Symbols {
		if sym.Kind == "class" {
			classIdx[sym.Name] = i
		}
	}
	for methodIdx, recv := range receivers {
		if classI, ok := classIdx[recv]; ok {
			fx.Symbols[methodIdx].Parent = classI
		}
	}

	visit(root, func(n *sitter.Node) {
		switch n.Type() {
		case "call_expression":
			goCall(n, src, fx)
		case "composite_literal":
			goInstantiation(n, src, fx)
		}
	})
}

func goFunction(n *sitter.Node, src []byte, fx *facts.FileFacts, kind string, receivers map[int]string) {
	name := nodeText(n.ChildByFieldName("name"), src)
	if name == "" {
		return
	}

	sym := facts.SymbolFact{
		Name:      name,
		Kind:      kind,
		Doc:       goDocComment(n, src),
		StartLine: startLine(n),
		EndLine:   endLine(n),
		Parent:    facts.NoSymbol,
	}
	if body := n.ChildByFieldName("body"); body != nil {
		sym.Signature = strings.TrimSpace(string(src[n.StartByte():body.StartByte()]))
	} else {
		sym.Signature = nodeText(n, src)
	}
	if params := n.ChildByFieldName("parameters"); params != nil {
		sym.Params = goParams(params, src)
	}
	if result := n.ChildByFieldName("result"); result != nil {
		sym.ReturnType = nodeText(result, src)
	}

	idx := len(fx.Symbols)
	fx.Symbols = append(fx.Symbols, sym)

	if kind == "method" {
		if recv := n.ChildByFieldName("receiver"); recv != nil {
			if base := receiverBaseType(recv, src); base != "" {
				receivers[idx] = base
			}
		}
	}
}

// receiverBaseType digs the type identifier out of `(r *Foo)` or `(r Foo)`.
func receiverBaseType(recv *sitter.Node, src []byte) string {
	var base string
	visit(recv, func(n *sitter.Node) {
		if base == "" && n.Type() == "type_identifier" {
			base = nodeText(n, src)
		}
	})
	return base
}

func goType(n *sitter.Node, src []byte, fx *facts.FileFacts) {
	name := nodeText(n.ChildByFieldName("name"), src)
	if name == "" {
		return
	}

	decl := n.Parent()
	if decl == nil || decl.Type() != "type_declaration" {
		decl = n
	}

	sym := facts.SymbolFact{
		Name:      name,
		Kind:      "class",
		Signature: "type " + name,
		Doc:       goDocComment(decl, src),
		StartLine: startLine(decl),
		EndLine:   endLine(decl),
		Parent:    facts.NoSymbol,
	}
	idx := len(fx.Symbols)
	fx.Symbols = append(fx.Symbols, sym)

	// Embedded struct fields and embedded interfaces act as superclasses.
	typeNode := n.ChildByFieldName("type")
	if typeNode == nil {
		return
	}
	position := 0
	switch typeNode.Type() {
	case "struct_type":
		for _, embedded := range goEmbeddedFields(typeNode, src) {
			fx.Bases = append(fx.Bases, facts.InheritanceFact{
				Subclass:       idx,
				SuperclassName: embedded,
				Position:       position,
			})
			position++
		}
	case "interface_type":
		for i := 0; i < int(typeNode.NamedChildCount()); i++ {
			child := typeNode.NamedChild(i)
			if child.Type() == "type_identifier" || child.Type() == "type_elem" {
				name := strings.TrimPrefix(nodeText(child, src), "*")
				if name != "" && !strings.ContainsAny(name, " \n|~") {
					fx.Bases = append(fx.Bases, facts.InheritanceFact{
						Subclass:       idx,
						SuperclassName: trimQualifier(name),
						Position:       position,
					})
					position++
				}
			}
		}
	}
}

// goEmbeddedFields returns the base type names of anonymous struct fields.
func goEmbeddedFields(structType *sitter.Node, src []byte) []string {
	var out []string
	visit(structType, func(n *sitter.Node) {
		if n.Type() != "field_declaration" {
			return
		}
		hasName := false
		for i := 0; i < int(n.NamedChildCount()); i++ {
			if n.NamedChild(i).Type() == "field_identifier" {
				hasName = true
				break
			}
		}
		if hasName {
			return
		}
		if t := n.ChildByFieldName("type"); t != nil {
			name := strings.TrimPrefix(nodeText(t, src), "*")
			out = append(out, trimQualifier(name))
		}
	})
	return out
}

func goValueSpec(n *sitter.Node, src []byte, fx *facts.FileFacts, kind string) {
	// only package-level declarations; locals are not index symbols
	if !atGoTopLevel(n) {
		return
	}
	name := nodeText(n.ChildByFieldName("name"), src)
	if name == "" {
		return
	}

	sym := facts.SymbolFact{
		Name:      name,
		Kind:      kind,
		Signature: strings.TrimSpace(nodeText(n, src)),
		Doc:       goDocComment(n, src),
		StartLine: startLine(n),
		EndLine:   endLine(n),
		Parent:    facts.NoSymbol,
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
	if v := n.ChildByFieldName("value"); v != nil {
		if typeName := goLiteralType(v, src); typeName != "" {
			fx.Instantiations = append(fx.Instantiations, facts.InstantiationFact{
				Owner:    idx,
				TypeName: typeName,
				Line:     startLine(n),
			})
		}
	}
}

// atGoTopLevel reports whether a spec's declaration hangs off source_file.
func atGoTopLevel(n *sitter.Node) bool {
	for p := n.Parent(); p != nil; p = p.Parent() {
		switch p.Type() {
		case "source_file":
			return true
		case "function_declaration", "method_declaration", "func_literal", "block":
			return false
		}
	}
	return false
}

// goLiteralType recognizes `Foo{...}`, `&Foo{...}`, and `pkg.Foo{...}` values.
func goLiteralType(v *sitter.Node, src []byte) string {
	for v != nil && (v.Type() == "unary_expression" || v.Type() == "expression_list") {
		v = v.NamedChild(0)
	}
	if v == nil || v.Type() != "composite_literal" {
		return ""
	}
	return trimQualifier(nodeText(v.ChildByFieldName("type"), src))
}

func goImport(n *sitter.Node, src []byte, fx *facts.FileFacts) {
	path := strings.Trim(nodeText(n.ChildByFieldName("path"), src), `"`)
	if path == "" {
		return
	}
	alias := nodeText(n.ChildByFieldName("name"), src)
	if alias == "." || alias == "_" {
		alias = ""
	}

	// Go imports bind the package, not individual names; the package's last
	// path element is the name references use.
	imported := path
	if i := strings.LastIndex(path, "/"); i >= 0 {
		imported = path[i+1:]
	}
	fx.Imports = append(fx.Imports, facts.ImportFact{
		ImportedName: imported,
		SourceModule: path,
		Alias:        alias,
	})
}

func goCall(n *sitter.Node, src []byte, fx *facts.FileFacts) {
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
	case "selector_expression":
		call.CalleeName = nodeText(fn.ChildByFieldName("field"), src)
		operand := fn.ChildByFieldName("operand")
		call.ReceiverExpr = nodeText(operand, src)
		// `Foo{}.Bar()` names its own receiver type
		if operand != nil && operand.Type() == "composite_literal" {
			call.ReceiverType = trimQualifier(nodeText(operand.ChildByFieldName("type"), src))
		}
	default:
		return
	}
	if call.CalleeName == "" {
		return
	}
	fx.Calls = append(fx.Calls, call)
}

func goInstantiation(n *sitter.Node, src []byte, fx *facts.FileFacts) {
	// `x := Foo{...}` infers x's type, but only named local targets matter
	// when the literal sits directly in a short var declaration of one name.
	parent := n.Parent()
	for parent != nil && parent.Type() == "unary_expression" {
		parent = parent.Parent()
	}
	if parent == nil || parent.Type() != "expression_list" {
		return
	}
	decl := parent.Parent()
	if decl == nil || decl.Type() != "short_var_declaration" {
		return
	}
	left := decl.ChildByFieldName("left")
	if left == nil || left.NamedChildCount() != 1 || left.NamedChild(0).Type() != "identifier" {
		return
	}
	owner := enclosing(fx, startLine(n))
	if owner == facts.NoSymbol {
		return
	}
	typeName := trimQualifier(nodeText(n.ChildByFieldName("type"), src))
	if typeName == "" {
		return
	}
	fx.Instantiations = append(fx.Instantiations, facts.InstantiationFact{
		Owner:    owner,
		TypeName: typeName,
		Line:     startLine(n),
	})
}

// goDocComment gathers the contiguous comment block directly above a node.
func goDocComment(n *sitter.Node, src []byte) string {
	var lines []string
	cur := n
	for {
		prev := cur.PrevSibling()
		if prev == nil || prev.Type() != "comment" {
			break
		}
		if cur.StartPoint().Row-prev.EndPoint().Row > 1 {
			break
		}
		lines = append([]string{cleanComment(nodeText(prev, src))}, lines...)
		cur = prev
	}
	return strings.Join(lines, "\n")
}

func cleanComment(c string) string {
	c = strings.TrimPrefix(c, "//")
	c = strings.TrimPrefix(c, "/*")
	c = strings.TrimSuffix(c, "*/")
	return strings.TrimSpace(c)
}

func trimQualifier(name string) string {
	if i := strings.LastIndex(name, "."); i >= 0 {
		return name[i+1:]
	}
	return name
}

func goParams(params *sitter.Node, src []byte) []facts.ParamFact {
	var out []facts.ParamFact
	for i := 0; i < int(params.NamedChildCount()); i++ {
		p := params.NamedChild(i)
		if p.Type() != "parameter_declaration" && p.Type() != "variadic_parameter_declaration" {
			continue
		}
		typeExpr := nodeText(p.ChildByFieldName("type"), src)
		named := false
		for j := 0; j < int(p.NamedChildCount()); j++ {
			child := p.NamedChild(j)
			if child.Type() == "identifier" {
				out = append(out, facts.ParamFact{Name: nodeText(child, src), TypeExpr: typeExpr})
				named = true
			}
		}
		if !named && typeExpr != "" {
			out = append(out, facts.ParamFact{TypeExpr: typeExpr})
		}
	}
	return out
}
