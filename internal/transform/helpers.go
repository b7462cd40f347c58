package transform

import (
	"sort"
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"

	"reshape/internal/core/errors"
	"reshape/internal/parser"
	"reshape/internal/symbols"
)

// selection is a contiguous run of sibling statements chosen for
// extraction, together with the block and scope enclosing them.
type selection struct {
	File       *symbols.FileTable
	Statements []*sitter.Node
	Block      *sitter.Node
	Scope      *symbols.Scope
}

func (sel *selection) span() parser.Span {
	first := sel.Statements[0]
	last := sel.Statements[len(sel.Statements)-1]
	return parser.Span{Start: first.StartByte(), End: last.EndByte()}
}

func (sel *selection) text() string {
	span := sel.span()
	return string(sel.File.Source.Content[span.Start:span.End])
}

// selectStatements locates the statements covering a 1-based inclusive
// line range. The range must align with whole statements inside a
// single block; anything else is an ambiguous selection.
func selectStatements(ft *symbols.FileTable, startLine, endLine int) (*selection, error) {
	if startLine > endLine {
		return nil, errors.Newf(errors.CodeAmbiguousSelection, "selection range %d-%d is inverted", startLine, endLine)
	}

	// Narrow from the module downward: a statement that wholly contains
	// the range sends the search into its nested block, so a range
	// inside an if-body picks the inner statements rather than the
	// whole if statement.
	block := ft.Root.Node
	for {
		var picked []*sitter.Node
		var container *sitter.Node
		for _, stmt := range parser.Statements(block) {
			first := int(stmt.StartPosition().Row) + 1
			last := int(stmt.EndPosition().Row) + 1
			if last < startLine || first > endLine {
				continue
			}
			if first >= startLine && last <= endLine {
				picked = append(picked, stmt)
				continue
			}
			if first <= startLine && last >= endLine {
				container = stmt
				continue
			}
			return nil, errors.Newf(errors.CodeAmbiguousSelection,
				"selection %d-%d cuts through a statement at line %d", startLine, endLine, first)
		}
		if len(picked) > 0 {
			return &selection{
				File:       ft,
				Statements: picked,
				Block:      block,
				Scope:      ft.ScopeAt(picked[0]),
			}, nil
		}
		if container == nil {
			return nil, errors.Newf(errors.CodeAmbiguousSelection,
				"no whole statements inside lines %d-%d of %s", startLine, endLine, ft.Path)
		}
		next := blockWithin(container, startLine, endLine)
		if next == nil {
			return nil, errors.Newf(errors.CodeAmbiguousSelection,
				"selection %d-%d cuts through the statement at line %d",
				startLine, endLine, int(container.StartPosition().Row)+1)
		}
		block = next
	}
}

// blockWithin finds the shallowest block under a containing statement
// that intersects the line range.
func blockWithin(container *sitter.Node, startLine, endLine int) *sitter.Node {
	var found *sitter.Node
	parser.Walk(container, func(n *sitter.Node) bool {
		if found != nil {
			return false
		}
		if n.Kind() == parser.KindBlock {
			first := int(n.StartPosition().Row) + 1
			last := int(n.EndPosition().Row) + 1
			if last >= startLine && first <= endLine {
				found = n
				return false
			}
		}
		return true
	})
	return found
}

// dataFlow is the selection's interface with its surroundings: names it
// reads from the enclosing function (inputs, in first-use order) and
// names it assigns that the code after it still reads (outputs).
type dataFlow struct {
	Inputs     []string
	Outputs    []string
	HasReturn  bool
	UsesSelf   bool
	AssignedAt map[string]uint
}

func analyzeFlow(sel *selection) *dataFlow {
	src := sel.File.Source
	flow := &dataFlow{AssignedAt: make(map[string]uint)}

	firstUse := make(map[string]uint)
	firstWrite := make(map[string]uint)
	assigned := make(map[string]bool)

	record := func(m map[string]uint, name string, at uint) {
		if _, ok := m[name]; !ok {
			m[name] = at
		}
	}

	for _, stmt := range sel.Statements {
		parser.Walk(stmt, func(n *sitter.Node) bool {
			switch n.Kind() {
			case parser.KindReturnStatement:
				flow.HasReturn = true
			case parser.KindIdentifier:
				name := src.Text(n)
				if parser.IsAttributeName(n) || parser.IsKeywordArgumentName(n) {
					return true
				}
				if isAssignTarget(n) {
					record(firstWrite, name, n.StartByte())
					assigned[name] = true
					flow.AssignedAt[name] = n.StartByte()
					return true
				}
				record(firstUse, name, n.StartByte())
			}
			return true
		})
	}

	// Inputs: names read before the selection writes them, resolving to
	// a binding local to an enclosing function (parameters included).
	// The receiver parameter is tracked separately.
	type use struct {
		name string
		at   uint
	}
	var uses []use
	for name, at := range firstUse {
		uses = append(uses, use{name, at})
	}
	sort.Slice(uses, func(i, j int) bool { return uses[i].at < uses[j].at })

	for _, u := range uses {
		if w, wrote := firstWrite[u.name]; wrote && w < u.at {
			continue
		}
		b := sel.Scope.Lookup(u.name)
		if b == nil {
			continue
		}
		if b.Receiver {
			flow.UsesSelf = true
			continue
		}
		if b.Scope.Kind != symbols.ScopeFunction {
			continue
		}
		flow.Inputs = append(flow.Inputs, u.name)
	}

	// Outputs: names the selection assigns that are read again in the
	// enclosing region after the selection ends.
	end := sel.span().End
	region := sel.Scope.Node
	if region == nil {
		region = sel.File.Root.Node
	}
	var outputs []string
	for name := range assigned {
		if usedAfter(src, region, name, end) {
			outputs = append(outputs, name)
		}
	}
	sort.Slice(outputs, func(i, j int) bool {
		return flow.AssignedAt[outputs[i]] < flow.AssignedAt[outputs[j]]
	})
	flow.Outputs = outputs

	return flow
}

// isAssignTarget reports whether the identifier is being bound: the
// left side of an assignment or a for-loop target.
func isAssignTarget(n *sitter.Node) bool {
	for p, child := n.Parent(), n; p != nil; p, child = p.Parent(), p {
		switch p.Kind() {
		case parser.KindAssignment, parser.KindAugmentedAssignment, parser.KindForStatement:
			left := p.ChildByFieldName("left")
			return left != nil && left.StartByte() <= child.StartByte() && child.EndByte() <= left.EndByte()
		case parser.KindBlock, parser.KindModule, parser.KindCall:
			return false
		}
	}
	return false
}

func usedAfter(src *parser.Source, region *sitter.Node, name string, after uint) bool {
	found := false
	parser.Walk(region, func(n *sitter.Node) bool {
		if found {
			return false
		}
		if n.Kind() != parser.KindIdentifier || n.StartByte() < after {
			return true
		}
		if src.Text(n) != name || parser.IsAttributeName(n) || parser.IsKeywordArgumentName(n) {
			return true
		}
		if isAssignTarget(n) {
			return true
		}
		found = true
		return false
	})
	return found
}

// textEdit is a relative rewrite inside a lifted snippet of source.
type textEdit struct {
	span parser.Span
	new  string
}

// rewriteSnippet lifts the text of a node and applies edits given in
// absolute file offsets, producing the rewritten snippet.
func rewriteSnippet(src *parser.Source, region parser.Span, edits []textEdit) string {
	sort.Slice(edits, func(i, j int) bool { return edits[i].span.Start < edits[j].span.Start })
	var b strings.Builder
	cursor := region.Start
	for _, e := range edits {
		if e.span.Start < cursor || e.span.End > region.End {
			continue
		}
		b.Write(src.Content[cursor:e.span.Start])
		b.WriteString(e.new)
		cursor = e.span.End
	}
	b.Write(src.Content[cursor:region.End])
	return b.String()
}

// callArguments splits a call node's positional and keyword arguments.
func callArguments(src *parser.Source, call *sitter.Node) (positional []string, keyword map[string]string) {
	keyword = make(map[string]string)
	args := call.ChildByFieldName("arguments")
	if args == nil {
		return nil, keyword
	}
	for _, arg := range parser.Children(args) {
		switch arg.Kind() {
		case "(", ")", ",", parser.KindComment:
		case parser.KindKeywordArgument:
			name := arg.ChildByFieldName("name")
			value := arg.ChildByFieldName("value")
			if name != nil && value != nil {
				keyword[src.Text(name)] = src.Text(value)
			}
		default:
			positional = append(positional, src.Text(arg))
		}
	}
	return positional, keyword
}

// enclosingCall returns the call node whose function part is exactly
// the given reference node (identifier or attribute).
func enclosingCall(ref *sitter.Node) *sitter.Node {
	fnExpr := ref
	if p := ref.Parent(); p != nil && p.Kind() == parser.KindAttribute {
		attr := p.ChildByFieldName("attribute")
		if attr != nil && parser.SameNode(attr, ref) {
			fnExpr = p
		}
	}
	call := fnExpr.Parent()
	if call == nil || call.Kind() != parser.KindCall {
		return nil
	}
	fn := call.ChildByFieldName("function")
	if fn == nil || !parser.SameNode(fn, fnExpr) {
		return nil
	}
	return call
}

// parameterNames lists a function's declared parameter names in order,
// excluding the receiver.
func parameterNames(fn *symbols.Binding) []string {
	if fn.Body == nil {
		return nil
	}
	var out []string
	for _, b := range fn.Body.Bindings() {
		if b.Kind != symbols.KindParameter || b.Receiver {
			continue
		}
		out = append(out, b.Name)
	}
	return out
}

// receiverParam returns the method's receiver binding, if declared.
func receiverParam(fn *symbols.Binding) *symbols.Binding {
	if fn.Body == nil {
		return nil
	}
	for _, b := range fn.Body.Bindings() {
		if b.Receiver {
			return b
		}
	}
	return nil
}

// defLine renders a `def name(params):` header.
func defLine(name string, params []string) string {
	return "def " + name + "(" + strings.Join(params, ", ") + "):"
}

// classInsertOffset returns the byte offset where a new member is
// appended inside a class body: just past the last statement's line.
func classInsertOffset(src *parser.Source, class *symbols.Binding) uint {
	body := bodyOf(class.Decl)
	if body == nil {
		return src.StatementSpan(class.Decl).End
	}
	stmts := parser.Statements(body)
	if len(stmts) == 0 {
		return src.StatementSpan(body).End
	}
	return src.StatementSpan(stmts[len(stmts)-1]).End
}

// memberIndent is the indentation used for members of the class body.
func memberIndent(src *parser.Source, class *symbols.Binding) string {
	body := bodyOf(class.Decl)
	if body != nil {
		if stmts := parser.Statements(body); len(stmts) > 0 {
			return src.Indent(stmts[0])
		}
	}
	return src.Indent(class.Decl) + "    "
}

// isPureExpression reports whether an expression can be duplicated or
// reordered without changing behavior: names, literals, attribute
// chains, and operator combinations of those. Calls and anything
// unrecognized are treated as effectful.
func isPureExpression(src *parser.Source, n *sitter.Node) bool {
	switch n.Kind() {
	case parser.KindIdentifier, parser.KindString, parser.KindTrue, parser.KindFalse,
		parser.KindNone, "integer", "float":
		return true
	case parser.KindAttribute:
		obj := n.ChildByFieldName("object")
		return obj != nil && isPureExpression(src, obj)
	case "binary_operator", parser.KindComparisonOperator, parser.KindBooleanOperator,
		"parenthesized_expression", parser.KindNotOperator, "unary_operator":
		for i := uint(0); i < n.NamedChildCount(); i++ {
			if !isPureExpression(src, n.NamedChild(i)) {
				return false
			}
		}
		return true
	case "subscript":
		value := n.ChildByFieldName("value")
		sub := n.ChildByFieldName("subscript")
		return value != nil && isPureExpression(src, value) && (sub == nil || isPureExpression(src, sub))
	default:
		return false
	}
}

// needsParens reports whether substituting the expression text into an
// arbitrary context requires wrapping parentheses.
func needsParens(text string) bool {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return false
	}
	for _, r := range trimmed {
		switch {
		case r == '_' || r == '.' || (r >= '0' && r <= '9'):
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		default:
			return true
		}
	}
	return false
}

func maybeParen(text string) string {
	if needsParens(text) {
		return "(" + text + ")"
	}
	return text
}
