package transform

import (
	"fmt"
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"

	"reshape/internal/parser"
	"reshape/internal/plan"
	"reshape/internal/resolver"
	"reshape/internal/symbols"
)

// InlineVariable replaces every read of a variable with its initializer
// expression and removes the declaration. The initializer must be free
// of side effects, since inlining duplicates and reorders it.
type InlineVariable struct {
	Target string
}

func (op *InlineVariable) Kind() string { return "inline-variable" }

func (op *InlineVariable) Validate(ctx *Context) error {
	_, _, _, err := op.prepare(ctx)
	return err
}

func (op *InlineVariable) prepare(ctx *Context) (*symbols.Binding, []resolver.Reference, string, error) {
	b, err := ctx.findBinding(op.Target)
	if err != nil {
		return nil, nil, "", err
	}
	if b.Kind != symbols.KindLocal && b.Kind != symbols.KindConstant {
		return nil, nil, "", unsupported(op.Kind(), b.Kind.String()+" binding")
	}
	if b.Decl == nil || b.Decl.Kind() != parser.KindAssignment {
		return nil, nil, "", unsupported(op.Kind(), "declaration is not a plain assignment")
	}
	src := ctx.sourceOf(b)
	value := b.Decl.ChildByFieldName("right")
	if value == nil {
		return nil, nil, "", unsupported(op.Kind(), "assignment without a value")
	}
	if !isPureExpression(src, value) {
		return nil, nil, "", unsupported(op.Kind(), "initializer with possible side effects")
	}

	refs, findings := ctx.Resolver.Resolve(b)
	if err := requireEnumerable(findings, op.Kind()); err != nil {
		return nil, nil, "", err
	}
	for _, ref := range refs {
		if ref.Kind == resolver.RefWrite {
			return nil, nil, "", unsupported(op.Kind(), "variable is reassigned after declaration")
		}
	}
	return b, refs, src.Text(value), nil
}

func (op *InlineVariable) Plan(ctx *Context) (*plan.RewritePlan, error) {
	b, refs, value, err := op.prepare(ctx)
	if err != nil {
		return nil, err
	}
	src := ctx.sourceOf(b)

	p := plan.New(op.Kind())
	p.Description = fmt.Sprintf("inline variable %s", op.Target)

	for _, ref := range refs {
		ft := ctx.Table().Files[ref.Path]
		p.ReplaceNode(ft.Source, ref.Node, maybeParen(value))
	}
	p.DeleteStatement(src, statementOf(b.Decl))

	if err := p.Normalize(); err != nil {
		return nil, err
	}
	return p, nil
}

// InlineFunction substitutes a function's body at every call site, with
// parameters rewritten to the call's actual arguments, then removes the
// declaration. A single-return body is substituted as an expression; a
// body of statements with an optional trailing return requires each
// call to stand alone as a statement.
type InlineFunction struct {
	Target string
}

func (op *InlineFunction) Kind() string { return "inline-function" }

func (op *InlineFunction) Validate(ctx *Context) error {
	_, err := prepareInlineCallable(ctx, op.Kind(), op.Target, symbols.KindFunction)
	return err
}

func (op *InlineFunction) Plan(ctx *Context) (*plan.RewritePlan, error) {
	in, err := prepareInlineCallable(ctx, op.Kind(), op.Target, symbols.KindFunction)
	if err != nil {
		return nil, err
	}
	return planInlineCallable(ctx, op.Kind(), fmt.Sprintf("inline function %s", op.Target), in)
}

// InlineMethod is InlineFunction for class methods: the receiver text
// replaces self in the substituted body. Methods overridden in a
// subclass cannot be inlined, the call site dispatch would be lost.
type InlineMethod struct {
	Target string
}

func (op *InlineMethod) Kind() string { return "inline-method" }

func (op *InlineMethod) Validate(ctx *Context) error {
	_, err := prepareInlineCallable(ctx, op.Kind(), op.Target, symbols.KindMethod)
	return err
}

func (op *InlineMethod) Plan(ctx *Context) (*plan.RewritePlan, error) {
	in, err := prepareInlineCallable(ctx, op.Kind(), op.Target, symbols.KindMethod)
	if err != nil {
		return nil, err
	}
	return planInlineCallable(ctx, op.Kind(), fmt.Sprintf("inline method %s", op.Target), in)
}

type inlineTarget struct {
	binding *symbols.Binding
	refs    []resolver.Reference
	stmts   []*sitter.Node // body statements before the trailing return
	expr    *sitter.Node   // the trailing return's expression, nil when the body ends without one
}

// expression reports whether the body substitutes as a plain expression,
// so the call may appear anywhere one does.
func (in *inlineTarget) expression() bool {
	return len(in.stmts) == 0 && in.expr != nil
}

func prepareInlineCallable(ctx *Context, kind, target string, want symbols.BindingKind) (*inlineTarget, error) {
	b, err := ctx.findBinding(target)
	if err != nil {
		return nil, err
	}
	if b.Kind != want {
		return nil, unsupported(kind, b.Kind.String()+" binding")
	}
	if len(b.Decorators) > 0 {
		return nil, unsupported(kind, "decorated definition")
	}
	if b.Kind == symbols.KindMethod {
		for _, sub := range ctx.Table().Subclasses(b.Class) {
			if ctx.Table().Method(sub, b.Name) != nil {
				return nil, unsupported(kind, "method overridden in subclass "+sub.Name)
			}
		}
	}

	body := bodyOf(b.Decl)
	if body == nil {
		return nil, unsupported(kind, "definition without a body")
	}
	stmts := parser.Statements(body)
	if len(stmts) == 0 {
		return nil, unsupported(kind, "definition without a body")
	}

	in := &inlineTarget{binding: b, stmts: stmts}
	if last := stmts[len(stmts)-1]; last.Kind() == parser.KindReturnStatement {
		expr := returnExpression(last)
		if expr == nil {
			return nil, unsupported(kind, "return without a value")
		}
		in.expr = expr
		in.stmts = stmts[:len(stmts)-1]
	}
	for _, s := range in.stmts {
		if containsReturn(s) {
			return nil, unsupported(kind, "return before the end of the body")
		}
	}

	refs, findings := ctx.Resolver.Resolve(b)
	if err := requireEnumerable(findings, kind); err != nil {
		return nil, err
	}
	for _, ref := range refs {
		if ref.Kind != resolver.RefCall {
			return nil, unsupported(kind, "reference is not a direct call")
		}
		call := enclosingCall(ref.Node)
		if call == nil {
			return nil, unsupported(kind, "reference is not a direct call")
		}
		if in.expression() {
			continue
		}
		stmt := statementCall(call)
		if stmt == nil {
			return nil, unsupported(kind, "call does not stand alone as a statement")
		}
		if in.expr == nil && assignmentOf(stmt) != nil {
			return nil, unsupported(kind, "call assigns a value but the body never returns one")
		}
	}
	in.refs = refs
	return in, nil
}

func planInlineCallable(ctx *Context, kind, description string, in *inlineTarget) (*plan.RewritePlan, error) {
	b := in.binding
	src := ctx.sourceOf(b)

	p := plan.New(kind)
	p.Description = description

	for _, ref := range in.refs {
		ft := ctx.Table().Files[ref.Path]
		call := enclosingCall(ref.Node)

		subst, err := substitutions(ctx, kind, b, ft.Source, ref.Node, call)
		if err != nil {
			return nil, err
		}
		if in.expression() {
			p.ReplaceNode(ft.Source, call, substituteExpression(src, in.expr, subst))
			continue
		}
		stmt := statementCall(call)
		p.ReplaceStatement(ft.Source, stmt, renderInlineBody(src, ft.Source, in, stmt, subst))
	}

	removeDefinition(p, src, b)

	if err := p.Normalize(); err != nil {
		return nil, err
	}
	return p, nil
}

// substitutions maps each parameter name (and self, for methods) to the
// argument text it takes at this call site.
func substitutions(ctx *Context, kind string, fn *symbols.Binding, src *parser.Source, refNode, call *sitter.Node) (map[string]string, error) {
	positional, keyword := callArguments(src, call)
	params := parameterNames(fn)

	subst := make(map[string]string)
	if fn.Kind == symbols.KindMethod {
		recv := receiverParam(fn)
		if recv == nil {
			return nil, unsupported(kind, "method without a receiver parameter")
		}
		attr := refNode.Parent()
		if attr == nil || attr.Kind() != parser.KindAttribute {
			return nil, unsupported(kind, "call without an explicit receiver")
		}
		obj := attr.ChildByFieldName("object")
		subst[recv.Name] = maybeParen(src.Text(obj))
	}

	for i, name := range params {
		switch {
		case i < len(positional):
			subst[name] = maybeParen(positional[i])
		case keyword[name] != "":
			subst[name] = maybeParen(keyword[name])
		default:
			def := defaultValueText(ctx.sourceOf(fn), fn, name)
			if def == "" {
				return nil, unsupported(kind, "call omits parameter "+name+" and no default exists")
			}
			subst[name] = maybeParen(def)
		}
	}
	if len(positional) > len(params) {
		return nil, unsupported(kind, "call passes more positional arguments than declared parameters")
	}
	return subst, nil
}

// substituteExpression renders the expression with parameter
// identifiers replaced per the substitution map.
func substituteExpression(src *parser.Source, expr *sitter.Node, subst map[string]string) string {
	return rewriteSnippet(src, src.NodeSpan(expr), substitutionEdits(src, expr, subst))
}

// substitutionEdits collects the identifier replacements inside a node.
func substitutionEdits(src *parser.Source, n *sitter.Node, subst map[string]string) []textEdit {
	var edits []textEdit
	parser.Walk(n, func(c *sitter.Node) bool {
		if c.Kind() != parser.KindIdentifier {
			return true
		}
		if parser.IsAttributeName(c) || parser.IsKeywordArgumentName(c) {
			return true
		}
		if replacement, ok := subst[src.Text(c)]; ok {
			edits = append(edits, textEdit{span: src.NodeSpan(c), new: replacement})
		}
		return true
	})
	return edits
}

// renderInlineBody renders the callable's statements at the call
// statement's indentation, folding the trailing return value into the
// call statement's assignment targets. A no-op final assignment (the
// return expression already names the targets) is dropped; a discarded
// impure return value is kept as a bare statement.
func renderInlineBody(defSrc, callSrc *parser.Source, in *inlineTarget, stmt *sitter.Node, subst map[string]string) string {
	indent := callSrc.Indent(stmt)
	var b strings.Builder

	if len(in.stmts) > 0 {
		first := in.stmts[0]
		last := in.stmts[len(in.stmts)-1]
		region := parser.Span{Start: first.StartByte(), End: last.EndByte()}
		var edits []textEdit
		for _, s := range in.stmts {
			edits = append(edits, substitutionEdits(defSrc, s, subst)...)
		}
		b.WriteString(parser.Reindent(rewriteSnippet(defSrc, region, edits), defSrc.Indent(first), indent))
		b.WriteString("\n")
	}

	if in.expr == nil {
		return b.String()
	}
	value := substituteExpression(defSrc, in.expr, subst)
	if assign := assignmentOf(stmt); assign != nil {
		left := callSrc.Text(assign.ChildByFieldName("left"))
		if value != left {
			b.WriteString(indent + left + " = " + value + "\n")
		}
	} else if !isPureExpression(defSrc, in.expr) {
		b.WriteString(indent + value + "\n")
	}
	return b.String()
}

// statementCall returns the statement a call occupies entirely: a bare
// expression statement, or an assignment whose value is the call.
func statementCall(call *sitter.Node) *sitter.Node {
	parent := call.Parent()
	if parent == nil {
		return nil
	}
	switch parent.Kind() {
	case parser.KindExpressionStatement:
		if parent.NamedChildCount() == 1 {
			return parent
		}
	case parser.KindAssignment:
		if right := parent.ChildByFieldName("right"); right != nil && parser.SameNode(right, call) {
			return statementOf(parent)
		}
	}
	return nil
}

// assignmentOf unwraps the assignment inside an expression statement.
func assignmentOf(stmt *sitter.Node) *sitter.Node {
	if stmt.Kind() != parser.KindExpressionStatement || stmt.NamedChildCount() == 0 {
		return nil
	}
	if c := stmt.NamedChild(0); c.Kind() == parser.KindAssignment {
		return c
	}
	return nil
}

// containsReturn reports whether a statement returns from the enclosing
// function, without descending into nested definitions.
func containsReturn(n *sitter.Node) bool {
	found := false
	parser.Walk(n, func(c *sitter.Node) bool {
		switch c.Kind() {
		case parser.KindReturnStatement:
			found = true
			return false
		case parser.KindFunctionDef, parser.KindClassDef, parser.KindLambda:
			return false
		}
		return true
	})
	return found
}

// defaultValueText returns the source text of a parameter's default.
func defaultValueText(src *parser.Source, fn *symbols.Binding, name string) string {
	params := fn.Decl.ChildByFieldName("parameters")
	if params == nil {
		return ""
	}
	for _, param := range parser.Children(params) {
		kind := param.Kind()
		if kind != parser.KindDefaultParameter && kind != parser.KindTypedDefaultParam {
			continue
		}
		pname := param.ChildByFieldName("name")
		value := param.ChildByFieldName("value")
		if pname != nil && value != nil && src.Text(pname) == name {
			return src.Text(value)
		}
	}
	return ""
}

// returnExpression is the value node of a return statement.
func returnExpression(ret *sitter.Node) *sitter.Node {
	if ret.NamedChildCount() == 0 {
		return nil
	}
	return ret.NamedChild(0)
}

// removeDefinition deletes a class or function definition. When it is
// the only statement in a class body, the statement is replaced with
// pass to keep the remaining source valid.
func removeDefinition(p *plan.RewritePlan, src *parser.Source, b *symbols.Binding) {
	decl := declWithDecorators(b.Decl)
	if b.Class != nil {
		classBody := bodyOf(b.Class.Decl)
		if classBody != nil && len(parser.Statements(classBody)) == 1 {
			p.ReplaceStatement(src, decl, src.Indent(decl)+"pass\n")
			return
		}
	}
	p.DeleteStatement(src, decl)
}
