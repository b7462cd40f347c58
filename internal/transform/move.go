package transform

import (
	"fmt"
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"

	"reshape/internal/core/errors"
	"reshape/internal/parser"
	"reshape/internal/plan"
	"reshape/internal/resolver"
	"reshape/internal/symbols"
)

// MoveMethod re-parents a method onto the class of one of its owner's
// fields. Via names that field; every call site is routed through it.
// When the body still needs the prior owner, the owner is passed as an
// explicit parameter. KeepStub leaves a delegating method behind
// instead of rewriting call sites.
type MoveMethod struct {
	Target   string
	To       string
	Via      string
	KeepStub bool
}

func (op *MoveMethod) Kind() string { return "move-method" }

type moveMethodTarget struct {
	method   *symbols.Binding
	owner    *symbols.Binding
	dest     *symbols.Binding
	refs     []resolver.Reference
	needsOwn bool
	ownerArg string
}

func (op *MoveMethod) Validate(ctx *Context) error {
	_, err := op.prepare(ctx)
	return err
}

func (op *MoveMethod) prepare(ctx *Context) (*moveMethodTarget, error) {
	method, err := ctx.findBinding(op.Target)
	if err != nil {
		return nil, err
	}
	if method.Kind != symbols.KindMethod {
		return nil, unsupported(op.Kind(), method.Kind.String()+" binding")
	}
	owner := method.Class

	dest, err := ctx.findBinding(op.To)
	if err != nil {
		return nil, err
	}
	if dest.Kind != symbols.KindClass {
		return nil, unsupported(op.Kind(), "destination is not a class")
	}
	if ctx.Table().Field(owner, op.Via) == nil {
		return nil, errors.Newf(errors.CodeNotFound,
			"field %q not declared on %s", op.Via, owner.Name)
	}
	if dest.Body != nil && dest.Body.Binding(method.Name) != nil {
		return nil, (&symbols.Conflict{Proposed: method.Name, Existing: dest.Body.Binding(method.Name)}).Error()
	}

	refs, findings := ctx.Resolver.Resolve(method)
	if err := requireEnumerable(findings, op.Kind()); err != nil {
		return nil, err
	}
	if !op.KeepStub {
		for _, ref := range refs {
			if enclosingCall(ref.Node) == nil {
				return nil, unsupported(op.Kind(), "reference is not a direct call")
			}
		}
	}

	t := &moveMethodTarget{method: method, owner: owner, dest: dest, refs: refs}
	t.needsOwn = methodReadsOwnerBeyond(ctx, method, op.Via)
	if t.needsOwn {
		t.ownerArg = strings.ToLower(owner.Name)
		if method.Body != nil && method.Body.Lookup(t.ownerArg) != nil {
			t.ownerArg = "owner"
		}
	}
	return t, nil
}

func (op *MoveMethod) Plan(ctx *Context) (*plan.RewritePlan, error) {
	t, err := op.prepare(ctx)
	if err != nil {
		return nil, err
	}
	src := ctx.sourceOf(t.method)
	destSrc := ctx.sourceOf(t.dest)

	p := plan.New(op.Kind())
	p.Description = fmt.Sprintf("move method %s to %s via %s", op.Target, op.To, op.Via)

	// Render the method on its new owner: self.Via becomes self, any
	// remaining self becomes the explicit owner parameter.
	recv := receiverParam(t.method)
	body := bodyOf(t.method.Decl)
	if recv == nil || body == nil {
		return nil, unsupported(op.Kind(), "method without receiver or body")
	}

	var edits []textEdit
	parser.Walk(body, func(n *sitter.Node) bool {
		if n.Kind() == parser.KindAttribute {
			obj := n.ChildByFieldName("object")
			attr := n.ChildByFieldName("attribute")
			if obj != nil && attr != nil &&
				obj.Kind() == parser.KindIdentifier &&
				src.Text(obj) == recv.Name && src.Text(attr) == op.Via {
				edits = append(edits, textEdit{span: src.NodeSpan(n), new: "self"})
				return false
			}
		}
		if n.Kind() == parser.KindIdentifier && src.Text(n) == recv.Name &&
			!parser.IsAttributeName(n) && !parser.IsKeywordArgumentName(n) {
			edits = append(edits, textEdit{span: src.NodeSpan(n), new: t.ownerArg})
		}
		return true
	})

	srcIndent := src.Indent(t.method.Decl)
	destIndent := memberIndent(destSrc, t.dest)

	params := []string{"self"}
	if t.needsOwn {
		params = append(params, t.ownerArg)
	}
	params = append(params, parameterNames(t.method)...)

	bodyText := rewriteSnippet(src, src.StatementSpan(body), edits)
	bodyText = parser.Reindent(strings.TrimRight(bodyText, "\n"), srcIndent+"    ", destIndent+"    ")
	def := destIndent + defLine(t.method.Name, params) + "\n" + bodyText + "\n"
	p.InsertAt(destSrc, classInsertOffset(destSrc, t.dest), "\n"+def)

	if op.KeepStub {
		stub := op.stubText(src, t, srcIndent)
		p.ReplaceStatement(src, declWithDecorators(t.method.Decl), stub)
	} else {
		removeDefinition(p, src, t.method)
		for _, ref := range t.refs {
			ft := ctx.Table().Files[ref.Path]
			op.rerouteCall(p, ft.Source, ref.Node, t)
		}
	}

	if err := p.Normalize(); err != nil {
		return nil, err
	}
	return p, nil
}

// stubText renders the delegating method left on the prior owner.
func (op *MoveMethod) stubText(src *parser.Source, t *moveMethodTarget, indent string) string {
	params := parameterNames(t.method)
	args := append([]string{}, params...)
	if t.needsOwn {
		args = append([]string{"self"}, args...)
	}
	header := indent + defLine(t.method.Name, append([]string{"self"}, params...)) + "\n"
	return header + indent + "    return self." + op.Via + "." + t.method.Name +
		"(" + strings.Join(args, ", ") + ")\n"
}

// rerouteCall rewrites one call site x.m(args) to x.via.m([x,] args).
func (op *MoveMethod) rerouteCall(p *plan.RewritePlan, src *parser.Source, refNode *sitter.Node, t *moveMethodTarget) {
	attr := refNode.Parent()
	if attr == nil || attr.Kind() != parser.KindAttribute {
		return
	}
	obj := attr.ChildByFieldName("object")
	objText := src.Text(obj)
	p.ReplaceNode(src, obj, maybeParen(objText)+"."+op.Via)

	if t.needsOwn {
		call := enclosingCall(refNode)
		args := call.ChildByFieldName("arguments")
		insert := maybeParen(objText)
		if args.NamedChildCount() > 0 {
			insert += ", "
		}
		p.InsertAt(src, args.StartByte()+1, insert)
	}
}

// methodReadsOwnerBeyond reports whether the method body references its
// receiver other than through the given field.
func methodReadsOwnerBeyond(ctx *Context, method *symbols.Binding, via string) bool {
	src := ctx.sourceOf(method)
	recv := receiverParam(method)
	body := bodyOf(method.Decl)
	if recv == nil || body == nil {
		return false
	}
	found := false
	parser.Walk(body, func(n *sitter.Node) bool {
		if found {
			return false
		}
		if n.Kind() == parser.KindAttribute {
			obj := n.ChildByFieldName("object")
			attr := n.ChildByFieldName("attribute")
			if obj != nil && attr != nil &&
				obj.Kind() == parser.KindIdentifier &&
				src.Text(obj) == recv.Name && src.Text(attr) == via {
				return false
			}
		}
		if n.Kind() == parser.KindIdentifier && src.Text(n) == recv.Name &&
			!parser.IsAttributeName(n) && !parser.IsKeywordArgumentName(n) {
			found = true
			return false
		}
		return true
	})
	return found
}

// MoveField re-homes a field onto the class of a sibling field: the
// declaring assignment moves into the destination's constructor and
// every access is routed through Via.
type MoveField struct {
	Target string
	To     string
	Via    string
}

func (op *MoveField) Kind() string { return "move-field" }

type moveFieldTarget struct {
	field *symbols.Binding
	owner *symbols.Binding
	dest  *symbols.Binding
	init  *symbols.Binding // destination constructor
	refs  []resolver.Reference
}

func (op *MoveField) Validate(ctx *Context) error {
	_, err := op.prepare(ctx)
	return err
}

func (op *MoveField) prepare(ctx *Context) (*moveFieldTarget, error) {
	field, err := ctx.findBinding(op.Target)
	if err != nil {
		return nil, err
	}
	if field.Kind != symbols.KindField {
		return nil, unsupported(op.Kind(), field.Kind.String()+" binding")
	}
	owner := field.Class

	dest, err := ctx.findBinding(op.To)
	if err != nil {
		return nil, err
	}
	if dest.Kind != symbols.KindClass {
		return nil, unsupported(op.Kind(), "destination is not a class")
	}
	if ctx.Table().Field(owner, op.Via) == nil {
		return nil, errors.Newf(errors.CodeNotFound,
			"field %q not declared on %s", op.Via, owner.Name)
	}
	if dest.Body != nil && dest.Body.Binding(field.Name) != nil {
		return nil, (&symbols.Conflict{Proposed: field.Name, Existing: dest.Body.Binding(field.Name)}).Error()
	}
	destInit := ctx.Table().Method(dest, "__init__")
	if destInit == nil {
		return nil, unsupported(op.Kind(), "destination class has no constructor to hold the field")
	}

	// The declaring assignment must be movable: its value may not read
	// the prior owner.
	src := ctx.sourceOf(field)
	declStmt := statementOf(field.Ident)
	if declStmt.Kind() != parser.KindExpressionStatement && declStmt.Kind() != parser.KindAssignment {
		return nil, unsupported(op.Kind(), "field is not declared by a plain assignment")
	}
	if valueReadsName(src, declStmt, declReceiverText(src, field)) {
		return nil, unsupported(op.Kind(), "field initializer reads the prior owner")
	}

	refs, findings := ctx.Resolver.Resolve(field)
	if err := requireEnumerable(findings, op.Kind()); err != nil {
		return nil, err
	}
	return &moveFieldTarget{field: field, owner: owner, dest: dest, init: destInit, refs: refs}, nil
}

func (op *MoveField) Plan(ctx *Context) (*plan.RewritePlan, error) {
	t, err := op.prepare(ctx)
	if err != nil {
		return nil, err
	}
	src := ctx.sourceOf(t.field)
	destSrc := ctx.sourceOf(t.dest)

	p := plan.New(op.Kind())
	p.Description = fmt.Sprintf("move field %s to %s via %s", op.Target, op.To, op.Via)

	declStmt := statementOf(t.field.Ident)
	declText := strings.TrimSpace(src.Text(declStmt))

	p.DeleteStatement(src, declStmt)

	initBody := bodyOf(t.init.Decl)
	stmts := parser.Statements(initBody)
	last := stmts[len(stmts)-1]
	p.InsertAt(destSrc, destSrc.StatementSpan(last).End, destSrc.Indent(last)+declText+"\n")

	for _, ref := range t.refs {
		ft := ctx.Table().Files[ref.Path]
		attr := ref.Node.Parent()
		obj := attr.ChildByFieldName("object")
		p.ReplaceNode(ft.Source, obj, maybeParen(ft.Source.Text(obj))+"."+op.Via)
	}

	if err := p.Normalize(); err != nil {
		return nil, err
	}
	return p, nil
}

// valueReadsName reports whether the assignment's right side mentions
// the given identifier.
func valueReadsName(src *parser.Source, stmt *sitter.Node, name string) bool {
	assign := stmt
	if assign.Kind() == parser.KindExpressionStatement {
		assign = assign.NamedChild(0)
	}
	if assign == nil || assign.Kind() != parser.KindAssignment {
		return false
	}
	right := assign.ChildByFieldName("right")
	if right == nil {
		return false
	}
	found := false
	parser.Walk(right, func(n *sitter.Node) bool {
		if n.Kind() == parser.KindIdentifier && src.Text(n) == name && !parser.IsAttributeName(n) {
			found = true
			return false
		}
		return !found
	})
	return found
}

// declReceiverText is the receiver identifier of the declaring
// self.<field> assignment.
func declReceiverText(src *parser.Source, field *symbols.Binding) string {
	for p := field.Ident.Parent(); p != nil; p = p.Parent() {
		if p.Kind() == parser.KindAttribute {
			if obj := p.ChildByFieldName("object"); obj != nil && obj.Kind() == parser.KindIdentifier {
				return src.Text(obj)
			}
		}
	}
	return "self"
}
