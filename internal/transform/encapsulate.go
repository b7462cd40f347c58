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

// EncapsulateField hides a public field behind accessor methods: the
// field is renamed to its underscored form, a getter and setter are
// added, and accesses from outside the owning class are rewritten to go
// through them. The class's own methods keep direct access.
type EncapsulateField struct {
	Target string
}

func (op *EncapsulateField) Kind() string { return "encapsulate-field" }

func (op *EncapsulateField) Validate(ctx *Context) error {
	_, err := prepareEncapsulation(ctx, op.Kind(), op.Target)
	return err
}

func (op *EncapsulateField) Plan(ctx *Context) (*plan.RewritePlan, error) {
	t, err := prepareEncapsulation(ctx, op.Kind(), op.Target)
	if err != nil {
		return nil, err
	}
	return planEncapsulation(ctx, op.Kind(),
		fmt.Sprintf("encapsulate field %s behind %s/%s", op.Target, t.getter, t.setter),
		t, false)
}

// SelfEncapsulateField is EncapsulateField with the owning class's own
// accesses also routed through the accessors.
type SelfEncapsulateField struct {
	Target string
}

func (op *SelfEncapsulateField) Kind() string { return "self-encapsulate-field" }

func (op *SelfEncapsulateField) Validate(ctx *Context) error {
	_, err := prepareEncapsulation(ctx, op.Kind(), op.Target)
	return err
}

func (op *SelfEncapsulateField) Plan(ctx *Context) (*plan.RewritePlan, error) {
	t, err := prepareEncapsulation(ctx, op.Kind(), op.Target)
	if err != nil {
		return nil, err
	}
	return planEncapsulation(ctx, op.Kind(),
		fmt.Sprintf("self-encapsulate field %s behind %s/%s", op.Target, t.getter, t.setter),
		t, true)
}

type encapsulation struct {
	field   *symbols.Binding
	owner   *symbols.Binding
	refs    []resolver.Reference
	private string
	getter  string
	setter  string
}

func prepareEncapsulation(ctx *Context, kind, target string) (*encapsulation, error) {
	field, err := ctx.findBinding(target)
	if err != nil {
		return nil, err
	}
	if field.Kind != symbols.KindField {
		return nil, unsupported(kind, field.Kind.String()+" binding")
	}
	if !field.Public {
		return nil, errors.Newf(errors.CodeValidationError,
			"field %s is already marked internal", field.Name)
	}
	owner := field.Class

	t := &encapsulation{
		field:   field,
		owner:   owner,
		private: "_" + field.Name,
		getter:  "get_" + field.Name,
		setter:  "set_" + field.Name,
	}

	scopes := append([]*symbols.Binding{owner}, ctx.Table().Subclasses(owner)...)
	for _, class := range scopes {
		if class.Body == nil {
			continue
		}
		for _, name := range []string{t.private, t.getter, t.setter} {
			if existing := class.Body.Binding(name); existing != nil {
				return nil, (&symbols.Conflict{Proposed: name, Existing: existing}).Error()
			}
		}
	}

	refs, findings := ctx.Resolver.Resolve(field)
	if err := requireEnumerable(findings, kind); err != nil {
		return nil, err
	}
	for _, ref := range refs {
		if ref.Kind == resolver.RefWrite && !isPlainAssignmentTarget(ctx, ref) {
			return nil, unsupported(kind, "augmented or destructuring write to the field")
		}
	}
	t.refs = refs
	return t, nil
}

func planEncapsulation(ctx *Context, kind, description string, t *encapsulation, includeOwn bool) (*plan.RewritePlan, error) {
	src := ctx.sourceOf(t.field)
	ownerSrc := ctx.sourceOf(t.owner)

	p := plan.New(kind)
	p.Description = description

	// Declaring assignment keeps direct access under the private name.
	p.ReplaceNode(src, t.field.Ident, t.private)

	indent := memberIndent(ownerSrc, t.owner)
	accessors := indent + defLine(t.getter, []string{"self"}) + "\n" +
		indent + "    return self." + t.private + "\n" +
		"\n" +
		indent + defLine(t.setter, []string{"self", "value"}) + "\n" +
		indent + "    self." + t.private + " = value\n"
	insertMember(p, ownerSrc, t.owner, accessors)

	// Writes become setter calls covering the whole assignment. A read
	// of the same field inside the assigned value has to fold into the
	// rendered argument, or its edit would overlap the setter's.
	type setterSite struct {
		src    *parser.Source
		assign *sitter.Node
		right  *sitter.Node
		obj    string
		reads  []textEdit
	}
	var sites []*setterSite

	ownerSpan := ownerSpanOf(ctx, t.owner)
	internalRef := func(refSrc *parser.Source, ref resolver.Reference) bool {
		return ref.Path == t.owner.Location.Path && ownerSpan.Contains(refSrc.NodeSpan(ref.Node))
	}

	for _, ref := range t.refs {
		refSrc := ctx.Table().Files[ref.Path].Source
		if ref.Kind != resolver.RefWrite || (internalRef(refSrc, ref) && !includeOwn) {
			continue
		}
		attr := ref.Node.Parent()
		assign := attr.Parent()
		sites = append(sites, &setterSite{
			src:    refSrc,
			assign: assign,
			right:  assign.ChildByFieldName("right"),
			obj:    refSrc.Text(attr.ChildByFieldName("object")),
		})
	}

	for _, ref := range t.refs {
		refSrc := ctx.Table().Files[ref.Path].Source
		internal := internalRef(refSrc, ref)
		if ref.Kind == resolver.RefWrite && !(internal && !includeOwn) {
			continue
		}
		text := t.getter + "()"
		if internal && !includeOwn {
			text = t.private
		}
		nested := false
		for _, site := range sites {
			if site.src == refSrc &&
				site.assign.StartByte() <= ref.Node.StartByte() && ref.Node.EndByte() <= site.assign.EndByte() {
				site.reads = append(site.reads, textEdit{span: refSrc.NodeSpan(ref.Node), new: text})
				nested = true
				break
			}
		}
		if !nested {
			p.ReplaceNode(refSrc, ref.Node, text)
		}
	}

	for _, site := range sites {
		arg := rewriteSnippet(site.src, site.src.NodeSpan(site.right), site.reads)
		text := maybeParen(site.obj) + "." + t.setter + "(" + arg + ")"
		p.Add(site.src.Path, plan.Edit{Span: site.src.NodeSpan(site.assign), Old: site.src.Text(site.assign), New: text})
	}

	if err := p.Normalize(); err != nil {
		return nil, err
	}
	return p, nil
}

// isPlainAssignmentTarget reports whether a write reference is the sole
// target of a simple `=` assignment.
func isPlainAssignmentTarget(ctx *Context, ref resolver.Reference) bool {
	attr := ref.Node.Parent()
	if attr == nil || attr.Kind() != parser.KindAttribute {
		return false
	}
	assign := attr.Parent()
	if assign == nil || assign.Kind() != parser.KindAssignment {
		return false
	}
	left := assign.ChildByFieldName("left")
	return left != nil && parser.SameNode(left, attr)
}

// ownerSpanOf is the byte range of the owning class's declaration.
func ownerSpanOf(ctx *Context, owner *symbols.Binding) parser.Span {
	src := ctx.sourceOf(owner)
	return src.NodeSpan(declWithDecorators(owner.Decl))
}

// RemoveMiddleMan deletes a pure delegating method and reroutes every
// call site directly to the delegate.
type RemoveMiddleMan struct {
	Target string
}

func (op *RemoveMiddleMan) Kind() string { return "remove-middle-man" }

type middleMan struct {
	method   *symbols.Binding
	refs     []resolver.Reference
	delegate string // "field.name" the call sites route to
}

func (op *RemoveMiddleMan) Validate(ctx *Context) error {
	_, err := op.prepare(ctx)
	return err
}

func (op *RemoveMiddleMan) prepare(ctx *Context) (*middleMan, error) {
	method, err := ctx.findBinding(op.Target)
	if err != nil {
		return nil, err
	}
	if method.Kind != symbols.KindMethod {
		return nil, unsupported(op.Kind(), method.Kind.String()+" binding")
	}

	src := ctx.sourceOf(method)
	delegate, ok := delegationTarget(src, method)
	if !ok {
		return nil, unsupported(op.Kind(), "method body is not a pure delegation")
	}

	refs, findings := ctx.Resolver.Resolve(method)
	if err := requireEnumerable(findings, op.Kind()); err != nil {
		return nil, err
	}
	for _, ref := range refs {
		if enclosingCall(ref.Node) == nil {
			return nil, unsupported(op.Kind(), "reference is not a direct call")
		}
	}
	for _, sub := range ctx.Table().Subclasses(method.Class) {
		if ctx.Table().Method(sub, method.Name) != nil {
			return nil, unsupported(op.Kind(), "method overridden in subclass "+sub.Name)
		}
	}
	return &middleMan{method: method, refs: refs, delegate: delegate}, nil
}

func (op *RemoveMiddleMan) Plan(ctx *Context) (*plan.RewritePlan, error) {
	t, err := op.prepare(ctx)
	if err != nil {
		return nil, err
	}

	p := plan.New(op.Kind())
	p.Description = fmt.Sprintf("remove middle man %s, call %s directly", op.Target, t.delegate)

	for _, ref := range t.refs {
		ft := ctx.Table().Files[ref.Path]
		p.ReplaceNode(ft.Source, ref.Node, t.delegate)
	}
	removeDefinition(p, ctx.sourceOf(t.method), t.method)

	if err := p.Normalize(); err != nil {
		return nil, err
	}
	return p, nil
}

// delegationTarget matches a body of exactly
// `return self.<field>.<member>(<params in declared order>)` and
// returns "<field>.<member>".
func delegationTarget(src *parser.Source, method *symbols.Binding) (string, bool) {
	body := bodyOf(method.Decl)
	if body == nil {
		return "", false
	}
	stmts := parser.Statements(body)
	if len(stmts) != 1 || stmts[0].Kind() != parser.KindReturnStatement {
		return "", false
	}
	call := returnExpression(stmts[0])
	if call == nil || call.Kind() != parser.KindCall {
		return "", false
	}

	fn := call.ChildByFieldName("function")
	if fn == nil || fn.Kind() != parser.KindAttribute {
		return "", false
	}
	inner := fn.ChildByFieldName("object")
	member := fn.ChildByFieldName("attribute")
	if inner == nil || member == nil || inner.Kind() != parser.KindAttribute {
		return "", false
	}
	recvObj := inner.ChildByFieldName("object")
	recv := receiverParam(method)
	if recvObj == nil || recv == nil || recvObj.Kind() != parser.KindIdentifier || src.Text(recvObj) != recv.Name {
		return "", false
	}

	// Arguments must pass the declared parameters through untouched.
	positional, keyword := callArguments(src, call)
	params := parameterNames(method)
	if len(keyword) != 0 || len(positional) != len(params) {
		return "", false
	}
	for i, param := range params {
		if strings.TrimSpace(positional[i]) != param {
			return "", false
		}
	}

	field := inner.ChildByFieldName("attribute")
	if field == nil {
		return "", false
	}
	return src.Text(field) + "." + src.Text(member), true
}
