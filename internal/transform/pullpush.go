package transform

import (
	"fmt"
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"

	"reshape/internal/core/errors"
	"reshape/internal/parser"
	"reshape/internal/plan"
	"reshape/internal/symbols"
)

// PullUpMethod hoists a subclass method into the base class. Every
// sibling subclass implementing the method must implement it
// identically; all copies are removed and one lands on the base.
type PullUpMethod struct {
	Target string
}

func (op *PullUpMethod) Kind() string { return "pull-up-method" }

func (op *PullUpMethod) Validate(ctx *Context) error {
	_, _, _, err := op.prepare(ctx)
	return err
}

func (op *PullUpMethod) prepare(ctx *Context) (*symbols.Binding, *symbols.Binding, []*symbols.Binding, error) {
	method, err := ctx.findBinding(op.Target)
	if err != nil {
		return nil, nil, nil, err
	}
	if method.Kind != symbols.KindMethod {
		return nil, nil, nil, unsupported(op.Kind(), method.Kind.String()+" binding")
	}
	base := ctx.Table().BaseOf(method.Class)
	if base == nil {
		return nil, nil, nil, unsupported(op.Kind(), "owning class has no base class in the project")
	}
	if existing := ctx.Table().Method(base, method.Name); existing != nil {
		return nil, nil, nil, (&symbols.Conflict{Proposed: method.Name, Existing: existing}).Error()
	}

	want := normalizedDef(ctx.sourceOf(method), method)
	copies := []*symbols.Binding{method}
	for _, sub := range ctx.Table().Subclasses(base) {
		if sub == method.Class {
			continue
		}
		sibling := ctx.Table().Method(sub, method.Name)
		if sibling == nil {
			continue
		}
		if normalizedDef(ctx.sourceOf(sibling), sibling) != want {
			return nil, nil, nil, unsupported(op.Kind(),
				"subclass "+sub.Name+" implements "+method.Name+" differently")
		}
		copies = append(copies, sibling)
	}
	return method, base, copies, nil
}

func (op *PullUpMethod) Plan(ctx *Context) (*plan.RewritePlan, error) {
	method, base, copies, err := op.prepare(ctx)
	if err != nil {
		return nil, err
	}

	p := plan.New(op.Kind())
	p.Description = fmt.Sprintf("pull up method %s into %s", op.Target, base.Name)

	baseSrc := ctx.sourceOf(base)
	indent := memberIndent(baseSrc, base)
	def := parser.Reindent(normalizedDef(ctx.sourceOf(method), method), "", indent)
	insertMember(p, baseSrc, base, def+"\n")

	for _, dup := range copies {
		removeDefinition(p, ctx.sourceOf(dup), dup)
	}

	if err := p.Normalize(); err != nil {
		return nil, err
	}
	return p, nil
}

// PullUpField hoists a field's declaring assignment from subclass
// constructors into the base constructor.
type PullUpField struct {
	Target string
}

func (op *PullUpField) Kind() string { return "pull-up-field" }

func (op *PullUpField) Validate(ctx *Context) error {
	_, _, _, err := op.prepare(ctx)
	return err
}

func (op *PullUpField) prepare(ctx *Context) (*symbols.Binding, *symbols.Binding, []*symbols.Binding, error) {
	field, err := ctx.findBinding(op.Target)
	if err != nil {
		return nil, nil, nil, err
	}
	if field.Kind != symbols.KindField {
		return nil, nil, nil, unsupported(op.Kind(), field.Kind.String()+" binding")
	}
	base := ctx.Table().BaseOf(field.Class)
	if base == nil {
		return nil, nil, nil, unsupported(op.Kind(), "owning class has no base class in the project")
	}
	if existing := ctx.Table().Field(base, field.Name); existing != nil {
		return nil, nil, nil, (&symbols.Conflict{Proposed: field.Name, Existing: existing}).Error()
	}
	if ctx.Table().Method(base, "__init__") == nil {
		return nil, nil, nil, unsupported(op.Kind(), "base class has no constructor to receive the field")
	}

	want := strings.TrimSpace(ctx.sourceOf(field).Text(statementOf(field.Ident)))
	copies := []*symbols.Binding{field}
	for _, sub := range ctx.Table().Subclasses(base) {
		if sub == field.Class {
			continue
		}
		sibling := ctx.Table().Field(sub, field.Name)
		if sibling == nil {
			continue
		}
		text := strings.TrimSpace(ctx.sourceOf(sibling).Text(statementOf(sibling.Ident)))
		if text != want {
			return nil, nil, nil, unsupported(op.Kind(),
				"subclass "+sub.Name+" initializes "+field.Name+" differently")
		}
		copies = append(copies, sibling)
	}
	return field, base, copies, nil
}

func (op *PullUpField) Plan(ctx *Context) (*plan.RewritePlan, error) {
	field, base, copies, err := op.prepare(ctx)
	if err != nil {
		return nil, err
	}

	p := plan.New(op.Kind())
	p.Description = fmt.Sprintf("pull up field %s into %s", op.Target, base.Name)

	declText := strings.TrimSpace(ctx.sourceOf(field).Text(statementOf(field.Ident)))
	baseInit := ctx.Table().Method(base, "__init__")
	appendToConstructor(p, ctx.sourceOf(base), baseInit, declText)

	for _, dup := range copies {
		p.DeleteStatement(ctx.sourceOf(dup), statementOf(dup.Ident))
	}

	if err := p.Normalize(); err != nil {
		return nil, err
	}
	return p, nil
}

// PushDownMethod moves a base-class method into the named subclasses
// and removes it from the base. Every resolved reference must dispatch
// through one of the receiving subclasses.
type PushDownMethod struct {
	Target string
	To     []string
}

func (op *PushDownMethod) Kind() string { return "push-down-method" }

func (op *PushDownMethod) Validate(ctx *Context) error {
	_, _, err := op.prepare(ctx)
	return err
}

func (op *PushDownMethod) prepare(ctx *Context) (*symbols.Binding, []*symbols.Binding, error) {
	method, err := ctx.findBinding(op.Target)
	if err != nil {
		return nil, nil, err
	}
	if method.Kind != symbols.KindMethod {
		return nil, nil, unsupported(op.Kind(), method.Kind.String()+" binding")
	}
	targets, err := resolveSubclassTargets(ctx, op.Kind(), method.Class, op.To)
	if err != nil {
		return nil, nil, err
	}
	for _, sub := range targets {
		if existing := sub.Body.Binding(method.Name); existing != nil {
			return nil, nil, (&symbols.Conflict{Proposed: method.Name, Existing: existing}).Error()
		}
	}
	if err := requireReceiversWithin(ctx, op.Kind(), method, targets); err != nil {
		return nil, nil, err
	}
	return method, targets, nil
}

func (op *PushDownMethod) Plan(ctx *Context) (*plan.RewritePlan, error) {
	method, targets, err := op.prepare(ctx)
	if err != nil {
		return nil, err
	}

	p := plan.New(op.Kind())
	p.Description = fmt.Sprintf("push down method %s to %s", op.Target, strings.Join(op.To, ", "))

	normalized := normalizedDef(ctx.sourceOf(method), method)
	for _, sub := range targets {
		src := ctx.sourceOf(sub)
		indent := memberIndent(src, sub)
		insertMember(p, src, sub, parser.Reindent(normalized, "", indent)+"\n")
	}
	removeDefinition(p, ctx.sourceOf(method), method)

	if err := p.Normalize(); err != nil {
		return nil, err
	}
	return p, nil
}

// PushDownField moves a field's declaring assignment from the base
// constructor into each named subclass constructor.
type PushDownField struct {
	Target string
	To     []string
}

func (op *PushDownField) Kind() string { return "push-down-field" }

func (op *PushDownField) Validate(ctx *Context) error {
	_, _, err := op.prepare(ctx)
	return err
}

func (op *PushDownField) prepare(ctx *Context) (*symbols.Binding, []*symbols.Binding, error) {
	field, err := ctx.findBinding(op.Target)
	if err != nil {
		return nil, nil, err
	}
	if field.Kind != symbols.KindField {
		return nil, nil, unsupported(op.Kind(), field.Kind.String()+" binding")
	}
	targets, err := resolveSubclassTargets(ctx, op.Kind(), field.Class, op.To)
	if err != nil {
		return nil, nil, err
	}
	for _, sub := range targets {
		if existing := ctx.Table().Field(sub, field.Name); existing != nil {
			return nil, nil, (&symbols.Conflict{Proposed: field.Name, Existing: existing}).Error()
		}
		if ctx.Table().Method(sub, "__init__") == nil {
			return nil, nil, unsupported(op.Kind(), "subclass "+sub.Name+" has no constructor to receive the field")
		}
	}
	if err := requireReceiversWithin(ctx, op.Kind(), field, targets); err != nil {
		return nil, nil, err
	}
	return field, targets, nil
}

func (op *PushDownField) Plan(ctx *Context) (*plan.RewritePlan, error) {
	field, targets, err := op.prepare(ctx)
	if err != nil {
		return nil, err
	}

	p := plan.New(op.Kind())
	p.Description = fmt.Sprintf("push down field %s to %s", op.Target, strings.Join(op.To, ", "))

	declText := strings.TrimSpace(ctx.sourceOf(field).Text(statementOf(field.Ident)))
	for _, sub := range targets {
		init := ctx.Table().Method(sub, "__init__")
		appendToConstructor(p, ctx.sourceOf(sub), init, declText)
	}
	p.DeleteStatement(ctx.sourceOf(field), statementOf(field.Ident))

	if err := p.Normalize(); err != nil {
		return nil, err
	}
	return p, nil
}

// PullUpConstructorBody moves the identical leading statements of every
// direct subclass constructor into a new base constructor, replaced by
// a super().__init__ call.
type PullUpConstructorBody struct {
	Target string // base class
}

func (op *PullUpConstructorBody) Kind() string { return "pull-up-constructor-body" }

type ctorPullUp struct {
	base   *symbols.Binding
	subs   []*symbols.Binding
	inits  []*symbols.Binding
	shared int
	params []string
}

func (op *PullUpConstructorBody) Validate(ctx *Context) error {
	_, err := op.prepare(ctx)
	return err
}

func (op *PullUpConstructorBody) prepare(ctx *Context) (*ctorPullUp, error) {
	base, err := ctx.findBinding(op.Target)
	if err != nil {
		return nil, err
	}
	if base.Kind != symbols.KindClass {
		return nil, unsupported(op.Kind(), base.Kind.String()+" binding")
	}
	if ctx.Table().Method(base, "__init__") != nil {
		return nil, unsupported(op.Kind(), "base class already defines a constructor")
	}

	subs := directSubclasses(ctx, base)
	if len(subs) == 0 {
		return nil, unsupported(op.Kind(), "class has no subclasses in the project")
	}
	t := &ctorPullUp{base: base, subs: subs}
	for _, sub := range subs {
		init := ctx.Table().Method(sub, "__init__")
		if init == nil {
			return nil, unsupported(op.Kind(), "subclass "+sub.Name+" has no constructor")
		}
		t.inits = append(t.inits, init)
	}

	t.shared = sharedLeadingStatements(ctx, t.inits)
	if t.shared == 0 {
		return nil, unsupported(op.Kind(), "subclass constructors share no leading statements")
	}

	t.params = constructorParamsUsed(ctx, t.inits[0], t.shared)
	for i, init := range t.inits {
		for _, name := range t.params {
			b := init.Body.Binding(name)
			if b == nil || b.Kind != symbols.KindParameter {
				return nil, unsupported(op.Kind(),
					"subclass "+t.subs[i].Name+" constructor does not declare parameter "+name)
			}
		}
	}
	return t, nil
}

func (op *PullUpConstructorBody) Plan(ctx *Context) (*plan.RewritePlan, error) {
	t, err := op.prepare(ctx)
	if err != nil {
		return nil, err
	}

	p := plan.New(op.Kind())
	p.Description = fmt.Sprintf("pull up %d shared constructor statements into %s", t.shared, t.base.Name)

	firstSrc := ctx.sourceOf(t.inits[0])
	stmts := parser.Statements(bodyOf(t.inits[0].Decl))
	sharedText := regionText(firstSrc, stmts[0], stmts[t.shared-1])
	sharedIndent := firstSrc.Indent(stmts[0])

	baseSrc := ctx.sourceOf(t.base)
	indent := memberIndent(baseSrc, t.base)
	def := indent + defLine("__init__", append([]string{"self"}, t.params...)) + "\n" +
		parser.Reindent(strings.TrimRight(sharedText, "\n"), sharedIndent, indent+"    ") + "\n"
	insertMember(p, baseSrc, t.base, def)

	superCall := "super().__init__(" + strings.Join(t.params, ", ") + ")"
	for _, init := range t.inits {
		src := ctx.sourceOf(init)
		body := parser.Statements(bodyOf(init.Decl))
		first, last := body[0], body[t.shared-1]
		span := parser.Span{
			Start: src.LineStart(first.StartByte()),
			End:   src.LineEnd(last.EndByte() - 1),
		}
		p.Add(src.Path, plan.Edit{
			Span: span,
			Old:  string(src.Content[span.Start:span.End]),
			New:  src.Indent(first) + superCall + "\n",
		})
	}

	if err := p.Normalize(); err != nil {
		return nil, err
	}
	return p, nil
}

// resolveSubclassTargets maps simple subclass names to class bindings
// below the given base.
func resolveSubclassTargets(ctx *Context, kind string, base *symbols.Binding, names []string) ([]*symbols.Binding, error) {
	if len(names) == 0 {
		return nil, errors.New(errors.CodeValidationError, "no target subclasses named")
	}
	subs := ctx.Table().Subclasses(base)
	byName := make(map[string]*symbols.Binding, len(subs))
	for _, sub := range subs {
		byName[sub.Name] = sub
	}
	var out []*symbols.Binding
	for _, name := range names {
		sub := byName[name]
		if sub == nil {
			return nil, errors.Newf(errors.CodeNotFound, "%s is not a subclass of %s", name, base.Name)
		}
		out = append(out, sub)
	}
	return out, nil
}

// requireReceiversWithin checks that every reference to the member
// dispatches through one of the listed subclasses, so removing it from
// the base strands no call site.
func requireReceiversWithin(ctx *Context, kind string, member *symbols.Binding, targets []*symbols.Binding) error {
	allowed := make(map[*symbols.Binding]bool)
	for _, sub := range targets {
		allowed[sub] = true
		for _, deeper := range ctx.Table().Subclasses(sub) {
			allowed[deeper] = true
		}
	}

	refs, findings := ctx.Resolver.Resolve(member)
	if err := requireEnumerable(findings, kind); err != nil {
		return err
	}
	for _, ref := range refs {
		ft := ctx.Table().Files[ref.Path]
		attr := ref.Node.Parent()
		if attr == nil || attr.Kind() != parser.KindAttribute {
			continue
		}
		recv := ctx.Resolver.ReceiverClass(ft, attr.ChildByFieldName("object"))
		if recv == nil || !allowed[recv] {
			derr := &errors.DomainError{
				Code:    errors.CodeUnresolvedReference,
				Message: member.Name + " is still used outside the target subclasses",
			}
			derr.WithContext(errors.CtxOperation, kind)
			derr.WithContext(errors.CtxPath, ref.Path)
			derr.WithContext(errors.CtxLine, ref.Location.Line)
			return derr
		}
	}
	return nil
}

// directSubclasses lists classes naming base directly in their bases.
func directSubclasses(ctx *Context, base *symbols.Binding) []*symbols.Binding {
	var out []*symbols.Binding
	for _, candidate := range ctx.Table().Classes() {
		for _, name := range candidate.Bases {
			if name == base.Name || strings.HasSuffix(name, "."+base.Name) {
				out = append(out, candidate)
				break
			}
		}
	}
	return out
}

// sharedLeadingStatements counts how many leading constructor
// statements are textually identical (modulo indentation) across all
// constructors.
func sharedLeadingStatements(ctx *Context, inits []*symbols.Binding) int {
	shortest := -1
	for _, init := range inits {
		n := len(parser.Statements(bodyOf(init.Decl)))
		if shortest < 0 || n < shortest {
			shortest = n
		}
	}

	shared := 0
	for i := 0; i < shortest; i++ {
		var want string
		same := true
		for j, init := range inits {
			src := ctx.sourceOf(init)
			stmt := parser.Statements(bodyOf(init.Decl))[i]
			text := parser.Reindent(src.Text(stmt), src.Indent(stmt), "")
			if j == 0 {
				want = text
			} else if text != want {
				same = false
				break
			}
		}
		if !same {
			break
		}
		shared++
	}
	return shared
}

// constructorParamsUsed lists the constructor's own parameters read by
// its first n statements, in first-use order.
func constructorParamsUsed(ctx *Context, init *symbols.Binding, n int) []string {
	src := ctx.sourceOf(init)
	stmts := parser.Statements(bodyOf(init.Decl))
	var out []string
	seen := make(map[string]bool)
	for _, stmt := range stmts[:n] {
		parser.Walk(stmt, func(node *sitter.Node) bool {
			if node.Kind() != parser.KindIdentifier {
				return true
			}
			if parser.IsAttributeName(node) || parser.IsKeywordArgumentName(node) {
				return true
			}
			name := src.Text(node)
			if seen[name] {
				return true
			}
			b := init.Body.Binding(name)
			if b != nil && b.Kind == symbols.KindParameter && !b.Receiver {
				seen[name] = true
				out = append(out, name)
			}
			return true
		})
	}
	return out
}

// normalizedDef is a definition's text rebased to zero indentation, for
// structural comparison and re-homing.
func normalizedDef(src *parser.Source, b *symbols.Binding) string {
	decl := declWithDecorators(b.Decl)
	return parser.Reindent(src.Text(decl), src.Indent(decl), "")
}

// insertMember appends rendered member text to a class body. A body
// that is a lone pass statement is replaced instead.
func insertMember(p *plan.RewritePlan, src *parser.Source, class *symbols.Binding, text string) {
	body := bodyOf(class.Decl)
	if body != nil {
		stmts := parser.Statements(body)
		if len(stmts) == 1 && stmts[0].Kind() == parser.KindPassStatement {
			p.ReplaceStatement(src, stmts[0], text)
			return
		}
	}
	p.InsertAt(src, classInsertOffset(src, class), "\n"+text)
}

// appendToConstructor adds one statement line at the end of a
// constructor body.
func appendToConstructor(p *plan.RewritePlan, src *parser.Source, init *symbols.Binding, stmtText string) {
	body := bodyOf(init.Decl)
	stmts := parser.Statements(body)
	if len(stmts) == 1 && stmts[0].Kind() == parser.KindPassStatement {
		p.ReplaceStatement(src, stmts[0], src.Indent(stmts[0])+stmtText+"\n")
		return
	}
	last := stmts[len(stmts)-1]
	p.InsertAt(src, src.StatementSpan(last).End, src.Indent(last)+stmtText+"\n")
}

// regionText is the raw text of the full lines from first through last.
func regionText(src *parser.Source, first, last *sitter.Node) string {
	span := parser.Span{
		Start: src.LineStart(first.StartByte()),
		End:   src.LineEnd(last.EndByte() - 1),
	}
	return string(src.Content[span.Start:span.End])
}
