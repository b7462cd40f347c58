package transform

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"

	"reshape/internal/core/errors"
	"reshape/internal/parser"
	"reshape/internal/plan"
	"reshape/internal/resolver"
	"reshape/internal/symbols"
)

// conditionalCase is one branch of a discriminated conditional: the
// literal the discriminant is compared against and the branch body.
type conditionalCase struct {
	Value string
	Body  *sitter.Node
}

// ReplaceConditionalWithPolymorphism dissolves a method whose body
// switches on a type discriminant: each case becomes an override on a
// new subclass and the conditional disappears from the base.
type ReplaceConditionalWithPolymorphism struct {
	Target   string
	Variants map[string]string // case literal -> subclass name
}

func (op *ReplaceConditionalWithPolymorphism) Kind() string {
	return "replace-conditional-with-polymorphism"
}

type polymorphismTarget struct {
	method   *symbols.Binding
	owner    *symbols.Binding
	cases    []conditionalCase
	cond     *sitter.Node // the if statement
	elseBody *sitter.Node
}

func (op *ReplaceConditionalWithPolymorphism) Validate(ctx *Context) error {
	_, err := op.prepare(ctx)
	return err
}

func (op *ReplaceConditionalWithPolymorphism) prepare(ctx *Context) (*polymorphismTarget, error) {
	method, err := ctx.findBinding(op.Target)
	if err != nil {
		return nil, err
	}
	if method.Kind != symbols.KindMethod {
		return nil, unsupported(op.Kind(), method.Kind.String()+" binding")
	}
	owner := method.Class
	src := ctx.sourceOf(method)

	body := bodyOf(method.Decl)
	stmts := parser.Statements(body)
	if len(stmts) != 1 || stmts[0].Kind() != parser.KindIfStatement {
		return nil, unsupported(op.Kind(), "method body is not a single conditional")
	}
	ifStmt := stmts[0]

	cases, elseBody, err := discriminatedCases(src, ifStmt, op.Kind())
	if err != nil {
		return nil, err
	}

	for _, c := range cases {
		name, ok := op.Variants[c.Value]
		if !ok {
			return nil, errors.Newf(errors.CodeValidationError,
				"no subclass name given for case %q", c.Value)
		}
		if !isIdentifier(name) {
			return nil, errors.Newf(errors.CodeValidationError, "%q is not a valid identifier", name)
		}
		ownerFile := ctx.fileOf(owner)
		if conflict := symbols.Check(name, ownerFile.Root); conflict != nil {
			return nil, conflict.Error()
		}
	}

	return &polymorphismTarget{
		method:   method,
		owner:    owner,
		cases:    cases,
		cond:     ifStmt,
		elseBody: elseBody,
	}, nil
}

func (op *ReplaceConditionalWithPolymorphism) Plan(ctx *Context) (*plan.RewritePlan, error) {
	t, err := op.prepare(ctx)
	if err != nil {
		return nil, err
	}
	src := ctx.sourceOf(t.method)

	p := plan.New(op.Kind())
	p.Description = fmt.Sprintf("replace conditional in %s with %d subclasses", op.Target, len(t.cases))

	params := append([]string{"self"}, parameterNames(t.method)...)
	var subclasses strings.Builder
	for _, c := range t.cases {
		name := op.Variants[c.Value]
		branchIndent := src.Indent(parser.Statements(c.Body)[0])
		bodyText := parser.Reindent(strings.TrimRight(blockText(src, c.Body), "\n"), branchIndent, "        ")

		subclasses.WriteString("\n\nclass " + name + "(" + t.owner.Name + "):\n")
		subclasses.WriteString("    " + defLine(t.method.Name, params) + "\n")
		subclasses.WriteString(bodyText + "\n")
	}
	after := topLevelStatement(t.owner.Decl)
	p.InsertAt(src, src.StatementSpan(after).End, subclasses.String())

	indent := src.Indent(t.cond)
	if t.elseBody != nil {
		branchIndent := src.Indent(parser.Statements(t.elseBody)[0])
		text := parser.Reindent(strings.TrimRight(blockText(src, t.elseBody), "\n"), branchIndent, indent)
		p.ReplaceStatement(src, t.cond, text+"\n")
	} else {
		p.ReplaceStatement(src, t.cond,
			indent+"raise NotImplementedError(\""+t.method.Name+"\")\n")
	}

	if err := p.Normalize(); err != nil {
		return nil, err
	}
	return p, nil
}

// ReplaceTypeCodeWithSubclasses turns a literal type-code field into a
// class hierarchy: each code value gets a subclass whose accessor
// returns the value, the base accessor becomes abstract, and reads of
// the field go through the accessor.
type ReplaceTypeCodeWithSubclasses struct {
	Target   string
	Accessor string
	Variants map[string]string // code value -> subclass name
}

func (op *ReplaceTypeCodeWithSubclasses) Kind() string {
	return "replace-type-code-with-subclasses"
}

type typeCodeTarget struct {
	field *symbols.Binding
	owner *symbols.Binding
	refs  []resolver.Reference
}

func (op *ReplaceTypeCodeWithSubclasses) Validate(ctx *Context) error {
	_, err := op.prepare(ctx)
	return err
}

func (op *ReplaceTypeCodeWithSubclasses) prepare(ctx *Context) (*typeCodeTarget, error) {
	if !isIdentifier(op.Accessor) {
		return nil, errors.Newf(errors.CodeValidationError, "%q is not a valid identifier", op.Accessor)
	}
	if len(op.Variants) == 0 {
		return nil, errors.New(errors.CodeValidationError, "no code values given")
	}

	field, err := ctx.findBinding(op.Target)
	if err != nil {
		return nil, err
	}
	if field.Kind != symbols.KindField {
		return nil, unsupported(op.Kind(), field.Kind.String()+" binding")
	}
	owner := field.Class

	if existing := owner.Body.Binding(op.Accessor); existing != nil {
		return nil, (&symbols.Conflict{Proposed: op.Accessor, Existing: existing}).Error()
	}
	ownerFile := ctx.fileOf(owner)
	for _, name := range op.Variants {
		if !isIdentifier(name) {
			return nil, errors.Newf(errors.CodeValidationError, "%q is not a valid identifier", name)
		}
		if conflict := symbols.Check(name, ownerFile.Root); conflict != nil {
			return nil, conflict.Error()
		}
	}

	refs, findings := ctx.Resolver.Resolve(field)
	if err := requireEnumerable(findings, op.Kind()); err != nil {
		return nil, err
	}
	for _, ref := range refs {
		if ref.Kind == resolver.RefWrite {
			return nil, unsupported(op.Kind(), "type code field is reassigned after construction")
		}
	}
	return &typeCodeTarget{field: field, owner: owner, refs: refs}, nil
}

func (op *ReplaceTypeCodeWithSubclasses) Plan(ctx *Context) (*plan.RewritePlan, error) {
	t, err := op.prepare(ctx)
	if err != nil {
		return nil, err
	}
	src := ctx.sourceOf(t.field)
	ownerSrc := ctx.sourceOf(t.owner)

	p := plan.New(op.Kind())
	p.Description = fmt.Sprintf("replace type code %s with %d subclasses", op.Target, len(op.Variants))

	// The declaring assignment disappears; the state it carried now
	// lives in the subclass identity.
	declStmt := statementOf(t.field.Ident)
	initBody := bodyOf(enclosingFunctionDef(t.field.Ident))
	if initBody != nil && len(parser.Statements(initBody)) == 1 {
		p.ReplaceStatement(src, declStmt, src.Indent(declStmt)+"pass\n")
	} else {
		p.DeleteStatement(src, declStmt)
	}

	indent := memberIndent(ownerSrc, t.owner)
	abstract := indent + defLine(op.Accessor, []string{"self"}) + "\n" +
		indent + "    raise NotImplementedError(\"" + op.Accessor + "\")\n"
	insertMember(p, ownerSrc, t.owner, abstract)

	var subclasses strings.Builder
	for _, value := range sortedKeys(op.Variants) {
		name := op.Variants[value]
		subclasses.WriteString("\n\nclass " + name + "(" + t.owner.Name + "):\n")
		subclasses.WriteString("    " + defLine(op.Accessor, []string{"self"}) + "\n")
		subclasses.WriteString("        return " + pyLiteral(value) + "\n")
	}
	after := topLevelStatement(t.owner.Decl)
	p.InsertAt(ownerSrc, ownerSrc.StatementSpan(after).End, subclasses.String())

	for _, ref := range t.refs {
		ft := ctx.Table().Files[ref.Path]
		p.ReplaceNode(ft.Source, ref.Node, op.Accessor+"()")
	}

	if err := p.Normalize(); err != nil {
		return nil, err
	}
	return p, nil
}

// discriminatedCases decomposes an if/elif chain where every condition
// compares one discriminant expression against a literal.
func discriminatedCases(src *parser.Source, ifStmt *sitter.Node, kind string) ([]conditionalCase, *sitter.Node, error) {
	var cases []conditionalCase
	var elseBody *sitter.Node
	discriminant := ""

	addCase := func(cond, body *sitter.Node) error {
		expr, literal, ok := equalityWithLiteral(src, cond)
		if !ok {
			return unsupported(kind, "branch condition is not an equality against a literal")
		}
		if discriminant == "" {
			discriminant = expr
		} else if expr != discriminant {
			return unsupported(kind, "branches test different discriminants")
		}
		cases = append(cases, conditionalCase{Value: literal, Body: body})
		return nil
	}

	cond := ifStmt.ChildByFieldName("condition")
	consequence := ifStmt.ChildByFieldName("consequence")
	if cond == nil || consequence == nil {
		return nil, nil, unsupported(kind, "malformed conditional")
	}
	if err := addCase(cond, consequence); err != nil {
		return nil, nil, err
	}

	for _, clause := range parser.Children(ifStmt) {
		switch clause.Kind() {
		case parser.KindElifClause:
			c := clause.ChildByFieldName("condition")
			b := clause.ChildByFieldName("consequence")
			if c == nil || b == nil {
				return nil, nil, unsupported(kind, "malformed elif clause")
			}
			if err := addCase(c, b); err != nil {
				return nil, nil, err
			}
		case parser.KindElseClause:
			elseBody = clause.ChildByFieldName("body")
		}
	}
	return cases, elseBody, nil
}

// equalityWithLiteral matches `expr == literal`, returning the
// discriminant text and the literal's unquoted value.
func equalityWithLiteral(src *parser.Source, cond *sitter.Node) (string, string, bool) {
	if cond.Kind() != parser.KindComparisonOperator || cond.NamedChildCount() != 2 {
		return "", "", false
	}
	if !strings.Contains(src.Text(cond), "==") {
		return "", "", false
	}
	left := cond.NamedChild(0)
	right := cond.NamedChild(1)

	literal, ok := literalValue(src, right)
	if !ok {
		return "", "", false
	}
	return src.Text(left), literal, true
}

func literalValue(src *parser.Source, n *sitter.Node) (string, bool) {
	switch n.Kind() {
	case parser.KindString:
		text := src.Text(n)
		if len(text) >= 2 {
			return text[1 : len(text)-1], true
		}
		return "", false
	case "integer", "float":
		return src.Text(n), true
	default:
		return "", false
	}
}

// pyLiteral renders a case value back into source form.
func pyLiteral(value string) string {
	if _, err := strconv.ParseFloat(value, 64); err == nil {
		return value
	}
	return "\"" + value + "\""
}

// blockText is the full-line text of a block node.
func blockText(src *parser.Source, block *sitter.Node) string {
	stmts := parser.Statements(block)
	return regionText(src, stmts[0], stmts[len(stmts)-1])
}

// enclosingFunctionDef climbs to the function definition containing a node.
func enclosingFunctionDef(node *sitter.Node) *sitter.Node {
	return parser.EnclosingOfKind(node, parser.KindFunctionDef)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
