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

// ExtractFunction lifts a contiguous statement range out of its block
// into a new module-level function, replacing the range with a call.
// Free variables of the selection become parameters; names the
// remaining code still reads become return values.
type ExtractFunction struct {
	Path      string
	StartLine int
	EndLine   int
	Name      string
}

func (op *ExtractFunction) Kind() string { return "extract-function" }

func (op *ExtractFunction) Validate(ctx *Context) error {
	_, _, err := op.prepare(ctx)
	return err
}

func (op *ExtractFunction) prepare(ctx *Context) (*selection, *dataFlow, error) {
	if !isIdentifier(op.Name) {
		return nil, nil, errors.Newf(errors.CodeValidationError, "%q is not a valid identifier", op.Name)
	}
	ft := ctx.Table().Files[op.Path]
	if ft == nil {
		return nil, nil, errors.Newf(errors.CodeNotFound, "file %s is not part of the project", op.Path)
	}
	sel, err := selectStatements(ft, op.StartLine, op.EndLine)
	if err != nil {
		return nil, nil, err
	}
	flow := analyzeFlow(sel)
	if flow.UsesSelf {
		return nil, nil, unsupported(op.Kind(), "selection reads the receiver; extract a method instead")
	}
	if flow.HasReturn {
		return nil, nil, unsupported(op.Kind(), "return statement inside selection")
	}
	if conflict := symbols.Check(op.Name, ft.Root); conflict != nil {
		return nil, nil, conflict.Error()
	}
	return sel, flow, nil
}

func (op *ExtractFunction) Plan(ctx *Context) (*plan.RewritePlan, error) {
	sel, flow, err := op.prepare(ctx)
	if err != nil {
		return nil, err
	}
	src := sel.File.Source

	p := plan.New(op.Kind())
	p.Description = fmt.Sprintf("extract lines %d-%d of %s into function %s", op.StartLine, op.EndLine, op.Path, op.Name)

	indent := src.Indent(sel.Statements[0])
	body := parser.Reindent(sel.text(), indent, "    ")
	def := defLine(op.Name, flow.Inputs) + "\n" + body + "\n"
	if len(flow.Outputs) > 0 {
		def += "    return " + strings.Join(flow.Outputs, ", ") + "\n"
	}

	call := op.Name + "(" + strings.Join(flow.Inputs, ", ") + ")"
	if len(flow.Outputs) > 0 {
		call = strings.Join(flow.Outputs, ", ") + " = " + call
	}
	replaceStatements(p, src, sel, indent+call+"\n")

	after := topLevelStatement(sel.Statements[0])
	p.InsertAt(src, src.StatementSpan(after).End, "\n\n"+def)

	if err := p.Normalize(); err != nil {
		return nil, err
	}
	return p, nil
}

// ExtractMethod lifts a statement range out of a method body into a new
// method on the same class, called through the receiver.
type ExtractMethod struct {
	Path      string
	StartLine int
	EndLine   int
	Name      string
}

func (op *ExtractMethod) Kind() string { return "extract-method" }

func (op *ExtractMethod) Validate(ctx *Context) error {
	_, _, _, err := op.prepare(ctx)
	return err
}

func (op *ExtractMethod) prepare(ctx *Context) (*selection, *dataFlow, *symbols.Binding, error) {
	if !isIdentifier(op.Name) {
		return nil, nil, nil, errors.Newf(errors.CodeValidationError, "%q is not a valid identifier", op.Name)
	}
	ft := ctx.Table().Files[op.Path]
	if ft == nil {
		return nil, nil, nil, errors.Newf(errors.CodeNotFound, "file %s is not part of the project", op.Path)
	}
	sel, err := selectStatements(ft, op.StartLine, op.EndLine)
	if err != nil {
		return nil, nil, nil, err
	}

	fn := sel.Scope.EnclosingFunction()
	if fn == nil || fn.Parent == nil || fn.Parent.Kind != symbols.ScopeClass {
		return nil, nil, nil, unsupported(op.Kind(), "selection is not inside a method body")
	}
	classScope := fn.Parent
	class := classScope.Parent.Binding(classScope.Name)
	if class == nil {
		return nil, nil, nil, errors.Newf(errors.CodeInternal, "owning class %s not found", classScope.Name)
	}

	flow := analyzeFlow(sel)
	if flow.HasReturn {
		return nil, nil, nil, unsupported(op.Kind(), "return statement inside selection")
	}
	if conflict := symbols.Check(op.Name, classScope); conflict != nil {
		return nil, nil, nil, conflict.Error()
	}
	for _, sub := range ctx.Table().Subclasses(class) {
		if sub.Body != nil && sub.Body.Binding(op.Name) != nil {
			return nil, nil, nil, errors.Newf(errors.CodeNameConflict,
				"%q already declared in subclass %s", op.Name, sub.Name)
		}
	}
	return sel, flow, class, nil
}

func (op *ExtractMethod) Plan(ctx *Context) (*plan.RewritePlan, error) {
	sel, flow, class, err := op.prepare(ctx)
	if err != nil {
		return nil, err
	}
	src := sel.File.Source

	p := plan.New(op.Kind())
	p.Description = fmt.Sprintf("extract lines %d-%d into method %s.%s", op.StartLine, op.EndLine, class.Name, op.Name)

	indent := src.Indent(sel.Statements[0])
	mIndent := memberIndent(src, class)

	body := parser.Reindent(sel.text(), indent, mIndent+"    ")
	def := mIndent + defLine(op.Name, append([]string{"self"}, flow.Inputs...)) + "\n" + body + "\n"
	if len(flow.Outputs) > 0 {
		def += mIndent + "    return " + strings.Join(flow.Outputs, ", ") + "\n"
	}

	call := "self." + op.Name + "(" + strings.Join(flow.Inputs, ", ") + ")"
	if len(flow.Outputs) > 0 {
		call = strings.Join(flow.Outputs, ", ") + " = " + call
	}
	replaceStatements(p, src, sel, indent+call+"\n")

	p.InsertAt(src, classInsertOffset(src, class), "\n"+def)

	if err := p.Normalize(); err != nil {
		return nil, err
	}
	return p, nil
}

// ExtractVariable names an expression: a binding assignment is inserted
// before the statement and occurrences of the expression within that
// statement are replaced by the name.
type ExtractVariable struct {
	Path       string
	Line       int
	Expression string
	Name       string
}

func (op *ExtractVariable) Kind() string { return "extract-variable" }

func (op *ExtractVariable) Validate(ctx *Context) error {
	_, _, err := op.prepare(ctx)
	return err
}

func (op *ExtractVariable) prepare(ctx *Context) (*symbols.FileTable, []*sitter.Node, error) {
	if !isIdentifier(op.Name) {
		return nil, nil, errors.Newf(errors.CodeValidationError, "%q is not a valid identifier", op.Name)
	}
	ft := ctx.Table().Files[op.Path]
	if ft == nil {
		return nil, nil, errors.Newf(errors.CodeNotFound, "file %s is not part of the project", op.Path)
	}
	sel, err := selectStatements(ft, op.Line, op.Line)
	if err != nil {
		return nil, nil, err
	}
	stmt := sel.Statements[0]

	src := ft.Source
	var matches []*sitter.Node
	parser.Walk(stmt, func(n *sitter.Node) bool {
		if src.Text(n) == op.Expression && n.Kind() != parser.KindIdentifier {
			matches = append(matches, n)
			return false
		}
		return true
	})
	if len(matches) == 0 {
		return nil, nil, errors.Newf(errors.CodeNotFound,
			"expression %q not found at %s:%d", op.Expression, op.Path, op.Line)
	}
	if len(matches) > 1 && !isPureExpression(src, matches[0]) {
		return nil, nil, unsupported(op.Kind(), "repeated expression with possible side effects")
	}
	if conflict := symbols.Check(op.Name, sel.Scope); conflict != nil {
		return nil, nil, conflict.Error()
	}
	return ft, matches, nil
}

func (op *ExtractVariable) Plan(ctx *Context) (*plan.RewritePlan, error) {
	ft, matches, err := op.prepare(ctx)
	if err != nil {
		return nil, err
	}
	src := ft.Source

	p := plan.New(op.Kind())
	p.Description = fmt.Sprintf("extract %q into variable %s at %s:%d", op.Expression, op.Name, op.Path, op.Line)

	stmt := statementOf(matches[0])
	indent := src.Indent(stmt)
	p.InsertAt(src, src.StatementSpan(stmt).Start, indent+op.Name+" = "+op.Expression+"\n")
	for _, m := range matches {
		p.ReplaceNode(src, m, op.Name)
	}

	if err := p.Normalize(); err != nil {
		return nil, err
	}
	return p, nil
}

// replaceStatements swaps the selection's full lines for new text.
func replaceStatements(p *plan.RewritePlan, src *parser.Source, sel *selection, text string) {
	first := sel.Statements[0]
	last := sel.Statements[len(sel.Statements)-1]
	span := parser.Span{
		Start: src.LineStart(first.StartByte()),
		End:   src.LineEnd(last.EndByte() - 1),
	}
	p.Add(src.Path, plan.Edit{Span: span, Old: string(src.Content[span.Start:span.End]), New: text})
}

// topLevelStatement climbs to the statement directly under the module.
func topLevelStatement(node *sitter.Node) *sitter.Node {
	current := node
	for p := current.Parent(); p != nil; p = p.Parent() {
		if p.Kind() == parser.KindModule {
			return current
		}
		current = p
	}
	return current
}

// statementOf climbs to the nearest enclosing simple statement line.
func statementOf(node *sitter.Node) *sitter.Node {
	current := node
	for p := current.Parent(); p != nil; p = p.Parent() {
		if p.Kind() == parser.KindBlock || p.Kind() == parser.KindModule {
			return current
		}
		current = p
	}
	return current
}
