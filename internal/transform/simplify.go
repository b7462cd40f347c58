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

// IntroduceGuardClauses flattens a function whose body is one
// if/else where a branch is a lone return: the simple branch becomes an
// early guard and the main branch loses a level of nesting. Purely
// structural; the symbol table is read only to locate the target.
type IntroduceGuardClauses struct {
	Target string
}

func (op *IntroduceGuardClauses) Kind() string { return "introduce-guard-clauses" }

type guardRewrite struct {
	fn        *symbols.Binding
	ifStmt    *sitter.Node
	condition *sitter.Node
	guardBody *sitter.Node // branch reduced to the guard's return
	mainBody  *sitter.Node // branch that loses its nesting
	negate    bool         // guard fires when the condition is false
}

func (op *IntroduceGuardClauses) Validate(ctx *Context) error {
	_, err := op.prepare(ctx)
	return err
}

func (op *IntroduceGuardClauses) prepare(ctx *Context) (*guardRewrite, error) {
	fn, err := ctx.findBinding(op.Target)
	if err != nil {
		return nil, err
	}
	if fn.Kind != symbols.KindFunction && fn.Kind != symbols.KindMethod {
		return nil, unsupported(op.Kind(), fn.Kind.String()+" binding")
	}

	stmts := parser.Statements(bodyOf(fn.Decl))
	if len(stmts) == 0 || stmts[len(stmts)-1].Kind() != parser.KindIfStatement {
		return nil, unsupported(op.Kind(), "body does not end in a conditional")
	}
	ifStmt := stmts[len(stmts)-1]

	cond := ifStmt.ChildByFieldName("condition")
	consequence := ifStmt.ChildByFieldName("consequence")
	elseClause := parser.ChildOfKind(ifStmt, parser.KindElseClause)
	if cond == nil || consequence == nil || elseClause == nil {
		return nil, unsupported(op.Kind(), "conditional has no else branch")
	}
	if parser.ChildOfKind(ifStmt, parser.KindElifClause) != nil {
		return nil, unsupported(op.Kind(), "conditional has elif branches")
	}
	elseBody := elseClause.ChildByFieldName("body")

	t := &guardRewrite{fn: fn, ifStmt: ifStmt, condition: cond}
	switch {
	case isLoneReturn(consequence):
		t.guardBody, t.mainBody, t.negate = consequence, elseBody, false
	case isLoneReturn(elseBody):
		t.guardBody, t.mainBody, t.negate = elseBody, consequence, true
	default:
		return nil, unsupported(op.Kind(), "neither branch is a single return statement")
	}
	return t, nil
}

func (op *IntroduceGuardClauses) Plan(ctx *Context) (*plan.RewritePlan, error) {
	t, err := op.prepare(ctx)
	if err != nil {
		return nil, err
	}
	src := ctx.sourceOf(t.fn)

	p := plan.New(op.Kind())
	p.Description = fmt.Sprintf("introduce guard clause in %s", op.Target)

	indent := src.Indent(t.ifStmt)
	condText := src.Text(t.condition)
	if t.negate {
		condText = "not " + maybeParen(condText)
	}

	guardStmt := parser.Statements(t.guardBody)[0]
	mainStmts := parser.Statements(t.mainBody)
	mainIndent := src.Indent(mainStmts[0])
	mainText := parser.Reindent(
		strings.TrimRight(blockText(src, t.mainBody), "\n"), mainIndent, indent)

	text := indent + "if " + condText + ":\n" +
		indent + "    " + strings.TrimSpace(src.Text(guardStmt)) + "\n" +
		mainText + "\n"
	p.ReplaceStatement(src, t.ifStmt, text)

	if err := p.Normalize(); err != nil {
		return nil, err
	}
	return p, nil
}

func isLoneReturn(body *sitter.Node) bool {
	stmts := parser.Statements(body)
	return len(stmts) == 1 && (stmts[0].Kind() == parser.KindReturnStatement ||
		stmts[0].Kind() == parser.KindRaiseStatement)
}

// ConsolidateConditional merges a run of single-return conditionals
// with identical results into one condition joined with or. Purely
// structural as well.
type ConsolidateConditional struct {
	Path      string
	StartLine int
	EndLine   int
}

func (op *ConsolidateConditional) Kind() string { return "consolidate-conditional" }

func (op *ConsolidateConditional) Validate(ctx *Context) error {
	_, _, err := op.prepare(ctx)
	return err
}

func (op *ConsolidateConditional) prepare(ctx *Context) (*selection, []string, error) {
	ft := ctx.Table().Files[op.Path]
	if ft == nil {
		return nil, nil, errors.Newf(errors.CodeNotFound, "file %s is not part of the project", op.Path)
	}
	sel, err := selectStatements(ft, op.StartLine, op.EndLine)
	if err != nil {
		return nil, nil, err
	}
	if len(sel.Statements) < 2 {
		return nil, nil, errors.Newf(errors.CodeAmbiguousSelection,
			"selection holds %d conditional(s), need at least two", len(sel.Statements))
	}

	src := ft.Source
	var conditions []string
	result := ""
	for _, stmt := range sel.Statements {
		if stmt.Kind() != parser.KindIfStatement {
			return nil, nil, unsupported(op.Kind(), "selection contains a non-conditional statement")
		}
		if parser.ChildOfKind(stmt, parser.KindElseClause) != nil ||
			parser.ChildOfKind(stmt, parser.KindElifClause) != nil {
			return nil, nil, unsupported(op.Kind(), "conditional with else or elif branches")
		}
		cond := stmt.ChildByFieldName("condition")
		body := stmt.ChildByFieldName("consequence")
		if cond == nil || body == nil || !isLoneReturn(body) {
			return nil, nil, unsupported(op.Kind(), "conditional body is not a single return")
		}
		text := strings.TrimSpace(src.Text(parser.Statements(body)[0]))
		if result == "" {
			result = text
		} else if text != result {
			return nil, nil, unsupported(op.Kind(), "conditionals return different results")
		}
		conditions = append(conditions, maybeParen(src.Text(cond)))
	}
	return sel, append(conditions, result), nil
}

func (op *ConsolidateConditional) Plan(ctx *Context) (*plan.RewritePlan, error) {
	sel, parts, err := op.prepare(ctx)
	if err != nil {
		return nil, err
	}
	src := sel.File.Source
	conditions, result := parts[:len(parts)-1], parts[len(parts)-1]

	p := plan.New(op.Kind())
	p.Description = fmt.Sprintf("consolidate %d conditionals at %s:%d-%d",
		len(conditions), op.Path, op.StartLine, op.EndLine)

	indent := src.Indent(sel.Statements[0])
	text := indent + "if " + strings.Join(conditions, " or ") + ":\n" +
		indent + "    " + result + "\n"
	replaceStatements(p, src, sel, text)

	if err := p.Normalize(); err != nil {
		return nil, err
	}
	return p, nil
}
