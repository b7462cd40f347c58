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

// ReplaceParameterWithMethodCall removes a parameter the method can
// derive itself: body reads of the parameter become the replacement
// expression and every call site drops the corresponding argument.
type ReplaceParameterWithMethodCall struct {
	Target      string // method or function
	Parameter   string
	Replacement string // e.g. "self.get_discount()"
}

func (op *ReplaceParameterWithMethodCall) Kind() string {
	return "replace-parameter-with-method-call"
}

type paramRemoval struct {
	fn    *symbols.Binding
	param *symbols.Binding
	index int // position among non-receiver parameters
	refs  []resolver.Reference
}

func (op *ReplaceParameterWithMethodCall) Validate(ctx *Context) error {
	_, err := op.prepare(ctx)
	return err
}

func (op *ReplaceParameterWithMethodCall) prepare(ctx *Context) (*paramRemoval, error) {
	if strings.TrimSpace(op.Replacement) == "" {
		return nil, errors.New(errors.CodeValidationError, "no replacement expression given")
	}
	fn, err := ctx.findBinding(op.Target)
	if err != nil {
		return nil, err
	}
	if fn.Kind != symbols.KindMethod && fn.Kind != symbols.KindFunction {
		return nil, unsupported(op.Kind(), fn.Kind.String()+" binding")
	}

	names := parameterNames(fn)
	index := -1
	for i, name := range names {
		if name == op.Parameter {
			index = i
			break
		}
	}
	if index < 0 {
		return nil, errors.Newf(errors.CodeNotFound,
			"%s declares no parameter %q", op.Target, op.Parameter)
	}
	param := fn.Body.Binding(op.Parameter)

	// The parameter must be read-only inside the body; a reassignment
	// would change meaning under substitution.
	paramRefs, _ := ctx.Resolver.Resolve(param)
	for _, ref := range paramRefs {
		if ref.Kind == resolver.RefWrite {
			return nil, unsupported(op.Kind(), "parameter is reassigned inside the body")
		}
	}

	refs, findings := ctx.Resolver.Resolve(fn)
	if err := requireEnumerable(findings, op.Kind()); err != nil {
		return nil, err
	}
	for _, ref := range refs {
		if enclosingCall(ref.Node) == nil {
			return nil, unsupported(op.Kind(), "reference is not a direct call")
		}
	}
	return &paramRemoval{fn: fn, param: param, index: index, refs: refs}, nil
}

func (op *ReplaceParameterWithMethodCall) Plan(ctx *Context) (*plan.RewritePlan, error) {
	t, err := op.prepare(ctx)
	if err != nil {
		return nil, err
	}
	src := ctx.sourceOf(t.fn)

	p := plan.New(op.Kind())
	p.Description = fmt.Sprintf("replace parameter %s of %s with %s", op.Parameter, op.Target, op.Replacement)

	// Body reads become the replacement expression.
	paramRefs, _ := ctx.Resolver.Resolve(t.param)
	for _, ref := range paramRefs {
		p.ReplaceNode(src, ref.Node, maybeParen(op.Replacement))
	}

	// The declaration loses the parameter.
	if err := removeDeclaredParameter(p, src, t.fn, op.Parameter); err != nil {
		return nil, err
	}

	// Call sites lose the argument.
	for _, ref := range t.refs {
		ft := ctx.Table().Files[ref.Path]
		call := enclosingCall(ref.Node)
		if err := removeCallArgument(p, ft.Source, call, t.index, op.Parameter, op.Kind()); err != nil {
			return nil, err
		}
	}

	if err := p.Normalize(); err != nil {
		return nil, err
	}
	return p, nil
}

// removeDeclaredParameter rewrites the def's parameter list without the
// named parameter.
func removeDeclaredParameter(p *plan.RewritePlan, src *parser.Source, fn *symbols.Binding, name string) error {
	params := fn.Decl.ChildByFieldName("parameters")
	if params == nil {
		return errors.Newf(errors.CodeInternal, "definition of %s has no parameter list", fn.Name)
	}
	var kept []string
	for i := uint(0); i < params.NamedChildCount(); i++ {
		param := params.NamedChild(i)
		if declaredParameterName(src, param) == name {
			continue
		}
		kept = append(kept, src.Text(param))
	}
	p.Add(src.Path, plan.Edit{
		Span: src.NodeSpan(params),
		Old:  src.Text(params),
		New:  "(" + strings.Join(kept, ", ") + ")",
	})
	return nil
}

// declaredParameterName extracts the name of one parameter node.
func declaredParameterName(src *parser.Source, param *sitter.Node) string {
	switch param.Kind() {
	case parser.KindIdentifier:
		return src.Text(param)
	case parser.KindTypedParameter:
		if param.NamedChildCount() > 0 {
			return src.Text(param.NamedChild(0))
		}
	case parser.KindDefaultParameter, parser.KindTypedDefaultParam:
		if n := param.ChildByFieldName("name"); n != nil {
			return src.Text(n)
		}
	case "list_splat_pattern", "dictionary_splat_pattern":
		if param.NamedChildCount() > 0 {
			return src.Text(param.NamedChild(0))
		}
	}
	return ""
}

// removeCallArgument rewrites a call's argument list without the
// argument feeding the removed parameter, whether passed positionally
// or by keyword.
func removeCallArgument(p *plan.RewritePlan, src *parser.Source, call *sitter.Node, index int, name, kind string) error {
	args := call.ChildByFieldName("arguments")
	if args == nil {
		return unsupported(kind, "call without an argument list")
	}

	var kept []string
	positional := 0
	removed := false
	for i := uint(0); i < args.NamedChildCount(); i++ {
		arg := args.NamedChild(i)
		if arg.Kind() == parser.KindComment {
			continue
		}
		if arg.Kind() == parser.KindKeywordArgument {
			argName := arg.ChildByFieldName("name")
			if argName != nil && src.Text(argName) == name {
				removed = true
				continue
			}
			kept = append(kept, src.Text(arg))
			continue
		}
		if positional == index {
			positional++
			removed = true
			continue
		}
		positional++
		kept = append(kept, src.Text(arg))
	}
	if !removed {
		// The call relied on the parameter's default; nothing to drop.
		return nil
	}

	p.Add(src.Path, plan.Edit{
		Span: src.NodeSpan(args),
		Old:  src.Text(args),
		New:  "(" + strings.Join(kept, ", ") + ")",
	})
	return nil
}
