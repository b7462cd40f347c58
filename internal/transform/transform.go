package transform

import (
	"unicode"

	sitter "github.com/tree-sitter/go-tree-sitter"

	"reshape/internal/core/errors"
	"reshape/internal/parser"
	"reshape/internal/plan"
	"reshape/internal/project"
	"reshape/internal/resolver"
	"reshape/internal/symbols"
)

// Operation is one refactoring: validated against the analysis, then
// planned. Both steps are pure over the immutable project snapshot; a
// failed precondition returns a typed error and no edits.
type Operation interface {
	Kind() string
	Validate(ctx *Context) error
	Plan(ctx *Context) (*plan.RewritePlan, error)
}

// Context carries the analysis products every operation consumes.
type Context struct {
	Project  *project.Project
	Resolver *resolver.Resolver
}

func NewContext(p *project.Project) *Context {
	return &Context{
		Project:  p,
		Resolver: resolver.New(p),
	}
}

func (c *Context) Table() *symbols.Table {
	return c.Project.Table
}

// findBinding resolves a dotted target like "mod.Class.method".
func (c *Context) findBinding(target string) (*symbols.Binding, error) {
	b := c.Table().FindBinding(target)
	if b == nil {
		return nil, errors.Newf(errors.CodeNotFound, "no binding for target %q", target)
	}
	return b, nil
}

func (c *Context) sourceOf(b *symbols.Binding) *parser.Source {
	ft := c.Table().Files[b.Location.Path]
	if ft == nil {
		return nil
	}
	return ft.Source
}

func (c *Context) fileOf(b *symbols.Binding) *symbols.FileTable {
	return c.Table().Files[b.Location.Path]
}

// requireEnumerable refuses to proceed when the resolver reported
// findings for the target: transforms that rewrite every reference
// cannot tolerate references they cannot see.
func requireEnumerable(findings []resolver.Finding, op string) error {
	if len(findings) == 0 {
		return nil
	}
	f := findings[0]
	derr := &errors.DomainError{
		Code:    errors.CodeUnresolvedReference,
		Message: "cannot enumerate all references: " + f.Reason,
	}
	derr.WithContext(errors.CtxOperation, op)
	derr.WithContext(errors.CtxPath, f.Location.Path)
	derr.WithContext(errors.CtxLine, f.Location.Line)
	return derr
}

// isIdentifier validates a Python identifier.
func isIdentifier(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		if r == '_' || unicode.IsLetter(r) {
			continue
		}
		if i > 0 && unicode.IsDigit(r) {
			continue
		}
		return false
	}
	return !pythonKeywords[name]
}

var pythonKeywords = map[string]bool{
	"False": true, "None": true, "True": true, "and": true, "as": true,
	"assert": true, "async": true, "await": true, "break": true,
	"class": true, "continue": true, "def": true, "del": true,
	"elif": true, "else": true, "except": true, "finally": true,
	"for": true, "from": true, "global": true, "if": true, "import": true,
	"in": true, "is": true, "lambda": true, "nonlocal": true, "not": true,
	"or": true, "pass": true, "raise": true, "return": true, "try": true,
	"while": true, "with": true, "yield": true,
}

func unsupported(op, construct string) error {
	derr := &errors.DomainError{
		Code:    errors.CodeUnsupportedConstruct,
		Message: "construct not modeled by " + op,
	}
	derr.WithContext(errors.CtxOperation, op)
	derr.WithContext(errors.CtxConstruct, construct)
	return derr
}

// bodyOf returns the block node of a def or class declaration.
func bodyOf(decl *sitter.Node) *sitter.Node {
	if decl == nil {
		return nil
	}
	return decl.ChildByFieldName("body")
}

// declWithDecorators widens a definition node to include its decorator
// wrapper, so deleting or moving takes the decorators along.
func declWithDecorators(decl *sitter.Node) *sitter.Node {
	if p := decl.Parent(); p != nil && p.Kind() == parser.KindDecoratedDef {
		return p
	}
	return decl
}
