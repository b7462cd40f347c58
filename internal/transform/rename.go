package transform

import (
	"fmt"

	"reshape/internal/core/errors"
	"reshape/internal/plan"
	"reshape/internal/symbols"
)

// Rename changes a binding's name at its declaration and every
// reference. Target is a dotted path such as "billing.Employee.pay".
type Rename struct {
	Target  string
	NewName string
}

func (op *Rename) Kind() string { return "rename" }

func (op *Rename) Validate(ctx *Context) error {
	if !isIdentifier(op.NewName) {
		return errors.Newf(errors.CodeValidationError, "%q is not a valid identifier", op.NewName)
	}

	b, err := ctx.findBinding(op.Target)
	if err != nil {
		return err
	}
	if b.Name == op.NewName {
		return errors.Newf(errors.CodeValidationError, "binding is already named %q", op.NewName)
	}

	refs, findings := ctx.Resolver.Resolve(b)
	if err := requireEnumerable(findings, op.Kind()); err != nil {
		return err
	}

	if conflict := symbols.Check(op.NewName, b.Scope); conflict != nil {
		return conflict.Error()
	}
	if b.Kind == symbols.KindMethod || b.Kind == symbols.KindField {
		// Member renames must stay unambiguous across the hierarchy.
		for _, sub := range ctx.Table().Subclasses(b.Class) {
			if sub.Body != nil && sub.Body.Binding(op.NewName) != nil {
				return errors.Newf(errors.CodeNameConflict,
					"%q already declared in subclass %s", op.NewName, sub.Name)
			}
		}
	}

	// Each rewritten reference must still resolve to the renamed binding
	// afterwards; a nested scope that binds the new name would capture it.
	for _, ref := range refs {
		ft := ctx.Table().Files[ref.Path]
		if ft == nil {
			continue
		}
		at := ft.ScopeAt(ref.Node)
		if at == nil {
			continue
		}
		if existing := at.Lookup(op.NewName); existing != nil {
			return (&symbols.Conflict{Proposed: op.NewName, Existing: existing}).Error()
		}
	}

	return nil
}

func (op *Rename) Plan(ctx *Context) (*plan.RewritePlan, error) {
	if err := op.Validate(ctx); err != nil {
		return nil, err
	}
	b, err := ctx.findBinding(op.Target)
	if err != nil {
		return nil, err
	}
	refs, _ := ctx.Resolver.Resolve(b)

	p := plan.New(op.Kind())
	p.Description = fmt.Sprintf("rename %s to %s", op.Target, op.NewName)

	src := ctx.sourceOf(b)
	if src == nil {
		return nil, errors.Newf(errors.CodeInternal, "no source for %s", b.Location.Path)
	}
	p.ReplaceNode(src, b.Ident, op.NewName)

	// Overrides in subclasses declare the same member; they move with it
	// so dispatch through the hierarchy stays intact.
	if b.Kind == symbols.KindMethod || b.Kind == symbols.KindField {
		for _, sub := range ctx.Table().Subclasses(b.Class) {
			if sub.Body == nil {
				continue
			}
			if member := sub.Body.Binding(b.Name); member != nil {
				if memberSrc := ctx.sourceOf(member); memberSrc != nil {
					p.ReplaceNode(memberSrc, member.Ident, op.NewName)
				}
			}
		}
	}

	for _, ref := range refs {
		ft := ctx.Table().Files[ref.Path]
		if ft == nil {
			continue
		}
		p.ReplaceNode(ft.Source, ref.Node, op.NewName)
	}

	if err := p.Normalize(); err != nil {
		return nil, err
	}
	return p, nil
}
