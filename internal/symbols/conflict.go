package symbols

import (
	"reshape/internal/core/errors"
)

// Conflict reports a proposed name colliding with a visible binding.
type Conflict struct {
	Proposed string
	Existing *Binding
}

func (c *Conflict) Error() *errors.DomainError {
	derr := &errors.DomainError{
		Code:    errors.CodeNameConflict,
		Message: "name " + c.Proposed + " collides with existing " + c.Existing.Kind.String(),
	}
	derr.WithContext(errors.CtxSymbol, c.Existing.QualifiedName())
	derr.WithContext(errors.CtxPath, c.Existing.Location.Path)
	derr.WithContext(errors.CtxLine, c.Existing.Location.Line)
	return derr
}

// Check decides whether proposed is free in the target scope: no
// binding of that name in the scope itself, in any enclosing scope it
// can see, or in a nested scope that would capture the outer name.
// Checking happens before any edit is emitted; a plan is never produced
// against a known collision.
func Check(proposed string, target *Scope) *Conflict {
	if b := target.Lookup(proposed); b != nil {
		return &Conflict{Proposed: proposed, Existing: b}
	}
	if b := findInNested(target, proposed); b != nil {
		return &Conflict{Proposed: proposed, Existing: b}
	}
	return nil
}

// findInNested looks for the name in scopes nested below target. A
// nested binding of the same name would not break the renamed binding
// itself, but it would shadow it for every deeper read, so it is
// treated as a collision too.
func findInNested(scope *Scope, name string) *Binding {
	for _, child := range scope.Children {
		if b := child.Binding(name); b != nil {
			return b
		}
		if b := findInNested(child, name); b != nil {
			return b
		}
	}
	return nil
}
