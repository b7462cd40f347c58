package symbols

import (
	sitter "github.com/tree-sitter/go-tree-sitter"
)

type ScopeKind int

const (
	ScopeModule ScopeKind = iota
	ScopeClass
	ScopeFunction
)

func (k ScopeKind) String() string {
	switch k {
	case ScopeModule:
		return "module"
	case ScopeClass:
		return "class"
	case ScopeFunction:
		return "function"
	default:
		return "unknown"
	}
}

// Scope is a lexical region that introduces bindings. Scopes form a
// tree rooted at the file's module scope; they live for exactly one
// analysis pass.
type Scope struct {
	Kind     ScopeKind
	Name     string
	Path     string
	Parent   *Scope
	Children []*Scope
	Node     *sitter.Node

	bindings  map[string]*Binding
	order     []string
	nonlocals map[string]bool
}

// markNonLocal records a global/nonlocal declaration: assignments to
// the name in this scope re-bind the outer name instead of declaring.
func (s *Scope) markNonLocal(name string) {
	if s.nonlocals == nil {
		s.nonlocals = make(map[string]bool)
	}
	s.nonlocals[name] = true
}

func (s *Scope) isNonLocal(name string) bool {
	return s.nonlocals[name]
}

func newScope(kind ScopeKind, name, path string, parent *Scope, node *sitter.Node) *Scope {
	s := &Scope{
		Kind:     kind,
		Name:     name,
		Path:     path,
		Parent:   parent,
		Node:     node,
		bindings: make(map[string]*Binding),
	}
	if parent != nil {
		parent.Children = append(parent.Children, s)
	}
	return s
}

func (s *Scope) QualifiedName() string {
	if s.Parent == nil {
		return s.Name
	}
	prefix := s.Parent.QualifiedName()
	if prefix == "" {
		return s.Name
	}
	return prefix + "." + s.Name
}

// Declare registers a binding under its name. The first declaration of
// a name owns it; re-assignments of an existing name are references,
// not new bindings.
func (s *Scope) Declare(b *Binding) *Binding {
	if existing, ok := s.bindings[b.Name]; ok {
		return existing
	}
	b.Scope = s
	s.bindings[b.Name] = b
	s.order = append(s.order, b.Name)
	return b
}

// Binding returns the binding declared directly in this scope, if any.
func (s *Scope) Binding(name string) *Binding {
	return s.bindings[name]
}

// Bindings returns the scope's bindings in declaration order.
func (s *Scope) Bindings() []*Binding {
	out := make([]*Binding, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.bindings[name])
	}
	return out
}

// Lookup resolves a name from this scope outward, following Python
// visibility: class scopes are not visible from scopes nested inside
// them, only from the class body itself.
func (s *Scope) Lookup(name string) *Binding {
	crossed := false
	for scope := s; scope != nil; scope = scope.Parent {
		if scope.Kind == ScopeClass && crossed {
			continue
		}
		if b, ok := scope.bindings[name]; ok {
			return b
		}
		crossed = true
	}
	return nil
}

// Rebinds reports whether this scope or any scope between it and the
// declaring scope introduces its own binding for name, shadowing the
// outer one.
func (s *Scope) Rebinds(name string, declaring *Scope) bool {
	for scope := s; scope != nil && scope != declaring; scope = scope.Parent {
		if _, ok := scope.bindings[name]; ok {
			return true
		}
	}
	return false
}

// EnclosingFunction returns the nearest function scope at or above s.
func (s *Scope) EnclosingFunction() *Scope {
	for scope := s; scope != nil; scope = scope.Parent {
		if scope.Kind == ScopeFunction {
			return scope
		}
	}
	return nil
}

// EnclosingClass returns the nearest class scope at or above s.
func (s *Scope) EnclosingClass() *Scope {
	for scope := s; scope != nil; scope = scope.Parent {
		if scope.Kind == ScopeClass {
			return scope
		}
	}
	return nil
}
