package resolver

import (
	"sort"

	sitter "github.com/tree-sitter/go-tree-sitter"

	"reshape/internal/parser"
	"reshape/internal/symbols"
)

// resolveMember finds references to a class member (method or field):
// every attribute access whose receiver is statically known to be the
// owning class or one of its subclasses. Accesses with a matching name
// on an unknown receiver become findings, never silent omissions.
func (r *Resolver) resolveMember(b *symbols.Binding) ([]Reference, []Finding) {
	owner := b.Class
	if owner == nil {
		return nil, nil
	}

	family := map[*symbols.Binding]bool{owner: true}
	for _, sub := range r.project.Table.Subclasses(owner) {
		family[sub] = true
	}

	var refs []Reference
	var findings []Finding

	for _, path := range r.sortedFilePaths() {
		ft := r.project.Table.Files[path]
		src := ft.Source

		parser.Walk(ft.Root.Node, func(n *sitter.Node) bool {
			if n.Kind() != parser.KindAttribute {
				return true
			}
			name := n.ChildByFieldName("attribute")
			obj := n.ChildByFieldName("object")
			if name == nil || obj == nil || src.Text(name) != b.Name {
				return true
			}
			if parser.SameNode(name, b.Ident) {
				return true
			}
			// Field declaration sites (self.x = ...) are tracked via
			// their attribute identifier; skip the declaring one.
			if b.Kind == symbols.KindField && parser.SameNode(name, fieldDeclIdent(b)) {
				return true
			}

			recv := r.ReceiverClass(ft, obj)
			if recv == nil {
				findings = append(findings, Finding{
					Path:     ft.Path,
					Name:     b.Name,
					Reason:   "receiver type unknown for attribute access",
					Location: src.NodeLocation(n),
				})
				return true
			}
			if !family[recv] {
				return true
			}

			refs = append(refs, Reference{
				Path:     ft.Path,
				Node:     name,
				Kind:     classifyAttribute(n),
				Location: src.NodeLocation(name),
			})
			return true
		})
	}

	return refs, findings
}

func fieldDeclIdent(b *symbols.Binding) *sitter.Node {
	if b.Ident != nil && b.Ident.Kind() == parser.KindIdentifier {
		return b.Ident
	}
	return nil
}

// ReceiverClass determines the class a receiver expression denotes an
// instance of, using only locally determinable facts: the method's own
// self parameter, parameter annotations, and construction-site
// inference (a name assigned from a call to the class's constructor).
// Anything else returns nil.
func (r *Resolver) ReceiverClass(ft *symbols.FileTable, obj *sitter.Node) *symbols.Binding {
	src := ft.Source

	if obj.Kind() != parser.KindIdentifier {
		return nil
	}
	name := src.Text(obj)

	scope := scopeAt(ft.Root, obj)
	if scope == nil {
		return nil
	}

	binding := scope.Lookup(name)
	if binding == nil {
		return nil
	}

	// self inside a method body.
	if binding.Receiver {
		if fn := binding.Scope; fn != nil {
			if cls := fn.EnclosingClass(); cls != nil && cls.Parent != nil {
				return cls.Parent.Binding(cls.Name)
			}
		}
		return nil
	}

	// Declared parameter or variable annotation.
	if binding.Annotation != "" {
		if cls := r.classByName(ft, binding.Annotation); cls != nil {
			return cls
		}
	}

	// Construction-site inference: binding declared by `name = Cls(...)`.
	if binding.Decl != nil && binding.Decl.Kind() == parser.KindAssignment {
		if right := binding.Decl.ChildByFieldName("right"); right != nil && right.Kind() == parser.KindCall {
			if fn := right.ChildByFieldName("function"); fn != nil {
				declFile := r.project.Table.Files[binding.Location.Path]
				if declFile != nil {
					if cls := r.classByName(declFile, declFile.Source.Text(fn)); cls != nil {
						return cls
					}
				}
			}
		}
	}

	return nil
}

// classByName resolves a (possibly dotted) class name as visible from
// the given file: local classes first, then imported ones through the
// import graph.
func (r *Resolver) classByName(ft *symbols.FileTable, name string) *symbols.Binding {
	if b := ft.Root.Binding(name); b != nil && b.Kind == symbols.KindClass {
		return b
	}

	for _, edge := range r.project.Imports(ft.Module) {
		imp := edge.Import

		for _, item := range imp.Items {
			local := item.Name
			if item.Alias != "" {
				local = item.Alias
			}
			if local != name {
				continue
			}
			if origin := r.project.Table.ByModule(edge.To); origin != nil {
				if b := origin.Root.Binding(item.Name); b != nil && b.Kind == symbols.KindClass {
					return b
				}
			}
		}

		if len(imp.Items) == 0 {
			prefix := imp.LocalName() + "."
			if len(name) > len(prefix) && name[:len(prefix)] == prefix {
				if origin := r.project.Table.ByModule(edge.To); origin != nil {
					if b := origin.Root.Binding(name[len(prefix):]); b != nil && b.Kind == symbols.KindClass {
						return b
					}
				}
			}
		}
	}

	return nil
}

func (r *Resolver) sortedFilePaths() []string {
	paths := make([]string, 0, len(r.project.Table.Files))
	for p := range r.project.Table.Files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}
