package resolver

import (
	sitter "github.com/tree-sitter/go-tree-sitter"

	"reshape/internal/parser"
	"reshape/internal/project"
	"reshape/internal/symbols"
)

type RefKind int

const (
	RefRead RefKind = iota
	RefWrite
	RefCall
)

func (k RefKind) String() string {
	switch k {
	case RefRead:
		return "read"
	case RefWrite:
		return "write"
	case RefCall:
		return "call"
	default:
		return "unknown"
	}
}

// Reference is one occurrence denoting a binding. Node is the exact
// identifier to rewrite when the binding is renamed or rerouted.
type Reference struct {
	Path     string
	Node     *sitter.Node
	Kind     RefKind
	Location parser.Location
}

// Finding is an occurrence the resolver could not bind: typically an
// attribute access on a receiver of unknown type. Findings degrade
// confidence; transforms that need the full reference set must refuse
// to run while any finding touches their target.
type Finding struct {
	Path     string
	Name     string
	Reason   string
	Location parser.Location
}

// Resolver finds every reference to a binding across the project. The
// project snapshot is immutable, so a resolver is safe for concurrent
// reads.
type Resolver struct {
	project *project.Project
}

func New(p *project.Project) *Resolver {
	return &Resolver{project: p}
}

// Resolve returns all references to the binding plus the unresolved
// findings that share its name. The declaration site itself is never
// included.
func (r *Resolver) Resolve(b *symbols.Binding) ([]Reference, []Finding) {
	switch b.Kind {
	case symbols.KindMethod, symbols.KindField:
		return r.resolveMember(b)
	default:
		refs := r.resolveLexical(b)
		if b.Scope != nil && b.Scope.Kind == symbols.ScopeModule {
			refs = append(refs, r.resolveCrossFile(b)...)
		}
		return refs, nil
	}
}

// resolveLexical collects occurrences of the binding's name in the
// region where it is visible: its declaring scope and every nested
// scope that does not re-bind the name.
func (r *Resolver) resolveLexical(b *symbols.Binding) []Reference {
	ft := r.fileOf(b)
	if ft == nil {
		return nil
	}
	return r.occurrences(ft, b.Scope.Node, b)
}

func (r *Resolver) occurrences(ft *symbols.FileTable, region *sitter.Node, b *symbols.Binding) []Reference {
	src := ft.Source
	var refs []Reference

	parser.Walk(region, func(n *sitter.Node) bool {
		if n.Kind() != parser.KindIdentifier {
			return true
		}
		if src.Text(n) != b.Name {
			return true
		}
		if parser.SameNode(n, b.Ident) {
			return true
		}
		if parser.IsAttributeName(n) || parser.IsKeywordArgumentName(n) {
			return true
		}
		if isDeclarationName(n) {
			return true
		}

		at := scopeAt(ft.Root, n)
		if at == nil {
			return true
		}
		if at != b.Scope && at.Rebinds(b.Name, b.Scope) {
			return true
		}
		// A class scope hides nothing from its nested functions, but
		// the reverse applies: names in a class body are invisible to
		// method bodies, so a class-scope binding only matches
		// occurrences in the body itself.
		if b.Scope.Kind == symbols.ScopeClass && at != b.Scope {
			if at.EnclosingClass() == b.Scope && at.Kind == symbols.ScopeFunction {
				return true
			}
		}
		if at.Lookup(b.Name) != b && at != b.Scope {
			return true
		}

		refs = append(refs, Reference{
			Path:     ft.Path,
			Node:     n,
			Kind:     classify(n),
			Location: src.NodeLocation(n),
		})
		return true
	})

	return refs
}

// resolveCrossFile follows the import graph: from-imports of the name
// (under any alias) and attribute access through whole-module imports.
func (r *Resolver) resolveCrossFile(b *symbols.Binding) []Reference {
	module := b.Scope.Name
	var refs []Reference

	for _, importer := range r.project.Importers(module) {
		for _, edge := range r.project.Imports(importer.Module) {
			if edge.To != module {
				continue
			}
			imp := edge.Import

			if len(imp.Items) == 0 {
				// import module [as alias]: references are attribute
				// accesses local.Name rooted at the import's local name.
				refs = append(refs, r.attributeRefs(importer, imp.LocalName(), b.Name)...)
				continue
			}

			for _, item := range imp.Items {
				if item.Name != b.Name {
					continue
				}
				local := item.Name
				if item.Alias != "" {
					local = item.Alias
				}
				if alias := importer.Root.Binding(local); alias != nil {
					// The imported alias is itself a binding in the
					// importing module; its occurrences denote b.
					refs = append(refs, r.occurrences(importer, importer.Root.Node, alias)...)
					// The import item must be rewritten too when the
					// origin is renamed, unless the alias keeps the
					// local name stable.
					if item.Alias == "" {
						refs = append(refs, Reference{
							Path:     importer.Path,
							Node:     alias.Ident,
							Kind:     RefRead,
							Location: importer.Source.NodeLocation(alias.Ident),
						})
					}
				}
			}
		}
	}

	return refs
}

// attributeRefs collects `root.attr` accesses in a file where root is a
// plain identifier.
func (r *Resolver) attributeRefs(ft *symbols.FileTable, root, attr string) []Reference {
	src := ft.Source
	var refs []Reference

	parser.Walk(ft.Root.Node, func(n *sitter.Node) bool {
		if n.Kind() != parser.KindAttribute {
			return true
		}
		obj := n.ChildByFieldName("object")
		name := n.ChildByFieldName("attribute")
		if obj == nil || name == nil {
			return true
		}
		if obj.Kind() != parser.KindIdentifier || src.Text(obj) != root || src.Text(name) != attr {
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

	return refs
}

func (r *Resolver) fileOf(b *symbols.Binding) *symbols.FileTable {
	if b.Location.Path == "" {
		return nil
	}
	return r.project.Table.Files[b.Location.Path]
}

// scopeAt returns the innermost scope whose region contains the node.
func scopeAt(root *symbols.Scope, node *sitter.Node) *symbols.Scope {
	if root.Node == nil || !spanContains(root.Node, node) {
		return nil
	}
	current := root
	for {
		descended := false
		for _, child := range current.Children {
			if child.Node != nil && spanContains(child.Node, node) {
				current = child
				descended = true
				break
			}
		}
		if !descended {
			return current
		}
	}
}

func spanContains(outer, inner *sitter.Node) bool {
	return outer.StartByte() <= inner.StartByte() && inner.EndByte() <= outer.EndByte()
}

// isDeclarationName reports whether the identifier is the name being
// declared by a def/class/parameter construct rather than a use.
func isDeclarationName(n *sitter.Node) bool {
	parent := n.Parent()
	if parent == nil {
		return false
	}
	switch parent.Kind() {
	case parser.KindFunctionDef, parser.KindClassDef:
		name := parent.ChildByFieldName("name")
		return name != nil && parser.SameNode(name, n)
	case parser.KindParameters, parser.KindTypedParameter:
		return true
	case parser.KindDefaultParameter, parser.KindTypedDefaultParam:
		name := parent.ChildByFieldName("name")
		return name != nil && parser.SameNode(name, n)
	case "list_splat_pattern", "dictionary_splat_pattern":
		return parent.Parent() != nil && parent.Parent().Kind() == parser.KindParameters
	}
	return false
}

// classify determines read/write/call position for an identifier.
func classify(n *sitter.Node) RefKind {
	parent := n.Parent()
	if parent == nil {
		return RefRead
	}

	if parent.Kind() == parser.KindCall {
		if fn := parent.ChildByFieldName("function"); fn != nil && parser.SameNode(fn, n) {
			return RefCall
		}
	}

	for p, child := parent, n; p != nil; p, child = p.Parent(), p {
		switch p.Kind() {
		case parser.KindAssignment, parser.KindAugmentedAssignment:
			if left := p.ChildByFieldName("left"); left != nil && spanContains(left, child) {
				return RefWrite
			}
			return RefRead
		case parser.KindForStatement:
			if left := p.ChildByFieldName("left"); left != nil && spanContains(left, child) {
				return RefWrite
			}
			return RefRead
		case parser.KindBlock, parser.KindModule:
			return RefRead
		}
	}
	return RefRead
}

// classifyAttribute determines the kind for a full attribute access.
func classifyAttribute(attr *sitter.Node) RefKind {
	parent := attr.Parent()
	if parent != nil && parent.Kind() == parser.KindCall {
		if fn := parent.ChildByFieldName("function"); fn != nil && parser.SameNode(fn, attr) {
			return RefCall
		}
	}
	if parent != nil && (parent.Kind() == parser.KindAssignment || parent.Kind() == parser.KindAugmentedAssignment) {
		if left := parent.ChildByFieldName("left"); left != nil && spanContains(left, attr) {
			return RefWrite
		}
	}
	return RefRead
}
