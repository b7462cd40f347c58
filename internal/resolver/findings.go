package resolver

import (
	sitter "github.com/tree-sitter/go-tree-sitter"

	"reshape/internal/parser"
	"reshape/internal/symbols"
)

// FindUnresolved scans the whole project for attribute accesses the
// resolver cannot type: dynamic receivers, factory results, values from
// outside the analyzed set. These are reported as reduced-confidence
// findings on the analysis rather than silently dropped.
func (r *Resolver) FindUnresolved() []Finding {
	var findings []Finding

	for _, path := range r.sortedFilePaths() {
		ft := r.project.Table.Files[path]
		findings = append(findings, r.findUnresolvedInFile(ft)...)
	}

	return findings
}

func (r *Resolver) findUnresolvedInFile(ft *symbols.FileTable) []Finding {
	src := ft.Source
	var findings []Finding

	parser.Walk(ft.Root.Node, func(n *sitter.Node) bool {
		if n.Kind() != parser.KindAttribute {
			return true
		}
		obj := n.ChildByFieldName("object")
		name := n.ChildByFieldName("attribute")
		if obj == nil || name == nil {
			return true
		}

		if obj.Kind() != parser.KindIdentifier {
			findings = append(findings, Finding{
				Path:     ft.Path,
				Name:     src.Text(name),
				Reason:   "dynamic receiver expression",
				Location: src.NodeLocation(n),
			})
			return true
		}

		if r.ReceiverClass(ft, obj) != nil {
			return true
		}
		if r.isModuleReference(ft, src.Text(obj)) {
			return true
		}

		scope := scopeAt(ft.Root, obj)
		if scope != nil && scope.Lookup(src.Text(obj)) == nil {
			// Unknown name entirely; surfaced once as a finding here
			// rather than per member.
			findings = append(findings, Finding{
				Path:     ft.Path,
				Name:     src.Text(obj),
				Reason:   "name not bound in any visible scope",
				Location: src.NodeLocation(obj),
			})
			return true
		}

		findings = append(findings, Finding{
			Path:     ft.Path,
			Name:     src.Text(name),
			Reason:   "receiver type unknown for attribute access",
			Location: src.NodeLocation(n),
		})
		return true
	})

	return findings
}

// isModuleReference reports whether name is how the file refers to an
// imported module (plain or aliased), in which case attribute access on
// it is module member access, not an instance member.
func (r *Resolver) isModuleReference(ft *symbols.FileTable, name string) bool {
	for _, edge := range r.project.Imports(ft.Module) {
		if len(edge.Import.Items) == 0 && edge.Import.LocalName() == name {
			return true
		}
	}
	return false
}
