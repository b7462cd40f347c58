package project

import (
	"sort"

	"reshape/internal/symbols"
)

// Edge is one resolved import relationship between two modules.
type Edge struct {
	From   string
	To     string
	Import symbols.Import
}

// Project is the immutable per-invocation view of the analyzed files:
// the symbol table plus the resolved import graph. It is built once at
// the join point after all per-file tables exist and never mutated; a
// new invocation rebuilds it from scratch.
type Project struct {
	Root  string
	Table *symbols.Table

	edges      map[string][]Edge
	importedBy map[string][]string
}

// Build resolves every file's imports against the table's module names
// and assembles the import graph.
func Build(root string, table *symbols.Table) *Project {
	p := &Project{
		Root:       root,
		Table:      table,
		edges:      make(map[string][]Edge),
		importedBy: make(map[string][]string),
	}

	for _, ft := range table.Files {
		for _, imp := range ft.Imports {
			resolved := imp
			resolved.Module = ResolveImport(ft.Module, imp.Module, imp.IsRelative, imp.Level)
			resolved.IsRelative = false
			edge := Edge{From: ft.Module, To: resolved.Module, Import: resolved}
			p.edges[ft.Module] = append(p.edges[ft.Module], edge)
			p.importedBy[resolved.Module] = append(p.importedBy[resolved.Module], ft.Module)
		}
	}

	return p
}

// Imports returns the resolved import edges leaving a module.
func (p *Project) Imports(module string) []Edge {
	return p.edges[module]
}

// Importers returns the file tables of modules importing the given
// module, in stable order.
func (p *Project) Importers(module string) []*symbols.FileTable {
	seen := make(map[string]bool)
	var names []string
	for _, from := range p.importedBy[module] {
		if seen[from] {
			continue
		}
		seen[from] = true
		names = append(names, from)
	}
	sort.Strings(names)

	out := make([]*symbols.FileTable, 0, len(names))
	for _, name := range names {
		if ft := p.Table.ByModule(name); ft != nil {
			out = append(out, ft)
		}
	}
	return out
}

// FileCount reports the number of analyzed files.
func (p *Project) FileCount() int {
	return len(p.Table.Files)
}

// Close releases every file's syntax tree. The project must not be
// used afterwards.
func (p *Project) Close() {
	for _, ft := range p.Table.Files {
		if ft.Source != nil {
			ft.Source.Close()
		}
	}
}
