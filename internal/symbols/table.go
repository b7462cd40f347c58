package symbols

import (
	"sort"
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"

	"reshape/internal/parser"
)

// Import is one import statement's contribution to a module scope.
type Import struct {
	Module     string
	Alias      string
	Items      []ImportItem
	IsRelative bool
	Level      int
	Node       *sitter.Node
}

type ImportItem struct {
	Name  string
	Alias string
}

// LocalName is the name the import binds in the importing module, for
// whole-module imports ("import a.b" binds "a", "import x as y" binds "y").
func (imp Import) LocalName() string {
	if imp.Alias != "" {
		return imp.Alias
	}
	if i := strings.Index(imp.Module, "."); i >= 0 {
		return imp.Module[:i]
	}
	return imp.Module
}

// FileTable is the symbol table of a single file.
type FileTable struct {
	Path    string
	Module  string
	Source  *parser.Source
	Root    *Scope
	Imports []Import
}

// ScopeAt returns the innermost scope whose opener contains the node.
func (ft *FileTable) ScopeAt(node *sitter.Node) *Scope {
	start, end := node.StartByte(), node.EndByte()
	scope := ft.Root
	for {
		descended := false
		for _, child := range scope.Children {
			if child.Node != nil && child.Node.StartByte() <= start && end <= child.Node.EndByte() {
				scope = child
				descended = true
				break
			}
		}
		if !descended {
			return scope
		}
	}
}

// Table is the project-wide symbol table: one FileTable per file,
// immutable once built.
type Table struct {
	Files map[string]*FileTable
}

func NewTable() *Table {
	return &Table{Files: make(map[string]*FileTable)}
}

func (t *Table) Add(ft *FileTable) {
	t.Files[ft.Path] = ft
}

// ByModule returns the file table for a dotted module name.
func (t *Table) ByModule(module string) *FileTable {
	for _, ft := range t.Files {
		if ft.Module == module {
			return ft
		}
	}
	return nil
}

// BindingCount reports the total number of bindings in the table.
func (t *Table) BindingCount() int {
	total := 0
	for _, ft := range t.Files {
		total += countBindings(ft.Root)
	}
	return total
}

func countBindings(scope *Scope) int {
	n := len(scope.Bindings())
	for _, child := range scope.Children {
		n += countBindings(child)
	}
	return n
}

// FindBinding resolves a dotted target like "billing.Employee.pay" to a
// binding: the longest module-name prefix picks the file, the rest
// descends through class/function scopes.
func (t *Table) FindBinding(target string) *Binding {
	var ft *FileTable
	rest := ""
	for path := target; path != ""; {
		if found := t.ByModule(path); found != nil {
			ft = found
			rest = strings.TrimPrefix(target[len(path):], ".")
			break
		}
		i := strings.LastIndex(path, ".")
		if i < 0 {
			break
		}
		path = path[:i]
	}
	if ft == nil {
		return nil
	}
	if rest == "" {
		return nil
	}

	scope := ft.Root
	parts := strings.Split(rest, ".")
	for i, part := range parts {
		binding := scope.Binding(part)
		if binding == nil {
			return nil
		}
		if i == len(parts)-1 {
			return binding
		}
		if binding.Body == nil {
			return nil
		}
		scope = binding.Body
	}
	return nil
}

// Classes returns every class binding in the table.
func (t *Table) Classes() []*Binding {
	var out []*Binding
	for _, path := range sortedPaths(t.Files) {
		collectClasses(t.Files[path].Root, &out)
	}
	return out
}

func collectClasses(scope *Scope, out *[]*Binding) {
	for _, b := range scope.Bindings() {
		if b.Kind == KindClass {
			*out = append(*out, b)
		}
	}
	for _, child := range scope.Children {
		collectClasses(child, out)
	}
}

// Subclasses returns classes whose base list names the given class,
// directly or transitively.
func (t *Table) Subclasses(class *Binding) []*Binding {
	direct := func(base *Binding) []*Binding {
		var out []*Binding
		for _, candidate := range t.Classes() {
			for _, baseName := range candidate.Bases {
				if simpleName(baseName) == base.Name {
					out = append(out, candidate)
				}
			}
		}
		return out
	}

	seen := map[*Binding]bool{class: true}
	var out []*Binding
	frontier := []*Binding{class}
	for len(frontier) > 0 {
		next := frontier[0]
		frontier = frontier[1:]
		for _, sub := range direct(next) {
			if seen[sub] {
				continue
			}
			seen[sub] = true
			out = append(out, sub)
			frontier = append(frontier, sub)
		}
	}
	return out
}

// BaseOf resolves a class's first base to its binding, when the base
// is a class in the analyzed project.
func (t *Table) BaseOf(class *Binding) *Binding {
	if len(class.Bases) == 0 {
		return nil
	}
	want := simpleName(class.Bases[0])
	for _, candidate := range t.Classes() {
		if candidate.Name == want {
			return candidate
		}
	}
	return nil
}

// Method returns the class's method binding of the given name, or nil.
func (t *Table) Method(class *Binding, name string) *Binding {
	if class == nil || class.Body == nil {
		return nil
	}
	b := class.Body.Binding(name)
	if b != nil && b.Kind == KindMethod {
		return b
	}
	return nil
}

// Field returns the class's field binding of the given name, or nil.
func (t *Table) Field(class *Binding, name string) *Binding {
	if class == nil || class.Body == nil {
		return nil
	}
	b := class.Body.Binding(name)
	if b != nil && b.Kind == KindField {
		return b
	}
	return nil
}

func simpleName(dotted string) string {
	if i := strings.LastIndex(dotted, "."); i >= 0 {
		return dotted[i+1:]
	}
	return dotted
}

func sortedPaths(files map[string]*FileTable) []string {
	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}
