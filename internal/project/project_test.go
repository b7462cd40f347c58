package project

import (
	"os"
	"path/filepath"
	"testing"

	"reshape/internal/parser"
	"reshape/internal/symbols"
)

func TestModuleNamer(t *testing.T) {
	root := t.TempDir()

	// pkg is a package, scripts is not.
	if err := os.MkdirAll(filepath.Join(root, "pkg", "sub"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(root, "scripts"), 0o755); err != nil {
		t.Fatal(err)
	}
	for _, p := range []string{
		filepath.Join(root, "pkg", "__init__.py"),
		filepath.Join(root, "pkg", "sub", "__init__.py"),
	} {
		if err := os.WriteFile(p, nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}

	namer := NewModuleNamer(root)

	tests := []struct {
		path string
		want string
	}{
		{filepath.Join(root, "pkg", "mod.py"), "pkg.mod"},
		{filepath.Join(root, "pkg", "sub", "deep.py"), "pkg.sub.deep"},
		{filepath.Join(root, "pkg", "__init__.py"), "pkg"},
		{filepath.Join(root, "scripts", "tool.py"), "tool"},
		{filepath.Join(root, "top.py"), "top"},
	}
	for _, tt := range tests {
		if got := namer.ModuleName(tt.path); got != tt.want {
			t.Errorf("ModuleName(%s) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestResolveImport(t *testing.T) {
	tests := []struct {
		from     string
		stmt     string
		relative bool
		level    int
		want     string
	}{
		{"pkg.mod", "os.path", false, 0, "os.path"},
		{"pkg.sub.mod", "helpers", true, 1, "pkg.sub.helpers"},
		{"pkg.sub.mod", "base", true, 2, "pkg.base"},
		{"pkg.sub.mod", "", true, 1, "pkg.sub"},
		{"mod", "x", true, 5, "x"},
	}
	for _, tt := range tests {
		got := ResolveImport(tt.from, tt.stmt, tt.relative, tt.level)
		if got != tt.want {
			t.Errorf("ResolveImport(%q, %q, %v, %d) = %q, want %q",
				tt.from, tt.stmt, tt.relative, tt.level, got, tt.want)
		}
	}
}

func TestBuild_ImportGraph(t *testing.T) {
	p := parser.NewParser(parser.NewGrammarLoader())
	table := symbols.NewTable()

	sources := map[string]string{
		"lib": "def helper():\n    return 1\n",
		"app": "from lib import helper\n",
		"cli": "import lib\n",
	}
	for module, content := range sources {
		src, err := p.ParseFile(module+".py", []byte(content))
		if err != nil {
			t.Fatalf("parse %s: %v", module, err)
		}
		t.Cleanup(src.Close)
		table.Add(symbols.BuildFile(src, module))
	}

	proj := Build(".", table)

	if proj.FileCount() != 3 {
		t.Fatalf("file count = %d", proj.FileCount())
	}

	edges := proj.Imports("app")
	if len(edges) != 1 || edges[0].To != "lib" {
		t.Fatalf("unexpected app imports: %+v", edges)
	}

	importers := proj.Importers("lib")
	if len(importers) != 2 {
		t.Fatalf("expected 2 importers of lib, got %d", len(importers))
	}
	if importers[0].Module != "app" || importers[1].Module != "cli" {
		t.Fatalf("importers should come back sorted: %v, %v", importers[0].Module, importers[1].Module)
	}
}
