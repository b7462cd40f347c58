package symbols

import (
	"testing"

	"reshape/internal/core/errors"
	"reshape/internal/parser"
)

func buildTable(t *testing.T, module, content string) *FileTable {
	t.Helper()
	p := parser.NewParser(parser.NewGrammarLoader())
	src, err := p.ParseFile(module+".py", []byte(content))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	t.Cleanup(src.Close)
	return BuildFile(src, module)
}

func TestBuildFile_Declarations(t *testing.T) {
	ft := buildTable(t, "shop", `
MAX_ITEMS = 100

import os
from collections import OrderedDict as OD

def total(prices):
    result = 0
    for p in prices:
        result += p
    return result

class Cart:
    limit = 10

    def __init__(self, owner):
        self.owner = owner
        self._items = []

    def add(self, item):
        self._items.append(item)

class _Hidden:
    pass
`)

	root := ft.Root
	tests := []struct {
		name   string
		kind   BindingKind
		public bool
	}{
		{"MAX_ITEMS", KindConstant, true},
		{"os", KindImport, true},
		{"OD", KindImport, true},
		{"total", KindFunction, true},
		{"Cart", KindClass, true},
		{"_Hidden", KindClass, false},
	}
	for _, tt := range tests {
		b := root.Binding(tt.name)
		if b == nil {
			t.Fatalf("missing module binding %q", tt.name)
		}
		if b.Kind != tt.kind {
			t.Errorf("%s: kind = %s, want %s", tt.name, b.Kind, tt.kind)
		}
		if b.Public != tt.public {
			t.Errorf("%s: public = %v, want %v", tt.name, b.Public, tt.public)
		}
	}

	cart := root.Binding("Cart")
	if cart.Body == nil {
		t.Fatal("class binding should open a scope")
	}

	if b := cart.Body.Binding("limit"); b == nil || b.Kind != KindField {
		t.Fatalf("class-level assignment should be a field, got %+v", b)
	}
	if b := cart.Body.Binding("owner"); b == nil || b.Kind != KindField || b.Class != cart {
		t.Fatalf("self.owner should be a field on Cart, got %+v", b)
	}
	if b := cart.Body.Binding("_items"); b == nil || b.Public {
		t.Fatal("self._items should be a private field")
	}

	add := cart.Body.Binding("add")
	if add == nil || add.Kind != KindMethod || add.Class != cart {
		t.Fatalf("add should be a method on Cart, got %+v", add)
	}
	self := add.Body.Binding("self")
	if self == nil || !self.Receiver {
		t.Fatal("first method parameter should be marked as receiver")
	}
	item := add.Body.Binding("item")
	if item == nil || item.Kind != KindParameter || item.Receiver {
		t.Fatalf("item should be a plain parameter, got %+v", item)
	}

	total := root.Binding("total")
	if b := total.Body.Binding("result"); b == nil || b.Kind != KindLocal {
		t.Fatal("result should be a local in total")
	}
	if b := total.Body.Binding("p"); b == nil || b.Kind != KindLocal {
		t.Fatal("for-loop target should be a local in total")
	}
}

func TestBuildFile_Imports(t *testing.T) {
	ft := buildTable(t, "pkg.mod", `
import os.path
import numpy as np
from . import sibling
from ..base import Helper, Shape as S
`)

	if len(ft.Imports) != 4 {
		t.Fatalf("expected 4 imports, got %d: %+v", len(ft.Imports), ft.Imports)
	}

	if ft.Imports[0].Module != "os.path" || ft.Imports[0].LocalName() != "os" {
		t.Fatalf("unexpected whole-module import: %+v", ft.Imports[0])
	}
	if ft.Imports[1].Alias != "np" || ft.Imports[1].LocalName() != "np" {
		t.Fatalf("unexpected aliased import: %+v", ft.Imports[1])
	}

	rel := ft.Imports[2]
	if !rel.IsRelative || rel.Level != 1 {
		t.Fatalf("expected level-1 relative import, got %+v", rel)
	}
	deep := ft.Imports[3]
	if !deep.IsRelative || deep.Level != 2 || deep.Module != "base" {
		t.Fatalf("expected level-2 relative import of base, got %+v", deep)
	}
	if len(deep.Items) != 2 || deep.Items[1].Alias != "S" {
		t.Fatalf("expected imported items with alias, got %+v", deep.Items)
	}

	if ft.Root.Binding("np") == nil || ft.Root.Binding("Helper") == nil || ft.Root.Binding("S") == nil {
		t.Fatal("import names should be bound in the module scope")
	}
}

func TestScope_LookupSkipsClassScopeFromNestedFunctions(t *testing.T) {
	ft := buildTable(t, "m", `
size = 1

class Box:
    size = 2

    def grow(self):
        return size
`)

	box := ft.Root.Binding("Box")
	grow := box.Body.Binding("grow")

	got := grow.Body.Lookup("size")
	if got == nil {
		t.Fatal("size should resolve from method body")
	}
	if got.Scope.Kind != ScopeModule {
		t.Fatalf("class-level size must be invisible to the method, resolved in %s scope", got.Scope.Kind)
	}

	// From the class body itself the class binding wins.
	if b := box.Body.Lookup("size"); b.Scope.Kind != ScopeClass {
		t.Fatalf("class body lookup should see the class field, got %s scope", b.Scope.Kind)
	}
}

func TestScope_GlobalKeepsModuleBinding(t *testing.T) {
	ft := buildTable(t, "m", `
counter = 0

def bump():
    global counter
    counter = counter + 1
`)

	bump := ft.Root.Binding("bump")
	if b := bump.Body.Binding("counter"); b != nil {
		t.Fatal("global assignment must not declare a function-scope binding")
	}
	got := bump.Body.Lookup("counter")
	if got == nil || got.Scope.Kind != ScopeModule {
		t.Fatal("counter should resolve to the module binding")
	}
}

func TestScope_Rebinds(t *testing.T) {
	ft := buildTable(t, "m", `
x = 1

def outer():
    x = 2
    def inner():
        return x
    return inner
`)

	outer := ft.Root.Binding("outer")
	inner := outer.Body.Binding("inner")

	if !inner.Body.Rebinds("x", ft.Root) {
		t.Fatal("outer's x should shadow the module x for inner")
	}
	if inner.Body.Rebinds("x", outer.Body) {
		t.Fatal("nothing between inner and outer rebinds x")
	}
}

func TestCheck_Conflicts(t *testing.T) {
	ft := buildTable(t, "m", `
total = 1

def f():
    def g():
        nested = 2
    local = 3
`)

	f := ft.Root.Binding("f")

	// Visible outer binding.
	if c := Check("total", f.Body); c == nil {
		t.Fatal("expected conflict with module-level total")
	} else if errors.CodeOf(c.Error()) != errors.CodeNameConflict {
		t.Fatalf("unexpected error code: %v", c.Error())
	}

	// Binding in a nested scope would capture the new name.
	if c := Check("nested", f.Body); c == nil {
		t.Fatal("expected conflict with nested binding")
	}

	if c := Check("fresh_name", f.Body); c != nil {
		t.Fatalf("fresh name should be free, got conflict with %s", c.Existing.QualifiedName())
	}
}

func TestTable_FindBindingAndHierarchy(t *testing.T) {
	table := NewTable()
	table.Add(buildTable(t, "billing", `
class Employee:
    def get_cost(self):
        return 0

class Engineer(Employee):
    def get_cost(self):
        return 10

class Salesman(Employee):
    pass
`))

	emp := table.FindBinding("billing.Employee")
	if emp == nil || emp.Kind != KindClass {
		t.Fatal("FindBinding should resolve the class")
	}

	method := table.FindBinding("billing.Engineer.get_cost")
	if method == nil || method.Kind != KindMethod {
		t.Fatal("FindBinding should descend into class scopes")
	}

	if table.FindBinding("billing.Missing") != nil {
		t.Fatal("unknown member should resolve to nil")
	}
	if table.FindBinding("other.Employee") != nil {
		t.Fatal("unknown module should resolve to nil")
	}

	subs := table.Subclasses(emp)
	if len(subs) != 2 {
		t.Fatalf("expected 2 subclasses, got %d", len(subs))
	}

	eng := table.FindBinding("billing.Engineer")
	if base := table.BaseOf(eng); base != emp {
		t.Fatal("BaseOf(Engineer) should be Employee")
	}
	if m := table.Method(eng, "get_cost"); m == nil {
		t.Fatal("Method should find the override")
	}
	sal := table.FindBinding("billing.Salesman")
	if m := table.Method(sal, "get_cost"); m != nil {
		t.Fatal("Method must not search base classes")
	}
}

func TestFileTable_ScopeAt(t *testing.T) {
	ft := buildTable(t, "m", `
x = 1

class A:
    def m(self):
        y = 2
`)

	a := ft.Root.Binding("A")
	m := a.Body.Binding("m")
	y := m.Body.Binding("y")

	if got := ft.ScopeAt(y.Ident); got != m.Body {
		t.Fatalf("ScopeAt(y) should be the method scope, got %s %q", got.Kind, got.Name)
	}
	if got := ft.ScopeAt(ft.Root.Binding("x").Ident); got != ft.Root {
		t.Fatal("ScopeAt(x) should be the module scope")
	}
}

func TestNamingConventions(t *testing.T) {
	if !IsConstantName("MAX_RETRIES") || IsConstantName("MaxRetries") || IsConstantName("_123") {
		t.Fatal("constant name detection is off")
	}
	if !IsPublic("value") || IsPublic("_value") {
		t.Fatal("visibility convention is off")
	}
}
