package parser

import (
	"strings"
	"testing"

	sitter "github.com/tree-sitter/go-tree-sitter"
)

func parseSource(t *testing.T, content string) *Source {
	t.Helper()
	p := NewParser(NewGrammarLoader())
	src, err := p.ParseFile("test.py", []byte(content))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	t.Cleanup(src.Close)
	return src
}

func TestParser_IsSupportedPath(t *testing.T) {
	p := NewParser(NewGrammarLoader())

	tests := []struct {
		path string
		want bool
	}{
		{"pkg/module.py", true},
		{"module.PY", false},
		{"main.go", false},
		{"README.md", false},
	}
	for _, tt := range tests {
		if got := p.IsSupportedPath(tt.path); got != tt.want {
			t.Errorf("IsSupportedPath(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestParseFile_RejectsSyntaxErrors(t *testing.T) {
	p := NewParser(NewGrammarLoader())
	_, err := p.ParseFile("broken.py", []byte("def f(:\n"))
	if err == nil {
		t.Fatal("expected parse error for broken source")
	}
}

func TestSource_TextAndSpan(t *testing.T) {
	src := parseSource(t, "x = 1\ny = 2\n")

	root := src.Root()
	first := root.NamedChild(0)
	if got := src.Text(first); got != "x = 1" {
		t.Fatalf("expected first statement text %q, got %q", "x = 1", got)
	}
	span := src.NodeSpan(first)
	if span.Start != 0 || span.End != 5 {
		t.Fatalf("unexpected span %+v", span)
	}
}

func TestSource_LineHelpers(t *testing.T) {
	src := parseSource(t, "a = 1\nb = 2\nc = 3")

	// Offsets: line 2 starts at byte 6.
	if got := src.OffsetForLine(2); got != 6 {
		t.Fatalf("OffsetForLine(2) = %d, want 6", got)
	}
	if got := src.OffsetForLine(99); got != uint(len(src.Content)) {
		t.Fatalf("OffsetForLine past EOF = %d, want %d", got, len(src.Content))
	}
	if got := src.LineStart(8); got != 6 {
		t.Fatalf("LineStart(8) = %d, want 6", got)
	}
	if got := src.LineEnd(8); got != 12 {
		t.Fatalf("LineEnd(8) = %d, want 12", got)
	}
	// Last line without trailing newline.
	if got := src.LineEnd(14); got != uint(len(src.Content)) {
		t.Fatalf("LineEnd on last line = %d, want %d", got, len(src.Content))
	}
}

func TestSource_IndentAndStatementSpan(t *testing.T) {
	content := "def f():\n    x = 1\n    return x\n"
	src := parseSource(t, content)

	def := src.Root().NamedChild(0)
	body := def.ChildByFieldName("body")
	stmt := body.NamedChild(0)

	if got := src.Indent(stmt); got != "    " {
		t.Fatalf("Indent = %q, want four spaces", got)
	}

	span := src.StatementSpan(stmt)
	if got := string(src.Content[span.Start:span.End]); got != "    x = 1\n" {
		t.Fatalf("StatementSpan text = %q", got)
	}
}

func TestSpan_ContainsOverlaps(t *testing.T) {
	outer := Span{Start: 0, End: 10}
	inner := Span{Start: 2, End: 5}
	disjoint := Span{Start: 10, End: 12}

	if !outer.Contains(inner) {
		t.Fatal("expected outer to contain inner")
	}
	if inner.Contains(outer) {
		t.Fatal("inner should not contain outer")
	}
	if !outer.Overlaps(inner) {
		t.Fatal("expected overlap")
	}
	if outer.Overlaps(disjoint) {
		t.Fatal("adjacent spans should not overlap")
	}
}

func TestReindent(t *testing.T) {
	text := "    if a:\n        return 1\n\n    return 2"
	got := Reindent(text, "    ", "")
	want := "if a:\n    return 1\n\nreturn 2"
	if got != want {
		t.Fatalf("Reindent:\n got: %q\nwant: %q", got, want)
	}

	back := Reindent(want, "", "        ")
	if !strings.HasPrefix(back, "        if a:") {
		t.Fatalf("re-nesting failed: %q", back)
	}
}

func TestWalkAndStatements(t *testing.T) {
	src := parseSource(t, "class A:\n    def m(self):\n        return 1\n")

	var classes, defs int
	Walk(src.Root(), func(n *sitter.Node) bool {
		switch n.Kind() {
		case KindClassDef:
			classes++
		case KindFunctionDef:
			defs++
		}
		return true
	})
	if classes != 1 || defs != 1 {
		t.Fatalf("walk found %d classes, %d defs", classes, defs)
	}

	class := ChildOfKind(src.Root(), KindClassDef)
	if class == nil {
		t.Fatal("expected class node")
	}
	body := class.ChildByFieldName("body")
	if got := len(Statements(body)); got != 1 {
		t.Fatalf("expected 1 statement in class body, got %d", got)
	}
}
