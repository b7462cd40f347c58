package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"reshape/internal/core/config"
	"reshape/internal/core/errors"
	"reshape/internal/parser"
	"reshape/internal/transform"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func testConfig(root string) *config.Config {
	return &config.Config{
		Version:  1,
		Project:  config.Project{Root: root},
		Analysis: config.Analysis{Workers: 2},
		Exclude: config.Exclude{
			Dirs:  []string{"__pycache__"},
			Files: []string{"*_generated.py"},
		},
	}
}

func TestEngine_Analyze(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"lib.py":                "def helper(x):\n    return x * 2\n",
		"app.py":                "from lib import helper\n\nvalue = helper(3)\n",
		"broken.py":             "def broken(:\n",
		"skip_generated.py":     "def generated():\n    pass\n",
		"__pycache__/cached.py": "def cached():\n    pass\n",
		"notes.txt":             "not python\n",
	})

	e := New(testConfig(root))
	analysis, err := e.Analyze(context.Background())
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	defer analysis.Close()

	if got := analysis.Project.FileCount(); got != 2 {
		t.Fatalf("analyzed %d files, want 2", got)
	}
	if len(analysis.ParseFails) != 1 {
		t.Fatalf("want one parse failure, got %d: %v", len(analysis.ParseFails), analysis.ParseFails)
	}
	if len(analysis.Findings) != 0 {
		t.Fatalf("unexpected findings: %v", analysis.Findings)
	}
	if analysis.Duration <= 0 {
		t.Fatal("analysis duration not recorded")
	}
	if e.State() != StateIdle {
		t.Fatalf("engine state after analyze = %s, want idle", e.State())
	}
}

func TestEngine_Plan(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"lib.py": "def helper(x):\n    return x * 2\n",
		"app.py": "from lib import helper\n\nvalue = helper(3)\n",
	})

	e := New(testConfig(root))
	analysis, err := e.Analyze(context.Background())
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	defer analysis.Close()

	op, err := transform.Build("rename", transform.Args{"target": "lib.helper", "name": "assist"})
	if err != nil {
		t.Fatalf("build operation: %v", err)
	}
	p, err := e.Plan(context.Background(), analysis, op)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if e.State() != StatePlanned {
		t.Fatalf("engine state = %s, want planned", e.State())
	}
	if len(p.Files) != 2 {
		t.Fatalf("plan touches %d files, want 2", len(p.Files))
	}
	if p.EditCount() < 3 {
		t.Fatalf("plan has %d edits, want declaration plus references", p.EditCount())
	}
}

func TestEngine_PlanRejected(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"lib.py": "def helper(x):\n    return x * 2\n",
	})

	e := New(testConfig(root))
	analysis, err := e.Analyze(context.Background())
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	defer analysis.Close()

	_, err = e.Plan(context.Background(), analysis, &transform.Rename{Target: "lib.helper", NewName: "1bad"})
	if !errors.IsCode(err, errors.CodeValidationError) {
		t.Fatalf("expected validation rejection, got %v", err)
	}
	if e.State() != StateRejected {
		t.Fatalf("engine state = %s, want rejected", e.State())
	}
}

func TestScanRoot(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"a.py":               "x = 1\n",
		"pkg/b.py":           "y = 2\n",
		"pkg/c_generated.py": "z = 3\n",
		"__pycache__/d.py":   "w = 4\n",
		"README.md":          "docs\n",
	})

	p := parser.NewParser(parser.NewGrammarLoader())
	files, err := scanRoot(p, root, []string{"__pycache__"}, []string{"*_generated.py"})
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	want := []string{
		filepath.Join(root, "a.py"),
		filepath.Join(root, "pkg", "b.py"),
	}
	if len(files) != len(want) {
		t.Fatalf("scanned %v, want %v", files, want)
	}
	for i := range want {
		if files[i] != want[i] {
			t.Fatalf("scanned %v, want %v", files, want)
		}
	}
}

func TestScanRoot_BadPattern(t *testing.T) {
	p := parser.NewParser(parser.NewGrammarLoader())
	if _, err := scanRoot(p, t.TempDir(), []string{"["}, nil); err == nil {
		t.Fatal("expected error for malformed exclude pattern")
	}
}

func TestState_String(t *testing.T) {
	for s, want := range map[State]string{
		StateIdle:       "idle",
		StateAnalyzing:  "analyzing",
		StateValidating: "validating",
		StatePlanning:   "planning",
		StatePlanned:    "planned",
		StateRejected:   "rejected",
		State(99):       "unknown",
	} {
		if got := s.String(); got != want {
			t.Fatalf("State(%d).String() = %q, want %q", int(s), got, want)
		}
	}
}
