package transform

import (
	"sort"
	"testing"

	"reshape/internal/core/errors"
)

func TestKinds(t *testing.T) {
	kinds := Kinds()
	if len(kinds) != 22 {
		t.Fatalf("catalog lists %d kinds, want 22: %v", len(kinds), kinds)
	}
	if !sort.StringsAreSorted(kinds) {
		t.Fatalf("kinds are not sorted: %v", kinds)
	}
	for _, kind := range kinds {
		op, err := Build(kind, Args{
			"target":      "m.f",
			"name":        "n",
			"path":        "m.py",
			"line":        "1",
			"start":       "1",
			"end":         "2",
			"expression":  "x",
			"to":          "m.C",
			"via":         "field",
			"accessor":    "get_x",
			"parameter":   "p",
			"replacement": "self.p()",
			"variants":    "a=A,b=B",
		})
		if err != nil {
			t.Fatalf("build %s: %v", kind, err)
		}
		if op.Kind() != kind {
			t.Fatalf("built operation reports kind %q, want %q", op.Kind(), kind)
		}
	}
}

func TestBuild_UnknownKind(t *testing.T) {
	_, err := Build("shuffle-everything", Args{})
	if !errors.IsCode(err, errors.CodeNotFound) {
		t.Fatalf("expected not-found for unknown kind, got %v", err)
	}
}

func TestBuild_MissingParameters(t *testing.T) {
	cases := []struct {
		kind string
		args Args
	}{
		{"rename", Args{"target": "m.f"}},
		{"rename", Args{"name": "n"}},
		{"extract-function", Args{"path": "m.py", "start": "1", "end": "2"}},
		{"extract-function", Args{"path": "m.py", "start": "x", "end": "2", "name": "n"}},
		{"extract-variable", Args{"path": "m.py", "line": "1", "name": "n"}},
		{"move-method", Args{"target": "m.C.f", "to": "m.D"}},
		{"push-down-method", Args{"target": "m.C.f"}},
		{"replace-conditional-with-polymorphism", Args{"target": "m.C.f", "variants": "broken"}},
		{"replace-parameter-with-method-call", Args{"target": "m.C.f", "parameter": "p"}},
		{"consolidate-conditional", Args{"path": "m.py", "start": "1"}},
	}
	for _, tc := range cases {
		if _, err := Build(tc.kind, tc.args); !errors.IsCode(err, errors.CodeValidationError) {
			t.Fatalf("%s with %v: expected validation error, got %v", tc.kind, tc.args, err)
		}
	}
}

func TestArgs_Flag(t *testing.T) {
	for _, tc := range []struct {
		value string
		want  bool
	}{
		{"true", true}, {"1", true}, {"YES", true},
		{"false", false}, {"", false}, {"0", false},
	} {
		a := Args{"keep-stub": tc.value}
		if got := a.flag("keep-stub"); got != tc.want {
			t.Fatalf("flag %q = %v, want %v", tc.value, got, tc.want)
		}
	}
}

func TestBuild_KeepStub(t *testing.T) {
	op, err := Build("move-method", Args{
		"target": "m.C.f", "to": "m.D", "via": "d", "keep-stub": "true",
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	mv, ok := op.(*MoveMethod)
	if !ok {
		t.Fatalf("expected *MoveMethod, got %T", op)
	}
	if !mv.KeepStub {
		t.Fatal("keep-stub flag not carried into the operation")
	}
}
