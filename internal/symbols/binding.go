package symbols

import (
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"

	"reshape/internal/parser"
)

type BindingKind int

const (
	KindClass BindingKind = iota
	KindFunction
	KindMethod
	KindField
	KindParameter
	KindLocal
	KindConstant
	KindImport
)

func (k BindingKind) String() string {
	switch k {
	case KindClass:
		return "class"
	case KindFunction:
		return "function"
	case KindMethod:
		return "method"
	case KindField:
		return "field"
	case KindParameter:
		return "parameter"
	case KindLocal:
		return "local"
	case KindConstant:
		return "constant"
	case KindImport:
		return "import"
	default:
		return "unknown"
	}
}

// Binding is a named entity introduced in a scope. For classes and
// functions Body points at the scope the binding itself opens.
type Binding struct {
	Name  string
	Kind  BindingKind
	Scope *Scope

	// Ident is the declaring identifier node; Decl the full construct
	// (class/function definition, assignment, parameter).
	Ident *sitter.Node
	Decl  *sitter.Node

	Body *Scope // scope opened by a class or function binding

	Public     bool
	Class      *Binding // owning class for methods and fields
	Decorators []string
	Bases      []string // base class names as written, for classes
	Annotation string   // declared type, for parameters
	Receiver   bool     // the method's self parameter
	Location   parser.Location
}

// QualifiedName is module.Class.member style.
func (b *Binding) QualifiedName() string {
	if b.Scope == nil {
		return b.Name
	}
	prefix := b.Scope.QualifiedName()
	if prefix == "" {
		return b.Name
	}
	return prefix + "." + b.Name
}

// IsPublic follows the leading-underscore convention.
func IsPublic(name string) bool {
	return !strings.HasPrefix(name, "_")
}

// IsConstantName reports the ALL_CAPS module constant convention.
func IsConstantName(name string) bool {
	hasLetter := false
	for _, r := range name {
		if r >= 'a' && r <= 'z' {
			return false
		}
		if r >= 'A' && r <= 'Z' {
			hasLetter = true
		}
	}
	return hasLetter
}
