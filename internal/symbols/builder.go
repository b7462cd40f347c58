package symbols

import (
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"

	"reshape/internal/parser"
)

// Builder inventories declarations for one file in a single top-down
// traversal. It never fails on a syntactically valid tree: it records
// what is declared, it does not judge it.
type Builder struct {
	src    *parser.Source
	module string
}

// BuildFile produces the symbol table for a single parsed file.
func BuildFile(src *parser.Source, module string) *FileTable {
	b := &Builder{src: src, module: module}

	root := newScope(ScopeModule, module, src.Path, nil, src.Root())
	ft := &FileTable{
		Path:   src.Path,
		Module: module,
		Source: src,
		Root:   root,
	}

	b.walkBody(src.Root(), root, ft)
	return ft
}

// walkBody walks the statements of a module, class or function body,
// declaring what they introduce into scope.
func (b *Builder) walkBody(body *sitter.Node, scope *Scope, ft *FileTable) {
	for i := uint(0); i < body.ChildCount(); i++ {
		b.walkStatement(body.Child(i), scope, ft, nil)
	}
}

func (b *Builder) walkStatement(node *sitter.Node, scope *Scope, ft *FileTable, decorators []string) {
	if node == nil {
		return
	}

	switch node.Kind() {
	case parser.KindDecoratedDef:
		var decs []string
		for i := uint(0); i < node.ChildCount(); i++ {
			child := node.Child(i)
			if child.Kind() == parser.KindDecorator {
				decs = append(decs, b.src.Text(child))
			}
		}
		b.walkStatement(node.ChildByFieldName("definition"), scope, ft, decs)

	case parser.KindClassDef:
		b.declareClass(node, scope, ft, decorators)

	case parser.KindFunctionDef:
		b.declareFunction(node, scope, ft, decorators)

	case parser.KindImportStatement:
		b.declareImport(node, scope, ft)

	case parser.KindImportFromStatement:
		b.declareFromImport(node, scope, ft)

	case parser.KindAssignment:
		b.declareAssignment(node, scope, ft)
		b.walkNested(node, scope, ft)

	case parser.KindGlobalStatement, parser.KindNonlocalStatement:
		for _, ident := range parser.ChildrenOfKind(node, parser.KindIdentifier) {
			scope.markNonLocal(b.src.Text(ident))
		}

	case parser.KindForStatement:
		if left := node.ChildByFieldName("left"); left != nil {
			b.declareTargets(left, scope, ft, nil)
		}
		b.walkNested(node, scope, ft)

	default:
		b.walkNested(node, scope, ft)
	}
}

// walkNested recurses into compound statements without opening a scope:
// blocks, clauses, and expressions do not bound Python visibility.
func (b *Builder) walkNested(node *sitter.Node, scope *Scope, ft *FileTable) {
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		switch child.Kind() {
		case parser.KindClassDef, parser.KindFunctionDef, parser.KindDecoratedDef,
			parser.KindAssignment, parser.KindForStatement,
			parser.KindImportStatement, parser.KindImportFromStatement,
			parser.KindGlobalStatement, parser.KindNonlocalStatement:
			b.walkStatement(child, scope, ft, nil)
		case "as_pattern_target":
			b.declareTargets(child, scope, ft, nil)
			b.walkNested(child, scope, ft)
		default:
			b.walkNested(child, scope, ft)
		}
	}
}

func (b *Builder) declareClass(node *sitter.Node, scope *Scope, ft *FileTable, decorators []string) {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return
	}
	name := b.src.Text(nameNode)

	binding := scope.Declare(&Binding{
		Name:       name,
		Kind:       KindClass,
		Ident:      nameNode,
		Decl:       node,
		Public:     IsPublic(name),
		Decorators: decorators,
		Location:   b.src.NodeLocation(nameNode),
	})

	if supers := node.ChildByFieldName("superclasses"); supers != nil {
		for i := uint(0); i < supers.ChildCount(); i++ {
			child := supers.Child(i)
			if child.Kind() == parser.KindIdentifier || child.Kind() == parser.KindAttribute {
				binding.Bases = append(binding.Bases, b.src.Text(child))
			}
		}
	}

	body := node.ChildByFieldName("body")
	if body == nil {
		return
	}
	classScope := newScope(ScopeClass, name, ft.Path, scope, node)
	binding.Body = classScope
	b.walkBody(body, classScope, ft)
}

func (b *Builder) declareFunction(node *sitter.Node, scope *Scope, ft *FileTable, decorators []string) {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return
	}
	name := b.src.Text(nameNode)

	kind := KindFunction
	var owner *Binding
	if scope.Kind == ScopeClass {
		kind = KindMethod
		owner = scope.Parent.Binding(scope.Name)
	}

	binding := scope.Declare(&Binding{
		Name:       name,
		Kind:       kind,
		Ident:      nameNode,
		Decl:       node,
		Public:     IsPublic(name),
		Class:      owner,
		Decorators: decorators,
		Location:   b.src.NodeLocation(nameNode),
	})

	fnScope := newScope(ScopeFunction, name, ft.Path, scope, node)
	binding.Body = fnScope

	if params := node.ChildByFieldName("parameters"); params != nil {
		b.declareParameters(params, fnScope, kind == KindMethod)
	}

	body := node.ChildByFieldName("body")
	if body == nil {
		return
	}
	b.walkBody(body, fnScope, ft)

	if kind == KindMethod && owner != nil && owner.Body != nil {
		b.collectInstanceFields(body, fnScope, owner)
	}
}

func (b *Builder) declareParameters(params *sitter.Node, scope *Scope, isMethod bool) {
	index := 0
	for i := uint(0); i < params.ChildCount(); i++ {
		child := params.Child(i)
		var ident *sitter.Node
		var annotation string

		switch child.Kind() {
		case parser.KindIdentifier:
			ident = child
		case parser.KindTypedParameter:
			ident = parser.ChildOfKind(child, parser.KindIdentifier)
			if t := child.ChildByFieldName("type"); t != nil {
				annotation = b.src.Text(t)
			}
		case parser.KindDefaultParameter:
			ident = child.ChildByFieldName("name")
		case parser.KindTypedDefaultParam:
			ident = child.ChildByFieldName("name")
			if t := child.ChildByFieldName("type"); t != nil {
				annotation = b.src.Text(t)
			}
		case "list_splat_pattern", "dictionary_splat_pattern":
			ident = parser.ChildOfKind(child, parser.KindIdentifier)
		default:
			continue
		}

		if ident == nil {
			continue
		}
		name := b.src.Text(ident)
		scope.Declare(&Binding{
			Name:       name,
			Kind:       KindParameter,
			Ident:      ident,
			Decl:       child,
			Public:     IsPublic(name),
			Annotation: annotation,
			Receiver:   isMethod && index == 0,
			Location:   b.src.NodeLocation(ident),
		})
		index++
	}
}

// collectInstanceFields records `self.x = ...` assignments in a method
// body as field bindings on the owning class, so instance attributes
// participate in conflict checking and member resolution.
func (b *Builder) collectInstanceFields(body *sitter.Node, fnScope *Scope, owner *Binding) {
	receiver := b.receiverName(fnScope)
	if receiver == "" {
		return
	}

	parser.Walk(body, func(n *sitter.Node) bool {
		if parser.IsScopeOpener(n.Kind()) && n.Kind() != parser.KindModule {
			return false
		}
		if n.Kind() != parser.KindAssignment && n.Kind() != parser.KindAugmentedAssignment {
			return true
		}
		left := n.ChildByFieldName("left")
		if left == nil || left.Kind() != parser.KindAttribute {
			return true
		}
		obj := left.ChildByFieldName("object")
		attr := left.ChildByFieldName("attribute")
		if obj == nil || attr == nil || obj.Kind() != parser.KindIdentifier || b.src.Text(obj) != receiver {
			return true
		}
		name := b.src.Text(attr)
		owner.Body.Declare(&Binding{
			Name:     name,
			Kind:     KindField,
			Ident:    attr,
			Decl:     n,
			Public:   IsPublic(name),
			Class:    owner,
			Location: b.src.NodeLocation(attr),
		})
		return true
	})
}

func (b *Builder) receiverName(fnScope *Scope) string {
	for _, binding := range fnScope.Bindings() {
		if binding.Receiver {
			return binding.Name
		}
	}
	return ""
}

func (b *Builder) declareImport(node *sitter.Node, scope *Scope, ft *FileTable) {
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)

		if child.Kind() == parser.KindDottedName || child.Kind() == parser.KindIdentifier {
			imp := Import{Module: b.src.Text(child), Node: node}
			ft.Imports = append(ft.Imports, imp)
			b.declareImportName(imp.LocalName(), child, node, scope)
		} else if child.Kind() == parser.KindAliasedImport {
			var module, alias string
			var aliasNode *sitter.Node
			for j := uint(0); j < child.ChildCount(); j++ {
				sub := child.Child(j)
				if sub.Kind() == parser.KindDottedName || sub.Kind() == parser.KindIdentifier {
					if module == "" {
						module = b.src.Text(sub)
					} else {
						alias = b.src.Text(sub)
						aliasNode = sub
					}
				}
			}
			ft.Imports = append(ft.Imports, Import{Module: module, Alias: alias, Node: node})
			if aliasNode != nil {
				b.declareImportName(alias, aliasNode, node, scope)
			}
		}
	}
}

func (b *Builder) declareFromImport(node *sitter.Node, scope *Scope, ft *FileTable) {
	imp := Import{Node: node}
	pastImportKeyword := false

	var collectItem func(child *sitter.Node)
	collectItem = func(child *sitter.Node) {
		switch child.Kind() {
		case parser.KindDottedName, parser.KindIdentifier:
			imp.Items = append(imp.Items, ImportItem{Name: b.src.Text(child)})
			b.declareImportName(b.src.Text(child), child, node, scope)
		case parser.KindAliasedImport:
			var name, alias string
			var aliasNode *sitter.Node
			for j := uint(0); j < child.ChildCount(); j++ {
				sub := child.Child(j)
				if sub.Kind() == parser.KindDottedName || sub.Kind() == parser.KindIdentifier {
					if name == "" {
						name = b.src.Text(sub)
					} else {
						alias = b.src.Text(sub)
						aliasNode = sub
					}
				}
			}
			imp.Items = append(imp.Items, ImportItem{Name: name, Alias: alias})
			if aliasNode != nil {
				b.declareImportName(alias, aliasNode, node, scope)
			}
		case "import_list":
			for j := uint(0); j < child.ChildCount(); j++ {
				collectItem(child.Child(j))
			}
		}
	}

	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)

		switch child.Kind() {
		case "import":
			pastImportKeyword = true
		case parser.KindRelativeImport:
			imp.IsRelative = true
			text := b.src.Text(child)
			imp.Level = len(text) - len(strings.TrimLeft(text, "."))
			imp.Module = strings.TrimLeft(text, ".")
		case parser.KindDottedName, parser.KindIdentifier:
			if !pastImportKeyword {
				imp.Module = b.src.Text(child)
				continue
			}
			collectItem(child)
		default:
			if pastImportKeyword {
				collectItem(child)
			}
		}
	}

	ft.Imports = append(ft.Imports, imp)
}

func (b *Builder) declareImportName(name string, ident, decl *sitter.Node, scope *Scope) {
	if name == "" {
		return
	}
	scope.Declare(&Binding{
		Name:     name,
		Kind:     KindImport,
		Ident:    ident,
		Decl:     decl,
		Public:   IsPublic(name),
		Location: b.src.NodeLocation(ident),
	})
}

func (b *Builder) declareAssignment(node *sitter.Node, scope *Scope, ft *FileTable) {
	left := node.ChildByFieldName("left")
	if left == nil {
		return
	}
	var annotation string
	if t := node.ChildByFieldName("type"); t != nil {
		annotation = b.src.Text(t)
	}
	b.declareTargets(left, scope, ft, &annotation)
}

func (b *Builder) declareTargets(node *sitter.Node, scope *Scope, ft *FileTable, annotation *string) {
	if node == nil {
		return
	}
	if node.Kind() == parser.KindIdentifier {
		name := b.src.Text(node)
		if scope.isNonLocal(name) {
			return
		}
		kind := KindLocal
		if scope.Kind == ScopeModule && IsConstantName(name) {
			kind = KindConstant
		}
		if scope.Kind == ScopeClass {
			kind = KindField
		}
		binding := &Binding{
			Name:     name,
			Kind:     kind,
			Ident:    node,
			Decl:     node.Parent(),
			Public:   IsPublic(name),
			Location: b.src.NodeLocation(node),
		}
		if annotation != nil {
			binding.Annotation = *annotation
		}
		if scope.Kind == ScopeClass {
			binding.Class = scope.Parent.Binding(scope.Name)
		}
		scope.Declare(binding)
		return
	}
	if node.Kind() == parser.KindAttribute {
		// self.x targets are collected per-method as instance fields.
		return
	}
	for i := uint(0); i < node.ChildCount(); i++ {
		b.declareTargets(node.Child(i), scope, ft, annotation)
	}
}
