package parser

import (
	sitter "github.com/tree-sitter/go-tree-sitter"
)

// Walk visits node and its subtree top-down. Returning false from visit
// prunes the subtree below the current node.
func Walk(node *sitter.Node, visit func(*sitter.Node) bool) {
	if node == nil {
		return
	}
	if !visit(node) {
		return
	}
	for i := uint(0); i < node.ChildCount(); i++ {
		Walk(node.Child(i), visit)
	}
}

// Children returns the direct children of node.
func Children(node *sitter.Node) []*sitter.Node {
	if node == nil {
		return nil
	}
	out := make([]*sitter.Node, 0, node.ChildCount())
	for i := uint(0); i < node.ChildCount(); i++ {
		out = append(out, node.Child(i))
	}
	return out
}

// ChildOfKind returns the first direct child with the given kind.
func ChildOfKind(node *sitter.Node, kind string) *sitter.Node {
	if node == nil {
		return nil
	}
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		if child.Kind() == kind {
			return child
		}
	}
	return nil
}

// ChildrenOfKind returns all direct children with the given kind.
func ChildrenOfKind(node *sitter.Node, kind string) []*sitter.Node {
	var out []*sitter.Node
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		if child.Kind() == kind {
			out = append(out, child)
		}
	}
	return out
}

// Statements returns the statement nodes of a block or module body,
// skipping comments.
func Statements(body *sitter.Node) []*sitter.Node {
	var out []*sitter.Node
	for i := uint(0); i < body.ChildCount(); i++ {
		child := body.Child(i)
		if child.Kind() == KindComment {
			continue
		}
		out = append(out, child)
	}
	return out
}

// SameNode reports whether two nodes cover the same byte range. Node
// pointers from separate cursor walks are not comparable directly.
func SameNode(a, b *sitter.Node) bool {
	if a == nil || b == nil {
		return false
	}
	return a.StartByte() == b.StartByte() && a.EndByte() == b.EndByte()
}

// IsAttributeName reports whether the identifier is the member half of
// an attribute access (the `y` in `x.y`).
func IsAttributeName(n *sitter.Node) bool {
	parent := n.Parent()
	if parent == nil || parent.Kind() != KindAttribute {
		return false
	}
	attr := parent.ChildByFieldName("attribute")
	return attr != nil && SameNode(attr, n)
}

// IsKeywordArgumentName reports whether the identifier is the name half
// of a keyword argument (the `k` in `f(k=v)`).
func IsKeywordArgumentName(n *sitter.Node) bool {
	parent := n.Parent()
	if parent == nil || parent.Kind() != KindKeywordArgument {
		return false
	}
	name := parent.ChildByFieldName("name")
	return name != nil && SameNode(name, n)
}

// EnclosingOfKind walks up the tree to the nearest ancestor of kind.
func EnclosingOfKind(node *sitter.Node, kind string) *sitter.Node {
	for p := node.Parent(); p != nil; p = p.Parent() {
		if p.Kind() == kind {
			return p
		}
	}
	return nil
}
