package parser

import (
	sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_python "github.com/tree-sitter/tree-sitter-python/bindings/go"
)

// GrammarLoader owns the tree-sitter language handles used by the engine.
type GrammarLoader struct {
	languages map[string]*sitter.Language
}

func NewGrammarLoader() *GrammarLoader {
	gl := &GrammarLoader{
		languages: make(map[string]*sitter.Language),
	}

	gl.languages["python"] = sitter.NewLanguage(tree_sitter_python.Language())

	return gl
}

func (gl *GrammarLoader) Language(name string) *sitter.Language {
	return gl.languages[name]
}
