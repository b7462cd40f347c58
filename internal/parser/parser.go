package parser

import (
	"path/filepath"
	"time"

	sitter "github.com/tree-sitter/go-tree-sitter"

	"reshape/internal/core/errors"
	"reshape/internal/shared/observability"
)

type Parser struct {
	loader *GrammarLoader
}

func NewParser(loader *GrammarLoader) *Parser {
	return &Parser{loader: loader}
}

func (p *Parser) IsSupportedPath(path string) bool {
	return filepath.Ext(path) == ".py"
}

// ParseFile parses the content into a Source the caller owns. Syntax
// errors are fatal for the file: a refactoring engine must not plan
// edits against a tree it only partially understood.
func (p *Parser) ParseFile(path string, content []byte) (*Source, error) {
	if !p.IsSupportedPath(path) {
		return nil, errors.Newf(errors.CodeUnsupportedConstruct, "unsupported file type %q", filepath.Ext(path))
	}

	grammar := p.loader.Language("python")
	if grammar == nil {
		return nil, errors.New(errors.CodeInternal, "python grammar not loaded")
	}

	start := time.Now()

	tsParser := sitter.NewParser()
	defer tsParser.Close()
	tsParser.SetLanguage(grammar)

	tree := tsParser.Parse(content, nil)
	if tree == nil {
		return nil, errors.Newf(errors.CodeParseFailure, "parse returned no tree for %s", path)
	}

	if tree.RootNode().HasError() {
		tree.Close()
		derr := &errors.DomainError{Code: errors.CodeParseFailure, Message: "syntax error"}
		return nil, derr.WithContext(errors.CtxPath, path)
	}

	observability.ParsingDuration.WithLabelValues("python").Observe(time.Since(start).Seconds())

	return &Source{Path: path, Content: content, tree: tree}, nil
}
