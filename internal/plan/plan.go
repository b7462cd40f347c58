package plan

import (
	"sort"
	"time"

	"github.com/google/uuid"
	sitter "github.com/tree-sitter/go-tree-sitter"

	"reshape/internal/core/errors"
	"reshape/internal/parser"
)

// Edit replaces one byte span of a file with new text. Old carries the
// text being replaced so application can verify the file has not moved
// under the plan.
type Edit struct {
	Span parser.Span `json:"span"`
	Old  string      `json:"old"`
	New  string      `json:"new"`
}

// FilePlan is the ordered edit list for a single file.
type FilePlan struct {
	Path  string `json:"path"`
	Edits []Edit `json:"edits"`
}

// RewritePlan is the atomic result of one refactoring operation: every
// edit across every affected file, or nothing. Once produced it is an
// immutable value handed whole to the write-back collaborator.
type RewritePlan struct {
	ID          string     `json:"id"`
	Kind        string     `json:"kind"`
	Description string     `json:"description,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	Files       []FilePlan `json:"files"`

	byPath map[string]int
}

func New(kind string) *RewritePlan {
	return &RewritePlan{
		ID:        uuid.NewString(),
		Kind:      kind,
		CreatedAt: time.Now().UTC(),
		byPath:    make(map[string]int),
	}
}

// Add appends an edit for the given file.
func (p *RewritePlan) Add(path string, edit Edit) {
	if p.byPath == nil {
		p.byPath = make(map[string]int)
		for i, fp := range p.Files {
			p.byPath[fp.Path] = i
		}
	}
	idx, ok := p.byPath[path]
	if !ok {
		p.Files = append(p.Files, FilePlan{Path: path})
		idx = len(p.Files) - 1
		p.byPath[path] = idx
	}
	p.Files[idx].Edits = append(p.Files[idx].Edits, edit)
}

// ReplaceNode records replacing a node's exact text.
func (p *RewritePlan) ReplaceNode(src *parser.Source, node *sitter.Node, text string) {
	p.Add(src.Path, Edit{Span: src.NodeSpan(node), Old: src.Text(node), New: text})
}

// DeleteStatement records removing a statement's full lines.
func (p *RewritePlan) DeleteStatement(src *parser.Source, node *sitter.Node) {
	span := src.StatementSpan(node)
	p.Add(src.Path, Edit{Span: span, Old: string(src.Content[span.Start:span.End]), New: ""})
}

// ReplaceStatement records replacing a statement's full lines with text
// (which must carry its own indentation and trailing newline).
func (p *RewritePlan) ReplaceStatement(src *parser.Source, node *sitter.Node, text string) {
	span := src.StatementSpan(node)
	p.Add(src.Path, Edit{Span: span, Old: string(src.Content[span.Start:span.End]), New: text})
}

// InsertAt records inserting text at a byte offset.
func (p *RewritePlan) InsertAt(src *parser.Source, offset uint, text string) {
	p.Add(src.Path, Edit{Span: parser.Span{Start: offset, End: offset}, Old: "", New: text})
}

// EditCount is the plan's total number of edits.
func (p *RewritePlan) EditCount() int {
	n := 0
	for _, fp := range p.Files {
		n += len(fp.Edits)
	}
	return n
}

// Normalize sorts files and edits into application order and rejects
// plans with overlapping spans: a plan that could garble a file is a
// bug upstream, never something to apply.
func (p *RewritePlan) Normalize() error {
	sort.Slice(p.Files, func(i, j int) bool { return p.Files[i].Path < p.Files[j].Path })
	p.byPath = nil

	for fi := range p.Files {
		fp := &p.Files[fi]
		sort.SliceStable(fp.Edits, func(i, j int) bool {
			if fp.Edits[i].Span.Start != fp.Edits[j].Span.Start {
				return fp.Edits[i].Span.Start < fp.Edits[j].Span.Start
			}
			return fp.Edits[i].Span.End < fp.Edits[j].Span.End
		})

		for i := 1; i < len(fp.Edits); i++ {
			prev, cur := fp.Edits[i-1], fp.Edits[i]
			if prev.Span.End > cur.Span.Start {
				derr := &errors.DomainError{
					Code:    errors.CodeValidationError,
					Message: "rewrite plan contains overlapping edits",
				}
				derr.WithContext(errors.CtxPath, fp.Path)
				return derr
			}
		}
	}
	return nil
}

// Apply materializes a file's edits against its original content. Used
// by tests and preview; production application is the write-back
// collaborator's concern.
func Apply(content []byte, edits []Edit) ([]byte, error) {
	sorted := append([]Edit(nil), edits...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Span.Start < sorted[j].Span.Start })

	var out []byte
	cursor := uint(0)
	for _, e := range sorted {
		if e.Span.Start < cursor || e.Span.End > uint(len(content)) {
			return nil, errors.New(errors.CodeValidationError, "edit span out of bounds or overlapping")
		}
		if got := string(content[e.Span.Start:e.Span.End]); e.Old != "" && got != e.Old {
			return nil, errors.Newf(errors.CodeValidationError, "edit expects %q at span, file has %q", e.Old, got)
		}
		out = append(out, content[cursor:e.Span.Start]...)
		out = append(out, e.New...)
		cursor = e.Span.End
	}
	out = append(out, content[cursor:]...)
	return out, nil
}
