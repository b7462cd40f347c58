package parser

import (
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"
)

// Span is a half-open byte range [Start, End) into a file's content.
type Span struct {
	Start uint `json:"start"`
	End   uint `json:"end"`
}

func (s Span) Contains(other Span) bool {
	return s.Start <= other.Start && other.End <= s.End
}

func (s Span) Overlaps(other Span) bool {
	return s.Start < other.End && other.Start < s.End
}

type Location struct {
	Path   string `json:"path"`
	Line   int    `json:"line"`
	Column int    `json:"column"`
}

// Source is one parsed file: its text plus the live syntax tree. The
// tree must stay open for as long as any node handed out by this Source
// is still referenced; Close releases it.
type Source struct {
	Path    string
	Content []byte
	tree    *sitter.Tree
}

func (s *Source) Root() *sitter.Node {
	return s.tree.RootNode()
}

func (s *Source) Close() {
	if s.tree != nil {
		s.tree.Close()
		s.tree = nil
	}
}

func (s *Source) Text(node *sitter.Node) string {
	if node == nil {
		return ""
	}
	return string(s.Content[node.StartByte():node.EndByte()])
}

func (s *Source) NodeSpan(node *sitter.Node) Span {
	return Span{Start: node.StartByte(), End: node.EndByte()}
}

func (s *Source) NodeLocation(node *sitter.Node) Location {
	return Location{
		Path:   s.Path,
		Line:   int(node.StartPosition().Row) + 1,
		Column: int(node.StartPosition().Column) + 1,
	}
}

// LineStart returns the byte offset of the first character of the line
// containing offset.
func (s *Source) LineStart(offset uint) uint {
	for offset > 0 && s.Content[offset-1] != '\n' {
		offset--
	}
	return offset
}

// LineEnd returns the byte offset just past the newline terminating the
// line containing offset (or len(content) for the last line).
func (s *Source) LineEnd(offset uint) uint {
	n := uint(len(s.Content))
	for offset < n && s.Content[offset] != '\n' {
		offset++
	}
	if offset < n {
		offset++
	}
	return offset
}

// Indent returns the leading whitespace of the line the node starts on.
func (s *Source) Indent(node *sitter.Node) string {
	start := s.LineStart(node.StartByte())
	end := start
	for end < uint(len(s.Content)) && (s.Content[end] == ' ' || s.Content[end] == '\t') {
		end++
	}
	return string(s.Content[start:end])
}

// StatementSpan widens a statement node's span to full lines, including
// the trailing newline, so deleting it leaves no blank residue.
func (s *Source) StatementSpan(node *sitter.Node) Span {
	return Span{
		Start: s.LineStart(node.StartByte()),
		End:   s.LineEnd(node.EndByte() - 1),
	}
}

// OffsetForLine returns the byte offset of the start of a 1-based line,
// or the content length when the line is past the end of file.
func (s *Source) OffsetForLine(line int) uint {
	current := 1
	for i := 0; i < len(s.Content); i++ {
		if current == line {
			return uint(i)
		}
		if s.Content[i] == '\n' {
			current++
		}
	}
	return uint(len(s.Content))
}

// Reindent rebases every line of text from one indentation prefix to
// another, leaving blank lines untouched.
func Reindent(text, from, to string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			lines[i] = ""
			continue
		}
		lines[i] = to + strings.TrimPrefix(line, from)
	}
	return strings.Join(lines, "\n")
}
