package plan

import (
	"encoding/json"
	"fmt"
	"strings"
)

// MarshalJSON-friendly plan serialization for the write-back
// collaborator and the audit log.
func (p *RewritePlan) Serialize() ([]byte, error) {
	return json.MarshalIndent(p, "", "  ")
}

func Deserialize(data []byte) (*RewritePlan, error) {
	var p RewritePlan
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode rewrite plan: %w", err)
	}
	return &p, nil
}

// Preview renders a human-readable before/after view of the plan
// against the original file contents.
func (p *RewritePlan) Preview(contents map[string][]byte) (string, error) {
	var b strings.Builder

	fmt.Fprintf(&b, "plan %s (%s): %d edit(s) across %d file(s)\n", p.ID, p.Kind, p.EditCount(), len(p.Files))

	for _, fp := range p.Files {
		original, ok := contents[fp.Path]
		if !ok {
			return "", fmt.Errorf("no content for %s", fp.Path)
		}
		rewritten, err := Apply(original, fp.Edits)
		if err != nil {
			return "", fmt.Errorf("apply edits for preview of %s: %w", fp.Path, err)
		}

		fmt.Fprintf(&b, "--- %s\n+++ %s (rewritten)\n", fp.Path, fp.Path)
		writeLineDiff(&b, string(original), string(rewritten))
	}

	return b.String(), nil
}

// writeLineDiff emits removed/added lines for the regions that changed.
// It is a plain longest-common-prefix/suffix diff: edits are local, so
// this stays readable without a full diff algorithm.
func writeLineDiff(b *strings.Builder, before, after string) {
	beforeLines := strings.Split(before, "\n")
	afterLines := strings.Split(after, "\n")

	start := 0
	for start < len(beforeLines) && start < len(afterLines) && beforeLines[start] == afterLines[start] {
		start++
	}

	endB, endA := len(beforeLines), len(afterLines)
	for endB > start && endA > start && beforeLines[endB-1] == afterLines[endA-1] {
		endB--
		endA--
	}

	for _, line := range beforeLines[start:endB] {
		fmt.Fprintf(b, "-%s\n", line)
	}
	for _, line := range afterLines[start:endA] {
		fmt.Fprintf(b, "+%s\n", line)
	}
}
