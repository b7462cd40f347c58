package project

import (
	"os"
	"path/filepath"
	"strings"
)

// ModuleNamer maps file paths to dotted Python module names relative to
// a project root, skipping directory prefixes that are not packages.
type ModuleNamer struct {
	root string
}

func NewModuleNamer(root string) *ModuleNamer {
	return &ModuleNamer{root: root}
}

func (r *ModuleNamer) ModuleName(filePath string) string {
	rel, err := filepath.Rel(r.root, filePath)
	if err != nil {
		return ""
	}

	parts := strings.Split(rel, string(os.PathSeparator))

	// Remove non-package prefixes (dirs without __init__.py)
	packageStart := 0
	for i := 0; i < len(parts)-1; i++ {
		checkPath := filepath.Join(r.root, filepath.Join(parts[:i+1]...), "__init__.py")
		if _, err := os.Stat(checkPath); os.IsNotExist(err) {
			packageStart = i + 1
		} else {
			break
		}
	}

	parts = parts[packageStart:]

	parts[len(parts)-1] = strings.TrimSuffix(parts[len(parts)-1], ".py")

	if parts[len(parts)-1] == "__init__" {
		parts = parts[:len(parts)-1]
	}

	return strings.Join(parts, ".")
}

// ResolveImport expands a relative import against the importing module.
func ResolveImport(fromModule, importStmt string, isRelative bool, relativeLevel int) string {
	if !isRelative {
		return importStmt
	}

	parts := strings.Split(fromModule, ".")
	if relativeLevel >= len(parts) {
		return importStmt
	}

	base := strings.Join(parts[:len(parts)-relativeLevel], ".")
	if importStmt == "" {
		return base
	}
	return base + "." + importStmt
}
