package engine

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"

	"github.com/gobwas/glob"

	"reshape/internal/parser"
)

// scanRoot walks the project root and returns the analyzable files,
// honoring the exclude patterns the same way the watcher does.
func scanRoot(p *parser.Parser, root string, excludeDirs, excludeFiles []string) ([]string, error) {
	dirGlobs := make([]glob.Glob, 0, len(excludeDirs))
	for _, p := range excludeDirs {
		g, err := glob.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid exclude dir pattern %q: %w", p, err)
		}
		dirGlobs = append(dirGlobs, g)
	}

	fileGlobs := make([]glob.Glob, 0, len(excludeFiles))
	for _, p := range excludeFiles {
		g, err := glob.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid exclude file pattern %q: %w", p, err)
		}
		fileGlobs = append(fileGlobs, g)
	}

	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		base := filepath.Base(path)
		if d.IsDir() {
			for _, g := range dirGlobs {
				if g.Match(base) {
					return filepath.SkipDir
				}
			}
			return nil
		}

		if !p.IsSupportedPath(path) {
			return nil
		}
		for _, g := range fileGlobs {
			if g.Match(base) {
				return nil
			}
		}

		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(files)
	return files, nil
}
