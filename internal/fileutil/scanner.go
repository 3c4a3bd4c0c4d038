// Package fileutil provides directory scanning used by the Task Analyzer
// to build the truncated source-tree listing it feeds to the
// file-prediction LLM prompt (§4.3).
package fileutil

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ScanOptions configures the directory scanning behavior.
type ScanOptions struct {
	// Extensions restricts results to these file extensions (e.g. ".go").
	// Empty means no extension filter.
	Extensions []string
	// ExcludeDirs names directories to skip entirely (e.g. ".git").
	ExcludeDirs []string
	// MaxDepth limits recursion depth; 0 means unlimited.
	MaxDepth int
	// MaxFiles caps the number of files returned; 0 means unlimited. Used
	// to keep the tree listing small enough to fit an LLM prompt budget.
	MaxFiles int
}

// ScanResult contains the results of a directory scan.
type ScanResult struct {
	Files []string // paths relative to the scanned root, sorted
	Truncated bool
}

// ScanDirectory walks dir and returns matching relative paths.
func ScanDirectory(dir string, opts ScanOptions) (*ScanResult, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("accessing directory %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("not a directory: %s", dir)
	}

	extMap := make(map[string]bool, len(opts.Extensions))
	for _, ext := range opts.Extensions {
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		extMap[strings.ToLower(ext)] = true
	}
	excludeMap := make(map[string]bool, len(opts.ExcludeDirs))
	for _, d := range opts.ExcludeDirs {
		excludeMap[d] = true
	}

	result := &ScanResult{Files: make([]string, 0, 128)}

	err = filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // tolerate unreadable entries, continue walking
		}
		if path == dir {
			return nil
		}
		if opts.MaxFiles > 0 && len(result.Files) >= opts.MaxFiles {
			result.Truncated = true
			return filepath.SkipAll
		}

		rel, relErr := filepath.Rel(dir, path)
		if relErr != nil {
			return nil
		}

		if d.IsDir() {
			if excludeMap[d.Name()] || strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			if opts.MaxDepth > 0 {
				depth := strings.Count(rel, string(filepath.Separator)) + 1
				if depth >= opts.MaxDepth {
					return filepath.SkipDir
				}
			}
			return nil
		}

		if len(extMap) > 0 && !extMap[strings.ToLower(filepath.Ext(d.Name()))] {
			return nil
		}

		result.Files = append(result.Files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", dir, err)
	}

	sort.Strings(result.Files)
	return result, nil
}
