package batch

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"

	"github.com/MeKo-Tech/coincount/internal/utils"
)

// imageFilter decides which paths take part in a batch run.
type imageFilter struct {
	recursive bool
	include   []string
	exclude   []string
	// Absolute output directories; walking never enters them so annotated
	// images from an earlier run are not counted again.
	outputDirs []string
}

func newImageFilter(c *Config) imageFilter {
	f := imageFilter{recursive: c.Recursive, include: c.IncludePatterns, exclude: c.ExcludePatterns}
	for _, dir := range []string{c.AnnotatedDir, c.MaskDir} {
		if dir == "" {
			continue
		}
		if abs, err := filepath.Abs(dir); err == nil {
			f.outputDirs = append(f.outputDirs, abs)
		}
	}
	return f
}

// accepts reports whether path is a supported image passing the patterns.
// Exclude patterns win; no include patterns means everything else passes.
// Patterns match the base name only.
func (f imageFilter) accepts(path string) bool {
	if !utils.IsSupportedImage(path) {
		return false
	}
	base := filepath.Base(path)
	if matchesAny(base, f.exclude) {
		return false
	}
	return len(f.include) == 0 || matchesAny(base, f.include)
}

func (f imageFilter) isOutputDir(path string) bool {
	if len(f.outputDirs) == 0 {
		return false
	}
	abs, err := filepath.Abs(path)
	return err == nil && slices.Contains(f.outputDirs, abs)
}

func matchesAny(base string, patterns []string) bool {
	return slices.ContainsFunc(patterns, func(p string) bool {
		ok, _ := filepath.Match(p, base)
		return ok
	})
}

// discover expands files and directories into image paths. Named files keep
// argument order, directory listings are sorted, duplicates are dropped.
func (f imageFilter) discover(args []string) ([]string, error) {
	var out []string
	seen := make(map[string]struct{})
	add := func(path string) {
		clean := filepath.Clean(path)
		if _, dup := seen[clean]; !dup {
			seen[clean] = struct{}{}
			out = append(out, clean)
		}
	}

	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("cannot access %s: %w", arg, err)
		}
		if !info.IsDir() {
			if f.accepts(arg) {
				add(arg)
			}
			continue
		}
		listed, err := f.walk(arg)
		if err != nil {
			return nil, err
		}
		for _, p := range listed {
			add(p)
		}
	}
	return out, nil
}

func (f imageFilter) walk(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path == root {
				return nil
			}
			if !f.recursive || f.isOutputDir(path) {
				return filepath.SkipDir
			}
			return nil
		}
		if f.accepts(path) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", root, err)
	}
	slices.Sort(files)
	return files, nil
}
