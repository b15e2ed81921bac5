package walker

import (
	"fmt"
	"io/fs"
	"iter"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/sirupsen/logrus"
)

// Class labels a file for the batcher.
type Class int

const (
	Small Class = iota
	Large
)

func (c Class) String() string {
	if c == Large {
		return "large"
	}
	return "small"
}

// Classify returns Large when size is at or above threshold.
func Classify(size, threshold int64) Class {
	if size >= threshold {
		return Large
	}
	return Small
}

// FileEntry represents a discovered regular file
type FileEntry struct {
	Path    string // Absolute path
	RelPath string // Slash-separated path relative to the root
	Size    int64
	Class   Class
}

// Options configures a Walker.
type Options struct {
	// MaxDepth limits how deep files are collected. The root is depth 0, so
	// files directly inside it are at depth 1. Values below 1 mean unlimited.
	MaxDepth  int
	Threshold int64
	Includes  []string
	Excludes  []string
	Logger    logrus.FieldLogger
}

// Walker walks local files with include/exclude pattern support
type Walker struct {
	root string
	opts Options
	log  logrus.FieldLogger
}

// NewWalker creates a new file walker
func NewWalker(root string, opts Options) (*Walker, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("get absolute path: %w", err)
	}

	// WalkDir does not descend into a symlinked root.
	absRoot, err = filepath.EvalSymlinks(absRoot)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}

	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root is not a directory: %s", absRoot)
	}

	for _, pattern := range append(append([]string{}, opts.Includes...), opts.Excludes...) {
		if !doublestar.ValidatePattern(strings.TrimSuffix(pattern, "/")) {
			return nil, fmt.Errorf("invalid pattern %q", pattern)
		}
	}

	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}

	return &Walker{
		root: absRoot,
		opts: opts,
		log:  log,
	}, nil
}

// Root returns the absolute root directory with symlinks resolved.
func (w *Walker) Root() string {
	return w.root
}

// Files returns a lazy sequence of the regular files under the root. Each
// call starts a fresh walk. Unreadable subtrees and files that vanish before
// they can be stat'ed are logged and skipped.
func (w *Walker) Files() iter.Seq[FileEntry] {
	return func(yield func(FileEntry) bool) {
		_ = filepath.WalkDir(w.root, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				if p == w.root {
					w.log.WithError(err).WithField("path", p).Warn("cannot read source root")
					return filepath.SkipAll
				}
				w.log.WithError(err).WithField("path", p).Warn("skipping unreadable path")
				if d != nil && d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}

			relPath, err := filepath.Rel(w.root, p)
			if err != nil {
				w.log.WithError(err).WithField("path", p).Warn("skipping path outside root")
				return nil
			}
			relPath = filepath.ToSlash(relPath)
			depth := pathDepth(relPath)

			if d.IsDir() {
				if p != w.root && w.opts.MaxDepth > 0 && depth >= w.opts.MaxDepth {
					return filepath.SkipDir
				}
				return nil
			}

			if !d.Type().IsRegular() {
				return nil
			}
			if w.opts.MaxDepth > 0 && depth > w.opts.MaxDepth {
				return nil
			}
			if !w.selected(relPath) {
				return nil
			}

			info, err := d.Info()
			if err != nil {
				w.log.WithError(err).WithField("path", p).Warn("skipping file that could not be stat'ed")
				return nil
			}

			entry := FileEntry{
				Path:    p,
				RelPath: relPath,
				Size:    info.Size(),
				Class:   Classify(info.Size(), w.opts.Threshold),
			}
			if !yield(entry) {
				return filepath.SkipAll
			}
			return nil
		})
	}
}

func pathDepth(relPath string) int {
	if relPath == "." || relPath == "" {
		return 0
	}
	return strings.Count(relPath, "/") + 1
}

// selected applies the include filter first, then the exclude filter.
func (w *Walker) selected(relPath string) bool {
	if len(w.opts.Includes) > 0 && !matchAny(w.opts.Includes, relPath) {
		return false
	}
	return !matchAny(w.opts.Excludes, relPath)
}

// matchAny checks relPath against patterns. Patterns are tried against the
// whole relative path and against the base name; a trailing "/" marks a
// directory pattern that matches everything below a matching directory.
func matchAny(patterns []string, relPath string) bool {
	base := path.Base(relPath)
	for _, pattern := range patterns {
		if strings.HasSuffix(pattern, "/") {
			dirPattern := strings.TrimSuffix(pattern, "/")
			parts := strings.Split(relPath, "/")
			for i := 1; i < len(parts); i++ {
				if matched, _ := doublestar.Match(dirPattern, strings.Join(parts[:i], "/")); matched {
					return true
				}
				if matched, _ := doublestar.Match(dirPattern, parts[i-1]); matched {
					return true
				}
			}
			continue
		}

		if matched, _ := doublestar.Match(pattern, relPath); matched {
			return true
		}
		if matched, _ := doublestar.Match(pattern, base); matched {
			return true
		}
	}
	return false
}
