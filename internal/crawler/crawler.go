// Package crawler walks a folder tree and yields candidate source documents.
//
// Traversal is lazy and depth-first. Each range over the returned sequence
// starts a fresh walk, so a sequence can be re-consumed after a partial read.
package crawler

import (
	"context"
	"io/fs"
	"iter"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
)

// DefaultExtensions are the file extensions yielded when none are configured
var DefaultExtensions = []string{".pdf"}

// Options configures a Crawler
type Options struct {
	Extensions []string // Lowercase extensions including the dot (default: .pdf)
	MaxFiles   int      // Stop traversal after this many files across all roots (0 = unlimited)
	Logger     *slog.Logger
}

// Crawler enumerates documents under one or more roots
type Crawler struct {
	extensions []string
	maxFiles   int
	logger     *slog.Logger
}

// New creates a crawler
func New(opts Options) *Crawler {
	exts := opts.Extensions
	if len(exts) == 0 {
		exts = DefaultExtensions
	}
	normalized := make([]string, 0, len(exts))
	for _, e := range exts {
		e = strings.ToLower(e)
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		normalized = append(normalized, e)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Crawler{
		extensions: normalized,
		maxFiles:   opts.MaxFiles,
		logger:     logger,
	}
}

// Walk returns a lazy sequence of document paths under roots.
// Hidden entries and directories ending in ".zip" are skipped, and directories
// that cannot be read are logged and skipped. The walk stops when the consumer
// stops ranging, the context is cancelled, or MaxFiles is reached.
func (c *Crawler) Walk(ctx context.Context, roots ...string) iter.Seq[string] {
	return func(yield func(string) bool) {
		count := 0
		for _, root := range roots {
			stopped := false
			_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
				if ctx.Err() != nil {
					stopped = true
					return fs.SkipAll
				}

				if err != nil {
					// A directory that fails to open is reported once with d set
					c.logger.Warn("skipping unreadable path", "path", path, "error", err)
					if d != nil && d.IsDir() {
						return fs.SkipDir
					}
					return nil
				}

				name := d.Name()
				if path != root && strings.HasPrefix(name, ".") {
					if d.IsDir() {
						return fs.SkipDir
					}
					return nil
				}

				if d.IsDir() {
					if path != root && strings.HasSuffix(strings.ToLower(name), ".zip") {
						return fs.SkipDir
					}
					return nil
				}

				if !c.accepts(name) {
					return nil
				}

				if !yield(path) {
					stopped = true
					return fs.SkipAll
				}

				count++
				if c.maxFiles > 0 && count >= c.maxFiles {
					stopped = true
					return fs.SkipAll
				}
				return nil
			})
			if stopped {
				return
			}
		}
	}
}

// Collect drains Walk into a slice
func (c *Crawler) Collect(ctx context.Context, roots ...string) []string {
	return slices.Collect(c.Walk(ctx, roots...))
}

func (c *Crawler) accepts(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return slices.Contains(c.extensions, ext)
}
