package main

import (
	"fmt"
	"io"
	"sort"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/dshills/editalindex/internal/indexer"
)

// marksPerLine wraps the progress marks
const marksPerLine = 60

type indexFlags struct {
	dryRun     bool
	discipline string
	maxFiles   int
	workers    int
}

func newIndexCmd(a *app) *cobra.Command {
	var f indexFlags
	cmd := &cobra.Command{
		Use:   "index [roots...]",
		Short: "Index the study bank",
		Long: `Crawls the bank directories for PDFs, classifies each by its folder names,
extracts and cleans the text, embeds it and stores it. Documents already in
the store are skipped, so the command can be re-run safely.

Progress marks: "." indexed, "s" skipped, "_" no text, "x" error.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIndex(cmd, a, f, args)
		},
	}
	cmd.Flags().BoolVar(&f.dryRun, "dry-run", false, "classify and extract without embedding or storing")
	cmd.Flags().StringVar(&f.discipline, "discipline", "", "only index disciplines whose name contains this text")
	cmd.Flags().IntVar(&f.maxFiles, "max-files", 0, "stop after this many documents (0 = no limit)")
	cmd.Flags().IntVar(&f.workers, "workers", 0, "documents processed concurrently (default from config)")
	return cmd
}

func runIndex(cmd *cobra.Command, a *app, f indexFlags, roots []string) error {
	if len(roots) == 0 {
		roots = a.cfg.Indexer.Roots
	}
	if len(roots) == 0 {
		return fmt.Errorf("no bank roots: pass directories or set %s", "BANK_DIR")
	}
	workers := f.workers
	if workers <= 0 {
		workers = a.cfg.Indexer.Workers
	}

	idx, err := a.indexer(cmd.Context(), !f.dryRun)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	marks := 0
	stats, err := idx.Run(cmd.Context(), indexer.Options{
		Roots:            roots,
		DryRun:           f.dryRun,
		DisciplineFilter: f.discipline,
		MaxFiles:         f.maxFiles,
		Workers:          workers,
		Progress: func(ev indexer.Event) {
			_, _ = io.WriteString(out, progressMark(ev))
			if marks++; marks%marksPerLine == 0 {
				_, _ = io.WriteString(out, "\n")
			}
		},
	})
	if marks%marksPerLine != 0 {
		_, _ = io.WriteString(out, "\n")
	}
	if stats != nil {
		printIndexStats(out, stats, f.dryRun)
	}
	if err != nil {
		return err
	}
	if stats.Errors > 0 {
		return fmt.Errorf("%d documents failed to index", stats.Errors)
	}
	return nil
}

func progressMark(ev indexer.Event) string {
	switch ev.Outcome {
	case indexer.OutcomeIndexed:
		return "."
	case indexer.OutcomeError:
		return "x"
	}
	if ev.Reason == indexer.SkipNoText {
		return "_"
	}
	return "s"
}

func printIndexStats(w io.Writer, s *indexer.Stats, dryRun bool) {
	verb := "indexed"
	if dryRun {
		verb = "would index"
	}
	fmt.Fprintf(w, "processed %s, %s %s, skipped %s, errored %s in %s\n",
		humanize.Comma(int64(s.Total)), verb, humanize.Comma(int64(s.Indexed)),
		humanize.Comma(int64(s.Skipped)), humanize.Comma(int64(s.Errors)), s.Duration.Round(1e6))

	reasons := make([]string, 0, len(s.Skips))
	for r := range s.Skips {
		reasons = append(reasons, string(r))
	}
	sort.Strings(reasons)
	for _, r := range reasons {
		fmt.Fprintf(w, "  skipped %-16s %s\n", r, humanize.Comma(int64(s.Skips[indexer.SkipReason(r)])))
	}
	for _, msg := range s.ErrorMessages {
		fmt.Fprintf(w, "  error: %s\n", msg)
	}
}
