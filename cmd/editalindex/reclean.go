package main

import (
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/dshills/editalindex/internal/indexer"
)

func newRecleanCmd(a *app) *cobra.Command {
	var opts indexer.RecleanOptions
	cmd := &cobra.Command{
		Use:   "reclean",
		Short: "Re-clean stored bodies that still carry PDF artifacts",
		Long: `Walks every stored content and rewrites bodies that still look like raw
PDF output (publisher footers, leader dots, page counters). The repair model
is used when cleanup.ai is enabled; otherwise the cleaning rules run again.
The pass stops early when the model runs out of credit or is rate limited.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			idx, err := a.indexer(cmd.Context(), false)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			opts.Progress = func(id string, cleaned bool, err error) {
				switch {
				case err != nil:
					fmt.Fprint(out, "x")
				case cleaned:
					fmt.Fprint(out, ".")
				default:
					fmt.Fprint(out, "s")
				}
			}

			stats, err := idx.Reclean(cmd.Context(), opts)
			if stats != nil {
				fmt.Fprintf(out, "\nchecked %s, dirty %s, cleaned %s, errored %s in %s\n",
					humanize.Comma(int64(stats.Checked)), humanize.Comma(int64(stats.Dirty)),
					humanize.Comma(int64(stats.Cleaned)), humanize.Comma(int64(stats.Errors)),
					stats.Duration.Round(1e6))
			}
			if errors.Is(err, indexer.ErrCapacityExhausted) {
				fmt.Fprintf(out, "stopped at %s; re-run once the model has capacity\n", stats.StopID)
			}
			return err
		},
	}
	cmd.Flags().IntVar(&opts.BatchSize, "batch", indexer.DefaultRecleanBatch, "contents fetched per page")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "stop after checking this many contents (0 = all)")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "count dirty contents without rewriting them")
	return cmd
}
