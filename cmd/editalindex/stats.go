package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/dshills/editalindex/internal/storage"
)

func newStatsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show indexed content per discipline",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			total, err := store.CountContents(cmd.Context())
			if err != nil {
				return err
			}
			counts, err := store.CountByDiscipline(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s contents indexed (%s", humanize.Comma(int64(total)), store.Backend())
			if strings.HasPrefix(store.Backend(), storage.DriverSQLite) {
				if info, err := os.Stat(a.cfg.Database.Path); err == nil {
					fmt.Fprintf(out, ", %s", humanize.Bytes(uint64(info.Size())))
				}
			}
			fmt.Fprintln(out, ")")
			for _, c := range counts {
				fmt.Fprintf(out, "  %-32s %8s\n", c.Name, humanize.Comma(int64(c.Count)))
			}
			return nil
		},
	}
}
