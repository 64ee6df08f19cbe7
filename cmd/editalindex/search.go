package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/dshills/editalindex/internal/searcher"
)

type searchFlags struct {
	limit         int
	mode          string
	minSimilarity float64
	json          bool
}

func newSearchCmd(a *app) *cobra.Command {
	var f searchFlags
	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search indexed study material",
		Long: `Ranks indexed contents against the query. Vector mode keeps hits whose
cosine similarity exceeds --min-similarity; keyword mode needs no embedding
provider; hybrid fuses both rankings.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.searcher(cmd.Context())
			if err != nil {
				return err
			}
			resp, err := s.Search(cmd.Context(), searcher.SearchRequest{
				Query:         args[0],
				Limit:         f.limit,
				Mode:          searcher.SearchMode(f.mode),
				MinSimilarity: f.minSimilarity,
			})
			if err != nil {
				return fmt.Errorf("search failed: %w", err)
			}
			if f.json {
				data, err := json.MarshalIndent(resp.Results, "", "  ")
				if err != nil {
					return fmt.Errorf("failed to marshal results: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return nil
			}
			printResults(cmd.OutOrStdout(), resp)
			return nil
		},
	}
	cmd.Flags().IntVarP(&f.limit, "limit", "n", searcher.DefaultLimit, "maximum number of results")
	cmd.Flags().StringVar(&f.mode, "mode", "", "vector, keyword or hybrid (default vector)")
	cmd.Flags().Float64Var(&f.minSimilarity, "min-similarity", searcher.DefaultMinSimilarity, "minimum cosine similarity for vector hits")
	cmd.Flags().BoolVar(&f.json, "json", false, "output results as JSON")
	return cmd
}

func printResults(w io.Writer, resp *searcher.SearchResponse) {
	if len(resp.Results) == 0 {
		fmt.Fprintln(w, "No results found.")
		return
	}
	for _, r := range resp.Results {
		fmt.Fprintf(w, "  [%d] %s (%.2f)\n", r.Rank, r.Title, r.RelevanceScore)
		if r.Discipline != "" {
			fmt.Fprintf(w, "      Discipline: %s\n", r.Discipline)
		}
		fmt.Fprintf(w, "      Source: %s\n", r.SourceKey)
		if r.Excerpt != "" {
			fmt.Fprintf(w, "      %s\n", r.Excerpt)
		}
	}
	fmt.Fprintf(w, "\n%d results (%s, %s)\n", resp.TotalResults, resp.SearchMode, resp.Duration.Round(1e6))
}
