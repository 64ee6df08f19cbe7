package main

import (
	"github.com/spf13/cobra"

	"github.com/dshills/editalindex/internal/mcp"
	"github.com/dshills/editalindex/internal/notice"
)

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server on stdio",
		Long: `Serves the index_bank, search_content, get_index_stats, submit_notice and
get_notice_status tools over stdio. The notice tools are only available when
a language model key is configured.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			idx, err := a.indexer(ctx, true)
			if err != nil {
				return err
			}
			srch, err := a.searcher(ctx)
			if err != nil {
				return err
			}

			var notices *notice.Service
			if a.cfg.LLMEnabled() {
				svc, stop, err := a.noticeService(ctx)
				if err != nil {
					return err
				}
				defer stop()
				notices = svc
			} else {
				a.logger.Warn("no language model configured; notice tools disabled")
			}

			server, err := mcp.NewServer(mcp.Deps{
				Store:     a.store,
				Indexer:   idx,
				Searcher:  srch,
				Notices:   notices,
				BankRoots: a.cfg.Indexer.Roots,
				Logger:    a.logger,
			})
			if err != nil {
				return err
			}
			a.logger.Info("MCP server ready, listening on stdio", "version", version, "backend", a.store.Backend())
			return server.Serve(ctx)
		},
	}
}
