// Command editalindex indexes the study bank, answers content queries and
// turns exam notices into study plans.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/dshills/editalindex/internal/classifier"
	"github.com/dshills/editalindex/internal/config"
	"github.com/dshills/editalindex/internal/embedder"
	"github.com/dshills/editalindex/internal/indexer"
	"github.com/dshills/editalindex/internal/llm"
	"github.com/dshills/editalindex/internal/normalizer"
	"github.com/dshills/editalindex/internal/notice"
	"github.com/dshills/editalindex/internal/searcher"
	"github.com/dshills/editalindex/internal/storage"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root, cleanup := newRootCmd(os.Stderr)
	err := root.ExecuteContext(ctx)
	if cerr := cleanup(); cerr != nil && err == nil {
		err = cerr
		fmt.Fprintln(os.Stderr, "Error:", cerr)
	}
	if err != nil {
		os.Exit(1)
	}
}

// app carries configuration and lazily built components for one command
type app struct {
	cfgPath string
	envFile string
	verbose bool
	logOut  io.Writer

	cfg    config.Config
	logger *slog.Logger
	store  storage.Storage
	emb    embedder.Embedder // Shared by indexer and searcher so they share one cache
}

// newRootCmd builds the command tree. cleanup releases whatever the executed
// command opened and is safe to call more than once.
func newRootCmd(logOut io.Writer) (root *cobra.Command, cleanup func() error) {
	a := &app{logOut: logOut}
	root = &cobra.Command{
		Use:          "editalindex",
		Short:        "Exam study bank indexer and notice planner",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init()
		},
	}
	root.PersistentFlags().StringVarP(&a.cfgPath, "config", "c", "", "config file (.yaml or .toml)")
	root.PersistentFlags().StringVar(&a.envFile, "env-file", ".env", "dotenv file loaded before the environment is read")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(
		newIndexCmd(a),
		newNoticeCmd(a),
		newSearchCmd(a),
		newStatsCmd(a),
		newRecleanCmd(a),
		newServeCmd(a),
		newVersionCmd(),
	)
	return root, a.close
}

// init loads .env, then the config file, then sets up logging
func (a *app) init() error {
	if err := godotenv.Load(a.envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load %s: %w", a.envFile, err)
	}
	cfg, err := config.Load(a.cfgPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg

	level := cfg.Level()
	if a.verbose {
		level = slog.LevelDebug
	}
	// stdout is reserved for command output and the MCP protocol
	a.logger = slog.New(slog.NewTextHandler(a.logOut, &slog.HandlerOptions{Level: level}))
	return nil
}

func (a *app) close() error {
	var errs []error
	if a.emb != nil {
		errs = append(errs, a.emb.Close())
		a.emb = nil
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
		a.store = nil
	}
	return errors.Join(errs...)
}

func (a *app) openStore(ctx context.Context) (storage.Storage, error) {
	if a.store != nil {
		return a.store, nil
	}
	store, err := storage.Open(ctx, a.cfg.StorageConfig())
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	a.logger.Debug("store opened", "backend", store.Backend())
	a.store = store
	return store, nil
}

func (a *app) embedder() (embedder.Embedder, error) {
	if a.emb != nil {
		return a.emb, nil
	}
	emb, err := embedder.New(a.cfg.EmbedderConfig())
	if err != nil {
		return nil, fmt.Errorf("embedder: %w", err)
	}
	a.logger.Debug("embedder ready", "provider", emb.Provider(), "model", emb.Model())
	a.emb = emb
	return emb, nil
}

// llmClient returns nil when no model key is configured
func (a *app) llmClient() (llm.Client, error) {
	if !a.cfg.LLMEnabled() {
		return nil, nil
	}
	return llm.New(a.cfg.LLMConfig())
}

func (a *app) classifier() (*classifier.PathClassifier, error) {
	table := classifier.DefaultTable()
	if path := a.cfg.Indexer.Taxonomy; path != "" {
		t, err := classifier.LoadTable(path)
		if err != nil {
			return nil, err
		}
		table = t
	}
	return classifier.NewPathClassifier(table), nil
}

func (a *app) normalizer() (*normalizer.Normalizer, error) {
	opts := normalizer.Options{Logger: a.logger, AlwaysUseAI: a.cfg.Cleanup.Always}
	if a.cfg.Cleanup.AI {
		client, err := a.llmClient()
		if err != nil {
			return nil, err
		}
		opts.AI = client
		opts.AIModel = a.cfg.LLM.Model
	}
	return normalizer.New(opts), nil
}

// indexer wires the bulk pipeline; the embedder is skipped for dry runs
func (a *app) indexer(ctx context.Context, withEmbedder bool) (*indexer.Indexer, error) {
	store, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}
	cls, err := a.classifier()
	if err != nil {
		return nil, err
	}
	norm, err := a.normalizer()
	if err != nil {
		return nil, err
	}
	deps := indexer.Deps{Store: store, Classifier: cls, Normalizer: norm, Logger: a.logger}
	if withEmbedder {
		if deps.Embedder, err = a.embedder(); err != nil {
			return nil, err
		}
	}
	return indexer.New(deps), nil
}

func (a *app) searcher(ctx context.Context) (*searcher.Searcher, error) {
	store, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}
	emb, err := a.embedder()
	if err != nil {
		return nil, err
	}
	return searcher.NewSearcher(store, emb), nil
}

// noticeService starts the pipeline workers. The returned stop drains the
// queue and must be called before the store is closed.
func (a *app) noticeService(ctx context.Context) (*notice.Service, func(), error) {
	store, err := a.openStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	client, err := a.llmClient()
	if err != nil {
		return nil, nil, err
	}
	if client == nil {
		return nil, nil, fmt.Errorf("notice processing needs a language model: set %s or %s", config.EnvAnthropicAPIKey, config.EnvOpenAIAPIKey)
	}

	proc := notice.NewProcessor(notice.ProcessorDeps{Store: store, LLM: client, Model: a.cfg.LLM.Model, Logger: a.logger})
	queue := notice.NewQueue(a.cfg.Notice.QueueSize, proc.Process, a.logger)
	queue.Start(ctx, a.cfg.Notice.Workers)

	svc := notice.NewService(notice.ServiceConfig{
		Store:      store,
		Queue:      queue,
		MaxNotices: a.cfg.Notice.MaxNotices,
		Logger:     a.logger,
	})
	return svc, queue.Close, nil
}
