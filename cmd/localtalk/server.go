package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/localtalk/internal/api"
	"github.com/kalambet/localtalk/internal/config"
	"github.com/kalambet/localtalk/internal/docs"
	"github.com/kalambet/localtalk/internal/engine"
	"github.com/kalambet/localtalk/internal/proxy"
	"github.com/kalambet/localtalk/internal/rag"
	"github.com/kalambet/localtalk/internal/retrieval"
	"github.com/kalambet/localtalk/internal/storage"
)

var serveWatch bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the retrieval service (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer(cmd.Context())
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running retrieval service",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Rebuild the vector store from the docs directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		eng, err := readyEngine(ctx, "")
		if err != nil {
			return err
		}
		store, err := storage.Open(cfg.Storage.DataDir)
		if err != nil {
			return fmt.Errorf("opening storage: %w", err)
		}
		defer store.Close()

		printStep("indexing %s", cfg.Docs.Dir)
		stats, err := newIndexer(eng, store).Reindex(ctx)
		if err != nil {
			return err
		}
		printSuccess("indexed %d documents into %d chunks", stats.Documents, stats.Chunks)
		return nil
	},
}

func init() {
	serveCmd.Flags().BoolVar(&serveWatch, "watch", false, "reindex when the docs directory changes")
	rootCmd.AddCommand(stopCmd)
}

// readyEngine detects the local engine and makes sure the embedding model,
// plus chatModel when non-empty, is available.
func readyEngine(ctx context.Context, chatModel string) (engine.Engine, error) {
	eng, err := engine.Detect(engine.DetectConfig{
		OllamaBaseURL: cfg.Ollama.BaseURL,
		ChatTimeout:   cfg.ChatTimeout(),
	})
	if err != nil {
		return nil, fmt.Errorf("detecting inference engine: %w", err)
	}
	if err := engine.EnsureReady(ctx, eng, stderr, chatModel, cfg.Ollama.EmbedModel); err != nil {
		return nil, err
	}
	return eng, nil
}

func newIndexer(eng engine.Engine, store *storage.Store) *docs.Indexer {
	embedder := retrieval.NewEmbedder(eng, cfg.Ollama.EmbedModel)
	return docs.NewIndexer(cfg.Docs.Dir, embedder, retrieval.NewSQLiteStore(store.DB()), store)
}

func newGenerator(ctx context.Context, c config.Config, eng engine.Engine) (rag.Generator, error) {
	if c.Generation.Provider != config.ProviderOpenRouter {
		return rag.NewEngineGenerator(eng, c.Ollama.ChatModel), nil
	}
	client := newProxyClient(c)
	ok, err := client.HasModel(ctx, c.Proxy.DefaultModel)
	switch {
	case err != nil:
		slog.Warn("could not verify hosted model", "model", c.Proxy.DefaultModel, "error", err)
	case !ok:
		return nil, fmt.Errorf("hosted model %q is not offered by the provider", c.Proxy.DefaultModel)
	}
	return rag.NewProxyGenerator(client, c.Proxy.DefaultModel), nil
}

// newProxyClient bounds hosted chat calls by the same timeout as local ones.
func newProxyClient(c config.Config) *proxy.Client {
	var opts []proxy.Option
	if t := c.ChatTimeout(); t > 0 {
		opts = append(opts, proxy.WithHTTPClient(&http.Client{Timeout: t}))
	}
	return proxy.NewClient(c.Proxy.OpenRouterAPIKey, opts...)
}

func runServer(parent context.Context) error {
	printStep("localtalk %s", version)

	pid := pidFileIn(cfg.Storage.DataDir)
	if err := checkNotRunning(cfg.Server.Port, pid); err != nil {
		return err
	}
	if err := pid.write(); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer pid.remove()

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	chatModel := ""
	if cfg.Generation.Provider == config.ProviderOllama {
		chatModel = cfg.Ollama.ChatModel
	}
	eng, err := readyEngine(ctx, chatModel)
	if err != nil {
		return err
	}

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			slog.Warn("closing storage", "error", err)
		}
	}()

	embedder := retrieval.NewEmbedder(eng, cfg.Ollama.EmbedModel)
	retriever := retrieval.NewRetriever(embedder, retrieval.NewSQLiteStore(store.DB()))
	indexer := newIndexer(eng, store)

	gen, err := newGenerator(ctx, cfg, eng)
	if err != nil {
		return err
	}
	svc := rag.NewService(retriever, gen, indexer, store, rag.Config{
		BotName:        cfg.Bot.Name,
		Hashtags:       cfg.Bot.Hashtags,
		ReindexEnabled: cfg.Server.ReindexEnabled,
		Weather:        newWeatherFetcher(cfg),
		Place:          placeFrom(cfg),
	})

	if n, err := retriever.Count(ctx); err == nil && n == 0 {
		slog.Info("vector store is empty, indexing docs", "dir", cfg.Docs.Dir)
		if _, err := indexer.Reindex(ctx); err != nil {
			slog.Warn("initial reindex failed", "error", err)
		}
	}

	if cfg.Server.MCPEnabled {
		// Listen blocks on stdin, so it is not joined on shutdown.
		mcpSrv := server.NewStdioServer(api.NewMCPServer(api.MCPDeps{
			Recaller:    svc,
			LatestPath:  firstOr(cfg.Feed.LatestPaths, ""),
			RollingPath: firstOr(cfg.Feed.RollingPaths, ""),
			Version:     version,
		}))
		go func() {
			if err := mcpSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("MCP stdio server stopped", "error", err)
			}
		}()
		slog.Info("MCP server started", "transport", "stdio")
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port),
		Handler:           api.NewRAGHandler(svc, store),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		printSuccess("listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		printStep("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if serveWatch {
		w := docs.NewWatcher(cfg.Docs.Dir, docs.DefaultDebounce, func(ctx context.Context) {
			if _, err := indexer.Reindex(ctx); err != nil {
				slog.Error("reindex after change failed", "error", err)
			}
		})
		g.Go(func() error {
			// A dead watcher degrades to a static index; the server stays up.
			if err := w.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("docs watcher stopped", "error", err)
			}
			return nil
		})
	}
	return g.Wait()
}

func stopServer() error {
	p := pidFileIn(cfg.Storage.DataDir)
	pid, err := p.read()
	if errors.Is(err, fs.ErrNotExist) {
		printError("localtalk is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}
	if err != nil {
		p.remove()
		return err
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("finding process %d: %w", pid, err)
	}
	if err := process.Signal(syscall.SIGTERM); err != nil {
		p.remove()
		return fmt.Errorf("stopping localtalk (PID %d): %w", pid, err)
	}
	printSuccess("sent stop signal to localtalk (PID %d)", pid)
	return nil
}

func firstOr(list []string, def string) string {
	if len(list) > 0 {
		return list[0]
	}
	return def
}
