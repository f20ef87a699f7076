package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/kailas-cloud/bookrec"
	"github.com/kailas-cloud/bookrec/internal/config"
	dombatch "github.com/kailas-cloud/bookrec/internal/domain/batch"
	"github.com/kailas-cloud/bookrec/internal/feed"
	logpkg "github.com/kailas-cloud/bookrec/internal/logger"
	"github.com/kailas-cloud/bookrec/internal/metrics"
	"github.com/kailas-cloud/bookrec/internal/version"
)

func main() {
	_ = godotenv.Load()

	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "bookrec:", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "bookrec",
		Usage:   "Book search with BM25, dense and late interaction ranking",
		Version: fmt.Sprintf("%s (%s, %s)", version.Version, version.Commit, version.Date),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "env",
				Usage:   "Environment name: loads config/<env>.yaml",
				EnvVars: []string{"ENV"},
				Value:   "local",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a YAML config file (overrides --env lookup)",
			},
			&cli.StringFlag{
				Name:  "store",
				Usage: "Store path (overrides store.path)",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API",
				Action: serveCommand,
			},
			{
				Name:      "ingest",
				Usage:     "Load books from a CSV or parquet feed",
				ArgsUsage: " ",
				Action:    ingestCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "csv", Usage: "Path to a headed CSV file"},
					&cli.StringFlag{Name: "parquet", Usage: "Path to a parquet file"},
					&cli.StringFlag{Name: "write-parquet", Usage: "Also convert the feed to this parquet file"},
				},
			},
			{
				Name:      "query",
				Usage:     "Search the corpus",
				ArgsUsage: "TEXT",
				Action:    queryCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "profile", Aliases: []string{"p"}, Usage: "Ranking profile"},
					&cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Usage: "Number of hits", Value: 10},
					&cli.BoolFlag{Name: "features", Usage: "Show ranking features"},
				},
			},
			{
				Name:   "profiles",
				Usage:  "List ranking profiles",
				Action: profilesCommand,
			},
		},
	}
}

// runtimeEnv is the loaded configuration plus a logger for one command.
type runtimeEnv struct {
	env    string
	cfg    config.Config
	logger *zap.Logger
}

func loadEnv(c *cli.Context) (*runtimeEnv, error) {
	env := c.String("env")
	var (
		cfg config.Config
		err error
	)
	if path := c.String("config"); path != "" {
		cfg, err = config.LoadFile(path)
	} else {
		cfg, err = config.Load(env)
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if p := c.String("store"); p != "" {
		cfg.Store.Path = p
	}
	level := cfg.Logging.Level
	if l := c.String("log-level"); l != "" {
		level = l
	}
	logger, err := logpkg.NewLogger(env, level)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	return &runtimeEnv{env: env, cfg: cfg, logger: logger}, nil
}

func (r *runtimeEnv) open(ctx context.Context) (*bookrec.Engine, error) {
	opts := bookrec.FromConfig(r.cfg)
	opts.Logger = r.logger
	e, err := bookrec.Open(ctx, "", opts)
	if err != nil {
		return nil, err
	}
	return e, nil
}

func serveCommand(c *cli.Context) error {
	rt, err := loadEnv(c)
	if err != nil {
		return err
	}
	logger := rt.logger
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting bookrec API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", rt.env),
		zap.Int("http_port", rt.cfg.HTTP.Port),
		zap.String("store_driver", rt.cfg.Store.Driver),
		zap.String("embedding_provider", rt.cfg.Embedding.Provider),
	)

	metrics.Register()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine, err := rt.open(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := engine.Close(); err != nil {
			logger.Error("close engine", zap.Error(err))
		}
	}()

	addr := fmt.Sprintf(":%d", rt.cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      engine.Handler(rt.cfg.Auth.APIKeys),
		ReadTimeout:  time.Duration(rt.cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(rt.cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(rt.cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}
	logger.Info("Server stopped gracefully")
	return nil
}

func ingestCommand(c *cli.Context) error {
	csvPath, parquetPath := c.String("csv"), c.String("parquet")
	if (csvPath == "") == (parquetPath == "") {
		return errors.New("exactly one of --csv or --parquet is required")
	}
	rt, err := loadEnv(c)
	if err != nil {
		return err
	}
	defer func() { _ = rt.logger.Sync() }()

	records, err := readFeed(csvPath, parquetPath)
	if err != nil {
		return err
	}
	if out := c.String("write-parquet"); out != "" {
		skipped, err := feed.WriteParquet(out, records)
		if err != nil {
			return err
		}
		renderConversion(c.App.Writer, out, len(records)-len(skipped), skipped)
	}

	engine, err := rt.open(c.Context)
	if err != nil {
		return err
	}
	defer engine.Close()

	in := make([]bookrec.Record, len(records))
	for i, r := range records {
		in[i] = bookrec.Record{ID: r.ID, Fields: r.Fields}
	}

	var reports []bookrec.Report
	size := rt.cfg.Ingest.MaxBatchSize
	for start := 0; start < len(in); start += size {
		report := engine.Ingest(c.Context, in[start:min(start+size, len(in))])
		reports = append(reports, report)
		if err := c.Context.Err(); err != nil {
			break
		}
	}
	renderIngest(c.App.Writer, reports)
	return nil
}

func readFeed(csvPath, parquetPath string) ([]dombatch.Record, error) {
	if parquetPath != "" {
		return feed.ReadParquet(parquetPath)
	}
	f, err := os.Open(csvPath)
	if err != nil {
		return nil, fmt.Errorf("open feed: %w", err)
	}
	defer f.Close()
	return feed.ReadCSV(f)
}

func queryCommand(c *cli.Context) error {
	text := strings.Join(c.Args().Slice(), " ")
	if strings.TrimSpace(text) == "" {
		return errors.New("query text is required")
	}
	rt, err := loadEnv(c)
	if err != nil {
		return err
	}
	defer func() { _ = rt.logger.Sync() }()

	engine, err := rt.open(c.Context)
	if err != nil {
		return err
	}
	defer engine.Close()

	profile := c.String("profile")
	hits, err := engine.Search(c.Context, bookrec.Query{Text: text, Profile: profile, Limit: c.Int("limit")})
	if err != nil {
		return err
	}
	if profile == "" {
		profile = rt.cfg.Search.DefaultProfile
	}
	renderHits(c.App.Writer, text, profile, hits, c.Bool("features"))
	return nil
}

func profilesCommand(c *cli.Context) error {
	rt, err := loadEnv(c)
	if err != nil {
		return err
	}
	defer func() { _ = rt.logger.Sync() }()

	engine, err := rt.open(c.Context)
	if err != nil {
		return err
	}
	defer engine.Close()

	for _, name := range engine.Profiles() {
		fmt.Fprintln(c.App.Writer, name)
	}
	return nil
}
