package main

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/JonMunkholm/tablekit/internal/config"
	"github.com/JonMunkholm/tablekit/internal/format"
	"github.com/JonMunkholm/tablekit/internal/logging"
	"github.com/JonMunkholm/tablekit/internal/schema"
	"github.com/JonMunkholm/tablekit/internal/source"
	"github.com/JonMunkholm/tablekit/internal/table"
	"github.com/JonMunkholm/tablekit/internal/transport"
	"github.com/JonMunkholm/tablekit/internal/web"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	// Load and validate configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Setup structured logging based on config
	logger, logCloser := logging.Setup(logging.Options{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Compress:   cfg.Logging.Compress,
	})
	defer logCloser.Close()

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped", "error", err)
		logCloser.Close()
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	logger.Info("configuration loaded",
		"port", cfg.Server.Port,
		"tables_file", cfg.Table.File,
		"page_size", cfg.Table.PageSize,
		"record_source", cfg.Database.URL != "",
		"rate_limit_enabled", cfg.Rate.Enabled,
	)

	// Register tables
	n, err := schema.LoadFile(cfg.Table.File)
	if err != nil {
		return err
	}
	logger.Info("tables registered", "count", n)

	loc, err := cfg.Format.Location()
	if err != nil {
		return err
	}
	formatter := format.New(format.Config{
		Date:     cfg.Format.Date,
		Time:     cfg.Format.Time,
		Datetime: cfg.Format.Datetime,
		True:     cfg.Format.BooleanTrue,
		False:    cfg.Format.BooleanFalse,
		Location: loc,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Record source is optional
	var (
		pool *pgxpool.Pool
		src  *source.Source
	)
	if cfg.Database.URL != "" {
		pool, err = connect(ctx, cfg.Database, logger)
		if err != nil {
			return err
		}
		defer pool.Close()

		src = source.New(pool, formatter,
			source.NewLimiter(cfg.Database.MaxConcurrentQueries, cfg.Database.QueryWait),
			logger.With("component", "source"))
	}

	baseURL := cfg.Table.APIBaseURL
	if baseURL == "" {
		baseURL = cfg.Server.SelfURL()
	}
	header := http.Header{}
	if len(cfg.Security.APIKeys) > 0 {
		header.Set("X-API-Key", cfg.Security.APIKeys[0])
	}
	tr, err := transport.New(transport.Config{
		BaseURL:   baseURL,
		Timeout:   cfg.Transport.Timeout,
		RateLimit: cfg.Transport.RateLimit,
		RateBurst: cfg.Transport.RateBurst,
		Header:    header,
	})
	if err != nil {
		return err
	}

	engineLogger := logger.With("component", "table")
	build := func(tc schema.TableConfig, params map[string]string, notifier table.Notifier) (*table.Engine, error) {
		return table.New(table.Options{
			Config:         tc,
			RouteParams:    params,
			Transport:      tr,
			Notifier:       notifier,
			Formatter:      formatter,
			PageSize:       cfg.Table.PageSize,
			RefetchOnClear: cfg.Table.RefetchOnClear,
			Logger:         engineLogger,
		})
	}

	sessions := web.NewSessions(build, cfg.Table.SessionTTL, cfg.Table.MaxSessions, logger)
	server := web.NewServer(web.Deps{
		Config:   cfg,
		Sessions: sessions,
		Source:   src,
		Logger:   logger,
	})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return server.Start(cfg.Server.Addr())
	})

	g.Go(func() error {
		return server.RunJanitors(gctx)
	})

	// Graceful shutdown
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown error", "error", err)
		}

		// Wait for record queries still holding connections
		if src != nil {
			if active := src.Limiter().Active(); active > 0 {
				logger.Info("waiting for record queries to complete", "active", active)
			}
			if err := src.Limiter().Drain(shutdownCtx); err != nil {
				logger.Warn("record queries did not complete in time", "error", err)
			}
		}
		return nil
	})

	return g.Wait()
}

func connect(ctx context.Context, dbCfg config.DatabaseConfig, logger *slog.Logger) (*pgxpool.Pool, error) {
	// Parse and configure connection pool
	poolConfig, err := pgxpool.ParseConfig(dbCfg.URL)
	if err != nil {
		return nil, err
	}
	poolConfig.MaxConns = int32(dbCfg.MaxConns)
	poolConfig.MinConns = int32(dbCfg.MinConns)
	poolConfig.MaxConnLifetime = dbCfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = dbCfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, err
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	// Log which database we connected to
	if u, err := url.Parse(dbCfg.URL); err == nil {
		logger.Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"))
	} else {
		logger.Info("connected to database")
	}
	return pool, nil
}
