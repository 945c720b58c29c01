package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/danieldreier/mcp-lumi/internal/config"
	"github.com/danieldreier/mcp-lumi/internal/identity"
	"github.com/danieldreier/mcp-lumi/internal/llm"
	"github.com/danieldreier/mcp-lumi/internal/metrics"
	"github.com/danieldreier/mcp-lumi/internal/storage"
	"github.com/danieldreier/mcp-lumi/internal/storage/reststore"
	"github.com/danieldreier/mcp-lumi/internal/storage/sqlstore"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "lumi: %v\n", err)
		os.Exit(2)
	}

	logger, err := config.NewLogger(cfg.LogMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "lumi: failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	store, err := openStorage(cfg, logger)
	if err != nil {
		logger.Fatal("Error opening storage", zap.String("store", cfg.Store), zap.Error(err))
	}
	defer store.Close()

	gen, err := llm.NewGeminiGenerator(context.Background(), cfg.GeminiAPIKey)
	if err != nil {
		logger.Fatal("Error creating Gemini client", zap.Error(err))
	}
	provider := llm.NewProvider(gen, cfg.GeminiModel, logger.Named("llm"))
	resolver := identity.NewResolver(store, &identity.Memo{}, identity.WithLogger(logger.Named("identity")))
	svc := NewTutorService(store, provider, resolver, logger)

	if cfg.MetricsAddr != "" {
		go serveMetrics(cfg.MetricsAddr, logger)
	}

	logger.Info("Starting Lumi MCP server",
		zap.String("store", cfg.Store),
		zap.String("model", provider.Model()))
	if err := server.ServeStdio(newServer(svc)); err != nil {
		logger.Fatal("Error serving MCP server", zap.Error(err))
	}
}

// openStorage selects the storage backend named by cfg.Store.
func openStorage(cfg config.Config, logger *zap.Logger) (storage.Storage, error) {
	switch cfg.Store {
	case config.StoreREST:
		return reststore.New(reststore.Config{
			URL:    cfg.SupabaseURL,
			Key:    cfg.SupabaseKey(),
			Logger: logger.Named("reststore"),
		})
	case config.StorePostgres:
		return sqlstore.Open(sqlstore.Config{
			Driver: sqlstore.DriverPostgres,
			DSN:    cfg.DatabaseURL,
			Logger: logger.Named("sqlstore"),
		})
	case config.StoreSQLite:
		return sqlstore.Open(sqlstore.Config{
			Driver:  sqlstore.DriverSQLite,
			DSN:     cfg.SQLitePath,
			Migrate: true,
			Logger:  logger.Named("sqlstore"),
		})
	case config.StoreFile:
		fileStorage := storage.NewFileStorage(cfg.DataFile, storage.WithFileLogger(logger.Named("filestore")))
		if err := fileStorage.Load(); err != nil {
			return nil, err
		}
		return fileStorage, nil
	default:
		return nil, fmt.Errorf("unknown store %q", cfg.Store)
	}
}

func serveMetrics(addr string, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	logger.Info("Serving metrics", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Metrics server stopped", zap.Error(err))
	}
}
