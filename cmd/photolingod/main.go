package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/photolingo/photolingo/internal/analyze"
	"github.com/photolingo/photolingo/internal/common"
	"github.com/photolingo/photolingo/internal/export"
	"github.com/photolingo/photolingo/internal/imgprep"
	"github.com/photolingo/photolingo/internal/offline"
	"github.com/photolingo/photolingo/internal/remote"
	"github.com/photolingo/photolingo/internal/server"
	"github.com/photolingo/photolingo/internal/translate"
)

func main() {
	_ = godotenv.Load()

	logger := common.NewLogger()
	slog.SetDefault(logger)

	cfg, err := common.LoadConfig()
	if err != nil {
		logger.Error("config load failed", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(filepath.Dir(cfg.Translate.CacheDBPath), 0o755); err != nil {
		logger.Error("cache dir", "error", err)
		os.Exit(1)
	}
	store, err := translate.OpenSQLiteStore(ctx, cfg.Translate.CacheDBPath, logger)
	if err != nil {
		logger.Error("open translation store", "path", cfg.Translate.CacheDBPath, "error", err)
		os.Exit(1)
	}
	defer func() {
		if cerr := store.Close(); cerr != nil {
			logger.Error("close translation store", "error", cerr)
		}
	}()

	cache := translate.NewCache(cfg.Translate.CacheCeiling, store,
		translate.NewMetrics(prometheus.DefaultRegisterer), logger)

	prep, err := imgprep.NewPreparer(cfg.Image)
	if err != nil {
		logger.Error("image preparer", "error", err)
		os.Exit(1)
	}

	client := remote.NewClient(cfg.Remote, logger)
	orch := analyze.NewOrchestrator(prep, client, cache, statusLog(logger), logger)

	assets, err := buildAssetGateway(ctx, cfg.Offline, logger)
	if err != nil {
		logger.Error("asset gateway", "error", err)
		os.Exit(1)
	}

	svc := server.NewService(orch, export.NewService(logger), assets,
		cfg.Remote.DefaultTopK, cfg.Translate.Languages, logger)

	httpSrv := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: svc.Router(),
	}

	go func() {
		logger.Info("gateway.listening", "addr", cfg.Server.HTTPAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http serve", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("gateway.shutdown.begin")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", "error", err)
	}
	logger.Info("gateway.shutdown.done")
}

// buildAssetGateway installs and activates the configured asset bundle.
// Returns nil when no upstream origin is configured, leaving the API
// surface up without offline asset serving.
func buildAssetGateway(ctx context.Context, cfg common.OfflineConfig, logger *slog.Logger) (http.Handler, error) {
	if cfg.UpstreamURL == "" {
		logger.Warn("gateway.assets.disabled", "reason", "ASSET_UPSTREAM not set")
		return nil, nil
	}
	if err := os.MkdirAll(cfg.CacheDir, 0o755); err != nil {
		return nil, err
	}
	astore, err := offline.NewStore(cfg.CacheDir)
	if err != nil {
		return nil, err
	}
	mgr, err := offline.NewManager(cfg, astore, offline.NewMetrics(prometheus.DefaultRegisterer), logger)
	if err != nil {
		return nil, err
	}
	sup := offline.NewSupervisor(logger)
	if err := sup.Register(ctx, mgr); err != nil {
		return nil, err
	}
	return sup, nil
}

func statusLog(logger *slog.Logger) analyze.Notifier {
	return analyze.NotifierFunc(func(stage analyze.Stage, message string) {
		logger.Debug("analyze.status", "stage", string(stage), "message", message)
	})
}
