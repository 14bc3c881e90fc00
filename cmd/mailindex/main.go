package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/nhle/mailindex/internal/api"
	"github.com/nhle/mailindex/internal/classify"
	"github.com/nhle/mailindex/internal/credential"
	"github.com/nhle/mailindex/internal/model"
	"github.com/nhle/mailindex/internal/store"
	"github.com/nhle/mailindex/internal/sync"
)

func main() {
	configPath := flag.String("config", model.DefaultConfigPath(), "path to config file")
	flag.Parse()

	_ = godotenv.Load()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	if err := run(*configPath, logger); err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}
}

func run(configPath string, logger *slog.Logger) error {
	cfg, err := model.LoadConfig(configPath)
	if err != nil {
		return err
	}

	// Passwords absent from config resolve from the system keyring.
	for i := range cfg.Accounts {
		if cfg.Accounts[i].Password != "" {
			continue
		}
		secret, err := credential.Get(credential.IMAPPasswordKey(cfg.Accounts[i].Username))
		if err != nil {
			logger.Warn("keyring lookup failed",
				"account", cfg.Accounts[i].Username, "error", err)
			continue
		}
		cfg.Accounts[i].Password = secret
	}

	// A half-configured engine must not start.
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	db, err := store.NewSQLiteStore(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	embedder := classify.NewHTTPEmbedder(cfg.Classifier)
	classifier := classify.New(embedder, logger)

	engine := sync.NewEngine(cfg, db, classifier, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Ordered startup: the engine ensures the schema and warms the
	// classifier before any supervisor connects.
	if err := engine.Start(ctx); err != nil {
		return err
	}
	defer engine.Stop()

	httpAddr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	httpSrv := &http.Server{
		Addr:    httpAddr,
		Handler: api.NewServer(db, logger),
	}

	go func() {
		logger.Info("http server listening", "addr", httpAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server stopped", "error", err)
		}
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	<-shutdown
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown http", "error", err)
	}
	engine.Stop()

	return nil
}
