// Copyright 2025 James Ross
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/holocron/orchestrator/internal/adminapi"
	"github.com/holocron/orchestrator/internal/config"
	"github.com/holocron/orchestrator/internal/obs"
	"github.com/holocron/orchestrator/internal/store"
)

var version = "dev"

func main() {
	var configPath string
	var listenAddr string
	var showVersion bool

	fs := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	fs.StringVar(&configPath, "config", "config/config.yaml", "Path to application YAML config")
	fs.StringVar(&listenAddr, "listen", "", "Override the admin API listen address")
	fs.BoolVar(&showVersion, "version", false, "Print version and exit")
	if err := fs.Parse(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "failed to parse flags: %v\n", err)
		os.Exit(2)
	}

	if showVersion {
		fmt.Println(version)
		return
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := obs.NewLogger(cfg.Observability.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	backend, err := openBackend(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to open state backend", obs.Err(err))
	}
	defer backend.Close()

	apiCfg := adminapi.DefaultConfig()
	if listenAddr != "" {
		apiCfg.ListenAddr = listenAddr
	}
	srv := adminapi.NewServer(apiCfg, backend, logger)
	srv.Start()

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("signal received, shutting down", obs.String("signal", sig.String()))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("admin api shutdown error", obs.Err(err))
	}
}

func openBackend(ctx context.Context, cfg *config.Config) (store.AdminBackend, error) {
	switch cfg.State.Driver {
	case "postgres":
		return store.NewPostgresStore(ctx, cfg.State.DSN, cfg.State.MigrationsDir)
	default:
		return store.NewSQLiteStore(ctx, cfg.State.DSN, cfg.State.MigrationsDir)
	}
}
