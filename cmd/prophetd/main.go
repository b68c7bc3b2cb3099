// Package main provides the prophetd daemon - the chat swap-widget backend.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prophet-exchange/prophet-chat/internal/backend"
	"github.com/prophet-exchange/prophet-chat/internal/config"
	"github.com/prophet-exchange/prophet-chat/internal/event"
	"github.com/prophet-exchange/prophet-chat/internal/reconcile"
	"github.com/prophet-exchange/prophet-chat/internal/rpc"
	"github.com/prophet-exchange/prophet-chat/internal/storage"
	"github.com/prophet-exchange/prophet-chat/internal/token"
	"github.com/prophet-exchange/prophet-chat/internal/wallet"
	"github.com/prophet-exchange/prophet-chat/pkg/logging"
)

var (
	version = "0.1.0-dev"
	commit  = "unknown"
)

func main() {
	var (
		dataDir     = flag.String("data-dir", "~/.prophet", "Data directory")
		apiAddr     = flag.String("api", "", "Widget API address, overrides config")
		backendURL  = flag.String("backend-url", "", "Exchange backend URL, overrides config")
		logLevel    = flag.String("log-level", "", "Log level (debug, info, warn, error)")
		showVersion = flag.Bool("version", false, "Show version and exit")
	)
	flag.Parse()

	log := logging.New(&logging.Config{
		Level:      "info",
		TimeFormat: time.TimeOnly,
	})
	logging.SetDefault(log)

	if *showVersion {
		log.Infof("prophetd %s (commit: %s)", version, commit)
		os.Exit(0)
	}

	cfg, err := config.LoadConfig(*dataDir)
	if err != nil {
		log.Fatal("Failed to load config", "error", err)
	}

	// CLI flags take precedence over the config file
	if *apiAddr != "" {
		cfg.API.ListenAddr = *apiAddr
	}
	if *backendURL != "" {
		cfg.Backend.URL = *backendURL
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	cfg.Storage.DataDir = *dataDir

	log = logging.New(&logging.Config{
		Level:      cfg.Logging.Level,
		TimeFormat: time.TimeOnly,
	})
	logging.SetDefault(log)

	log.Info("Config loaded", "path", config.ConfigPath(*dataDir))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dataPath := config.ExpandPath(cfg.Storage.DataDir)
	store, err := storage.New(&storage.Config{DataDir: dataPath})
	if err != nil {
		log.Fatal("Failed to initialize storage", "error", err)
	}
	defer store.Close()
	log.Info("Storage initialized", "path", dataPath)

	bus := event.NewBus()

	// Each widget session gets its own backend client so wallet relays
	// stay bound to the right connection.
	newService := func(session *wallet.Session) token.Service {
		return backend.NewClient(&backend.ClientConfig{
			BaseURL:              cfg.Backend.URL,
			Session:              session,
			RequestTimeout:       cfg.Backend.RequestTimeout,
			AssetRefreshInterval: cfg.Backend.AssetRefreshInterval,
			PriorityFee:          cfg.Backend.PriorityFee,
		})
	}

	// The reconciliation engine only needs status queries, which are
	// session-independent.
	reconcileClient := backend.NewClient(&backend.ClientConfig{
		BaseURL:              cfg.Backend.URL,
		Session:              wallet.NewSession(&wallet.SessionConfig{}),
		RequestTimeout:       cfg.Backend.RequestTimeout,
		AssetRefreshInterval: cfg.Backend.AssetRefreshInterval,
	})

	engine := reconcile.NewEngine(&reconcile.EngineConfig{
		Store:       store,
		Service:     reconcileClient,
		Bus:         bus,
		ExplorerURL: cfg.Explorer.TxURL,
		Interval:    cfg.Reconcile.Interval,
	})
	if err := engine.Start(ctx); err != nil {
		log.Fatal("Failed to start reconciliation engine", "error", err)
	}

	server := rpc.NewServer(&rpc.ServerConfig{
		Store:       store,
		Bus:         bus,
		ExplorerURL: cfg.Explorer.TxURL,
		NewService:  newService,
	})
	if err := server.Start(cfg.API.ListenAddr); err != nil {
		log.Fatal("Failed to start widget server", "error", err)
	}

	printBanner(log, cfg)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	<-sigCh
	log.Info("Shutting down...")

	cancel()
	engine.Stop()
	if err := server.Stop(); err != nil {
		log.Error("Error stopping widget server", "error", err)
	}

	log.Info("Goodbye!")
}

func printBanner(log *logging.Logger, cfg *config.Config) {
	log.Info("")
	log.Info("=================================================")
	log.Infof("  Prophet Chat Daemon")
	log.Infof("  Version: %s", version)
	log.Info("=================================================")
	log.Info("")
	log.Infof("  API: http://%s", cfg.API.ListenAddr)
	log.Infof("  WS:  ws://%s/ws", cfg.API.ListenAddr)
	log.Info("")
	log.Infof("  Backend:  %s", cfg.Backend.URL)
	log.Infof("  Explorer: %s", cfg.Explorer.TxURL)
	log.Infof("  Data dir: %s", config.ExpandPath(cfg.Storage.DataDir))
	log.Infof("  Reconcile interval: %s", cfg.Reconcile.Interval)
	log.Info("")
	log.Info("=================================================")
	log.Info("")
}
