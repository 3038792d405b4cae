package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/buildtall-systems/storebridge/internal/config"
	"github.com/buildtall-systems/storebridge/internal/db"
	"github.com/buildtall-systems/storebridge/internal/delivery"
	"github.com/buildtall-systems/storebridge/internal/host"
	"github.com/buildtall-systems/storebridge/internal/materials"
	"github.com/buildtall-systems/storebridge/internal/queue"
	"github.com/buildtall-systems/storebridge/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the storebridge service",
	Long: `Start the delivery webhook and the game host. Listens for POST /deliver
from the webstore and serves /health and /play.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger := newLogger(cmd.ErrOrStderr(), cfg.Verbose)

	logger.Info("storebridge starting", "version", version)
	logger.Info("listen address", "addr", cfg.Addr())
	logger.Info("database", "path", cfg.Database.Path)
	logger.Info("pending queue", "path", cfg.Queue.Path)
	if cfg.UsesDefaultSecret() {
		logger.Warn("using default secret, set secret in the config file before exposing the server")
	} else {
		logger.Info("custom secret configured")
	}
	logger.Info("offline queueing", "enabled", cfg.Advanced.QueueOfflineItems)
	if len(cfg.AllowedCommands) == 0 {
		logger.Info("whitelist empty, all commands allowed")
	} else {
		logger.Info("loaded allowed command prefixes", "count", len(cfg.AllowedCommands))
	}

	// Open database and run migrations
	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() { _ = database.Close() }()

	if err := database.Migrate(); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	logger.Info("database ready")

	catalog := materials.Default()

	store := queue.NewStore(queue.NewFileBackend(cfg.Queue.Path), catalog, logger.With("component", "queue"))
	if err := store.Load(); err != nil {
		// The queue starts empty; the next flush rewrites the file and keeps
		// the unreadable one as .bak.
		logger.Error("pending queue not loaded", "error", err)
	}

	rt := host.NewRuntime(cfg.Server.Name, database, catalog, logger.With("component", "host"))
	joins := delivery.NewJoinDeliverer(store, rt, rt, rt, rt, cfg.Advanced.JoinDeliveryDelay, logger.With("component", "join"))
	rt.OnJoin(joins.OnJoin)

	orchestrator := delivery.NewOrchestrator(rt, rt, rt, store, catalog, logger.With("component", "delivery"))

	watcher := config.NewWatcher(viper.GetViper(), cfg.Policy(), logger.With("component", "config"))
	watcher.Watch()

	srv, err := server.New(server.Options{
		Version:      version,
		Host:         rt,
		Orchestrator: orchestrator,
		Queue:        store,
		Ledger:       database,
		Policy:       watcher,
		Logger:       logger.With("component", "http"),
	})
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	// Create context that cancels on shutdown signals
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("received signal, shutting down", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()

	hostDone := make(chan error, 1)
	go func() { hostDone <- rt.Run(ctx) }()

	srvDone := make(chan error, 1)
	go func() { srvDone <- srv.ListenAndServe(ctx, cfg.Addr()) }()

	logger.Info("storebridge running")

	var serveErr error
	select {
	case <-ctx.Done():
		serveErr = <-srvDone
	case serveErr = <-srvDone:
		cancel()
	}
	<-hostDone

	if err := store.Flush(); err != nil {
		logger.Error("final queue flush failed", "error", err)
	}
	logger.Info("shut down", "pending_items", store.TotalItems())

	if serveErr != nil && !errors.Is(serveErr, context.Canceled) {
		return fmt.Errorf("http server: %w", serveErr)
	}
	return nil
}
