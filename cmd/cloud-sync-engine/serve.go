/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloudsync/enginecore/internal/api"
	"github.com/cloudsync/enginecore/internal/api/sse"

	"github.com/cloudsync/enginecore/internal/core/conflict"
	"github.com/cloudsync/enginecore/internal/core/config"
	"github.com/cloudsync/enginecore/internal/core/crypto"
	"github.com/cloudsync/enginecore/internal/core/db"
	"github.com/cloudsync/enginecore/internal/core/engine"
	"github.com/cloudsync/enginecore/internal/core/filecache"
	"github.com/cloudsync/enginecore/internal/core/filestate"
	"github.com/cloudsync/enginecore/internal/core/historysink"
	"github.com/cloudsync/enginecore/internal/core/jobstore"
	"github.com/cloudsync/enginecore/internal/core/logger"
	"github.com/cloudsync/enginecore/internal/core/model"
	"github.com/cloudsync/enginecore/internal/core/runner"
	"github.com/cloudsync/enginecore/internal/core/scheduler"
	"github.com/cloudsync/enginecore/internal/core/transferstate"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the sync engine's REST API, scheduler, and background runner",
	Run: func(_ *cobra.Command, _ []string) {
		// 1. Load configuration
		cfg, err := config.Load(cfgFile)
		if err != nil {
			logger.Get().Fatal("Failed to load config", zap.Error(err))
		}

		// 2. Initialize logger with hierarchical level configuration
		logger.InitLogger(logger.Environment(cfg.App.Environment), logger.LogLevel(cfg.Log.Level), cfg.Log.Levels, logger.FileConfig{})
		log := logger.Named("cmd.serve")
		log.Info("Starting cloud-sync-engine server...")

		// 3. Initialize database
		dbClient, err := db.InitDB(db.InitDBOptions{
			DSN:           db.FileSDN(cfg.Database.Path),
			MigrationMode: db.ParseMigrationMode(cfg.Database.MigrationMode),
			EnableDebug:   logger.GetLevelForName("core.db.query") == zap.DebugLevel,
			Environment:   cfg.App.Environment,
		})
		if err != nil {
			log.Fatal("Failed to initialize database", zap.Error(err))
		}
		defer db.CloseDB(dbClient)

		// 4. Initialize encryptor for storage-config persistence
		encryptor, err := crypto.NewEncryptor(cfg.Security.EncryptionKey)
		if err != nil {
			log.Fatal("Failed to initialize encryptor", zap.Error(err))
		}

		// 5. Wire up persistence layers
		jobStore := jobstore.NewStore(dbClient, encryptor)
		fileStates := filestate.NewStore(dbClient)
		conflicts := conflict.NewRegistry(dbClient, model.ResolutionSkip)
		history := historysink.NewSink(dbClient)
		cache := filecache.New(cfg.DataPath)
		transfers := transferstate.NewStore(dbClient)

		// 6. Build the engine from configured transfer policy
		engineCfg := engine.DefaultConfig()
		if cfg.Transfer.MaxConcurrent > 0 {
			engineCfg.MaxConcurrentTransfers = cfg.Transfer.MaxConcurrent
		}
		if cfg.Transfer.StreamThresholdMB > 0 {
			engineCfg.StreamThreshold = int64(cfg.Transfer.StreamThresholdMB) * 1024 * 1024
		}
		if cfg.Transfer.ChunkSizeMB > 0 {
			engineCfg.ChunkSize = int64(cfg.Transfer.ChunkSizeMB) * 1024 * 1024
		}
		if cfg.Transfer.MaxRetries > 0 {
			engineCfg.MaxRetries = cfg.Transfer.MaxRetries
		}
		if cfg.Transfer.RetryBaseDelayMs > 0 {
			engineCfg.RetryBaseDelayMs = int64(cfg.Transfer.RetryBaseDelayMs)
		}
		syncEngine := engine.WithConfig(fileStates, conflicts, cache, transfers, engineCfg)

		// 7. Wire the progress broadcaster and the background runner
		broker := sse.GetBroker()
		jobRunner := runner.NewRunner(syncEngine, history, broker)
		jobRunner.Start()
		defer jobRunner.Stop()

		// 8. Initialize and start the cron scheduler
		sched := scheduler.NewScheduler(jobStore, jobRunner)
		sched.Start()
		defer sched.Stop()

		// 9. Setup router with dependencies
		routerDeps := api.RouterDeps{
			Config:    cfg,
			Engine:    syncEngine,
			Runner:    jobRunner,
			JobStore:  jobStore,
			History:   history,
			Conflicts: conflicts,
			Scheduler: sched,
			Transfers: transfers,
			Cache:     cache,
		}
		r := api.SetupRouter(routerDeps)

		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		log.Info("Server starting", zap.String("address", addr))

		srv := &http.Server{
			Addr:              addr,
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Fatal("Server failed to start", zap.Error(err))
			}
		}()

		// Wait for interrupt signal to gracefully shutdown the server with
		// a timeout of 5 seconds.
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Info("Shutdown signal received, stopping server...")

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Fatal("Server forced to shutdown", zap.Error(err))
		}

		log.Info("Server exiting")
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
