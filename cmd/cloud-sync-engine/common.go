/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/cloudsync/enginecore/internal/core/conflict"
	"github.com/cloudsync/enginecore/internal/core/config"
	"github.com/cloudsync/enginecore/internal/core/db"
	"github.com/cloudsync/enginecore/internal/core/engine"
	"github.com/cloudsync/enginecore/internal/core/filecache"
	"github.com/cloudsync/enginecore/internal/core/filestate"
	"github.com/cloudsync/enginecore/internal/core/logger"
	"github.com/cloudsync/enginecore/internal/core/model"
	"github.com/cloudsync/enginecore/internal/core/transferstate"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// loadJobFile reads a JSON-encoded model.SyncJob from path, the format
// written by `cloud-sync-engine serve`'s job export and accepted by the
// sync/analyze one-off subcommands.
func loadJobFile(path string) (model.SyncJob, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.SyncJob{}, fmt.Errorf("read job file: %w", err)
	}
	var job model.SyncJob
	if err := json.Unmarshal(data, &job); err != nil {
		return model.SyncJob{}, fmt.Errorf("parse job file: %w", err)
	}
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	return job, nil
}

// buildStandaloneEngine loads cfg and initializes a database-backed engine
// suitable for a single one-off sync/analyze CLI invocation. The caller is
// responsible for closing the returned database connection.
func buildStandaloneEngine() (*engine.Engine, func(), error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	logger.InitLogger(logger.Environment(cfg.App.Environment), logger.LogLevel(cfg.Log.Level), cfg.Log.Levels, logger.FileConfig{})

	dbClient, err := db.InitDB(db.InitDBOptions{
		DSN:           db.FileSDN(cfg.Database.Path),
		MigrationMode: db.ParseMigrationMode(cfg.Database.MigrationMode),
		EnableDebug:   logger.GetLevelForName("core.db.query") == zap.DebugLevel,
		Environment:   cfg.App.Environment,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("init database: %w", err)
	}
	closer := func() { db.CloseDB(dbClient) }

	fileStates := filestate.NewStore(dbClient)
	conflicts := conflict.NewRegistry(dbClient, model.ResolutionSkip)
	cache := filecache.New(cfg.DataPath)
	transfers := transferstate.NewStore(dbClient)

	return engine.New(fileStates, conflicts, cache, transfers), closer, nil
}
