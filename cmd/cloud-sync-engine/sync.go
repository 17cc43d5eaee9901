/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cloudsync/enginecore/internal/core/logger"
	"github.com/cloudsync/enginecore/internal/core/model"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var syncCmd = &cobra.Command{
	Use:   "sync <job-file>",
	Short: "Run one sync job defined in a JSON file and print its report",
	Args:  cobra.ExactArgs(1),
	Run: func(_ *cobra.Command, args []string) {
		log := logger.Named("cmd.sync")

		job, err := loadJobFile(args[0])
		if err != nil {
			log.Fatal("Failed to load job file", zap.Error(err))
		}

		eng, closer, err := buildStandaloneEngine()
		if err != nil {
			log.Fatal("Failed to build engine", zap.Error(err))
		}
		defer closer()

		ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		report := eng.Run(ctx, job, nil)

		out, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			log.Fatal("Failed to marshal report", zap.Error(err))
		}
		fmt.Println(string(out))

		if report.Status == model.StatusFailed {
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
}
