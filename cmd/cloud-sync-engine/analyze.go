/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cloudsync/enginecore/internal/core/logger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <job-file>",
	Short: "Dry-run one sync job and print what it would do without touching the destination",
	Args:  cobra.ExactArgs(1),
	Run: func(_ *cobra.Command, args []string) {
		log := logger.Named("cmd.analyze")

		job, err := loadJobFile(args[0])
		if err != nil {
			log.Fatal("Failed to load job file", zap.Error(err))
		}

		eng, closer, err := buildStandaloneEngine()
		if err != nil {
			log.Fatal("Failed to build engine", zap.Error(err))
		}
		defer closer()

		diff, err := eng.Analyze(context.Background(), job)
		if err != nil {
			log.Fatal("Analyze failed", zap.Error(err))
		}

		out, err := json.MarshalIndent(diff, "", "  ")
		if err != nil {
			log.Fatal("Failed to marshal diff", zap.Error(err))
		}
		fmt.Println(string(out))
	},
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
}
