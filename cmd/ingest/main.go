// Package main loads a historical results CSV into the observation store.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/btrhorseinf-hub/horse-racing-inf/internal/config"
	"github.com/btrhorseinf-hub/horse-racing-inf/internal/database"
	applogger "github.com/btrhorseinf-hub/horse-racing-inf/internal/logger"
	"github.com/btrhorseinf-hub/horse-racing-inf/internal/repository"
	"github.com/btrhorseinf-hub/horse-racing-inf/internal/service"
)

func main() {
	var (
		configPath = flag.String("config", "./config/config.yaml", "Path to configuration file")
		inputPath  = flag.String("input", "", "Historical results CSV to ingest (required)")
		batchSize  = flag.Int("batch-size", 0, "Rows per insert batch (0 = service default)")
	)
	flag.Parse()

	if *inputPath == "" {
		log.Fatalf("-input is required")
	}

	cfg := loadConfig(*configPath)
	logger := applogger.NewLogger(cfg.App.LogLevel)

	ctx := context.Background()

	initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	db, err := database.Initialize(initCtx, cfg)
	cancel()
	if err != nil {
		logger.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	repos, err := repository.NewRepositories(db)
	if err != nil {
		logger.Fatalf("Failed to initialize repositories: %v", err)
	}

	svc := service.NewIngestionService(repos.Observation, logger, *batchSize)

	summary, err := svc.IngestFile(ctx, *inputPath)
	if err != nil {
		logger.Fatalf("Ingestion failed: %v", err)
	}

	fmt.Printf("\nIngestion Summary\n")
	fmt.Printf("  Rows read:         %d\n", summary.RowsRead)
	fmt.Printf("  Rows valid:        %d\n", summary.RowsValid)
	fmt.Printf("  Rows skipped:      %d\n", summary.RowsSkipped)
	fmt.Printf("  Validation errors: %d\n", summary.ValidationErrors)
	fmt.Printf("  Inserted:          %d\n", summary.RowsInserted)
	fmt.Printf("  Duplicates:        %d\n", summary.Duplicates)
	fmt.Printf("  Duration:          %s\n", summary.Duration.Round(time.Millisecond))

	if count, err := repos.Observation.Count(ctx); err == nil {
		fmt.Printf("  Store total:       %d observations\n", count)
	}
}

func loadConfig(path string) *config.Config {
	cfg, err := config.LoadWithDefaults(path)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.AWS.SecretsEnabled {
		if err := config.LoadSecretsFromAWS(cfg, cfg.AWS.Region, cfg.AWS.SecretName); err != nil {
			log.Fatalf("Failed to load secrets: %v", err)
		}
	}
	if err := config.Validate(cfg); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	return cfg
}
