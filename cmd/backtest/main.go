// Package main provides the entry point for the historical replay CLI.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/btrhorseinf-hub/horse-racing-inf/internal/backtest"
	"github.com/btrhorseinf-hub/horse-racing-inf/internal/config"
	"github.com/btrhorseinf-hub/horse-racing-inf/internal/database"
	"github.com/btrhorseinf-hub/horse-racing-inf/internal/edge"
	"github.com/btrhorseinf-hub/horse-racing-inf/internal/features"
	applogger "github.com/btrhorseinf-hub/horse-racing-inf/internal/logger"
	"github.com/btrhorseinf-hub/horse-racing-inf/internal/modelclient"
	"github.com/btrhorseinf-hub/horse-racing-inf/internal/models"
	"github.com/btrhorseinf-hub/horse-racing-inf/internal/pipeline"
	"github.com/btrhorseinf-hub/horse-racing-inf/internal/repository"
	"github.com/btrhorseinf-hub/horse-racing-inf/internal/service"
	"github.com/btrhorseinf-hub/horse-racing-inf/internal/staking"
)

func main() {
	var (
		configPath     = flag.String("config", "config/config.yaml", "Path to config file")
		inputPath      = flag.String("input", "", "Replay a dataset CSV file instead of the observation store")
		startDate      = flag.String("start-date", "", "Override start date (YYYY-MM-DD)")
		endDate        = flag.String("end-date", "", "Override end date (YYYY-MM-DD)")
		outputDir      = flag.String("output", "", "Override report output directory")
		noBootstrap    = flag.Bool("no-bootstrap", false, "Skip bootstrap resampling")
		noPersist      = flag.Bool("no-persist", false, "Skip persisting the result row")
		trainingExport = flag.Bool("training-export", false, "Write the model-training feedback JSON")
	)
	flag.Parse()

	ctx := context.Background()

	cfg := loadConfig(*configPath)
	if *startDate != "" {
		cfg.Backtest.StartDate = *startDate
	}
	if *endDate != "" {
		cfg.Backtest.EndDate = *endDate
	}
	if *outputDir != "" {
		cfg.Backtest.OutputPath = *outputDir
	}

	logger := applogger.NewLogger(cfg.App.LogLevel)

	btConfig, err := backtest.FromConfig(cfg)
	if err != nil {
		logger.Fatalf("Invalid backtest config: %v", err)
	}

	client := modelclient.NewCachedClient(&cfg.ModelService, logger)
	defer client.Close()

	var (
		observations   []models.Observation
		datasetVersion uuid.UUID
		repos          *repository.Repositories
	)
	if *inputPath != "" {
		observations, datasetVersion = loadDatasetFile(ctx, *inputPath, logger)
	} else {
		db, err := database.Initialize(ctx, cfg)
		if err != nil {
			logger.Fatalf("Failed to initialize database: %v", err)
		}
		defer db.Close()

		repos, err = repository.NewRepositories(db)
		if err != nil {
			logger.Fatalf("Failed to initialize repositories: %v", err)
		}
		observations, datasetVersion = loadStoredObservations(ctx, cfg, repos, logger)
	}

	builder := features.NewTemporalFeatureBuilder(cfg.Features.RollingWindows, cfg.Features.CovariateWindow, logger)
	calculator := edge.NewCalculator(cfg.Edge.Threshold, logger)
	sizer := staking.NewStakeSizer(cfg.Staking, logger)
	engine := backtest.NewEngine(btConfig, logger)
	pipe := pipeline.New(builder, calculator, sizer, client.Source(), engine, cfg.Features.Workers, logger)

	logger.WithFields(logrus.Fields{
		"observations":    len(observations),
		"dataset_version": datasetVersion,
	}).Info("Starting historical replay")

	report, err := pipe.Run(ctx, observations)
	if err != nil {
		logger.Fatalf("Replay failed: %v", err)
	}

	fmt.Print(backtest.GenerateConsoleReport(report))
	if report.NoData {
		return
	}

	var bootstrap *backtest.BootstrapResult
	if !*noBootstrap {
		result, err := backtest.RunBootstrap(ctx, report.Records, backtest.BootstrapConfig{
			Iterations: btConfig.BootstrapIterations,
			Seed:       btConfig.BootstrapSeed,
		})
		if err != nil {
			logger.Fatalf("Bootstrap failed: %v", err)
		}
		bootstrap = &result
		fmt.Println(result.String())
	}

	writeReports(report, bootstrap, btConfig.OutputPath, *trainingExport, logger)

	if repos != nil && !*noPersist {
		if err := report.Persist(ctx, repos.BacktestResult, datasetVersion); err != nil {
			logger.Fatalf("Failed to persist backtest result: %v", err)
		}
		logger.WithField("dataset_version", datasetVersion).Info("Backtest result persisted")
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

func loadDatasetFile(ctx context.Context, path string, logger *logrus.Logger) ([]models.Observation, uuid.UUID) {
	f, err := os.Open(path)
	if err != nil {
		logger.Fatalf("Failed to open dataset: %v", err)
	}
	defer f.Close()

	observations, _, err := service.LoadDataset(ctx, f, logger)
	if err != nil {
		logger.Fatalf("Failed to load dataset: %v", err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return observations, uuid.NewSHA1(uuid.NameSpaceURL, []byte("file://"+abs))
}

func loadStoredObservations(ctx context.Context, cfg *config.Config, repos *repository.Repositories, logger *logrus.Logger) ([]models.Observation, uuid.UUID) {
	observations, err := repos.Observation.GetAll(ctx)
	if err != nil {
		logger.Fatalf("Failed to load observations: %v", err)
	}

	// Deterministic per store snapshot: rerunning against unchanged data
	// reuses the same dataset version.
	name := fmt.Sprintf("store://%s/%s?rows=%d", cfg.Database.Host, cfg.Database.Name, len(observations))
	return observations, uuid.NewSHA1(uuid.NameSpaceURL, []byte(name))
}

func writeReports(report *backtest.Report, bootstrap *backtest.BootstrapResult, dir string, training bool, logger *logrus.Logger) {
	if err := backtest.WriteJSONReport(report, filepath.Join(dir, "backtest_report.json")); err != nil {
		logger.Fatalf("Failed to write JSON report: %v", err)
	}
	if err := backtest.WriteDetailedCSV(report, filepath.Join(dir, "backtest_bets.csv")); err != nil {
		logger.Fatalf("Failed to write bet CSV: %v", err)
	}
	if err := backtest.WriteEquityCSV(report, filepath.Join(dir, "equity_curve.csv")); err != nil {
		logger.Fatalf("Failed to write equity curve: %v", err)
	}
	if training {
		export := backtest.BuildTrainingExport(report, bootstrap)
		if err := backtest.WriteTrainingExport(export, filepath.Join(dir, "training_feedback.json")); err != nil {
			logger.Fatalf("Failed to write training export: %v", err)
		}
	}
	logger.WithField("output", dir).Info("Reports written")
}
