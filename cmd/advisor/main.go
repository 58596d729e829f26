package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/btrhorseinf-hub/horse-racing-inf/internal/config"
	"github.com/btrhorseinf-hub/horse-racing-inf/internal/database"
	"github.com/btrhorseinf-hub/horse-racing-inf/internal/edge"
	"github.com/btrhorseinf-hub/horse-racing-inf/internal/features"
	"github.com/btrhorseinf-hub/horse-racing-inf/internal/health"
	applogger "github.com/btrhorseinf-hub/horse-racing-inf/internal/logger"
	"github.com/btrhorseinf-hub/horse-racing-inf/internal/metrics"
	"github.com/btrhorseinf-hub/horse-racing-inf/internal/modelclient"
	"github.com/btrhorseinf-hub/horse-racing-inf/internal/models"
	"github.com/btrhorseinf-hub/horse-racing-inf/internal/oddsfeed"
	"github.com/btrhorseinf-hub/horse-racing-inf/internal/repository"
	"github.com/btrhorseinf-hub/horse-racing-inf/internal/scheduler"
	"github.com/btrhorseinf-hub/horse-racing-inf/internal/service"
	"github.com/btrhorseinf-hub/horse-racing-inf/internal/staking"
)

// Build information - set via ldflags
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

var (
	configFile  string
	cardPath    string
	raceDateStr string
	outputJSON  bool
	exportPath  string
	exportLimit int
	listLimit   int

	logger     *logrus.Logger
	cfg        *config.Config
	db         *database.DB
	repos      *repository.Repositories
	client     *modelclient.CachedClient
	advisor    *service.AdvisorService
	settlement *service.SettlementService
	auditFile  *os.File
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "./config/config.yaml", "Path to configuration file")

	adviseCmd.Flags().StringVar(&cardPath, "card", "", "Race card CSV file (required)")
	adviseCmd.Flags().StringVar(&raceDateStr, "date", "", "Race date for rows without one (YYYY-MM-DD, default today)")
	adviseCmd.Flags().BoolVar(&outputJSON, "json", false, "Emit the advisory as JSON")
	adviseCmd.MarkFlagRequired("card")

	serveCmd.Flags().StringVar(&cardPath, "card", "", "Initial race card CSV file")
	serveCmd.Flags().StringVar(&raceDateStr, "date", "", "Race date for rows without one (YYYY-MM-DD, default today)")

	exportCmd.Flags().StringVarP(&exportPath, "output", "o", "", "Write feedback JSON to a file instead of stdout")
	exportCmd.Flags().IntVar(&exportLimit, "limit", 1000, "Maximum settled rows to export")

	historyCmd.Flags().IntVar(&listLimit, "limit", 0, "Maximum rows to list (default: advisor.history_limit)")
}

var rootCmd = &cobra.Command{
	Use:   "advisor",
	Short: "Race-day wagering advisor",
	Long:  `Scores race cards against the prediction service, surfaces value bets with capped Kelly stakes, and settles recommendations once results arrive.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := loadConfig(); err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		if err := setupDependencies(); err != nil {
			return fmt.Errorf("failed to setup dependencies: %w", err)
		}
		return nil
	},
}

var adviseCmd = &cobra.Command{
	Use:   "advise",
	Short: "Score a race card and print value-bet recommendations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAdvise(context.Background())
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the advisor service with scheduled rescoring and settlement",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

var settleCmd = &cobra.Command{
	Use:   "settle",
	Short: "Match stored recommendations against ingested results",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSettle(context.Background())
	},
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export settled recommendations as model-training feedback",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runExport(context.Background())
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List the most recent stored recommendations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runHistory(context.Background())
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check model service and store status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStatus(context.Background())
	},
}

func main() {
	rootCmd.AddCommand(adviseCmd, serveCmd, settleCmd, exportCmd, historyCmd, statusCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Error: %v", err)
	}
}

func loadConfig() error {
	var err error
	cfg, err = config.LoadWithDefaults(configFile)
	if err != nil {
		return err
	}
	if cfg.AWS.SecretsEnabled {
		if err := config.LoadSecretsFromAWS(cfg, cfg.AWS.Region, cfg.AWS.SecretName); err != nil {
			return fmt.Errorf("failed to load secrets: %w", err)
		}
	}
	return config.Validate(cfg)
}

func setupDependencies() error {
	logger = applogger.NewLogger(cfg.App.LogLevel)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var err error
	db, err = database.Initialize(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	repos, err = repository.NewRepositories(db)
	if err != nil {
		return fmt.Errorf("failed to initialize repositories: %w", err)
	}

	client = modelclient.NewCachedClient(&cfg.ModelService, logger)

	builder := features.NewTemporalFeatureBuilder(cfg.Features.RollingWindows, cfg.Features.CovariateWindow, logger)
	calculator := edge.NewCalculator(cfg.Edge.Threshold, logger)
	sizer := staking.NewStakeSizer(cfg.Staking, logger)

	advisor = service.NewAdvisorService(repos.Observation, repos.Prediction, client, builder, calculator, sizer, cfg.Advisor, logger)
	settlement = service.NewSettlementService(repos.Prediction, repos.Observation, logger)

	if cfg.App.AuditLog != "" {
		audit, f, err := applogger.NewFileAuditLogger(cfg.App.AuditLog)
		if err != nil {
			return err
		}
		auditFile = f
		advisor.UseAuditLogger(audit)
		logger.WithField("path", cfg.App.AuditLog).Info("Audit trail routed to file")
	}

	return nil
}

func readCard() ([]models.RaceCardEntry, error) {
	date := time.Now().UTC()
	if raceDateStr != "" {
		parsed, err := time.Parse("2006-01-02", raceDateStr)
		if err != nil {
			return nil, fmt.Errorf("invalid race date: %w", err)
		}
		date = parsed
	}

	reader := service.NewCardReader(logger)
	return reader.ReadFile(cardPath, date)
}

func runAdvise(ctx context.Context) error {
	entries, err := readCard()
	if err != nil {
		return err
	}

	advice, err := advisor.Advise(ctx, entries)
	if err != nil {
		return err
	}

	if outputJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(advice)
	}

	printAdvice(advice)
	return nil
}

func printAdvice(advice *service.Advice) {
	fmt.Printf("\nRace Card Advisory (model %s)\n", advice.ModelVersion)
	fmt.Printf("Generated: %s\n", advice.GeneratedAt.Format(time.RFC3339))
	fmt.Printf("Runners scored: %d\n\n", len(advice.Runners))

	if len(advice.ValueBets) == 0 {
		fmt.Println("No value bets on this card.")
		return
	}

	fmt.Printf("Value bets (%d):\n", len(advice.ValueBets))
	for i, bet := range advice.ValueBets {
		fmt.Printf("%2d. %-24s odds %6.2f  p(top3) %.4f  edge %+.4f  score %.4f  kelly %.4f",
			i+1, bet.HorseName, bet.WinOdds, bet.PredictedProb, bet.Edge, bet.ValueScore, bet.KellyFraction)
		if !bet.StakeAmount.IsZero() {
			fmt.Printf("  stake %s", bet.StakeAmount.StringFixed(2))
		}
		fmt.Println()
	}
}

func runServe() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	healthServer := health.NewServer(health.Config{
		ServiceName: "racing-advisor",
		Version:     Version,
		Commit:      GitCommit,
		Port:        cfg.Health.Port,
		Logger:      logger,
		DB:          db,
		Model:       client,
	})
	if err := healthServer.Start(ctx); err != nil {
		return fmt.Errorf("failed to start health server: %w", err)
	}

	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		metricsServer = startMetricsServer()
	}

	if cardPath != "" {
		entries, err := readCard()
		if err != nil {
			return err
		}
		advisor.SetCard(entries)

		// The model service may still be warming up; the scheduled
		// refresh retries, so a failed first pass is not fatal.
		if _, err := advisor.Refresh(ctx); err != nil {
			logger.WithError(err).Error("Initial advisory failed")
		}
	}

	if cfg.OddsFeed.Enabled {
		feed := oddsfeed.NewSubscriber(&cfg.OddsFeed, logger)
		feed.OnUpdate(func(update oddsfeed.OddsUpdate) error {
			advisor.UpdateOdds(update.HorseName, update.RaceDate, update.WinOdds)
			return nil
		})
		go func() {
			if err := feed.Run(ctx); err != nil && ctx.Err() == nil {
				logger.WithError(err).Error("Odds feed terminated")
			}
		}()
	}

	sched := scheduler.NewScheduler(advisor, settlement, logger)
	if err := sched.ScheduleAdvisoryRefresh(cfg.Advisor.RefreshSeconds); err != nil {
		return fmt.Errorf("failed to schedule advisory refresh: %w", err)
	}
	if cfg.Advisor.SettlementCron != "" {
		if err := sched.ScheduleSettlement(cfg.Advisor.SettlementCron); err != nil {
			return fmt.Errorf("failed to schedule settlement: %w", err)
		}
	}
	if err := sched.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	healthServer.SetReady(true)
	logger.WithFields(logrus.Fields{
		"refresh_seconds": cfg.Advisor.RefreshSeconds,
		"settlement_cron": cfg.Advisor.SettlementCron,
		"odds_feed":       cfg.OddsFeed.Enabled,
		"next_run":        sched.GetNextRun(),
	}).Info("Advisor service started")

	sig := <-sigChan
	logger.WithField("signal", sig).Info("Shutdown signal received")

	healthServer.SetReady(false)
	cancel()

	if err := sched.Stop(); err != nil {
		logger.WithError(err).Error("Scheduler shutdown failed")
	}
	if metricsServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Error("Metrics server shutdown failed")
		}
	}
	if err := client.Close(); err != nil {
		logger.WithError(err).Error("Failed to close model client")
	}
	if auditFile != nil {
		auditFile.Close()
	}
	db.Close()

	logger.Info("Advisor service stopped")
	return nil
}

func startMetricsServer() *http.Server {
	mux := http.NewServeMux()
	mux.Handle(cfg.Metrics.Path, metrics.Handler())

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Metrics.Port),
		Handler: mux,
	}
	go func() {
		logger.WithField("port", cfg.Metrics.Port).Info("Metrics server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("Metrics server error")
		}
	}()
	return server
}

func runSettle(ctx context.Context) error {
	summary, err := settlement.SettleAll(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Settled %d of %d unsettled recommendations (%d still awaiting results)\n",
		summary.Settled, summary.Unsettled, summary.Pending)
	return nil
}

func runExport(ctx context.Context) error {
	var w io.Writer = os.Stdout
	if exportPath != "" {
		f, err := os.Create(exportPath)
		if err != nil {
			return fmt.Errorf("failed to create export file: %w", err)
		}
		defer f.Close()
		w = f
	}

	count, err := settlement.ExportTrainingFeedback(ctx, w, exportLimit)
	if err != nil {
		return err
	}
	if exportPath != "" {
		fmt.Printf("Exported %d settled recommendations to %s\n", count, exportPath)
	}
	return nil
}

func runHistory(ctx context.Context) error {
	limit := listLimit
	if limit <= 0 {
		limit = cfg.Advisor.HistoryLimit
	}

	records, err := repos.Prediction.GetRecent(ctx, limit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("No recommendations stored.")
		return nil
	}

	fmt.Printf("Recent recommendations (%d, * = value bet):\n", len(records))
	for _, rec := range records {
		marker := " "
		if rec.IsValueBet {
			marker = "*"
		}
		fmt.Printf("%s %s  %-24s odds %6.2f  p %.4f  edge %+.4f  score %.4f  result %s\n",
			marker, rec.RaceDate.Format("2006-01-02"), rec.HorseName,
			rec.WinOdds, rec.PredictedProb, rec.Edge, rec.ValueScore, rec.ActualResult)
	}
	return nil
}

func runStatus(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	fmt.Print("Model service: ")
	if err := client.HealthCheck(ctx); err != nil {
		fmt.Printf("❌ unavailable: %v\n", err)
	} else {
		fmt.Println("✓ online")
	}

	hits, misses, ratio := client.CacheStats()
	fmt.Printf("Prediction cache: %d hits, %d misses (%.1f%% hit rate)\n", hits, misses, ratio*100)

	fmt.Print("Database: ")
	if err := db.Ping(ctx); err != nil {
		fmt.Printf("❌ unreachable: %v\n", err)
	} else if count, err := repos.Observation.Count(ctx); err == nil {
		fmt.Printf("✓ connected (%d observations)\n", count)
	} else {
		fmt.Println("✓ connected")
	}

	if unsettled, err := repos.Prediction.GetUnsettled(ctx); err == nil {
		fmt.Printf("Unsettled recommendations: %d\n", len(unsettled))
	}

	fmt.Printf("\nModel service URL: %s\n", cfg.ModelService.BaseURL)
	fmt.Printf("Edge threshold: %.2f  Kelly cap: %.2f  Bankroll: %.2f\n",
		cfg.Edge.Threshold, cfg.Staking.KellyCap, cfg.Advisor.Bankroll)
	return nil
}
