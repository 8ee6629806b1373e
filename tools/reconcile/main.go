package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	aggapp "settlement-recon/internal/aggregates/application"
	aggrepo "settlement-recon/internal/aggregates/infrastructure/postgres"
	derivedapp "settlement-recon/internal/derived/application"
	derived "settlement-recon/internal/derived/domain"
	derivedrepo "settlement-recon/internal/derived/infrastructure/postgres"
	facts "settlement-recon/internal/facts/domain"
	factrepo "settlement-recon/internal/facts/infrastructure/postgres"
	"settlement-recon/internal/marketdata"
	"settlement-recon/internal/observability/metrics"
	"settlement-recon/internal/recon/application"
	recon "settlement-recon/internal/recon/domain"
	reconsqlite "settlement-recon/internal/recon/infrastructure/sqlite"
	"settlement-recon/internal/retry"
)

type cliConfig struct {
	dbURL          string
	checkpointPath string
	marketBaseURL  string
	marketAPIKey   string
	from           string
	to             string
	dateWorkers    int
	periodWorkers  int
}

func main() {
	cfg := cliConfig{}
	flag.StringVar(&cfg.dbURL, "db", os.Getenv("DATABASE_URL"), "postgres connection string")
	flag.StringVar(&cfg.checkpointPath, "checkpoints", envDefault("CHECKPOINT_DB_PATH", "var/checkpoints.db"), "sqlite checkpoint file")
	flag.StringVar(&cfg.marketBaseURL, "market-url", os.Getenv("MARKET_API_BASE_URL"), "market data API base URL")
	flag.StringVar(&cfg.marketAPIKey, "market-key", os.Getenv("MARKET_API_KEY"), "market data API key")
	flag.StringVar(&cfg.from, "from", "", "first settlement date (YYYY-MM-DD)")
	flag.StringVar(&cfg.to, "to", "", "last settlement date (YYYY-MM-DD), defaults to -from")
	flag.IntVar(&cfg.dateWorkers, "date-workers", 0, "override concurrent dates")
	flag.IntVar(&cfg.periodWorkers, "period-workers", 0, "override concurrent period repairs")
	flag.Parse()

	if cfg.dbURL == "" || cfg.marketBaseURL == "" || cfg.from == "" {
		flag.Usage()
		os.Exit(2)
	}
	if cfg.to == "" {
		cfg.to = cfg.from
	}

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Error("reconcile failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg cliConfig, logger *zap.Logger) error {
	from, err := facts.ParseSettlementDate(cfg.from)
	if err != nil {
		return fmt.Errorf("-from: %w", err)
	}
	to, err := facts.ParseSettlementDate(cfg.to)
	if err != nil {
		return fmt.Errorf("-to: %w", err)
	}

	engineCfg, err := application.LoadConfig()
	if err != nil {
		return err
	}
	if cfg.dateWorkers > 0 {
		engineCfg.DateWorkers = cfg.dateWorkers
	}
	if cfg.periodWorkers > 0 {
		engineCfg.PeriodWorkers = cfg.periodWorkers
	}

	db, err := sql.Open("pgx", cfg.dbURL)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		return err
	}

	checkpoints, err := reconsqlite.Open(cfg.checkpointPath)
	if err != nil {
		return err
	}
	defer checkpoints.Close()

	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	source, err := marketdata.NewHTTPSource(cfg.marketBaseURL, cfg.marketAPIKey)
	if err != nil {
		return err
	}
	limiter := marketdata.NewRateLimiter(
		engineCfg.RateLimit.Requests,
		engineCfg.RateLimit.Window,
		marketdata.WithSafetyMargin(engineCfg.RateLimit.SafetyMargin),
	)
	client, err := marketdata.NewClient(source, limiter, logger,
		marketdata.WithThrottleCooldown(engineCfg.ThrottleCooldown),
		marketdata.WithFetchTimeout(engineCfg.FetchTimeout),
	)
	if err != nil {
		return err
	}
	filter, err := marketdata.NewFilter(ctx, marketdata.NewPostgresEntityProvider(db))
	if err != nil {
		return err
	}

	coefficients, err := engineCfg.ParameterCoefficients()
	if err != nil {
		return err
	}
	parameters := make([]derived.ModelParameter, 0, len(coefficients))
	for parameter := range coefficients {
		parameters = append(parameters, parameter)
	}
	transform := func(quantity decimal.Decimal, parameter derived.ModelParameter, contextValue decimal.Decimal) decimal.Decimal {
		return quantity.Abs().Mul(coefficients[parameter]).Mul(contextValue)
	}

	factRepo := factrepo.NewFactRepository(db)
	calculator, err := derivedapp.NewCalculator(
		factRepo,
		derivedrepo.NewCalculationRepository(db),
		derivedrepo.NewContextProvider(db),
		transform,
		parameters,
		logger,
	)
	if err != nil {
		return err
	}
	maintainer, err := aggapp.NewMaintainer(
		factRepo,
		derivedrepo.NewCalculationRepository(db),
		aggrepo.NewAggregateRepository(db),
		parameters,
		nil,
	)
	if err != nil {
		return err
	}

	tolerance, err := engineCfg.ToleranceDecimal()
	if err != nil {
		return err
	}
	detector, err := application.NewDetector(client, filter, factRepo, logger, application.WithTolerance(tolerance))
	if err != nil {
		return err
	}

	policy := retry.DefaultPolicy()
	policy.MaxAttempts = engineCfg.Retry.MaxAttempts
	policy.BaseDelay = engineCfg.Retry.BaseDelay
	policy.MaxDelay = engineCfg.Retry.MaxDelay
	controller, err := application.NewController(
		detector, client, filter, factRepo, calculator, maintainer, checkpoints, logger,
		application.WithRetryPolicy(policy),
		application.WithDateWorkers(engineCfg.DateWorkers),
		application.WithPeriodWorkers(engineCfg.PeriodWorkers),
	)
	if err != nil {
		return err
	}

	batch, err := controller.ReconcileRange(ctx, from, to)
	if err != nil {
		return err
	}
	printBatch(batch)
	if batch.DatesFailed > 0 {
		return fmt.Errorf("%d of %d dates failed", batch.DatesFailed, batch.DatesProcessed)
	}
	return nil
}

func printBatch(batch recon.BatchReport) {
	fmt.Printf("reconciled %s .. %s: %d processed, %d repaired, %d failed\n",
		batch.From.Key(), batch.To.Key(), batch.DatesProcessed, batch.DatesRepaired, batch.DatesFailed)
	for _, report := range batch.Reports {
		line := fmt.Sprintf("  %s  %-12s", report.Date.Key(), report.Status)
		if report.Skipped {
			line += "  (already done)"
		}
		if len(report.PeriodsRepaired) > 0 {
			line += fmt.Sprintf("  repaired=%s", joinPeriods(report.PeriodsRepaired))
		}
		if len(report.StillDiverged) > 0 {
			line += fmt.Sprintf("  still-diverged=%s", joinPeriods(report.StillDiverged))
		}
		if report.Err != "" {
			line += "  error=" + report.Err
		}
		fmt.Println(line)
	}
}

func joinPeriods(periods []facts.Period) string {
	parts := make([]string, len(periods))
	for i, period := range periods {
		parts[i] = fmt.Sprintf("%d", period)
	}
	return strings.Join(parts, ",")
}

func envDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}
