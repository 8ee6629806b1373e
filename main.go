package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	aggapp "settlement-recon/internal/aggregates/application"
	aggrepo "settlement-recon/internal/aggregates/infrastructure/postgres"
	"settlement-recon/internal/auth"
	derivedapp "settlement-recon/internal/derived/application"
	derived "settlement-recon/internal/derived/domain"
	derivedrepo "settlement-recon/internal/derived/infrastructure/postgres"
	factrepo "settlement-recon/internal/facts/infrastructure/postgres"
	"settlement-recon/internal/marketdata"
	"settlement-recon/internal/observability/metrics"
	"settlement-recon/internal/recon/application"
	reconsqlite "settlement-recon/internal/recon/infrastructure/sqlite"
	"settlement-recon/internal/recon/interfaces"
	reconhttp "settlement-recon/internal/recon/interfaces/http"
	"settlement-recon/internal/retry"
)

func main() {
	cfg := loadConfig()

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	engineCfg, err := application.LoadConfig()
	if err != nil {
		logger.Fatal("engine config", zap.Error(err))
	}

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("db open", zap.Error(err))
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		logger.Fatal("db ping", zap.Error(err))
	}

	checkpoints, err := reconsqlite.Open(cfg.CheckpointDBPath)
	if err != nil {
		logger.Fatal("checkpoint store open", zap.Error(err))
	}
	defer checkpoints.Close()

	metrics.Init()

	factRepo := factrepo.NewFactRepository(db)
	calcRepo := derivedrepo.NewCalculationRepository(db)
	aggregateRepo := aggrepo.NewAggregateRepository(db)
	contexts := derivedrepo.NewContextProvider(db)

	source, err := marketdata.NewHTTPSource(cfg.MarketBaseURL, cfg.MarketAPIKey)
	if err != nil {
		logger.Fatal("market source", zap.Error(err))
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
		logger.Fatal("market client", zap.Error(err))
	}

	filter, err := marketdata.NewFilter(context.Background(), marketdata.NewPostgresEntityProvider(db))
	if err != nil {
		logger.Fatal("entity filter", zap.Error(err))
	}

	coefficients, err := engineCfg.ParameterCoefficients()
	if err != nil {
		logger.Fatal("model parameters", zap.Error(err))
	}
	parameters := make([]derived.ModelParameter, 0, len(coefficients))
	for parameter := range coefficients {
		parameters = append(parameters, parameter)
	}
	transform := func(quantity decimal.Decimal, parameter derived.ModelParameter, contextValue decimal.Decimal) decimal.Decimal {
		return quantity.Abs().Mul(coefficients[parameter]).Mul(contextValue)
	}
	calculator, err := derivedapp.NewCalculator(factRepo, calcRepo, contexts, transform, parameters, logger)
	if err != nil {
		logger.Fatal("calculator", zap.Error(err))
	}
	maintainer, err := aggapp.NewMaintainer(factRepo, calcRepo, aggregateRepo, parameters, nil)
	if err != nil {
		logger.Fatal("aggregate maintainer", zap.Error(err))
	}

	tolerance, err := engineCfg.ToleranceDecimal()
	if err != nil {
		logger.Fatal("tolerance", zap.Error(err))
	}
	detector, err := application.NewDetector(client, filter, factRepo, logger, application.WithTolerance(tolerance))
	if err != nil {
		logger.Fatal("detector", zap.Error(err))
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
		logger.Fatal("controller", zap.Error(err))
	}

	statements := interfaces.NewStatementBuilder(aggregateRepo, checkpoints, parameters)
	handler := reconhttp.NewHandler(controller, detector, statements, logger)

	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	}))
	handler.Register(router)
	router.Handle("/metrics", promhttp.Handler())
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			http.Error(w, "db unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	authPolicy := auth.NewDefaultPolicy([]string{"/healthz", "/metrics"}, nil)
	authMiddleware := auth.NewMiddleware([]byte(cfg.JWTSecret), authPolicy)

	server := &http.Server{Addr: cfg.HTTPAddr, Handler: authMiddleware.Wrap(router)}

	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go func() {
		<-shutdownCtx.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			logger.Error("http shutdown", zap.Error(err))
		}
	}()

	logger.Info("http listening", zap.String("addr", cfg.HTTPAddr))
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("http server", zap.Error(err))
	}
}

type config struct {
	DatabaseURL      string
	CheckpointDBPath string
	HTTPAddr         string
	MarketBaseURL    string
	MarketAPIKey     string
	JWTSecret        string
	CORSOrigins      []string
}

func loadConfig() config {
	cfg := config{
		DatabaseURL:      getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", "")),
		CheckpointDBPath: getenvDefault("CHECKPOINT_DB_PATH", "var/checkpoints.db"),
		HTTPAddr:         getenvDefault("HTTP_ADDR", ":8080"),
		MarketBaseURL:    getenvDefault("MARKET_API_BASE_URL", ""),
		MarketAPIKey:     getenvDefault("MARKET_API_KEY", ""),
		JWTSecret:        getenvDefault("AUTH_JWT_SECRET", getenvDefault("JWT_SECRET", "")),
		CORSOrigins:      []string{getenvDefault("CORS_ORIGIN", "http://localhost:5173")},
	}
	if cfg.DatabaseURL == "" {
		panic("DATABASE_URL or PG_DSN is required")
	}
	if cfg.MarketBaseURL == "" {
		panic("MARKET_API_BASE_URL is required")
	}
	if cfg.JWTSecret == "" {
		panic("AUTH_JWT_SECRET is required")
	}
	return cfg
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}
