package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/cenkalti/backoff"
	"github.com/exaring/otelpgx"
	"github.com/golang-migrate/migrate/v4"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/automaxprocs/maxprocs"

	appanalysis "github.com/sessionlens/analyzer/internal/app/analysis"
	"github.com/sessionlens/analyzer/internal/config"
	"github.com/sessionlens/analyzer/internal/domain/analysis"
	"github.com/sessionlens/analyzer/internal/infra/blob/s3"
	"github.com/sessionlens/analyzer/internal/infra/inference/langflow"
	analysisStore "github.com/sessionlens/analyzer/internal/infra/storage/analysis/postgres"
	"github.com/sessionlens/analyzer/pkg/common"
	"github.com/sessionlens/analyzer/pkg/common/logger"
	"github.com/sessionlens/analyzer/pkg/common/otel"
)

const serviceType = "analyzer"

func main() {
	_, _ = maxprocs.Set()

	configPath := flag.String("config", "config.yaml", "path to the configuration file")
	flag.Parse()

	hostname, err := os.Hostname()
	if err != nil {
		log.Fatalf("failed to get hostname: %v", err)
	}

	var logg *logger.Logger

	logEvents := logger.Events{
		Error: func(ctx context.Context, r logger.Record) {
			errorAttrs := map[string]any{
				"error_message": r.Message,
				"error_time":    r.Time.UTC().Format(time.RFC3339),
				"trace_id":      otel.GetTraceID(ctx),
			}
			for k, v := range r.Attributes {
				errorAttrs[k] = v
			}

			errorAttrsJSON, err := json.Marshal(errorAttrs)
			if err != nil {
				fmt.Fprintf(os.Stderr, "failed to marshal error attributes: %v\n", err)
				return
			}

			fmt.Fprintf(os.Stderr, "Error event: %s, details: %s\n",
				r.Message, errorAttrsJSON)
		},
	}

	traceIDFn := func(ctx context.Context) string {
		return otel.GetTraceID(ctx)
	}

	svcName := fmt.Sprintf("ANALYZER-%s", hostname)
	metadata := map[string]string{
		"service":  svcName,
		"hostname": hostname,
		"app":      serviceType,
	}

	logg = logger.NewWithMetadata(os.Stdout, logger.LevelDebug, svcName, traceIDFn, logEvents, metadata)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logg.Error(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	tp, telemetryTeardown, err := otel.InitTelemetry(logg, otel.Config{
		ServiceName:      svcName,
		ExporterEndpoint: cfg.Telemetry.Endpoint,
		ExcludedRoutes: map[string]struct{}{
			"/v1/health":    {},
			"/v1/readiness": {},
		},
		Probability: cfg.Telemetry.Probability,
		ResourceAttributes: map[string]string{
			"library.language": "go",
			"deployment.phase": cfg.Phase,
		},
		InsecureExporter: cfg.Telemetry.Insecure,
	})
	if err != nil {
		logg.Error(ctx, "failed to initialize telemetry", "error", err)
		os.Exit(1)
	}
	defer telemetryTeardown(ctx)

	tracer := tp.Tracer(svcName)

	ready := &atomic.Bool{}
	healthServer := common.NewHealthServer(ready)
	defer func() {
		if err := healthServer.Server().Shutdown(ctx); err != nil {
			logg.Error(ctx, "error shutting down health server", "error", err)
		}
	}()

	poolCfg, err := pgxpool.ParseConfig(cfg.Postgres.DSN)
	if err != nil {
		logg.Error(ctx, "failed to parse db config", "error", err)
		os.Exit(1)
	}
	poolCfg.MinConns = cfg.Postgres.MinConns
	poolCfg.MaxConns = cfg.Postgres.MaxConns
	poolCfg.ConnConfig.Tracer = otelpgx.NewTracer()

	pool, err := connectPool(ctx, poolCfg)
	if err != nil {
		logg.Error(ctx, "failed to open db", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := runMigrations(pool); err != nil {
		logg.Error(ctx, "failed to run migrations", "error", err)
		os.Exit(1)
	}
	logg.Info(ctx, "migrations applied successfully")

	sessionStore := analysisStore.NewSessionStore(pool, tracer)
	observationStore := analysisStore.NewObservationStore(pool, tracer)

	if err := seedCatalog(ctx, cfg, observationStore); err != nil {
		logg.Error(ctx, "failed to seed observation catalog", "error", err)
		os.Exit(1)
	}

	awsOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.S3.Region)}
	if cfg.S3.AccessKey != "" {
		awsOpts = append(awsOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3.AccessKey, cfg.S3.SecretKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsOpts...)
	if err != nil {
		logg.Error(ctx, "failed to load aws config", "error", err)
		os.Exit(1)
	}
	s3Client := awss3.NewFromConfig(awsCfg, func(o *awss3.Options) {
		if cfg.S3.Endpoint != "" {
			o.BaseEndpoint = &cfg.S3.Endpoint
			o.UsePathStyle = true
		}
	})

	scriptStore := s3.NewScriptStore(cfg.S3.Bucket, s3Client, tracer)
	reportStore := s3.NewReportStore(cfg.S3.Bucket, s3Client, tracer)

	inferenceClient := langflow.NewClient(langflow.Config{
		Host:            cfg.Langflow.Host,
		Token:           cfg.Langflow.Token,
		FlowID:          cfg.Langflow.FlowID,
		ChatInputKey:    cfg.Langflow.ChatInputKey,
		TextInputKey:    cfg.Langflow.TextInputKey,
		RequestTimeout:  cfg.Langflow.RequestTimeout,
		RetryMaxElapsed: cfg.Langflow.RetryMaxElapsed,
		RPS:             cfg.Langflow.RPS,
		Burst:           cfg.Langflow.Burst,
	}, logg, tracer)

	service := appanalysis.NewService(
		cfg.Phase,
		sessionStore,
		observationStore,
		scriptStore,
		reportStore,
		inferenceClient,
		logg,
		tracer,
	)
	scheduler := appanalysis.NewScheduler(
		cfg.Scheduler.Interval,
		cfg.Scheduler.RunTimeout,
		service,
		logg,
		tracer,
	)

	go func() {
		<-sigCh
		logg.Info(ctx, "shutdown signal received")
		cancel()
	}()

	ready.Store(true)
	logg.Info(ctx, "analyzer started", "phase", cfg.Phase, "interval", cfg.Scheduler.Interval.String())

	scheduler.Start(ctx)

	logg.Info(ctx, "analyzer stopped")
}

// connectPool opens the connection pool with exponential backoff so the
// service survives the database starting after it.
func connectPool(ctx context.Context, poolCfg *pgxpool.Config) (*pgxpool.Pool, error) {
	var pool *pgxpool.Pool

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.MaxElapsedTime = 2 * time.Minute
	expBackoff.InitialInterval = 2 * time.Second

	operation := func() error {
		var err error
		pool, err = pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return err
		}
		return pool.Ping(ctx)
	}

	if err := backoff.Retry(operation, backoff.WithContext(expBackoff, ctx)); err != nil {
		return nil, fmt.Errorf("failed to connect to postgres after retries: %w", err)
	}
	return pool, nil
}

// runMigrations applies the schema migrations from db/migrations.
func runMigrations(pool *pgxpool.Pool) error {
	db := stdlib.OpenDBFromPool(pool)

	driver, err := migratepgx.WithInstance(db, &migratepgx.Config{})
	if err != nil {
		return fmt.Errorf("creating migrate driver: %w", err)
	}

	migrations, err := migrate.NewWithDatabaseInstance("file://db/migrations", "postgres", driver)
	if err != nil {
		return fmt.Errorf("creating migrator: %w", err)
	}

	if err := migrations.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("applying migrations: %w", err)
	}
	return nil
}

// seedCatalog loads the observation catalog into the database when the table
// is empty. A standalone catalog file takes precedence over inline entries.
func seedCatalog(ctx context.Context, cfg *config.Config, store interface {
	Seed(ctx context.Context, observations []analysis.Observation) error
}) error {
	var observations []analysis.Observation
	if cfg.CatalogPath != "" {
		var err error
		observations, err = config.LoadCatalog(cfg.CatalogPath)
		if err != nil {
			return err
		}
	} else {
		observations = config.SeedObservations(cfg.Observations)
	}

	if len(observations) == 0 {
		return nil
	}
	return store.Seed(ctx, observations)
}
