package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/exaring/otelpgx"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/automaxprocs/maxprocs"
	"golang.org/x/sync/errgroup"

	"github.com/ahrav/grasp/internal/api"
	"github.com/ahrav/grasp/internal/app/scanning"
	"github.com/ahrav/grasp/internal/config/fileloader"
	"github.com/ahrav/grasp/internal/domain/events"
	domain "github.com/ahrav/grasp/internal/domain/scanning"
	"github.com/ahrav/grasp/internal/infra/eventbus/kafka"
	eventbusmemory "github.com/ahrav/grasp/internal/infra/eventbus/memory"
	"github.com/ahrav/grasp/internal/infra/storage"
	recordmemory "github.com/ahrav/grasp/internal/infra/storage/scanning/memory"
	recordpostgres "github.com/ahrav/grasp/internal/infra/storage/scanning/postgres"
	targetingmemory "github.com/ahrav/grasp/internal/infra/targeting/memory"
	"github.com/ahrav/grasp/pkg/common"
	"github.com/ahrav/grasp/pkg/common/logger"
	"github.com/ahrav/grasp/pkg/common/otel"
	"github.com/ahrav/grasp/pkg/metrics"
)

const (
	serviceType = "scanner"
)

func main() {
	_, _ = maxprocs.Set()

	hostname, err := os.Hostname()
	if err != nil {
		log.Fatalf("failed to get hostname: %v", err)
	}

	var log *logger.Logger

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
			fmt.Fprintf(os.Stderr, "Error event: %s, details: %s\n", r.Message, errorAttrsJSON)
		},
	}

	traceIDFn := func(ctx context.Context) string {
		return otel.GetTraceID(ctx)
	}

	svcName := fmt.Sprintf("SCANNER-%s", hostname)
	metadata := map[string]string{
		"service":  svcName,
		"hostname": hostname,
		"app":      serviceType,
	}

	log = logger.NewWithMetadata(os.Stdout, parseLevel(os.Getenv("LOG_LEVEL")), svcName, traceIDFn, logEvents, metadata)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); endpoint != "" {
		prob, err := strconv.ParseFloat(envOr("OTEL_SAMPLING_RATIO", "1"), 64)
		if err != nil {
			log.Error(ctx, "failed to parse OTEL_SAMPLING_RATIO", "error", err)
			os.Exit(1)
		}
		_, telemetryTeardown, err := otel.InitTelemetry(log, otel.Config{
			ServiceName:      envOr("OTEL_SERVICE_NAME", serviceType),
			ExporterEndpoint: endpoint,
			Probability:      prob,
			ExcludedRoutes:   excludedSpans(envOr("OTEL_EXCLUDED_SPANS", "GET /v1/health,GET /v1/readiness")),
			ResourceAttributes: map[string]string{
				"library.language": "go",
				"host.name":        hostname,
			},
			InsecureExporter: true,
		})
		if err != nil {
			log.Error(ctx, "failed to initialize telemetry", "error", err)
			os.Exit(1)
		}
		defer telemetryTeardown(context.Background())
	}
	tracer := otel.GetTracerProvider().Tracer(envOr("OTEL_SERVICE_NAME", serviceType))

	cfg, err := fileloader.NewFileLoader(envOr("CONFIG_PATH", "configs/scanner.yaml")).Load(ctx)
	if err != nil {
		log.Error(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	promMetrics := metrics.New("grasp", nil)

	records, closeRecords, err := setupRecordRepository(ctx, log, tracer)
	if err != nil {
		log.Error(ctx, "failed to set up scan record storage", "error", err)
		os.Exit(1)
	}
	defer closeRecords()

	publisher, closePublisher, err := setupPublisher(ctx, log, svcName, promMetrics, tracer)
	if err != nil {
		log.Error(ctx, "failed to set up event publisher", "error", err)
		os.Exit(1)
	}
	defer closePublisher()

	scanMetrics, err := scanning.NewScanMetrics(otel.GetMeterProvider())
	if err != nil {
		log.Error(ctx, "failed to create scan metrics", "error", err)
		os.Exit(1)
	}

	world := scanning.NewWorld(log)
	svc := targetingmemory.NewService(
		targetingmemory.TargetProviderFunc(world.Targets),
		log,
		tracer,
		targetingmemory.WithDrainRate(cfg.Scheduler.AsyncDrainPerSecond, cfg.Scheduler.AsyncBurst),
	)
	world.SetTargetingService(svc)

	scheduler := scanning.NewTickScheduler(tracer, log,
		scanning.WithTickRate(cfg.Scheduler.TickRate),
		scanning.WithPump(svc),
		scanning.WithSchedulerMetrics(promMetrics),
	)

	// Workers outlive the frame loop so queued events and records are flushed
	// on shutdown.
	workerCtx := context.WithoutCancel(ctx)
	forwarder := scanning.NewEventForwarder(publisher, log, tracer, 0)
	forwarder.Start(workerCtx)
	keeper := scanning.NewRecordKeeper(records, log, tracer, 0)
	keeper.Start(workerCtx)

	launcher, err := newLauncher(cfg, world, scheduler, log, tracer,
		scanning.WithTaskObserver(forwarder),
		scanning.WithTaskEndHook(keeper),
		scanning.WithScanMetrics(scanMetrics),
	)
	if err != nil {
		log.Error(ctx, "failed to bootstrap world", "error", err)
		os.Exit(1)
	}
	if err := launcher.startConfigured(ctx, cfg); err != nil {
		log.Error(ctx, "failed to start configured scans", "error", err)
		os.Exit(1)
	}

	ready := &atomic.Bool{}
	apiServer := api.NewServer(envOr("API_ADDR", ":8080"), log, tracer, records, launcher, ready.Load)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return apiServer.Start(gctx) })
	g.Go(func() error { return serveMetrics(gctx, log, envOr("METRICS_ADDR", ":8081")) })

	scheduler.Start(ctx)
	ready.Store(true)
	log.Info(ctx, "Scanner started", "abilities", launcher.len(), "tasks", scheduler.Len())

	select {
	case <-sigCh:
		log.Info(ctx, "Shutdown signal received, stopping scanner...")
	case <-gctx.Done():
		log.Error(ctx, "Server failed, stopping scanner...")
	}
	ready.Store(false)

	launcher.endAll(ctx)
	scheduler.Stop(ctx)
	cancel()
	if err := g.Wait(); err != nil {
		log.Error(context.Background(), "server error", "error", err)
	}
	forwarder.Close()
	keeper.Close()

	log.Info(context.Background(), "Scanner shutdown complete")
}

// serveMetrics serves Prometheus metrics and statsviz until ctx is canceled.
func serveMetrics(ctx context.Context, log *logger.Logger, addr string) error {
	mux, err := common.NewMetricsMux()
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ErrorLog:          logger.NewStdLogger(log, logger.LevelError),
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error(shutdownCtx, "Error shutting down metrics server", "error", err)
		}
	}()

	log.Info(ctx, "Metrics server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}

// setupRecordRepository connects to Postgres when DATABASE_URL is set and
// falls back to an in-memory store otherwise.
func setupRecordRepository(
	ctx context.Context,
	log *logger.Logger,
	tracer trace.Tracer,
) (domain.RecordRepository, func(), error) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Info(ctx, "DATABASE_URL not set, keeping scan records in memory")
		return recordmemory.NewRecordStore(), func() {}, nil
	}

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse db config: %w", err)
	}
	poolCfg.MinConns = 1
	poolCfg.MaxConns = 8
	poolCfg.ConnConfig.Tracer = otelpgx.NewTracer()

	pool, err := common.ConnectWithRetry(ctx, log, "postgres", common.DefaultRetryConfig, func() (*pgxpool.Pool, error) {
		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return nil, err
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, err
		}
		return pool, nil
	})
	if err != nil {
		return nil, nil, err
	}

	if err := storage.Migrate(pool, envOr("MIGRATIONS_DIR", "db/migrations")); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	log.Info(ctx, "Migrations applied successfully")

	return recordpostgres.NewRecordStore(pool, tracer), pool.Close, nil
}

// setupPublisher publishes to Kafka when KAFKA_BROKERS is set. Without it,
// events go to an in-process broker whose only subscriber logs them.
func setupPublisher(
	ctx context.Context,
	log *logger.Logger,
	clientID string,
	m kafka.PublisherMetrics,
	tracer trace.Tracer,
) (events.DomainEventPublisher, func(), error) {
	brokers := os.Getenv("KAFKA_BROKERS")
	if brokers == "" {
		log.Info(ctx, "KAFKA_BROKERS not set, publishing scan events in process")
		broker := eventbusmemory.NewBroker()
		err := broker.Subscribe(ctx,
			[]events.EventType{domain.EventTypeTargetsFound, domain.EventTypeScanFinished},
			func(ctx context.Context, env events.EventEnvelope) error {
				log.Debug(ctx, "Scan event", "event_type", env.Type, "key", env.Key)
				return nil
			},
		)
		if err != nil {
			return nil, nil, err
		}
		return broker, func() {}, nil
	}

	kafkaCfg := &kafka.Config{
		Brokers:       strings.Split(brokers, ","),
		TargetsTopic:  envOr("KAFKA_TARGETS_TOPIC", "scan-targets-found"),
		FinishedTopic: envOr("KAFKA_FINISHED_TOPIC", "scan-finished"),
		ClientID:      clientID,
	}
	publisher, err := common.ConnectWithRetry(ctx, log, "kafka", common.DefaultRetryConfig, func() (*kafka.Publisher, error) {
		return kafka.NewPublisherFromConfig(kafkaCfg, log, m, tracer)
	})
	if err != nil {
		return nil, nil, err
	}
	log.Info(ctx, "Connected to Kafka", "brokers", kafkaCfg.Brokers)

	return publisher, func() {
		if err := publisher.Close(); err != nil {
			log.Error(context.Background(), "failed to close kafka publisher", "error", err)
		}
	}, nil
}

func parseLevel(s string) logger.Level {
	switch strings.ToLower(s) {
	case "info":
		return logger.LevelInfo
	case "warn":
		return logger.LevelWarn
	case "error":
		return logger.LevelError
	default:
		return logger.LevelDebug
	}
}

func excludedSpans(list string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, name := range strings.Split(list, ",") {
		if name = strings.TrimSpace(name); name != "" {
			out[name] = struct{}{}
		}
	}
	return out
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
