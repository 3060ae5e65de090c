// Background worker entry point for fiscore.
//
// The worker owns every periodic job the API server must not block on:
// generating the current month's instances, draining the delivery queue,
// refreshing derived instance statuses, and running vision extraction
// over uploads still awaiting OCR.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/contabil/fiscore/internal/application/delivery"
	"github.com/contabil/fiscore/internal/application/intake"
	"github.com/contabil/fiscore/internal/application/obligation"
	"github.com/contabil/fiscore/internal/config"
	obligationdomain "github.com/contabil/fiscore/internal/domain/obligation"
	"github.com/contabil/fiscore/internal/infrastructure/database/postgres"
	"github.com/contabil/fiscore/internal/infrastructure/database/postgres/repositories"
	"github.com/contabil/fiscore/internal/infrastructure/database/redis"
	"github.com/contabil/fiscore/internal/infrastructure/messaging/kafka"
	"github.com/contabil/fiscore/internal/infrastructure/monitoring/logging"
	"github.com/contabil/fiscore/internal/infrastructure/monitoring/prometheus"
	"github.com/contabil/fiscore/internal/infrastructure/ocr"
	minioclient "github.com/contabil/fiscore/internal/infrastructure/storage/minio"
	"github.com/contabil/fiscore/pkg/errors"
)

// Build-time variables injected via ldflags.
var (
	Version = "dev"
)

const (
	defaultConfigPath      = "configs/config.yaml"
	defaultHealthPort      = 8081
	defaultSweepInterval   = 5 * time.Minute
	defaultDispatchTick    = 30 * time.Second
	shutdownGrace          = 30 * time.Second
)

func main() {
	configPath := flag.String("config", defaultConfigPath, "path to configuration file")
	healthPort := flag.Int("health-port", defaultHealthPort, "health probe port")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.NewLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logger = logger.Named("worker")

	logger.Info("starting fiscore worker", logging.String("version", Version))

	if err := run(cfg, logger, *healthPort); err != nil {
		logger.Error("worker exited with error", logging.Err(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger logging.Logger, healthPort int) error {
	conn, err := postgres.NewConnection(cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer conn.Close()

	redisCli, err := redis.NewClient(cfg.Redis, logger)
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	defer redisCli.Close()

	minioCli, err := minioclient.NewClient(cfg.MinIO, logger)
	if err != nil {
		return fmt.Errorf("minio: %w", err)
	}

	producer := kafka.NewProducer(cfg.Kafka, logger)
	defer producer.Close()

	extractor, err := ocr.NewVisionExtractor(cfg.OCR, logger)
	if err != nil {
		return fmt.Errorf("ocr: %w", err)
	}

	collector := prometheus.NewCollector()
	metrics := prometheus.NewAppMetrics(collector)

	stagingRepo := repositories.NewPostgresStagingRepo(conn, logger)
	documentRepo := repositories.NewPostgresDocumentRepo(conn, logger)
	instanceRepo := repositories.NewPostgresInstanceRepo(conn, logger)
	catalogRepo := repositories.NewPostgresCatalogRepo(conn, logger)
	clientRepo := repositories.NewPostgresClientRepo(conn, logger)
	linkRepo := repositories.NewPostgresLinkRepo(conn, logger)
	queueRepo := repositories.NewPostgresDeliveryRepo(conn, logger)

	files := minioclient.NewFileStore(minioCli, logger)
	matchCache := redis.NewCache(redisCli, 10*time.Minute)

	matcherSvc := intake.NewMatcherService(clientRepo, catalogRepo, matchCache, metrics, logger)
	processorSvc := intake.NewProcessorService(
		stagingRepo, files, extractor, matcherSvc,
		cfg.Worker.OCRConcurrency, metrics, logger)
	sweepSvc := obligation.NewSweepService(instanceRepo, metrics, logger)
	generatorSvc := obligation.NewGeneratorService(
		catalogRepo, linkRepo, instanceRepo, redisCli,
		cfg.Worker.GeneratorLockTTL, producer, metrics, logger)
	dispatcherSvc := delivery.NewDispatcherService(
		queueRepo, documentRepo, delivery.NewKafkaNotifier(producer),
		cfg.Delivery, metrics, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	healthSrv := startHealthServer(healthPort, collector, logger)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		dispatchLoop(ctx, dispatcherSvc, cfg.Worker.DispatchInterval, logger)
	}()
	go func() {
		defer wg.Done()
		sweepLoop(ctx, clientRepo, generatorSvc, sweepSvc, processorSvc, cfg.Worker.SweepInterval, logger)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	logger.Info("received shutdown signal", logging.String("signal", sig.String()))

	cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		logger.Info("all loops stopped")
	case <-time.After(shutdownGrace):
		logger.Warn("shutdown grace period exceeded, forcing exit")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := healthSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("health server shutdown error", logging.Err(err))
	}

	logger.Info("fiscore worker stopped")
	return nil
}

// dispatchLoop drains due delivery-queue items on a fixed tick.
func dispatchLoop(ctx context.Context, dispatcher delivery.DispatcherService, interval time.Duration, logger logging.Logger) {
	if interval <= 0 {
		interval = defaultDispatchTick
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("dispatch loop stopping")
			return
		case <-ticker.C:
			report, err := dispatcher.DispatchDue(ctx)
			if err != nil {
				logger.Error("dispatch pass failed", logging.Err(err))
				continue
			}
			if report.Claimed > 0 {
				logger.Info("dispatch pass finished",
					logging.Int("claimed", report.Claimed),
					logging.Int("sent", report.Sent),
					logging.Int("retried", report.Retried),
					logging.Int("failed", report.Failed))
			}
		}
	}
}

// sweepLoop generates the current month's instances, refreshes cached
// instance statuses, and drains pending OCR work for every tenant on a
// fixed tick.
func sweepLoop(
	ctx context.Context,
	clients obligationdomain.ClientRepository,
	generator obligation.GeneratorService,
	sweeper obligation.SweepService,
	processor intake.ProcessorService,
	interval time.Duration,
	logger logging.Logger,
) {
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("sweep loop stopping")
			return
		case <-ticker.C:
			orgs, err := clients.ListOrgIDs(ctx)
			if err != nil {
				logger.Error("failed to enumerate tenants", logging.Err(err))
				continue
			}
			competence := obligationdomain.CurrentCompetence(time.Now().UTC())
			for _, org := range orgs {
				if ctx.Err() != nil {
					return
				}
				orgLogger := logger.With(logging.String("org_id", string(org)))

				report, err := generator.GenerateForCompetence(ctx, org, competence)
				switch {
				case err != nil && errors.IsCode(err, errors.ErrCodeConflict):
					// Another run holds the lock; it will create whatever
					// is missing.
				case err != nil:
					orgLogger.Error("instance generation failed", logging.Err(err))
				case report.InstancesCreated > 0:
					orgLogger.Info("instances generated",
						logging.String("competence", string(competence)),
						logging.Int("created", report.InstancesCreated))
				}

				swept, err := sweeper.SweepStatuses(ctx, org)
				if err != nil {
					orgLogger.Error("status sweep failed", logging.Err(err))
				} else if swept > 0 {
					orgLogger.Info("status sweep finished", logging.Int("updated", swept))
				}

				processed, err := processor.ProcessPending(ctx, org)
				if err != nil {
					orgLogger.Error("pending OCR drain failed", logging.Err(err))
				} else if processed > 0 {
					orgLogger.Info("pending uploads processed", logging.Int("count", processed))
				}
			}
		}
	}
}

func startHealthServer(port int, collector prometheus.MetricsCollector, logger logging.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ready"))
	})
	mux.Handle("/metrics", collector.Handler())

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	go func() {
		logger.Info("health server listening", logging.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("health server error", logging.Err(err))
		}
	}()

	return srv
}

func loadConfig(path string) (*config.Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return config.LoadFromEnv()
	}
	return config.Load(path)
}
