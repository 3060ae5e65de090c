// API server entry point for fiscore.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/contabil/fiscore/internal/application/delivery"
	"github.com/contabil/fiscore/internal/application/intake"
	"github.com/contabil/fiscore/internal/application/obligation"
	"github.com/contabil/fiscore/internal/config"
	"github.com/contabil/fiscore/internal/infrastructure/database/postgres"
	"github.com/contabil/fiscore/internal/infrastructure/database/postgres/repositories"
	"github.com/contabil/fiscore/internal/infrastructure/database/redis"
	"github.com/contabil/fiscore/internal/infrastructure/messaging/kafka"
	"github.com/contabil/fiscore/internal/infrastructure/monitoring/logging"
	"github.com/contabil/fiscore/internal/infrastructure/monitoring/prometheus"
	"github.com/contabil/fiscore/internal/infrastructure/ocr"
	minioclient "github.com/contabil/fiscore/internal/infrastructure/storage/minio"
	httpserver "github.com/contabil/fiscore/internal/interfaces/http"
	"github.com/contabil/fiscore/internal/interfaces/http/handlers"
	"github.com/contabil/fiscore/internal/interfaces/http/middleware"
)

// Build-time variables injected via ldflags.
var (
	Version = "dev"
)

const defaultConfigPath = "configs/config.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "path to configuration file")
	httpPort := flag.Int("http-port", 0, "HTTP server port (overrides config)")
	runMigrations := flag.Bool("migrate", false, "run database migrations before serving")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *httpPort > 0 {
		cfg.Server.Port = *httpPort
	}

	logger, err := logging.NewLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logger.Info("starting fiscore API server",
		logging.String("version", Version),
		logging.Int("port", cfg.Server.Port))

	if err := run(cfg, logger, *runMigrations); err != nil {
		logger.Error("server exited with error", logging.Err(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger logging.Logger, migrate bool) error {
	// Infrastructure
	conn, err := postgres.NewConnection(cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer conn.Close()

	if migrate {
		if err := conn.RunMigrations(cfg.Database.MigrationPath); err != nil {
			return fmt.Errorf("migrations: %w", err)
		}
		logger.Info("database migrations applied")
	}

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

	// Repositories
	stagingRepo := repositories.NewPostgresStagingRepo(conn, logger)
	documentRepo := repositories.NewPostgresDocumentRepo(conn, logger)
	instanceRepo := repositories.NewPostgresInstanceRepo(conn, logger)
	catalogRepo := repositories.NewPostgresCatalogRepo(conn, logger)
	clientRepo := repositories.NewPostgresClientRepo(conn, logger)
	linkRepo := repositories.NewPostgresLinkRepo(conn, logger)
	queueRepo := repositories.NewPostgresDeliveryRepo(conn, logger)

	files := minioclient.NewFileStore(minioCli, logger)
	matchCache := redis.NewCache(redisCli, 10*time.Minute)

	// Application services
	instanceSvc := obligation.NewInstanceService(instanceRepo, producer, metrics, logger)
	generatorSvc := obligation.NewGeneratorService(
		catalogRepo, linkRepo, instanceRepo,
		redisCli, cfg.Worker.GeneratorLockTTL,
		producer, metrics, logger)

	matcherSvc := intake.NewMatcherService(clientRepo, catalogRepo, matchCache, metrics, logger)
	uploadSvc := intake.NewUploadService(stagingRepo, files, cfg.MinIO.StagingPrefix, metrics, logger)
	processorSvc := intake.NewProcessorService(
		stagingRepo, files, extractor, matcherSvc,
		cfg.Worker.OCRConcurrency, metrics, logger)
	classifierSvc := intake.NewClassifierService(
		stagingRepo, documentRepo, queueRepo, files,
		instanceSvc, producer, cfg.Delivery.MaxAttempts, metrics, logger)
	documentSvc := intake.NewDocumentService(documentRepo, files, 15*time.Minute, logger)

	queueSvc := delivery.NewQueueService(queueRepo, producer, logger)

	// HTTP layer
	healthHandler := handlers.NewHealthHandler(Version,
		handlers.CheckerFunc{ComponentName: "postgres", Fn: conn.HealthCheck},
		handlers.CheckerFunc{ComponentName: "redis", Fn: redisCli.HealthCheck},
		handlers.CheckerFunc{ComponentName: "minio", Fn: minioCli.HealthCheck},
	)

	router := httpserver.NewRouter(httpserver.RouterConfig{
		InstanceHandler:   handlers.NewInstanceHandler(instanceSvc, generatorSvc, logger),
		UploadHandler:     handlers.NewUploadHandler(uploadSvc, processorSvc, classifierSvc, cfg.Server.MaxUploadBytes, logger),
		DocumentHandler:   handlers.NewDocumentHandler(documentSvc, logger),
		DeliveryHandler:   handlers.NewDeliveryHandler(queueSvc, logger),
		HealthHandler:     healthHandler,
		LoggingMiddleware: middleware.NewLoggingMiddleware(logger, metrics),
		TenantMiddleware:  middleware.NewTenantMiddleware(),
		MetricsCollector:  collector,
	})

	srv := httpserver.NewServer(cfg.Server, router, logger)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", logging.Int("port", cfg.Server.Port))
		errCh <- srv.Start()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		logger.Info("shutting down", logging.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Stop(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

func loadConfig(path string) (*config.Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		// Containerised deployments configure everything through
		// FISCORE_* environment variables.
		return config.LoadFromEnv()
	}
	return config.Load(path)
}
