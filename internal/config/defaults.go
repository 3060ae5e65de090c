package config

import "time"

// Default value constants.
const (
	DefaultServerPort = 8080
	DefaultServerMode = "release"

	DefaultDBHost         = "localhost"
	DefaultDBPort         = 5432
	DefaultDBName         = "fiscore"
	DefaultDBMaxOpenConns = 25
	DefaultDBMaxIdleConns = 10

	DefaultRedisAddr = "localhost:6379"

	DefaultKafkaBroker = "localhost:9092"

	DefaultMinIOEndpoint = "localhost:9000"
	DefaultMinIOBucket   = "fiscore-documents"
	DefaultStagingPrefix = "_staging"

	DefaultOCRModel         = "gpt-4o-mini"
	DefaultOCRTimeout       = 90 * time.Second
	DefaultOCRMinConfidence = 0.6

	DefaultOCRConcurrency   = 4
	DefaultSweepInterval    = 15 * time.Minute
	DefaultDispatchInterval = 30 * time.Second
	DefaultGeneratorLockTTL = 2 * time.Minute

	DefaultDeliveryMaxAttempts    = 5
	DefaultDeliveryInitialBackoff = 1 * time.Minute
	DefaultDeliveryMaxBackoff     = 1 * time.Hour
	DefaultDeliveryBatchSize      = 50

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)

// ApplyDefaults fills every zero-value field in cfg with the platform default.
// Fields already set by the caller are left unchanged so explicit
// configuration always wins.  Must be called after unmarshalling and before
// Validate so optional-but-defaulted fields are never seen as missing.
func ApplyDefaults(cfg *Config) {
	if cfg == nil {
		return
	}

	if cfg.Server.Port == 0 {
		cfg.Server.Port = DefaultServerPort
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = DefaultServerMode
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 15 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 30 * time.Second
	}
	if cfg.Server.MaxUploadBytes == 0 {
		cfg.Server.MaxUploadBytes = 25 << 20 // 25 MiB
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 30 * time.Second
	}

	if cfg.Database.Host == "" {
		cfg.Database.Host = DefaultDBHost
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = DefaultDBPort
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = DefaultDBName
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = DefaultDBMaxOpenConns
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = DefaultDBMaxIdleConns
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 30 * time.Minute
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 5 * time.Minute
	}
	if cfg.Database.MigrationPath == "" {
		cfg.Database.MigrationPath = "migrations"
	}

	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = DefaultRedisAddr
	}
	if cfg.Redis.PoolSize == 0 {
		cfg.Redis.PoolSize = 10
	}
	if cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = "fiscore:"
	}

	if len(cfg.Kafka.Brokers) == 0 {
		cfg.Kafka.Brokers = []string{DefaultKafkaBroker}
	}
	if cfg.Kafka.ProducerRetries == 0 {
		cfg.Kafka.ProducerRetries = 3
	}
	if cfg.Kafka.BatchTimeout == 0 {
		cfg.Kafka.BatchTimeout = 1 * time.Second
	}
	if cfg.Kafka.WriteTimeout == 0 {
		cfg.Kafka.WriteTimeout = 10 * time.Second
	}

	if cfg.MinIO.Endpoint == "" {
		cfg.MinIO.Endpoint = DefaultMinIOEndpoint
	}
	if cfg.MinIO.Bucket == "" {
		cfg.MinIO.Bucket = DefaultMinIOBucket
	}
	if cfg.MinIO.StagingPrefix == "" {
		cfg.MinIO.StagingPrefix = DefaultStagingPrefix
	}

	if cfg.OCR.Model == "" {
		cfg.OCR.Model = DefaultOCRModel
	}
	if cfg.OCR.Timeout == 0 {
		cfg.OCR.Timeout = DefaultOCRTimeout
	}
	if cfg.OCR.MaxFileBytes == 0 {
		cfg.OCR.MaxFileBytes = 20 << 20
	}
	if cfg.OCR.MinConfidence == 0 {
		cfg.OCR.MinConfidence = DefaultOCRMinConfidence
	}

	if cfg.Worker.OCRConcurrency == 0 {
		cfg.Worker.OCRConcurrency = DefaultOCRConcurrency
	}
	if cfg.Worker.SweepInterval == 0 {
		cfg.Worker.SweepInterval = DefaultSweepInterval
	}
	if cfg.Worker.DispatchInterval == 0 {
		cfg.Worker.DispatchInterval = DefaultDispatchInterval
	}
	if cfg.Worker.GeneratorLockTTL == 0 {
		cfg.Worker.GeneratorLockTTL = DefaultGeneratorLockTTL
	}

	if cfg.Delivery.MaxAttempts == 0 {
		cfg.Delivery.MaxAttempts = DefaultDeliveryMaxAttempts
	}
	if cfg.Delivery.InitialBackoff == 0 {
		cfg.Delivery.InitialBackoff = DefaultDeliveryInitialBackoff
	}
	if cfg.Delivery.MaxBackoff == 0 {
		cfg.Delivery.MaxBackoff = DefaultDeliveryMaxBackoff
	}
	if cfg.Delivery.BatchSize == 0 {
		cfg.Delivery.BatchSize = DefaultDeliveryBatchSize
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}
}
