package config

import (
	"fmt"
	"time"

	"dataroom-service/internal/MinIO"
	"dataroom-service/internal/drive"
	"dataroom-service/internal/repository/sqliteRepo"
	"dataroom-service/internal/service/authService"
	"dataroom-service/internal/service/importService"
	"dataroom-service/internal/service/sweepService"
	"dataroom-service/pkg/database/postgres"
	"dataroom-service/pkg/database/redis"
	"dataroom-service/pkg/logger"

	"github.com/ilyakaznacheev/cleanenv"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	BackendDisk  = "disk"
	BackendMinIO = "minio"
)

type HTTPConfig struct {
	Addr            string        `env:"HTTP_ADDR" env-default:":8080"`
	CORSOrigins     []string      `env:"CORS_ORIGINS" env-separator:"," env-default:"http://localhost:3000"`
	FrontendURL     string        `env:"FRONTEND_URL" env-default:"http://localhost:3000"`
	SecureCookies   bool          `env:"COOKIE_SECURE" env-default:"false"`
	ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" env-default:"15s"`
}

type StorageConfig struct {
	Backend   string `env:"STORAGE_BACKEND" env-default:"disk"`
	Path      string `env:"STORAGE_PATH" env-default:"./data/blobs"`
	ChunkSize int    `env:"STORAGE_CHUNK_SIZE" env-default:"32768"`
}

type Config struct {
	DatabaseDriver string `env:"DATABASE_DRIVER" env-default:"postgres"`
	GRPCHealthPort string `env:"GRPC_HEALTH_PORT" env-default:"50051"`

	HTTP     HTTPConfig
	Auth     authService.Config
	Postgres postgres.Config
	SQLite   sqliteRepo.Config
	Redis    redis.RedisConfig
	Storage  StorageConfig
	MinIO    MinIO.Config
	Drive    drive.Config
	Import   importService.Config
	Sweep    sweepService.Config
	Log      logger.Config
}

// New reads the config file at path, or the process environment when path is empty.
func New(path string) (*Config, error) {
	var cfg Config
	var err error
	if path != "" {
		err = cleanenv.ReadConfig(path, &cfg)
	} else {
		err = cleanenv.ReadEnv(&cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("cannot read config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.DatabaseDriver {
	case DriverPostgres, DriverSQLite:
	default:
		return fmt.Errorf("unknown DATABASE_DRIVER %q", c.DatabaseDriver)
	}
	switch c.Storage.Backend {
	case BackendDisk, BackendMinIO:
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND %q", c.Storage.Backend)
	}
	if c.Import.Concurrency < 1 {
		return fmt.Errorf("IMPORT_CONCURRENCY must be positive, got %d", c.Import.Concurrency)
	}
	if c.Sweep.Interval <= 0 {
		return fmt.Errorf("SWEEP_INTERVAL must be positive, got %s", c.Sweep.Interval)
	}
	// a sweep must never reclaim an item whose import attempt may still be running
	if c.Sweep.StaleAfter <= c.Import.ItemTimeout {
		return fmt.Errorf("SWEEP_STALE_AFTER (%s) must exceed IMPORT_ITEM_TIMEOUT (%s)", c.Sweep.StaleAfter, c.Import.ItemTimeout)
	}
	return nil
}
