package app

import (
	"context"
	"fmt"
	"os"

	"dataroom-service/internal/MinIO"
	"dataroom-service/internal/config"
	"dataroom-service/internal/handler"
	"dataroom-service/internal/repository"
	"dataroom-service/internal/repository/fileRepo"
	"dataroom-service/internal/repository/logRepo"
	"dataroom-service/internal/repository/sqliteRepo"
	"dataroom-service/internal/repository/userRepo"
	"dataroom-service/internal/service/auditService"
	"dataroom-service/internal/storage"
	"dataroom-service/internal/storage/diskStore"
	"dataroom-service/pkg/database/postgres"
	"dataroom-service/pkg/logger"

	"go.uber.org/zap"
)

// Stores holds the catalog and blob backends selected by configuration.
type Stores struct {
	Files  repository.FileRepository
	Users  repository.UserRepository
	Logs   auditService.Repository
	Blobs  storage.BlobStore
	Checks map[string]handler.Check

	closers []func()
}

func OpenStores(ctx context.Context, cfg *config.Config) (*Stores, error) {
	s := &Stores{Checks: map[string]handler.Check{}}
	if err := s.openCatalog(ctx, cfg); err != nil {
		return nil, err
	}
	if err := s.openBlobs(ctx, cfg); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Stores) openCatalog(ctx context.Context, cfg *config.Config) error {
	log := logger.GetLogger(ctx)
	switch cfg.DatabaseDriver {
	case config.DriverSQLite:
		store, err := sqliteRepo.New(ctx, cfg.SQLite)
		if err != nil {
			return err
		}
		s.Files, s.Users, s.Logs = store.Files(), store.Users(), store.Logs()
		s.Checks["database"] = store.Ping
		s.closers = append(s.closers, func() { _ = store.Close() })
		log.Info("catalog opened", zap.String("driver", cfg.DatabaseDriver), zap.String("path", cfg.SQLite.Path))

	default:
		version, err := postgres.Migrate(cfg.Postgres)
		if err != nil {
			return err
		}
		pool, err := postgres.New(ctx, cfg.Postgres)
		if err != nil {
			return err
		}
		s.Files, s.Users, s.Logs = fileRepo.New(pool), userRepo.New(pool), logRepo.New(pool)
		s.Checks["database"] = pool.Ping
		s.closers = append(s.closers, pool.Close)
		log.Info("catalog opened", zap.String("driver", cfg.DatabaseDriver), zap.Uint("schema_version", version))
	}
	return nil
}

func (s *Stores) openBlobs(ctx context.Context, cfg *config.Config) error {
	switch cfg.Storage.Backend {
	case config.BackendMinIO:
		client, err := MinIO.New(ctx, cfg.MinIO)
		if err != nil {
			return err
		}
		s.Blobs = client
		s.Checks["blob_store"] = client.Ping

	default:
		store, err := diskStore.New(cfg.Storage.Path, cfg.Storage.ChunkSize)
		if err != nil {
			return fmt.Errorf("failed to open blob directory: %w", err)
		}
		s.Blobs = store
		s.Checks["blob_store"] = func(context.Context) error {
			_, err := os.Stat(cfg.Storage.Path)
			return err
		}
	}
	logger.GetLogger(ctx).Info("blob store opened", zap.String("backend", cfg.Storage.Backend))
	return nil
}

// Close releases the stores in reverse opening order.
func (s *Stores) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}

// Migrate brings the configured catalog schema up to date.
func Migrate(ctx context.Context, cfg *config.Config) error {
	if cfg.DatabaseDriver == config.DriverSQLite {
		store, err := sqliteRepo.New(ctx, cfg.SQLite)
		if err != nil {
			return err
		}
		return store.Close()
	}
	version, err := postgres.Migrate(cfg.Postgres)
	if err != nil {
		return err
	}
	logger.GetLogger(ctx).Info("migrations applied", zap.Uint("version", version))
	return nil
}
