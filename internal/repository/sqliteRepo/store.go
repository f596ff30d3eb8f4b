// Package sqliteRepo implements the repository contracts on an embedded SQLite
// database through gorm, for single-node deployments and tests.
package sqliteRepo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"dataroom-service/internal/apperr"
	"dataroom-service/internal/model/auditLog"
	"dataroom-service/internal/model/fileInfo"
	"dataroom-service/internal/model/user"
	"dataroom-service/internal/repository"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Config struct {
	Path string `env:"SQLITE_PATH" env-default:"./data/dataroom.db"`
}

// Store owns the connection; Files, Users and Logs expose the repositories.
type Store struct {
	db *gorm.DB
}

type FileStore struct{ db *gorm.DB }

type UserStore struct{ db *gorm.DB }

type LogStore struct{ db *gorm.DB }

var (
	_ repository.FileRepository      = (*FileStore)(nil)
	_ repository.UserRepository      = (*UserStore)(nil)
	_ repository.AccessLogRepository = (*LogStore)(nil)
	_ repository.AuditLogRepository  = (*LogStore)(nil)
)

func (s *Store) Files() *FileStore { return &FileStore{db: s.db} }

func (s *Store) Users() *UserStore { return &UserStore{db: s.db} }

func (s *Store) Logs() *LogStore { return &LogStore{db: s.db} }

// partial indexes gorm tags cannot express
var indexes = []string{
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_files_remote_object_active ON files (remote_object_id)
	   WHERE remote_object_id IS NOT NULL AND deleted_at IS NULL AND status <> 'failed'`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_user_roles_active ON user_roles (user_id) WHERE deleted_at IS NULL`,
}

func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	dsn := cfg.Path
	if !strings.Contains(dsn, "?") {
		dsn += "?_pragma=busy_timeout(5000)"
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	// single writer
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	db := s.db.WithContext(ctx)
	if err := db.AutoMigrate(
		&user.User{},
		&user.UserRole{},
		&fileInfo.File{},
		&auditLog.AccessLogEntry{},
		&auditLog.AuditLogEntry{},
	); err != nil {
		return fmt.Errorf("failed to migrate sqlite schema: %w", err)
	}
	for _, stmt := range indexes {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func mapWriteError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	switch {
	case errors.Is(err, gorm.ErrDuplicatedKey), strings.Contains(msg, "UNIQUE constraint failed"):
		return fmt.Errorf("%w: %v", apperr.ErrConflict, err)
	case errors.Is(err, gorm.ErrCheckConstraintViolated), strings.Contains(msg, "CHECK constraint failed"):
		return fmt.Errorf("%w: %v", apperr.ErrValidation, err)
	}
	return err
}

func notFound(err error, format string, args ...any) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s", apperr.ErrNotFound, fmt.Sprintf(format, args...))
	}
	return err
}

// active scopes a query to rows that are not soft-deleted.
func active(db *gorm.DB) *gorm.DB {
	return db.Where("deleted_at IS NULL")
}
