// Package repository declares the persistence contracts shared by the
// PostgreSQL and SQLite implementations.
package repository

import (
	"context"
	"time"

	"dataroom-service/internal/model/auditLog"
	"dataroom-service/internal/model/fileInfo"
	"dataroom-service/internal/model/user"

	"github.com/google/uuid"
)

type ListOptions struct {
	// IncludeAllVersions lists every non-deleted version instead of latest only.
	IncludeAllVersions bool
}

// FileRepository is the file catalog. Every read excludes soft-deleted rows.
// Uniqueness violations surface as apperr.ErrConflict.
type FileRepository interface {
	Create(ctx context.Context, draft fileInfo.Draft) (*fileInfo.File, error)
	MarkReady(ctx context.Context, id uuid.UUID, checksum string, sizeBytes int64) (*fileInfo.File, error)
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
	GetByID(ctx context.Context, id uuid.UUID) (*fileInfo.File, error)
	// FindByRemoteID returns the processing/ready/archived record for the
	// remote id, or nil when there is none.
	FindByRemoteID(ctx context.Context, remoteID string) (*fileInfo.File, error)
	CountFailedAttempts(ctx context.Context, remoteID string) (int, error)
	ListForUser(ctx context.Context, userID uuid.UUID, opts ListOptions) ([]*fileInfo.File, error)
	SoftDelete(ctx context.Context, id uuid.UUID) error
	// MarkStaleProcessingFailed fails processing rows last updated before cutoff.
	MarkStaleProcessingFailed(ctx context.Context, cutoff time.Time, reason string) ([]*fileInfo.File, error)
}

type AccessLogRepository interface {
	AppendAccess(ctx context.Context, entry *auditLog.AccessLogEntry) error
	ListAccessForFile(ctx context.Context, fileID uuid.UUID) ([]*auditLog.AccessLogEntry, error)
}

type AuditLogRepository interface {
	AppendAudit(ctx context.Context, entry *auditLog.AuditLogEntry) error
	ListAuditForUser(ctx context.Context, userID uuid.UUID) ([]*auditLog.AuditLogEntry, error)
}

type UserRepository interface {
	Create(ctx context.Context, u *user.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*user.User, error)
	GetByEmail(ctx context.Context, email string) (*user.User, error)
	UpdateGoogleLink(ctx context.Context, u *user.User) error
	UpdateGoogleTokens(ctx context.Context, id uuid.UUID, tokens user.GoogleTokens) error
	SetRole(ctx context.Context, userID uuid.UUID, role user.Role) error
	GetRole(ctx context.Context, userID uuid.UUID) (user.Role, error)
}
