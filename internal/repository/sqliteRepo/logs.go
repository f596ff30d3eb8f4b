package sqliteRepo

import (
	"context"

	"dataroom-service/internal/model/auditLog"

	"github.com/google/uuid"
)

func (s *LogStore) AppendAccess(ctx context.Context, e *auditLog.AccessLogEntry) error {
	return s.db.WithContext(ctx).Create(e).Error
}

func (s *LogStore) ListAccessForFile(ctx context.Context, fileID uuid.UUID) ([]*auditLog.AccessLogEntry, error) {
	var entries []*auditLog.AccessLogEntry
	err := s.db.WithContext(ctx).Where("file_id = ?", fileID).Order("id").Find(&entries).Error
	return entries, err
}

func (s *LogStore) AppendAudit(ctx context.Context, e *auditLog.AuditLogEntry) error {
	return s.db.WithContext(ctx).Create(e).Error
}

func (s *LogStore) ListAuditForUser(ctx context.Context, userID uuid.UUID) ([]*auditLog.AuditLogEntry, error) {
	var entries []*auditLog.AuditLogEntry
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("id").Find(&entries).Error
	return entries, err
}
