package logRepo

import (
	"context"

	"dataroom-service/internal/model/auditLog"
	"dataroom-service/internal/repository"
	"dataroom-service/pkg/database/postgres"

	"github.com/google/uuid"
)

// LogRepo appends to file_access_log and user_audit_log. Rows are never updated.
type LogRepo struct {
	db postgres.DBTX
}

var (
	_ repository.AccessLogRepository = (*LogRepo)(nil)
	_ repository.AuditLogRepository  = (*LogRepo)(nil)
)

func New(db postgres.DBTX) *LogRepo {
	return &LogRepo{db: db}
}

func (r *LogRepo) AppendAccess(ctx context.Context, e *auditLog.AccessLogEntry) error {
	return r.db.QueryRow(ctx,
		`INSERT INTO file_access_log (file_id, user_id, event, ip, user_agent)
		 VALUES ($1, $2, $3::access_event, $4::inet, $5)
		 RETURNING id, created_at`,
		e.FileID, e.UserID, string(e.Event), e.IP, e.UserAgent).Scan(&e.ID, &e.CreatedAt)
}

func (r *LogRepo) ListAccessForFile(ctx context.Context, fileID uuid.UUID) ([]*auditLog.AccessLogEntry, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, file_id, user_id, event::text, host(ip), user_agent, created_at
		   FROM file_access_log WHERE file_id = $1 ORDER BY id`, fileID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*auditLog.AccessLogEntry
	for rows.Next() {
		var e auditLog.AccessLogEntry
		var event string
		if err := rows.Scan(&e.ID, &e.FileID, &e.UserID, &event, &e.IP, &e.UserAgent, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Event = auditLog.AccessEvent(event)
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

func (r *LogRepo) AppendAudit(ctx context.Context, e *auditLog.AuditLogEntry) error {
	return r.db.QueryRow(ctx,
		`INSERT INTO user_audit_log (user_id, event, metadata)
		 VALUES ($1, $2::audit_event, $3)
		 RETURNING id, created_at`,
		e.UserID, string(e.Event), e.Metadata).Scan(&e.ID, &e.CreatedAt)
}

func (r *LogRepo) ListAuditForUser(ctx context.Context, userID uuid.UUID) ([]*auditLog.AuditLogEntry, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, user_id, event::text, metadata, created_at
		   FROM user_audit_log WHERE user_id = $1 ORDER BY id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*auditLog.AuditLogEntry
	for rows.Next() {
		var e auditLog.AuditLogEntry
		var event string
		if err := rows.Scan(&e.ID, &e.UserID, &event, &e.Metadata, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Event = auditLog.AuditEvent(event)
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}
