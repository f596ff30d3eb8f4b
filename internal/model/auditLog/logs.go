package auditLog

import (
	"time"

	"github.com/google/uuid"
)

type AccessEvent string

const (
	AccessView     AccessEvent = "view"
	AccessDownload AccessEvent = "download"
	AccessShare    AccessEvent = "share"
	AccessDelete   AccessEvent = "delete"
)

type AuditEvent string

const (
	AuditLogin        AuditEvent = "login"
	AuditLogout       AuditEvent = "logout"
	AuditTokenRefresh AuditEvent = "token_refresh"
	AuditRoleChange   AuditEvent = "role_change"
)

// AccessLogEntry is append-only.
type AccessLogEntry struct {
	ID        int64       `gorm:"primaryKey;autoIncrement" json:"id"`
	FileID    uuid.UUID   `gorm:"type:uuid;not null;index" json:"file_id"`
	UserID    *uuid.UUID  `gorm:"type:uuid;index" json:"user_id,omitempty"`
	Event     AccessEvent `gorm:"size:16;not null" json:"event"`
	IP        *string     `gorm:"size:45" json:"ip,omitempty"`
	UserAgent *string     `json:"user_agent,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
}

func (AccessLogEntry) TableName() string { return "file_access_log" }

// AuditLogEntry is append-only.
type AuditLogEntry struct {
	ID        int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    uuid.UUID      `gorm:"type:uuid;not null;index" json:"user_id"`
	Event     AuditEvent     `gorm:"size:32;not null" json:"event"`
	Metadata  map[string]any `gorm:"serializer:json" json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

func (AuditLogEntry) TableName() string { return "user_audit_log" }
