package fileInfo

import (
	"fmt"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"dataroom-service/internal/apperr"

	"github.com/google/uuid"
)

type Status string

const (
	StatusProcessing Status = "processing"
	StatusReady      Status = "ready"
	StatusFailed     Status = "failed"
	StatusArchived   Status = "archived"
)

const (
	maxStorageKeyLen = 512
	maxRemoteIDLen   = 256
	maxNameLen       = 255
	maxExtensionLen  = 32
	maxMimeTypeLen   = 128

	ChecksumHexLen = 64
)

// File is a catalog record of an imported (or uploaded) file.
type File struct {
	ID             uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	OwnerID        *uuid.UUID     `gorm:"column:uploader_id;type:uuid;index" json:"owner_id,omitempty"`
	StorageKey     string         `gorm:"size:512;not null;uniqueIndex:ux_files_storage_key" json:"storage_key"`
	RemoteObjectID *string        `gorm:"size:256" json:"remote_object_id,omitempty"`
	OriginalName   string         `gorm:"size:255;not null" json:"original_name"`
	Extension      string         `gorm:"size:32" json:"extension,omitempty"`
	MimeType       string         `gorm:"size:128" json:"mime_type,omitempty"`
	SizeBytes      int64          `gorm:"not null;check:ck_files_size_positive,size_bytes > 0" json:"size_bytes"`
	Checksum       *string        `gorm:"column:checksum_sha256;size:64" json:"checksum_sha256,omitempty"`
	Version        int            `gorm:"not null;default:1;check:ck_files_version_positive,version >= 1" json:"version"`
	IsLatest       bool           `gorm:"not null;default:true" json:"is_latest"`
	Status         Status         `gorm:"size:16;not null;default:processing;index" json:"status"`
	LastError      *string        `json:"last_error,omitempty"`
	ScanReport     map[string]any `gorm:"serializer:json" json:"scan_report,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeletedAt      *time.Time     `gorm:"index" json:"deleted_at,omitempty"`
}

func (File) TableName() string { return "files" }

func (f *File) IsOwnedBy(userID uuid.UUID) bool {
	return f.OwnerID != nil && *f.OwnerID == userID
}

// WebViewLink returns the remote link kept in the scan report, if any.
func (f *File) WebViewLink() string {
	if f.ScanReport == nil {
		return ""
	}
	link, _ := f.ScanReport["webViewLink"].(string)
	return link
}

// Draft holds what is known about a file before its bytes are stored.
type Draft struct {
	ID             uuid.UUID
	OwnerID        uuid.UUID
	StorageKey     string
	RemoteObjectID *string
	OriginalName   string
	Extension      string
	MimeType       string
	SizeBytes      int64
	ScanReport     map[string]any
}

func (d Draft) Validate() error {
	switch {
	case d.ID == uuid.Nil:
		return fmt.Errorf("%w: id is required", apperr.ErrValidation)
	case d.SizeBytes <= 0:
		return fmt.Errorf("%w: size_bytes must be positive, got %d", apperr.ErrValidation, d.SizeBytes)
	case d.StorageKey == "" || len(d.StorageKey) > maxStorageKeyLen:
		return fmt.Errorf("%w: storage key must be 1..%d bytes", apperr.ErrValidation, maxStorageKeyLen)
	case d.OriginalName == "" || len(d.OriginalName) > maxNameLen:
		return fmt.Errorf("%w: name must be 1..%d bytes", apperr.ErrValidation, maxNameLen)
	case d.RemoteObjectID != nil && (*d.RemoteObjectID == "" || len(*d.RemoteObjectID) > maxRemoteIDLen):
		return fmt.Errorf("%w: remote object id must be 1..%d bytes", apperr.ErrValidation, maxRemoteIDLen)
	case len(d.Extension) > maxExtensionLen:
		return fmt.Errorf("%w: extension longer than %d bytes", apperr.ErrValidation, maxExtensionLen)
	case len(d.MimeType) > maxMimeTypeLen:
		return fmt.Errorf("%w: mime type longer than %d bytes", apperr.ErrValidation, maxMimeTypeLen)
	}
	return nil
}

// ValidChecksum reports whether s looks like a lowercase hex sha256 digest.
func ValidChecksum(s string) bool {
	if len(s) != ChecksumHexLen {
		return false
	}
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// Extension derives a file extension from the name, falling back to the mime type.
func Extension(name, mimeType string) string {
	if ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), "."); ext != "" && len(ext) <= maxExtensionLen {
		return ext
	}
	if mimeType == "" {
		return ""
	}
	exts, err := mime.ExtensionsByType(mimeType)
	if err != nil || len(exts) == 0 {
		return ""
	}
	return strings.TrimPrefix(exts[0], ".")
}

// StorageKey builds the blob key for a file; it never contains the remote id.
func StorageKey(ownerID, fileID uuid.UUID, ext string) string {
	key := fmt.Sprintf("users/%s/%s", ownerID, fileID)
	if ext != "" {
		key += "." + ext
	}
	return key
}
