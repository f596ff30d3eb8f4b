package sqliteRepo

import (
	"context"
	"fmt"
	"time"

	"dataroom-service/internal/apperr"
	"dataroom-service/internal/model/fileInfo"
	"dataroom-service/internal/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

func (s *FileStore) Create(ctx context.Context, d fileInfo.Draft) (*fileInfo.File, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	owner := d.OwnerID
	f := &fileInfo.File{
		ID:             d.ID,
		OwnerID:        &owner,
		StorageKey:     d.StorageKey,
		RemoteObjectID: d.RemoteObjectID,
		OriginalName:   d.OriginalName,
		Extension:      d.Extension,
		MimeType:       d.MimeType,
		SizeBytes:      d.SizeBytes,
		Version:        1,
		IsLatest:       true,
		Status:         fileInfo.StatusProcessing,
		ScanReport:     d.ScanReport,
	}
	if err := s.db.WithContext(ctx).Create(f).Error; err != nil {
		return nil, mapWriteError(err)
	}
	return f, nil
}

func (s *FileStore) MarkReady(ctx context.Context, id uuid.UUID, checksum string, sizeBytes int64) (*fileInfo.File, error) {
	if !fileInfo.ValidChecksum(checksum) {
		return nil, fmt.Errorf("%w: malformed checksum", apperr.ErrValidation)
	}
	res := s.db.WithContext(ctx).Model(&fileInfo.File{}).
		Scopes(active).
		Where("id = ? AND status = ?", id, fileInfo.StatusProcessing).
		Where("checksum_sha256 IS NULL OR checksum_sha256 = ?", checksum).
		Updates(map[string]any{
			"status":          fileInfo.StatusReady,
			"checksum_sha256": checksum,
			"size_bytes":      sizeBytes,
			"last_error":      nil,
		})
	if res.Error != nil {
		return nil, mapWriteError(res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, s.transitionError(ctx, id)
	}
	return s.GetByID(ctx, id)
}

func (s *FileStore) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	res := s.db.WithContext(ctx).Model(&fileInfo.File{}).
		Scopes(active).
		Where("id = ? AND status = ?", id, fileInfo.StatusProcessing).
		Updates(map[string]any{"status": fileInfo.StatusFailed, "last_error": reason})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return s.transitionError(ctx, id)
	}
	return nil
}

func (s *FileStore) transitionError(ctx context.Context, id uuid.UUID) error {
	f, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: file %s is %s, not processing", apperr.ErrConflict, id, f.Status)
}

func (s *FileStore) GetByID(ctx context.Context, id uuid.UUID) (*fileInfo.File, error) {
	var f fileInfo.File
	err := s.db.WithContext(ctx).Scopes(active).Where("id = ?", id).First(&f).Error
	if err != nil {
		return nil, notFound(err, "file %s", id)
	}
	return &f, nil
}

func (s *FileStore) FindByRemoteID(ctx context.Context, remoteID string) (*fileInfo.File, error) {
	var files []fileInfo.File
	err := s.db.WithContext(ctx).Scopes(active).
		Where("remote_object_id = ? AND status <> ?", remoteID, fileInfo.StatusFailed).
		Limit(1).Find(&files).Error
	if err != nil || len(files) == 0 {
		return nil, err
	}
	return &files[0], nil
}

func (s *FileStore) CountFailedAttempts(ctx context.Context, remoteID string) (int, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&fileInfo.File{}).Scopes(active).
		Where("remote_object_id = ? AND status = ?", remoteID, fileInfo.StatusFailed).
		Count(&n).Error
	return int(n), err
}

func (s *FileStore) ListForUser(ctx context.Context, userID uuid.UUID, opts repository.ListOptions) ([]*fileInfo.File, error) {
	q := s.db.WithContext(ctx).Scopes(active).Where("uploader_id = ?", userID)
	if !opts.IncludeAllVersions {
		q = q.Where("is_latest = ?", true)
	}
	var files []*fileInfo.File
	if err := q.Order("created_at DESC").Find(&files).Error; err != nil {
		return nil, err
	}
	return files, nil
}

func (s *FileStore) SoftDelete(ctx context.Context, id uuid.UUID) error {
	res := s.db.WithContext(ctx).Model(&fileInfo.File{}).Scopes(active).
		Where("id = ?", id).
		Update("deleted_at", time.Now().UTC())
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: file %s", apperr.ErrNotFound, id)
	}
	return nil
}

func (s *FileStore) MarkStaleProcessingFailed(ctx context.Context, cutoff time.Time, reason string) ([]*fileInfo.File, error) {
	var stale []*fileInfo.File
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Scopes(active).
			Where("status = ? AND updated_at < ?", fileInfo.StatusProcessing, cutoff.UTC()).
			Find(&stale).Error; err != nil {
			return err
		}
		if len(stale) == 0 {
			return nil
		}
		ids := make([]uuid.UUID, 0, len(stale))
		for _, f := range stale {
			ids = append(ids, f.ID)
			f.Status = fileInfo.StatusFailed
			f.LastError = &reason
		}
		return tx.Model(&fileInfo.File{}).
			Where("id IN ? AND status = ?", ids, fileInfo.StatusProcessing).
			Updates(map[string]any{"status": fileInfo.StatusFailed, "last_error": reason}).Error
	})
	if err != nil {
		return nil, err
	}
	return stale, nil
}
