package fileService

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"dataroom-service/internal/apperr"
	"dataroom-service/internal/model/auditLog"
	"dataroom-service/internal/model/fileInfo"
	"dataroom-service/internal/repository"
	"dataroom-service/internal/service/auditService"
	"dataroom-service/internal/storage"
	"dataroom-service/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type AccessRecorder interface {
	RecordAccess(ctx context.Context, fileID uuid.UUID, userID *uuid.UUID, event auditLog.AccessEvent, ac auditService.AccessContext)
}

type FileService struct {
	files    repository.FileRepository
	blobs    storage.BlobStore
	recorder AccessRecorder
}

func New(files repository.FileRepository, blobs storage.BlobStore, recorder AccessRecorder) *FileService {
	return &FileService{files: files, blobs: blobs, recorder: recorder}
}

// Content is an open file body. Range is nil when the whole object is served.
type Content struct {
	File  *fileInfo.File
	Body  io.ReadCloser
	Range *storage.ByteRange
}

type Verification struct {
	FileID   uuid.UUID `json:"file_id"`
	Expected string    `json:"expected_sha256"`
	Actual   string    `json:"actual_sha256"`
	Match    bool      `json:"match"`
}

func (s *FileService) ListForUser(ctx context.Context, userID uuid.UUID, opts repository.ListOptions) ([]*fileInfo.File, error) {
	files, err := s.files.ListForUser(ctx, userID, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list user files: %w", err)
	}
	return files, nil
}

// Open returns the content of a ready file owned by userID, honoring a Range
// header, and records a view or download event.
func (s *FileService) Open(ctx context.Context, userID, fileID uuid.UUID, rangeHeader string, event auditLog.AccessEvent, ac auditService.AccessContext) (*Content, error) {
	file, err := s.ownedFile(ctx, userID, fileID)
	if err != nil {
		return nil, err
	}
	if file.Status != fileInfo.StatusReady {
		return nil, fmt.Errorf("%w: file %s is %s", apperr.ErrConflict, fileID, file.Status)
	}

	rng, err := storage.ParseRange(rangeHeader, file.SizeBytes)
	if err != nil {
		return &Content{File: file}, err
	}

	body, err := s.blobs.Open(ctx, file.StorageKey, rng)
	if err != nil {
		return nil, fmt.Errorf("failed to open file content: %w", err)
	}

	s.recorder.RecordAccess(ctx, fileID, &userID, event, ac)
	return &Content{File: file, Body: body, Range: rng}, nil
}

// Delete soft-deletes the record and removes the blob on a best-effort basis.
func (s *FileService) Delete(ctx context.Context, userID, fileID uuid.UUID, ac auditService.AccessContext) error {
	file, err := s.ownedFile(ctx, userID, fileID)
	if err != nil {
		return err
	}
	if err := s.files.SoftDelete(ctx, fileID); err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	if err := s.blobs.Delete(ctx, file.StorageKey); err != nil {
		logger.GetLogger(ctx).Warn("failed to remove blob of deleted file",
			zap.String("file_id", fileID.String()), zap.String("storage_key", file.StorageKey), zap.Error(err))
	}
	s.recorder.RecordAccess(ctx, fileID, &userID, auditLog.AccessDelete, ac)
	return nil
}

// Verify re-reads the stored blob and compares its digest with the catalog.
func (s *FileService) Verify(ctx context.Context, userID, fileID uuid.UUID) (*Verification, error) {
	file, err := s.ownedFile(ctx, userID, fileID)
	if err != nil {
		return nil, err
	}
	if file.Checksum == nil {
		return nil, fmt.Errorf("%w: file %s has no checksum yet", apperr.ErrConflict, fileID)
	}

	body, err := s.blobs.Open(ctx, file.StorageKey, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open file content: %w", err)
	}
	defer body.Close()

	h := sha256.New()
	if _, err := io.Copy(h, body); err != nil {
		return nil, fmt.Errorf("failed to read file content: %w", err)
	}
	actual := hex.EncodeToString(h.Sum(nil))
	return &Verification{
		FileID:   fileID,
		Expected: *file.Checksum,
		Actual:   actual,
		Match:    actual == *file.Checksum,
	}, nil
}

// ownedFile hides files of other users behind NotFound.
func (s *FileService) ownedFile(ctx context.Context, userID, fileID uuid.UUID) (*fileInfo.File, error) {
	file, err := s.files.GetByID(ctx, fileID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get file: %w", err)
	}
	if !file.IsOwnedBy(userID) {
		return nil, fmt.Errorf("%w: file %s", apperr.ErrNotFound, fileID)
	}
	return file, nil
}
