package fileRepo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"dataroom-service/internal/apperr"
	"dataroom-service/internal/model/fileInfo"
	"dataroom-service/internal/repository"
	"dataroom-service/pkg/database/postgres"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const fileColumns = `id, uploader_id, storage_key, remote_object_id, original_name,
	COALESCE(extension, ''), COALESCE(mime_type, ''), size_bytes, checksum_sha256, version, is_latest,
	status::text, last_error, scan_report, created_at, updated_at, deleted_at`

type FileRepository struct {
	db postgres.DBTX
}

var _ repository.FileRepository = (*FileRepository)(nil)

func New(db postgres.DBTX) *FileRepository {
	return &FileRepository{db: db}
}

func scanFile(row pgx.Row) (*fileInfo.File, error) {
	var f fileInfo.File
	var status string
	err := row.Scan(&f.ID, &f.OwnerID, &f.StorageKey, &f.RemoteObjectID, &f.OriginalName,
		&f.Extension, &f.MimeType, &f.SizeBytes, &f.Checksum, &f.Version, &f.IsLatest,
		&status, &f.LastError, &f.ScanReport, &f.CreatedAt, &f.UpdatedAt, &f.DeletedAt)
	if err != nil {
		return nil, err
	}
	f.Status = fileInfo.Status(status)
	return &f, nil
}

func collect(rows pgx.Rows) ([]*fileInfo.File, error) {
	defer rows.Close()
	var files []*fileInfo.File
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

func mapWriteError(err error) error {
	switch {
	case postgres.IsUniqueViolation(err):
		return fmt.Errorf("%w: %v", apperr.ErrConflict, err)
	case postgres.IsCheckViolation(err):
		return fmt.Errorf("%w: %v", apperr.ErrValidation, err)
	}
	return err
}

func (r *FileRepository) Create(ctx context.Context, d fileInfo.Draft) (*fileInfo.File, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	row := r.db.QueryRow(ctx,
		`INSERT INTO files (id, uploader_id, storage_key, remote_object_id, original_name,
		                    extension, mime_type, size_bytes, scan_report, status, version, is_latest)
		 VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''), $8, $9, 'processing', 1, TRUE)
		 RETURNING `+fileColumns,
		d.ID, d.OwnerID, d.StorageKey, d.RemoteObjectID, d.OriginalName,
		d.Extension, d.MimeType, d.SizeBytes, d.ScanReport)
	f, err := scanFile(row)
	if err != nil {
		return nil, mapWriteError(err)
	}
	return f, nil
}

func (r *FileRepository) MarkReady(ctx context.Context, id uuid.UUID, checksum string, sizeBytes int64) (*fileInfo.File, error) {
	if !fileInfo.ValidChecksum(checksum) {
		return nil, fmt.Errorf("%w: malformed checksum", apperr.ErrValidation)
	}
	row := r.db.QueryRow(ctx,
		`UPDATE files
		    SET status = 'ready', checksum_sha256 = $2, size_bytes = $3, last_error = NULL
		  WHERE id = $1 AND status = 'processing' AND deleted_at IS NULL
		    AND (checksum_sha256 IS NULL OR checksum_sha256 = $2)
		 RETURNING `+fileColumns,
		id, checksum, sizeBytes)
	f, err := scanFile(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, r.transitionError(ctx, id)
	}
	if err != nil {
		return nil, mapWriteError(err)
	}
	return f, nil
}

func (r *FileRepository) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE files SET status = 'failed', last_error = $2
		  WHERE id = $1 AND status = 'processing' AND deleted_at IS NULL`,
		id, reason)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return r.transitionError(ctx, id)
	}
	return nil
}

// transitionError explains why a processing-only update touched no row.
func (r *FileRepository) transitionError(ctx context.Context, id uuid.UUID) error {
	var status string
	err := r.db.QueryRow(ctx, `SELECT status::text FROM files WHERE id = $1 AND deleted_at IS NULL`, id).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: file %s", apperr.ErrNotFound, id)
	}
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: file %s is %s, not processing", apperr.ErrConflict, id, status)
}

func (r *FileRepository) GetByID(ctx context.Context, id uuid.UUID) (*fileInfo.File, error) {
	f, err := scanFile(r.db.QueryRow(ctx,
		`SELECT `+fileColumns+` FROM files WHERE id = $1 AND deleted_at IS NULL`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: file %s", apperr.ErrNotFound, id)
	}
	return f, err
}

func (r *FileRepository) FindByRemoteID(ctx context.Context, remoteID string) (*fileInfo.File, error) {
	f, err := scanFile(r.db.QueryRow(ctx,
		`SELECT `+fileColumns+` FROM files
		  WHERE remote_object_id = $1 AND deleted_at IS NULL AND status <> 'failed'
		  LIMIT 1`, remoteID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return f, err
}

func (r *FileRepository) CountFailedAttempts(ctx context.Context, remoteID string) (int, error) {
	var n int
	err := r.db.QueryRow(ctx,
		`SELECT count(*) FROM files
		  WHERE remote_object_id = $1 AND status = 'failed' AND deleted_at IS NULL`, remoteID).Scan(&n)
	return n, err
}

func (r *FileRepository) ListForUser(ctx context.Context, userID uuid.UUID, opts repository.ListOptions) ([]*fileInfo.File, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+fileColumns+` FROM files
		  WHERE uploader_id = $1 AND deleted_at IS NULL AND ($2 OR is_latest)
		  ORDER BY created_at DESC`, userID, opts.IncludeAllVersions)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func (r *FileRepository) SoftDelete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE files SET deleted_at = now() WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: file %s", apperr.ErrNotFound, id)
	}
	return nil
}

func (r *FileRepository) MarkStaleProcessingFailed(ctx context.Context, cutoff time.Time, reason string) ([]*fileInfo.File, error) {
	rows, err := r.db.Query(ctx,
		`UPDATE files SET status = 'failed', last_error = $2
		  WHERE status = 'processing' AND updated_at < $1 AND deleted_at IS NULL
		 RETURNING `+fileColumns, cutoff, reason)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}
