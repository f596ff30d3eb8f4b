// Package importService reconciles a batch of remote object ids against the
// file catalog, importing what is new and reporting every id exactly once.
package importService

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"dataroom-service/internal/apperr"
	"dataroom-service/internal/drive"
	"dataroom-service/internal/model/fileInfo"
	"dataroom-service/internal/repository"
	"dataroom-service/internal/storage/writer"
	"dataroom-service/pkg/logger"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

const (
	ReasonAlreadyImported = "already_imported"
	ReasonUnsupportedType = "unsupported_type"

	CodeMetadataUnavailable = "metadata_unavailable"
	CodeRetryLimitExceeded  = "retry_limit_exceeded"

	SourceGoogleDrive = "google_drive"

	finalizeTimeout = 30 * time.Second
)

var itemsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "dataroom_import_items_total",
	Help: "Import batch items by outcome.",
}, []string{"outcome", "reason"})

type Config struct {
	Concurrency int           `env:"IMPORT_CONCURRENCY" env-default:"4"`
	ItemTimeout time.Duration `env:"IMPORT_ITEM_TIMEOUT" env-default:"2m"`
	MaxBatch    int           `env:"IMPORT_MAX_BATCH" env-default:"20"`
	MaxAttempts int           `env:"IMPORT_MAX_ATTEMPTS" env-default:"5"`
}

// Remote is the single-item side of the remote listing adapter.
type Remote interface {
	Get(ctx context.Context, ts oauth2.TokenSource, id string) (*drive.Entry, error)
	Open(ctx context.Context, ts oauth2.TokenSource, id string) (io.ReadCloser, error)
}

type ContentWriter interface {
	Write(ctx context.Context, src io.Reader, key string, expectedSize int64, contentType string) (*writer.Result, error)
}

type BlobDeleter interface {
	Delete(ctx context.Context, key string) error
}

// Principal is the requesting user. Drive is nil when the user has no usable
// Google grant.
type Principal struct {
	UserID uuid.UUID
	Drive  oauth2.TokenSource
}

type SkippedItem struct {
	RemoteID string `json:"file_id"`
	Reason   string `json:"reason"`
}

type FailedItem struct {
	RemoteID string `json:"file_id"`
	Code     string `json:"code"`
	Error    string `json:"error"`
}

type BatchResult struct {
	Imported       []*fileInfo.File `json:"imported"`
	Skipped        []SkippedItem    `json:"skipped"`
	Failed         []FailedItem     `json:"failed"`
	ReauthRequired bool             `json:"reauth_required,omitempty"`
}

type outcome struct {
	imported *fileInfo.File
	skipped  *SkippedItem
	failed   *FailedItem
	reauth   bool
}

type Reconciler struct {
	remote Remote
	files  repository.FileRepository
	writer ContentWriter
	blobs  BlobDeleter
	cfg    Config
}

func New(remote Remote, files repository.FileRepository, w ContentWriter, blobs BlobDeleter, cfg Config) *Reconciler {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.MaxBatch <= 0 {
		cfg.MaxBatch = 20
	}
	return &Reconciler{remote: remote, files: files, writer: w, blobs: blobs, cfg: cfg}
}

// Reconcile imports the given remote ids for the principal. It returns an error
// only when the batch itself is unusable; per-item problems land in the result.
// Items not started before ctx is canceled are left out of the result.
func (r *Reconciler) Reconcile(ctx context.Context, p Principal, ids []string) (*BatchResult, error) {
	ids = normalizeIDs(ids)
	switch {
	case len(ids) == 0:
		return nil, fmt.Errorf("%w: file_ids must not be empty", apperr.ErrValidation)
	case len(ids) > r.cfg.MaxBatch:
		return nil, fmt.Errorf("%w: at most %d file_ids per batch, got %d", apperr.ErrValidation, r.cfg.MaxBatch, len(ids))
	case p.Drive == nil:
		return nil, apperr.ErrNotConnected
	}

	log := logger.GetLogger(ctx).With(zap.String("user_id", p.UserID.String()), zap.Int("batch_size", len(ids)))
	ctx = logger.WithLogger(ctx, log)

	outcomes := make([]*outcome, len(ids))
	wp := pool.New().WithMaxGoroutines(r.cfg.Concurrency)
	for i, id := range ids {
		i, id := i, id
		wp.Go(func() {
			if ctx.Err() != nil {
				return
			}
			outcomes[i] = r.reconcileItem(ctx, p, id)
		})
	}
	wp.Wait()

	res := &BatchResult{
		Imported: []*fileInfo.File{},
		Skipped:  []SkippedItem{},
		Failed:   []FailedItem{},
	}
	for _, o := range outcomes {
		switch {
		case o == nil:
			continue
		case o.imported != nil:
			res.Imported = append(res.Imported, o.imported)
			itemsTotal.WithLabelValues("imported", "").Inc()
		case o.skipped != nil:
			res.Skipped = append(res.Skipped, *o.skipped)
			itemsTotal.WithLabelValues("skipped", o.skipped.Reason).Inc()
		case o.failed != nil:
			res.Failed = append(res.Failed, *o.failed)
			itemsTotal.WithLabelValues("failed", o.failed.Code).Inc()
		}
		res.ReauthRequired = res.ReauthRequired || o.reauth
	}

	log.Info("import batch reconciled",
		zap.Int("imported", len(res.Imported)),
		zap.Int("skipped", len(res.Skipped)),
		zap.Int("failed", len(res.Failed)))
	return res, nil
}

func (r *Reconciler) reconcileItem(parent context.Context, p Principal, remoteID string) *outcome {
	ctx := parent
	if r.cfg.ItemTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, r.cfg.ItemTimeout)
		defer cancel()
	}
	log := logger.GetLogger(ctx).With(zap.String("remote_id", remoteID))

	entry, err := r.remote.Get(ctx, p.Drive, remoteID)
	if err != nil {
		log.Warn("remote metadata lookup failed", zap.Error(err))
		code := CodeMetadataUnavailable
		if errors.Is(err, apperr.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
			code = apperr.Code(apperr.ErrTimeout)
		}
		return &outcome{
			failed: &FailedItem{RemoteID: remoteID, Code: code, Error: err.Error()},
			reauth: apperr.NeedsReauth(err),
		}
	}

	if !entry.Exportable() {
		return skipped(remoteID, ReasonUnsupportedType)
	}

	existing, err := r.files.FindByRemoteID(ctx, remoteID)
	if err != nil {
		return failed(remoteID, fmt.Errorf("catalog lookup: %w", err))
	}
	if existing != nil {
		return skipped(remoteID, ReasonAlreadyImported)
	}

	if r.cfg.MaxAttempts > 0 {
		attempts, err := r.files.CountFailedAttempts(ctx, remoteID)
		if err != nil {
			return failed(remoteID, fmt.Errorf("catalog lookup: %w", err))
		}
		if attempts >= r.cfg.MaxAttempts {
			return &outcome{failed: &FailedItem{
				RemoteID: remoteID,
				Code:     CodeRetryLimitExceeded,
				Error:    fmt.Sprintf("import failed %d times, giving up", attempts),
			}}
		}
	}

	file, err := r.files.Create(ctx, buildDraft(p.UserID, entry))
	switch {
	case errors.Is(err, apperr.ErrConflict):
		return skipped(remoteID, ReasonAlreadyImported)
	case err != nil:
		return failed(remoteID, err)
	}
	log = log.With(zap.String("file_id", file.ID.String()))

	ready, err := r.transfer(ctx, p, file)
	if err != nil {
		log.Warn("import failed", zap.Error(err))
		r.markFailed(ctx, file.ID, err)
		o := failed(remoteID, err)
		o.reauth = apperr.NeedsReauth(err)
		return o
	}
	log.Info("file imported", zap.Int64("size_bytes", ready.SizeBytes))
	return &outcome{imported: ready}
}

// transfer streams the remote content into the reserved storage key and
// promotes the row to ready. Once the blob is committed the row is finalized
// even if ctx is canceled.
func (r *Reconciler) transfer(ctx context.Context, p Principal, file *fileInfo.File) (*fileInfo.File, error) {
	body, err := r.remote.Open(ctx, p.Drive, *file.RemoteObjectID)
	if err != nil {
		return nil, fmt.Errorf("%w: open remote content: %w", apperr.ErrStorageWrite, err)
	}
	defer body.Close()

	res, err := r.writer.Write(ctx, body, file.StorageKey, file.SizeBytes, file.MimeType)
	if err != nil {
		return nil, err
	}

	finalCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()
	ready, err := r.files.MarkReady(finalCtx, file.ID, res.ChecksumHex, res.SizeBytes)
	if err != nil {
		if delErr := r.blobs.Delete(finalCtx, file.StorageKey); delErr != nil {
			logger.GetLogger(ctx).Error("failed to remove blob of unfinished import",
				zap.String("storage_key", file.StorageKey), zap.Error(delErr))
		}
		return nil, fmt.Errorf("mark ready: %w", err)
	}
	return ready, nil
}

func (r *Reconciler) markFailed(ctx context.Context, id uuid.UUID, cause error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()
	if err := r.files.MarkFailed(ctx, id, cause.Error()); err != nil {
		logger.GetLogger(ctx).Error("failed to mark import as failed",
			zap.String("file_id", id.String()), zap.Error(err))
	}
}

func buildDraft(owner uuid.UUID, e *drive.Entry) fileInfo.Draft {
	id := uuid.New()
	ext := fileInfo.Extension(e.Name, e.MimeType)
	remoteID := e.ID

	var size int64
	if e.SizeBytes != nil {
		size = *e.SizeBytes
	}

	report := map[string]any{
		"source":      SourceGoogleDrive,
		"driveFileId": e.ID,
	}
	if e.WebViewLink != "" {
		report["webViewLink"] = e.WebViewLink
	}
	if len(e.Owners) > 0 {
		report["owners"] = e.Owners
	}

	return fileInfo.Draft{
		ID:             id,
		OwnerID:        owner,
		StorageKey:     fileInfo.StorageKey(owner, id, ext),
		RemoteObjectID: &remoteID,
		OriginalName:   e.Name,
		Extension:      ext,
		MimeType:       e.MimeType,
		SizeBytes:      size,
		ScanReport:     report,
	}
}

func normalizeIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func skipped(remoteID, reason string) *outcome {
	return &outcome{skipped: &SkippedItem{RemoteID: remoteID, Reason: reason}}
}

func failed(remoteID string, err error) *outcome {
	return &outcome{failed: &FailedItem{RemoteID: remoteID, Code: apperr.Code(err), Error: err.Error()}}
}
