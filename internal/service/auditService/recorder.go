package auditService

import (
	"context"
	"net"
	"strings"
	"sync"
	"time"

	"dataroom-service/internal/model/auditLog"
	"dataroom-service/internal/repository"
	"dataroom-service/pkg/logger"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

const defaultWriteTimeout = 5 * time.Second

var recordFailures = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "dataroom_audit_record_failures_total",
	Help: "Access and audit log writes that failed and were dropped.",
}, []string{"kind"})

// AccessContext is the request metadata stored next to an access event.
type AccessContext struct {
	IP        string
	UserAgent string
}

type Repository interface {
	repository.AccessLogRepository
	repository.AuditLogRepository
}

// Recorder writes access and audit events in the background. A failed write
// is logged and counted; it never reaches the caller.
type Recorder struct {
	repo    Repository
	log     *logger.Logger
	timeout time.Duration
	wg      sync.WaitGroup
}

func New(repo Repository, log *logger.Logger) *Recorder {
	if log == nil {
		log = logger.GetLogger(context.Background())
	}
	return &Recorder{repo: repo, log: log, timeout: defaultWriteTimeout}
}

func (r *Recorder) RecordAccess(ctx context.Context, fileID uuid.UUID, userID *uuid.UUID, event auditLog.AccessEvent, ac AccessContext) {
	entry := &auditLog.AccessLogEntry{
		FileID:    fileID,
		UserID:    userID,
		Event:     event,
		IP:        normalizeIP(ac.IP),
		UserAgent: optional(ac.UserAgent),
	}
	r.spawn(ctx, "access", func(ctx context.Context) error {
		return r.repo.AppendAccess(ctx, entry)
	}, zap.String("file_id", fileID.String()), zap.String("event", string(event)))
}

func (r *Recorder) RecordAudit(ctx context.Context, userID uuid.UUID, event auditLog.AuditEvent, metadata map[string]any) {
	entry := &auditLog.AuditLogEntry{
		UserID:   userID,
		Event:    event,
		Metadata: metadata,
	}
	r.spawn(ctx, "audit", func(ctx context.Context) error {
		return r.repo.AppendAudit(ctx, entry)
	}, zap.String("user_id", userID.String()), zap.String("event", string(event)))
}

// Close waits for in-flight writes.
func (r *Recorder) Close() {
	r.wg.Wait()
}

func (r *Recorder) spawn(ctx context.Context, kind string, write func(context.Context) error, fields ...zap.Field) {
	ctx = context.WithoutCancel(ctx)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ctx, cancel := context.WithTimeout(ctx, r.timeout)
		defer cancel()
		if err := write(ctx); err != nil {
			recordFailures.WithLabelValues(kind).Inc()
			r.log.Warn("failed to record "+kind+" event", append(fields, zap.Error(err))...)
		}
	}()
}

func normalizeIP(raw string) *string {
	raw = strings.TrimSpace(raw)
	if host, _, err := net.SplitHostPort(raw); err == nil {
		raw = host
	}
	ip := net.ParseIP(raw)
	if ip == nil {
		return nil
	}
	s := ip.String()
	return &s
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
