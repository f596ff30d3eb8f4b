package sweepService

import (
	"context"
	"fmt"
	"time"

	"dataroom-service/internal/repository"
	"dataroom-service/pkg/logger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

const StaleReason = "stale_processing"

var sweptTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "dataroom_sweep_stale_files_total",
	Help: "Processing rows failed by the stale sweep.",
})

type Config struct {
	Interval   time.Duration `env:"SWEEP_INTERVAL" env-default:"5m"`
	StaleAfter time.Duration `env:"SWEEP_STALE_AFTER" env-default:"30m"`
}

type BlobDeleter interface {
	Delete(ctx context.Context, key string) error
}

// Sweeper fails imports stuck in processing and removes their partial blobs.
type Sweeper struct {
	files repository.FileRepository
	blobs BlobDeleter
	cfg   Config
	now   func() time.Time

	cancel context.CancelFunc
	done   chan struct{}
}

func New(files repository.FileRepository, blobs BlobDeleter, cfg Config) *Sweeper {
	return &Sweeper{files: files, blobs: blobs, cfg: cfg, now: time.Now}
}

// RunOnce returns the number of rows it failed.
func (s *Sweeper) RunOnce(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.cfg.StaleAfter)
	stale, err := s.files.MarkStaleProcessingFailed(ctx, cutoff, StaleReason)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep stale imports: %w", err)
	}

	log := logger.GetLogger(ctx)
	for _, f := range stale {
		if err := s.blobs.Delete(ctx, f.StorageKey); err != nil {
			log.Warn("failed to remove blob of stale import",
				zap.String("file_id", f.ID.String()), zap.String("storage_key", f.StorageKey), zap.Error(err))
		}
	}
	if len(stale) > 0 {
		sweptTotal.Add(float64(len(stale)))
		log.Info("stale imports failed", zap.Int("count", len(stale)), zap.Time("cutoff", cutoff))
	}
	return len(stale), nil
}

// Start runs the sweep every interval until Stop is called.
func (s *Sweeper) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		log := logger.GetLogger(ctx)
		log.Info("stale import sweep started", zap.Duration("interval", s.cfg.Interval))

		ticker := time.NewTicker(s.cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				log.Info("stale import sweep stopped")
				return
			case <-ticker.C:
				if _, err := s.RunOnce(ctx); err != nil {
					log.Error("stale import sweep failed", zap.Error(err))
				}
			}
		}
	}()
}

func (s *Sweeper) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.done != nil {
		<-s.done
	}
}
