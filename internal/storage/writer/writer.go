// Package writer streams content into a blob store while hashing it.
package writer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"time"

	"dataroom-service/internal/apperr"
	"dataroom-service/internal/storage"
	"dataroom-service/pkg/logger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

const (
	DefaultChunkSize = 32 * 1024
	cleanupTimeout   = 30 * time.Second
)

var (
	bytesWritten = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dataroom_storage_bytes_written_total",
		Help: "Bytes committed to the blob store.",
	})
	writeFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dataroom_storage_write_failures_total",
		Help: "Blob writes that failed and were rolled back.",
	})
)

type Result struct {
	SizeBytes   int64
	ChecksumHex string
}

type Writer struct {
	store     storage.BlobStore
	chunkSize int
}

func New(store storage.BlobStore, chunkSize int) *Writer {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Writer{store: store, chunkSize: chunkSize}
}

// Write streams src to key in fixed-size chunks and returns the size and sha256
// of exactly the committed bytes. When expectedSize > 0 the source must hold
// exactly that many bytes. On any failure the destination object is removed and
// the returned error wraps apperr.ErrStorageWrite.
func (w *Writer) Write(ctx context.Context, src io.Reader, key string, expectedSize int64, contentType string) (*Result, error) {
	hr := &hashingReader{ctx: ctx, src: src, h: sha256.New(), chunk: w.chunkSize}

	err := w.store.Put(ctx, key, hr, expectedSize, contentType)
	if err == nil {
		err = hr.err
	}
	if err == nil {
		err = w.checkSize(hr, expectedSize)
	}
	if err == nil && hr.n == 0 {
		err = errors.New("empty content")
	}
	if err != nil {
		w.rollback(ctx, key)
		writeFailures.Inc()
		return nil, fmt.Errorf("%w: %s: %w", apperr.ErrStorageWrite, key, err)
	}

	bytesWritten.Add(float64(hr.n))
	return &Result{SizeBytes: hr.n, ChecksumHex: hex.EncodeToString(hr.h.Sum(nil))}, nil
}

func (w *Writer) checkSize(hr *hashingReader, expected int64) error {
	if expected <= 0 {
		return nil
	}
	if hr.n != expected {
		return fmt.Errorf("size mismatch: declared %d, wrote %d", expected, hr.n)
	}
	// the store may stop reading at the declared size; a longer source is still a mismatch
	var probe [1]byte
	if n, _ := io.ReadFull(hr.src, probe[:]); n > 0 {
		return fmt.Errorf("size mismatch: source larger than declared %d bytes", expected)
	}
	return nil
}

func (w *Writer) rollback(ctx context.Context, key string) {
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()
	if err := w.store.Delete(cleanupCtx, key); err != nil {
		logger.GetLogger(ctx).Warn("failed to remove partial object", zap.String("key", key), zap.Error(err))
	}
}

// hashingReader hands out at most chunk bytes per Read and hashes what it hands out.
type hashingReader struct {
	ctx   context.Context
	src   io.Reader
	h     hash.Hash
	n     int64
	chunk int
	err   error
}

func (r *hashingReader) Read(p []byte) (int, error) {
	if err := r.ctx.Err(); err != nil {
		r.err = err
		return 0, err
	}
	if len(p) > r.chunk {
		p = p[:r.chunk]
	}
	n, err := r.src.Read(p)
	if n > 0 {
		r.h.Write(p[:n])
		r.n += int64(n)
	}
	if err != nil && !errors.Is(err, io.EOF) {
		r.err = err
	}
	return n, err
}
