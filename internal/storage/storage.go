// Package storage defines the key-addressed blob store used for file content.
package storage

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"dataroom-service/internal/apperr"
)

// BlobStore puts, reads and deletes objects by opaque key.
// Open returns apperr.ErrNotFound for a missing key; Delete of a missing key is not an error.
type BlobStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Open(ctx context.Context, key string, rng *ByteRange) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// ByteRange is an inclusive byte interval.
type ByteRange struct {
	Start int64
	End   int64
}

func (r ByteRange) Length() int64 { return r.End - r.Start + 1 }

func (r ByteRange) ContentRange(size int64) string {
	return fmt.Sprintf("bytes %d-%d/%d", r.Start, r.End, size)
}

// ParseRange parses a single-range Range header against an object of the given size.
// An absent or malformed header yields nil (serve the whole object); a well-formed
// range outside the object yields apperr.ErrRangeNotSatisfiable.
func ParseRange(header string, size int64) (*ByteRange, error) {
	set, ok := strings.CutPrefix(strings.TrimSpace(header), "bytes=")
	if !ok || strings.Contains(set, ",") {
		return nil, nil
	}
	first, last, ok := strings.Cut(strings.TrimSpace(set), "-")
	if !ok {
		return nil, nil
	}

	if first == "" {
		n, err := strconv.ParseInt(last, 10, 64)
		if err != nil {
			return nil, nil
		}
		if n <= 0 || size == 0 {
			return nil, apperr.ErrRangeNotSatisfiable
		}
		if n > size {
			n = size
		}
		return &ByteRange{Start: size - n, End: size - 1}, nil
	}

	start, err := strconv.ParseInt(first, 10, 64)
	if err != nil || start < 0 {
		return nil, nil
	}
	end := size - 1
	if last != "" {
		if end, err = strconv.ParseInt(last, 10, 64); err != nil {
			return nil, nil
		}
	}
	if start >= size || end < start {
		return nil, apperr.ErrRangeNotSatisfiable
	}
	if end >= size {
		end = size - 1
	}
	return &ByteRange{Start: start, End: end}, nil
}
