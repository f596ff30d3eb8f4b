package storage_test

import (
	"testing"

	"dataroom-service/internal/apperr"
	"dataroom-service/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRange(t *testing.T) {
	const size = 2048

	tests := []struct {
		name   string
		header string
		want   *storage.ByteRange
		err    error
	}{
		{"absent", "", nil, nil},
		{"closed", "bytes=0-1023", &storage.ByteRange{Start: 0, End: 1023}, nil},
		{"open ended", "bytes=1024-", &storage.ByteRange{Start: 1024, End: 2047}, nil},
		{"suffix", "bytes=-100", &storage.ByteRange{Start: 1948, End: 2047}, nil},
		{"suffix larger than object", "bytes=-5000", &storage.ByteRange{Start: 0, End: 2047}, nil},
		{"end clamped", "bytes=2000-9999", &storage.ByteRange{Start: 2000, End: 2047}, nil},
		{"wrong unit", "items=0-1", nil, nil},
		{"multi range", "bytes=0-1,4-5", nil, nil},
		{"garbage", "bytes=a-b", nil, nil},
		{"start past end", "bytes=2048-", nil, apperr.ErrRangeNotSatisfiable},
		{"inverted", "bytes=10-5", nil, apperr.ErrRangeNotSatisfiable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := storage.ParseRange(tt.header, size)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestByteRange(t *testing.T) {
	r := storage.ByteRange{Start: 10, End: 19}
	assert.Equal(t, int64(10), r.Length())
	assert.Equal(t, "bytes 10-19/100", r.ContentRange(100))
}
