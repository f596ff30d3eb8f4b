package apperr_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"dataroom-service/internal/apperr"

	"github.com/stretchr/testify/assert"
)

func TestCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"wrapped not found", fmt.Errorf("file x: %w", apperr.ErrNotFound), "not_found"},
		{"storage write caused by deadline", fmt.Errorf("%w: %w", apperr.ErrStorageWrite, context.DeadlineExceeded), "timeout"},
		{"plain storage write", fmt.Errorf("%w: disk full", apperr.ErrStorageWrite), "storage_write_failed"},
		{"unknown", errors.New("boom"), "internal"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, apperr.Code(tt.err))
		})
	}
}

func TestNeedsReauth(t *testing.T) {
	assert.True(t, apperr.NeedsReauth(fmt.Errorf("drive: %w", apperr.ErrNotConnected)))
	assert.True(t, apperr.NeedsReauth(apperr.ErrPermissionDenied))
	assert.False(t, apperr.NeedsReauth(apperr.ErrRateLimited))
}
