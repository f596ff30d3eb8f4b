package authService

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"dataroom-service/internal/apperr"

	"github.com/google/uuid"
)

const (
	avatarTimeout     = 10 * time.Second
	defaultAvatarType = "image/jpeg"
)

// Avatar is an upstream profile picture being streamed back to the user.
type Avatar struct {
	Body          io.ReadCloser
	ContentType   string
	ContentLength int64
}

// Avatar fetches the user's Google profile picture. Users without one get
// apperr.ErrNotFound; upstream failures surface as apperr.ErrUnavailable.
func (s *AuthService) Avatar(ctx context.Context, userID uuid.UUID) (*Avatar, error) {
	u, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u.AvatarURL == nil || *u.AvatarURL == "" {
		return nil, fmt.Errorf("%w: avatar not found", apperr.ErrNotFound)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, *u.AvatarURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: bad avatar url: %v", apperr.ErrUnavailable, err)
	}
	req.Header.Set("User-Agent", "dataroom-service/1.0")

	resp, err := s.avatarClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to fetch avatar: %v", apperr.ErrUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: avatar upstream returned %d", apperr.ErrUnavailable, resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = defaultAvatarType
	}
	return &Avatar{Body: resp.Body, ContentType: contentType, ContentLength: resp.ContentLength}, nil
}
