package authService

import (
	"context"
	"fmt"
	"sync"

	"dataroom-service/internal/apperr"
	"dataroom-service/internal/model/auditLog"
	"dataroom-service/internal/model/user"
	"dataroom-service/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// persistingTokenSource writes a refreshed Drive token back to the user row.
type persistingTokenSource struct {
	src    oauth2.TokenSource
	userID uuid.UUID
	svc    *AuthService
	log    *logger.Logger

	mu   sync.Mutex
	last string
}

func (p *persistingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := p.src.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: drive token refresh failed: %w", apperr.ErrNotConnected, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if tok.AccessToken == p.last {
		return tok, nil
	}
	p.last = tok.AccessToken

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	err = p.svc.userRepo.UpdateGoogleTokens(ctx, p.userID, user.GoogleTokens{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.Expiry,
	})
	if err != nil {
		p.log.Warn("failed to persist refreshed drive token", zap.String("user_id", p.userID.String()), zap.Error(err))
	} else {
		p.svc.audit.RecordAudit(ctx, p.userID, auditLog.AuditTokenRefresh, map[string]any{"kind": "google"})
	}
	return tok, nil
}
