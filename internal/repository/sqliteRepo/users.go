package sqliteRepo

import (
	"context"
	"fmt"
	"time"

	"dataroom-service/internal/apperr"
	"dataroom-service/internal/model/user"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

func (s *UserStore) Create(ctx context.Context, u *user.User) error {
	if err := s.db.WithContext(ctx).Create(u).Error; err != nil {
		return mapWriteError(err)
	}
	return nil
}

func (s *UserStore) GetByID(ctx context.Context, id uuid.UUID) (*user.User, error) {
	var u user.User
	if err := s.db.WithContext(ctx).Scopes(active).Where("id = ?", id).First(&u).Error; err != nil {
		return nil, notFound(err, "user %s", id)
	}
	return &u, nil
}

func (s *UserStore) GetByEmail(ctx context.Context, email string) (*user.User, error) {
	var u user.User
	if err := s.db.WithContext(ctx).Scopes(active).Where("email = ?", email).First(&u).Error; err != nil {
		return nil, notFound(err, "user %s", email)
	}
	return &u, nil
}

func (s *UserStore) UpdateGoogleLink(ctx context.Context, u *user.User) error {
	updates := map[string]any{
		"google_id":               u.GoogleID,
		"google_access_token":     u.GoogleAccessToken,
		"google_token_expires_at": u.GoogleTokenExpiresAt,
		"status":                  u.Status,
	}
	if u.FullName != nil {
		updates["full_name"] = u.FullName
	}
	if u.AvatarURL != nil {
		updates["avatar_url"] = u.AvatarURL
	}
	if u.GoogleRefreshToken != nil {
		updates["google_refresh_token"] = u.GoogleRefreshToken
	}
	res := s.db.WithContext(ctx).Model(&user.User{}).Scopes(active).Where("id = ?", u.ID).Updates(updates)
	if res.Error != nil {
		return mapWriteError(res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: user %s", apperr.ErrNotFound, u.ID)
	}
	return nil
}

func (s *UserStore) UpdateGoogleTokens(ctx context.Context, id uuid.UUID, tokens user.GoogleTokens) error {
	updates := map[string]any{
		"google_access_token":     tokens.AccessToken,
		"google_token_expires_at": tokens.ExpiresAt.UTC(),
	}
	if tokens.RefreshToken != "" {
		updates["google_refresh_token"] = tokens.RefreshToken
	}
	return s.db.WithContext(ctx).Model(&user.User{}).Scopes(active).Where("id = ?", id).Updates(updates).Error
}

func (s *UserStore) SetRole(ctx context.Context, userID uuid.UUID, role user.Role) error {
	if !role.Valid() {
		return fmt.Errorf("%w: unknown role %q", apperr.ErrValidation, role)
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&user.UserRole{}).Scopes(active).
			Where("user_id = ?", userID).
			Update("deleted_at", time.Now().UTC()).Error; err != nil {
			return err
		}
		return mapWriteError(tx.Create(&user.UserRole{UserID: userID, Role: role}).Error)
	})
}

func (s *UserStore) GetRole(ctx context.Context, userID uuid.UUID) (user.Role, error) {
	var r user.UserRole
	if err := s.db.WithContext(ctx).Scopes(active).Where("user_id = ?", userID).First(&r).Error; err != nil {
		return "", notFound(err, "no role for user %s", userID)
	}
	return r.Role, nil
}
