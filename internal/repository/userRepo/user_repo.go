package userRepo

import (
	"context"
	"errors"
	"fmt"

	"dataroom-service/internal/apperr"
	"dataroom-service/internal/model/user"
	"dataroom-service/internal/repository"
	"dataroom-service/pkg/database/postgres"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const userColumns = `id, email::text, password_hash, status::text, full_name, avatar_url, phone, google_id,
	google_access_token, google_refresh_token, google_token_expires_at, created_at, updated_at, deleted_at`

type UserRepo struct {
	pool *pgxpool.Pool
}

var _ repository.UserRepository = (*UserRepo)(nil)

func New(pool *pgxpool.Pool) *UserRepo {
	return &UserRepo{pool: pool}
}

func scanUser(row pgx.Row) (*user.User, error) {
	var u user.User
	var status string
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &status, &u.FullName, &u.AvatarURL, &u.Phone,
		&u.GoogleID, &u.GoogleAccessToken, &u.GoogleRefreshToken, &u.GoogleTokenExpiresAt,
		&u.CreatedAt, &u.UpdatedAt, &u.DeletedAt)
	if err != nil {
		return nil, err
	}
	u.Status = user.Status(status)
	return &u, nil
}

func (r *UserRepo) Create(ctx context.Context, u *user.User) error {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO users (id, email, password_hash, status, full_name, avatar_url, phone, google_id,
		                    google_access_token, google_refresh_token, google_token_expires_at)
		 VALUES ($1, $2, $3, $4::user_status, $5, $6, $7, $8, $9, $10, $11)
		 RETURNING created_at, updated_at`,
		u.ID, u.Email, u.PasswordHash, string(u.Status), u.FullName, u.AvatarURL, u.Phone, u.GoogleID,
		u.GoogleAccessToken, u.GoogleRefreshToken, u.GoogleTokenExpiresAt)
	if err := row.Scan(&u.CreatedAt, &u.UpdatedAt); err != nil {
		if postgres.IsUniqueViolation(err) {
			return fmt.Errorf("%w: user with this email already exists", apperr.ErrConflict)
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

func (r *UserRepo) GetByID(ctx context.Context, id uuid.UUID) (*user.User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1 AND deleted_at IS NULL`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: user %s", apperr.ErrNotFound, id)
	}
	return u, err
}

func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*user.User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1 AND deleted_at IS NULL`, email))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: user %s", apperr.ErrNotFound, email)
	}
	return u, err
}

func (r *UserRepo) UpdateGoogleLink(ctx context.Context, u *user.User) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users
		    SET full_name = COALESCE($2, full_name), avatar_url = COALESCE($3, avatar_url),
		        google_id = $4, google_access_token = $5,
		        google_refresh_token = COALESCE($6, google_refresh_token),
		        google_token_expires_at = $7, status = $8::user_status, updated_at = now()
		  WHERE id = $1 AND deleted_at IS NULL`,
		u.ID, u.FullName, u.AvatarURL, u.GoogleID, u.GoogleAccessToken, u.GoogleRefreshToken,
		u.GoogleTokenExpiresAt, string(u.Status))
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return fmt.Errorf("%w: google account is linked to another user", apperr.ErrConflict)
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: user %s", apperr.ErrNotFound, u.ID)
	}
	return nil
}

func (r *UserRepo) UpdateGoogleTokens(ctx context.Context, id uuid.UUID, tokens user.GoogleTokens) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE users
		    SET google_access_token = $2,
		        google_refresh_token = COALESCE(NULLIF($3, ''), google_refresh_token),
		        google_token_expires_at = $4, updated_at = now()
		  WHERE id = $1 AND deleted_at IS NULL`,
		id, tokens.AccessToken, tokens.RefreshToken, tokens.ExpiresAt)
	return err
}

// SetRole replaces the active role of a user in one transaction.
func (r *UserRepo) SetRole(ctx context.Context, userID uuid.UUID, role user.Role) error {
	if !role.Valid() {
		return fmt.Errorf("%w: unknown role %q", apperr.ErrValidation, role)
	}
	return postgres.RunInTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`UPDATE user_roles SET deleted_at = now(), updated_at = now()
			  WHERE user_id = $1 AND deleted_at IS NULL`, userID); err != nil {
			return err
		}
		_, err := tx.Exec(ctx,
			`INSERT INTO user_roles (user_id, role) VALUES ($1, $2::user_role)`, userID, string(role))
		if postgres.IsUniqueViolation(err) {
			return fmt.Errorf("%w: concurrent role change", apperr.ErrConflict)
		}
		return err
	})
}

func (r *UserRepo) GetRole(ctx context.Context, userID uuid.UUID) (user.Role, error) {
	var role string
	err := r.pool.QueryRow(ctx,
		`SELECT role::text FROM user_roles WHERE user_id = $1 AND deleted_at IS NULL`, userID).Scan(&role)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("%w: no role for user %s", apperr.ErrNotFound, userID)
	}
	return user.Role(role), err
}
