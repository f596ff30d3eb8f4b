package authService

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"dataroom-service/internal/apperr"
	"dataroom-service/internal/model/auditLog"
	"dataroom-service/internal/model/user"
	"dataroom-service/internal/repository"
	"dataroom-service/internal/repository/BlackListRepo"
	"dataroom-service/internal/repository/oauthState"
	"dataroom-service/internal/repository/refreshToken"
	"dataroom-service/pkg/logger"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

const (
	refreshTokenExpireTime = 7 * 24 * time.Hour
	oauthStateTTL          = 10 * time.Minute
	driveRefreshMargin     = 60 * time.Second
	persistTimeout         = 10 * time.Second

	minPasswordLen = 8
	maxPasswordLen = 72
)

var DefaultGoogleScopes = []string{
	"openid",
	"https://www.googleapis.com/auth/userinfo.email",
	"https://www.googleapis.com/auth/userinfo.profile",
	"https://www.googleapis.com/auth/drive.readonly",
}

type Config struct {
	JWTSecret  string        `env:"JWT_TOKEN" env-required:"true"`
	SessionTTL time.Duration `env:"SESSION_TTL" env-default:"60m"`
	Google     GoogleConfig
}

type GoogleConfig struct {
	ClientID     string `env:"GOOGLE_CLIENT_ID"`
	ClientSecret string `env:"GOOGLE_CLIENT_SECRET"`
	RedirectURL  string `env:"GOOGLE_REDIRECT_URI" env-default:"http://localhost:8080/api/auth/google/callback"`
	AuthURL      string `env:"GOOGLE_AUTH_URI"`
	TokenURL     string `env:"GOOGLE_TOKEN_URI"`
	UserInfoURL  string `env:"GOOGLE_USERINFO_URI" env-default:"https://www.googleapis.com/oauth2/v2/userinfo"`
}

func (g GoogleConfig) oauth2() *oauth2.Config {
	endpoint := google.Endpoint
	if g.AuthURL != "" {
		endpoint.AuthURL = g.AuthURL
	}
	if g.TokenURL != "" {
		endpoint.TokenURL = g.TokenURL
	}
	return &oauth2.Config{
		ClientID:     g.ClientID,
		ClientSecret: g.ClientSecret,
		RedirectURL:  g.RedirectURL,
		Endpoint:     endpoint,
		Scopes:       DefaultGoogleScopes,
	}
}

type AuditRecorder interface {
	RecordAudit(ctx context.Context, userID uuid.UUID, event auditLog.AuditEvent, metadata map[string]any)
}

// Session is what a successful login hands to the client.
type Session struct {
	AccessToken  string     `json:"access_token"`
	RefreshToken string     `json:"refresh_token"`
	ExpiresAt    time.Time  `json:"expires_at"`
	User         *user.User `json:"user"`
}

type AuthService struct {
	userRepo      repository.UserRepository
	refreshRepo   *refreshToken.RefreshTokenRepo
	blacklistRepo *BlackListRepo.BlackListRepo
	stateRepo     *oauthState.StateRepo
	audit         AuditRecorder

	jwtSecretKey string
	sessionTTL   time.Duration
	google       *oauth2.Config
	userInfoURL  string
	avatarClient *http.Client
}

func New(userRepo repository.UserRepository, tokenRepo *refreshToken.RefreshTokenRepo, blacklistRepo *BlackListRepo.BlackListRepo,
	stateRepo *oauthState.StateRepo, audit AuditRecorder, cfg Config) *AuthService {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = time.Hour
	}
	return &AuthService{
		userRepo:      userRepo,
		refreshRepo:   tokenRepo,
		blacklistRepo: blacklistRepo,
		stateRepo:     stateRepo,
		audit:         audit,
		jwtSecretKey:  cfg.JWTSecret,
		sessionTTL:    cfg.SessionTTL,
		google:        cfg.Google.oauth2(),
		userInfoURL:   cfg.Google.UserInfoURL,
		avatarClient:  &http.Client{Timeout: avatarTimeout},
	}
}

func (s *AuthService) Register(ctx context.Context, email, password, fullName, phone string) (*user.User, error) {
	email = normalizeEmail(email)
	if !emailRegex.MatchString(email) {
		return nil, fmt.Errorf("%w: invalid email format", apperr.ErrValidation)
	}
	if len(password) < minPasswordLen || len(password) > maxPasswordLen {
		return nil, fmt.Errorf("%w: password must be %d..%d bytes", apperr.ErrValidation, minPasswordLen, maxPasswordLen)
	}

	if existing, err := s.userRepo.GetByEmail(ctx, email); err == nil && existing != nil {
		return nil, fmt.Errorf("%w: email already registered", apperr.ErrConflict)
	} else if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	hash := string(hashedPassword)

	u := &user.User{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: &hash,
		Status:       user.StatusActive,
		FullName:     optional(fullName),
		Phone:        optional(phone),
	}
	if err := s.userRepo.Create(ctx, u); err != nil {
		return nil, err
	}
	if err := s.userRepo.SetRole(ctx, u.ID, user.RoleViewer); err != nil {
		return nil, fmt.Errorf("failed to assign default role: %w", err)
	}
	return u, nil
}

func (s *AuthService) Login(ctx context.Context, email, password string) (*Session, error) {
	u, err := s.userRepo.GetByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, apperr.ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if u.PasswordHash == nil {
		return nil, fmt.Errorf("%w: account uses Google sign-in", apperr.ErrInvalidCredentials)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(*u.PasswordHash), []byte(password)); err != nil {
		return nil, apperr.ErrInvalidCredentials
	}
	if u.Status == user.StatusSuspended {
		return nil, fmt.Errorf("%w: account is suspended", apperr.ErrPermissionDenied)
	}

	session, err := s.issueSession(ctx, u)
	if err != nil {
		return nil, err
	}
	s.audit.RecordAudit(ctx, u.ID, auditLog.AuditLogin, map[string]any{"method": "password"})
	return session, nil
}

// GoogleAuthURL starts the OAuth flow with a single-use state value.
func (s *AuthService) GoogleAuthURL(ctx context.Context) (string, error) {
	state := uuid.NewString()
	if err := s.stateRepo.Save(ctx, state, oauthStateTTL); err != nil {
		return "", fmt.Errorf("failed to save oauth state: %w", err)
	}
	return s.google.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.ApprovalForce,
		oauth2.SetAuthURLParam("include_granted_scopes", "true"),
	), nil
}

type googleUserInfo struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

// GoogleCallback finishes the OAuth flow, links or creates the user and
// stores the Drive grant.
func (s *AuthService) GoogleCallback(ctx context.Context, code, state string) (*Session, error) {
	ok, err := s.stateRepo.Consume(ctx, state)
	if err != nil {
		return nil, fmt.Errorf("failed to check oauth state: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: unknown or expired oauth state", apperr.ErrValidation)
	}
	if code == "" {
		return nil, fmt.Errorf("%w: authorization code is missing", apperr.ErrValidation)
	}

	tok, err := s.google.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: code exchange failed: %v", apperr.ErrInvalidCredentials, err)
	}
	info, err := s.fetchUserInfo(ctx, tok)
	if err != nil {
		return nil, err
	}

	u, err := s.linkGoogleUser(ctx, info, tok)
	if err != nil {
		return nil, err
	}
	if u.Status == user.StatusSuspended {
		return nil, fmt.Errorf("%w: account is suspended", apperr.ErrPermissionDenied)
	}

	session, err := s.issueSession(ctx, u)
	if err != nil {
		return nil, err
	}
	s.audit.RecordAudit(ctx, u.ID, auditLog.AuditLogin, map[string]any{"method": "google"})
	return session, nil
}

func (s *AuthService) fetchUserInfo(ctx context.Context, tok *oauth2.Token) (*googleUserInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.userInfoURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.google.Client(ctx, tok).Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: userinfo request failed: %v", apperr.ErrUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: userinfo returned %d", apperr.ErrUnavailable, resp.StatusCode)
	}

	var info googleUserInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("%w: malformed userinfo: %v", apperr.ErrUnavailable, err)
	}
	info.Email = normalizeEmail(info.Email)
	if info.Email == "" || info.ID == "" {
		return nil, fmt.Errorf("%w: google account has no email", apperr.ErrValidation)
	}
	return &info, nil
}

func (s *AuthService) linkGoogleUser(ctx context.Context, info *googleUserInfo, tok *oauth2.Token) (*user.User, error) {
	var expiry *time.Time
	if !tok.Expiry.IsZero() {
		e := tok.Expiry.UTC()
		expiry = &e
	}

	u, err := s.userRepo.GetByEmail(ctx, info.Email)
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		u = &user.User{
			ID:                   uuid.New(),
			Email:                info.Email,
			Status:               user.StatusActive,
			FullName:             optional(info.Name),
			AvatarURL:            optional(info.Picture),
			GoogleID:             &info.ID,
			GoogleAccessToken:    &tok.AccessToken,
			GoogleRefreshToken:   optional(tok.RefreshToken),
			GoogleTokenExpiresAt: expiry,
		}
		if err := s.userRepo.Create(ctx, u); err != nil {
			return nil, err
		}
		if err := s.userRepo.SetRole(ctx, u.ID, user.RoleViewer); err != nil {
			return nil, fmt.Errorf("failed to assign default role: %w", err)
		}
		return u, nil
	case err != nil:
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	u.GoogleID = &info.ID
	u.GoogleAccessToken = &tok.AccessToken
	u.GoogleRefreshToken = optional(tok.RefreshToken)
	u.GoogleTokenExpiresAt = expiry
	if u.FullName == nil {
		u.FullName = optional(info.Name)
	}
	u.AvatarURL = optional(info.Picture)
	if u.Status == user.StatusPending {
		u.Status = user.StatusActive
	}
	if err := s.userRepo.UpdateGoogleLink(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// DriveTokenSource returns a token source for the user's Drive grant that
// refreshes shortly before expiry and persists refreshed tokens.
func (s *AuthService) DriveTokenSource(ctx context.Context, userID uuid.UUID) (oauth2.TokenSource, error) {
	u, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !u.HasDriveGrant() {
		return nil, apperr.ErrNotConnected
	}

	tok := &oauth2.Token{AccessToken: *u.GoogleAccessToken, TokenType: "Bearer"}
	if u.GoogleRefreshToken != nil {
		tok.RefreshToken = *u.GoogleRefreshToken
	}
	if u.GoogleTokenExpiresAt != nil {
		tok.Expiry = *u.GoogleTokenExpiresAt
	}

	// The base source only refreshes; reuse and expiry margin are handled on top.
	base := s.google.TokenSource(context.WithoutCancel(ctx), &oauth2.Token{RefreshToken: tok.RefreshToken})
	return &persistingTokenSource{
		src:    oauth2.ReuseTokenSourceWithExpiry(tok, base, driveRefreshMargin),
		last:   tok.AccessToken,
		userID: userID,
		svc:    s,
		log:    logger.GetLogger(ctx),
	}, nil
}

func (s *AuthService) Logout(ctx context.Context, userID uuid.UUID, accessToken string) error {
	if err := s.refreshRepo.Delete(ctx, userID); err != nil {
		return fmt.Errorf("failed to delete refresh token: %w", err)
	}

	payload := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(accessToken, payload, s.keyFunc)
	if err != nil {
		return fmt.Errorf("%w: invalid token: %v", apperr.ErrInvalidCredentials, err)
	}
	if err := s.blacklistRepo.Revoke(ctx, accessToken, payload.ExpiresAt.Time); err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}

	s.audit.RecordAudit(ctx, userID, auditLog.AuditLogout, nil)
	return nil
}

func (s *AuthService) RefreshToken(ctx context.Context, userID uuid.UUID, oldRefreshToken string) (*Session, error) {
	valid, err := s.refreshRepo.Consume(ctx, userID, oldRefreshToken)
	if err != nil {
		return nil, fmt.Errorf("failed to check refresh token: %w", err)
	}
	if !valid {
		return nil, fmt.Errorf("%w: expired refresh token", apperr.ErrInvalidCredentials)
	}

	u, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u.Status == user.StatusSuspended {
		return nil, fmt.Errorf("%w: account is suspended", apperr.ErrPermissionDenied)
	}

	session, err := s.issueSession(ctx, u)
	if err != nil {
		return nil, err
	}
	s.audit.RecordAudit(ctx, userID, auditLog.AuditTokenRefresh, map[string]any{"kind": "session"})
	return session, nil
}

func (s *AuthService) Me(ctx context.Context, userID uuid.UUID) (*user.User, user.Role, error) {
	u, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, "", err
	}
	role, err := s.userRepo.GetRole(ctx, userID)
	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		return nil, "", err
	}
	return u, role, nil
}

// SetRole lets an owner change the role of another user.
func (s *AuthService) SetRole(ctx context.Context, actorID, userID uuid.UUID, role user.Role) error {
	if !role.Valid() {
		return fmt.Errorf("%w: unknown role %q", apperr.ErrValidation, role)
	}
	actorRole, err := s.userRepo.GetRole(ctx, actorID)
	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		return err
	}
	if actorRole != user.RoleOwner {
		return fmt.Errorf("%w: only owners can change roles", apperr.ErrPermissionDenied)
	}
	if _, err := s.userRepo.GetByID(ctx, userID); err != nil {
		return err
	}

	previous, err := s.userRepo.GetRole(ctx, userID)
	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		return err
	}
	if err := s.userRepo.SetRole(ctx, userID, role); err != nil {
		return err
	}
	s.audit.RecordAudit(ctx, userID, auditLog.AuditRoleChange, map[string]any{
		"from":     string(previous),
		"to":       string(role),
		"actor_id": actorID.String(),
	})
	return nil
}

func (s *AuthService) GetUIDByToken(ctx context.Context, token string) (uuid.UUID, bool) {
	revoked, err := s.blacklistRepo.IsRevoked(ctx, token)
	if err != nil || revoked {
		return uuid.Nil, false
	}

	payload := &jwt.RegisteredClaims{}
	parsedToken, err := jwt.ParseWithClaims(token, payload, s.keyFunc)
	if err != nil || !parsedToken.Valid {
		return uuid.Nil, false
	}

	uid, err := uuid.Parse(payload.Subject)
	if err != nil {
		return uuid.Nil, false
	}
	return uid, true
}

func (s *AuthService) issueSession(ctx context.Context, u *user.User) (*Session, error) {
	expiresAt := time.Now().Add(s.sessionTTL)
	accessToken, err := s.generateJWT(u.ID, expiresAt)
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}
	refresh, err := s.generateRefreshToken(ctx, u.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to generate refresh token: %w", err)
	}
	return &Session{AccessToken: accessToken, RefreshToken: refresh, ExpiresAt: expiresAt, User: u}, nil
}

func (s *AuthService) generateJWT(userID uuid.UUID, expiresAt time.Time) (string, error) {
	payload := jwt.RegisteredClaims{
		Subject:   userID.String(),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ID:        uuid.NewString(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, payload)
	return token.SignedString([]byte(s.jwtSecretKey))
}

func (s *AuthService) keyFunc(t *jwt.Token) (interface{}, error) {
	if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
	}
	return []byte(s.jwtSecretKey), nil
}

func (s *AuthService) generateRefreshToken(ctx context.Context, userID uuid.UUID) (string, error) {
	token := uuid.NewString()
	if err := s.refreshRepo.Save(ctx, userID, token, refreshTokenExpireTime); err != nil {
		return "", err
	}
	return token, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
