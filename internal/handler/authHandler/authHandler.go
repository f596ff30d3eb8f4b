package authHandler

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"dataroom-service/internal/apperr"
	"dataroom-service/internal/handler/response"
	"dataroom-service/internal/model/user"
	"dataroom-service/internal/service/authService"
	"dataroom-service/pkg/logger"
	"dataroom-service/pkg/middleware"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type AuthService interface {
	Register(ctx context.Context, email, password, fullName, phone string) (*user.User, error)
	Login(ctx context.Context, email, password string) (*authService.Session, error)
	Logout(ctx context.Context, userID uuid.UUID, accessToken string) error
	RefreshToken(ctx context.Context, userID uuid.UUID, refreshToken string) (*authService.Session, error)
	GoogleAuthURL(ctx context.Context) (string, error)
	GoogleCallback(ctx context.Context, code, state string) (*authService.Session, error)
	Me(ctx context.Context, userID uuid.UUID) (*user.User, user.Role, error)
	Avatar(ctx context.Context, userID uuid.UUID) (*authService.Avatar, error)
	SetRole(ctx context.Context, actorID, userID uuid.UUID, role user.Role) error
	GetUIDByToken(ctx context.Context, token string) (uuid.UUID, bool)
}

type Options struct {
	FrontendURL   string
	SecureCookies bool
}

type Handler struct {
	auth AuthService
	opts Options
}

func New(auth AuthService, opts Options) *Handler {
	return &Handler{auth: auth, opts: opts}
}

func (h *Handler) Register(r gin.IRouter) {
	g := r.Group("/auth")
	g.POST("/register", h.register)
	g.POST("/login", h.login)
	g.POST("/refresh", h.refresh)
	g.GET("/google/login", h.googleLogin)
	g.GET("/google/callback", h.googleCallback)

	authed := g.Group("", middleware.Auth(h.auth))
	authed.POST("/logout", h.logout)
	authed.GET("/me", h.me)
	authed.GET("/avatar", h.avatar)
	authed.PUT("/users/:id/role", h.setRole)
}

type registerRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
	FullName string `json:"full_name"`
	Phone    string `json:"phone"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type refreshRequest struct {
	UserID       uuid.UUID `json:"user_id" binding:"required"`
	RefreshToken string    `json:"refresh_token" binding:"required"`
}

type roleRequest struct {
	Role user.Role `json:"role" binding:"required"`
}

type meResponse struct {
	User           *user.User `json:"user"`
	Role           user.Role  `json:"role,omitempty"`
	DriveConnected bool       `json:"drive_connected"`
}

func (h *Handler) register(c *gin.Context) {
	var req registerRequest
	if !response.BindJSON(c, &req) {
		return
	}
	u, err := h.auth.Register(c.Request.Context(), req.Email, req.Password, req.FullName, req.Phone)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.JSON(http.StatusCreated, u)
}

func (h *Handler) login(c *gin.Context) {
	var req loginRequest
	if !response.BindJSON(c, &req) {
		return
	}
	session, err := h.auth.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.setSessionCookie(c, session)
	c.JSON(http.StatusOK, session)
}

func (h *Handler) refresh(c *gin.Context) {
	var req refreshRequest
	if !response.BindJSON(c, &req) {
		return
	}
	session, err := h.auth.RefreshToken(c.Request.Context(), req.UserID, req.RefreshToken)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.setSessionCookie(c, session)
	c.JSON(http.StatusOK, session)
}

func (h *Handler) logout(c *gin.Context) {
	uid, _ := middleware.UserID(c)
	if err := h.auth.Logout(c.Request.Context(), uid, middleware.AccessToken(c)); err != nil {
		response.Error(c, err)
		return
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.SessionCookie, "", -1, "/", "", h.opts.SecureCookies, true)
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) googleLogin(c *gin.Context) {
	authURL, err := h.auth.GoogleAuthURL(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Redirect(http.StatusFound, authURL)
}

func (h *Handler) googleCallback(c *gin.Context) {
	if errParam := c.Query("error"); errParam != "" {
		h.redirectToFrontend(c, url.Values{"auth": {"error"}, "code": {errParam}})
		return
	}

	session, err := h.auth.GoogleCallback(c.Request.Context(), c.Query("code"), c.Query("state"))
	if err != nil {
		logger.GetLogger(c.Request.Context()).Warn("google callback failed", zap.Error(err))
		h.redirectToFrontend(c, url.Values{"auth": {"error"}, "code": {apperr.Code(err)}})
		return
	}
	h.setSessionCookie(c, session)
	h.redirectToFrontend(c, url.Values{"auth": {"success"}})
}

func (h *Handler) me(c *gin.Context) {
	uid, _ := middleware.UserID(c)
	u, role, err := h.auth.Me(c.Request.Context(), uid)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, meResponse{User: u, Role: role, DriveConnected: u.HasDriveGrant()})
}

// avatar proxies the Google profile picture.
func (h *Handler) avatar(c *gin.Context) {
	uid, _ := middleware.UserID(c)
	a, err := h.auth.Avatar(c.Request.Context(), uid)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer a.Body.Close()

	c.Header("Cache-Control", "public, max-age=3600")
	c.DataFromReader(http.StatusOK, a.ContentLength, a.ContentType, a.Body, nil)
}

func (h *Handler) setRole(c *gin.Context) {
	target, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid user id")
		return
	}
	var req roleRequest
	if !response.BindJSON(c, &req) {
		return
	}
	actor, _ := middleware.UserID(c)
	if err := h.auth.SetRole(c.Request.Context(), actor, target, req.Role); err != nil {
		response.Error(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) setSessionCookie(c *gin.Context, s *authService.Session) {
	maxAge := int(time.Until(s.ExpiresAt).Seconds())
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.SessionCookie, s.AccessToken, maxAge, "/", "", h.opts.SecureCookies, true)
}

func (h *Handler) redirectToFrontend(c *gin.Context, q url.Values) {
	c.Redirect(http.StatusFound, h.opts.FrontendURL+"/?"+q.Encode())
}
