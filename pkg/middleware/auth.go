package middleware

import (
	"context"
	"net/http"
	"strings"

	"dataroom-service/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	SessionCookie = "session"

	userIDKey      = "userID"
	accessTokenKey = "accessToken"
)

type TokenValidator interface {
	GetUIDByToken(ctx context.Context, token string) (uuid.UUID, bool)
}

// Auth accepts the session cookie or an Authorization bearer token and puts
// the user id into the gin context under "userID".
func Auth(validator TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := tokenFromRequest(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization token not provided", "code": "unauthenticated"})
			return
		}

		uid, ok := validator.GetUIDByToken(c.Request.Context(), token)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token", "code": "unauthenticated"})
			return
		}

		c.Set(userIDKey, uid)
		c.Set(accessTokenKey, token)
		log := logger.GetLogger(c.Request.Context()).With(zap.String("user_id", uid.String()))
		c.Request = c.Request.WithContext(logger.WithLogger(c.Request.Context(), log))
		c.Next()
	}
}

func UserID(c *gin.Context) (uuid.UUID, bool) {
	v, ok := c.Get(userIDKey)
	if !ok {
		return uuid.Nil, false
	}
	uid, ok := v.(uuid.UUID)
	return uid, ok
}

func AccessToken(c *gin.Context) string {
	return c.GetString(accessTokenKey)
}

func tokenFromRequest(c *gin.Context) string {
	if cookie, err := c.Cookie(SessionCookie); err == nil && cookie != "" {
		return cookie
	}
	header := c.GetHeader("Authorization")
	if token, ok := strings.CutPrefix(header, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}
