// Package response renders service errors as JSON with stable codes.
package response

import (
	"errors"
	"net/http"

	"dataroom-service/internal/apperr"
	"dataroom-service/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type ErrorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var statuses = []struct {
	err    error
	status int
}{
	{apperr.ErrValidation, http.StatusBadRequest},
	{apperr.ErrNotConnected, http.StatusBadRequest},
	{apperr.ErrInvalidCredentials, http.StatusUnauthorized},
	{apperr.ErrPermissionDenied, http.StatusForbidden},
	{apperr.ErrNotFound, http.StatusNotFound},
	{apperr.ErrConflict, http.StatusConflict},
	{apperr.ErrRangeNotSatisfiable, http.StatusRequestedRangeNotSatisfiable},
	{apperr.ErrRateLimited, http.StatusTooManyRequests},
	{apperr.ErrTimeout, http.StatusGatewayTimeout},
	{apperr.ErrUnavailable, http.StatusBadGateway},
}

func Status(err error) int {
	for _, s := range statuses {
		if errors.Is(err, s.err) {
			return s.status
		}
	}
	return http.StatusInternalServerError
}

// Error aborts the request with the status and code for err. Internal errors
// are logged and their message is not exposed.
func Error(c *gin.Context, err error) {
	status := Status(err)
	body := ErrorBody{Error: err.Error(), Code: apperr.Code(err)}
	if status == http.StatusInternalServerError {
		logger.GetLogger(c.Request.Context()).Error("request failed", zap.Error(err))
		body = ErrorBody{Error: "internal server error", Code: "internal"}
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, body)
}

func BadRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, ErrorBody{Error: msg, Code: apperr.Code(apperr.ErrValidation)})
}
