package response_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"dataroom-service/internal/apperr"
	"dataroom-service/internal/handler/response"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatus(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, response.Status(fmt.Errorf("x: %w", apperr.ErrNotFound)))
	assert.Equal(t, http.StatusBadRequest, response.Status(apperr.ErrNotConnected))
	assert.Equal(t, http.StatusRequestedRangeNotSatisfiable, response.Status(apperr.ErrRangeNotSatisfiable))
	assert.Equal(t, http.StatusInternalServerError, response.Status(errors.New("boom")))
}

func TestErrorHidesInternals(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	response.Error(c, errors.New("pq: password authentication failed"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	var body response.ErrorBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "internal", body.Code)
	assert.NotContains(t, body.Error, "password")
}
