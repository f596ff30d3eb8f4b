package handler_test

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"dataroom-service/internal/handler"
	"dataroom-service/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"
)

func init() { gin.SetMode(gin.TestMode) }

type pingRoutes struct{}

func (pingRoutes) Register(r gin.IRouter) {
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
}

func get(r http.Handler, path string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRouter(t *testing.T) {
	healthy := true
	r := handler.NewRouter(logger.FromZap(zap.NewNop()), handler.RouterConfig{
		CORSOrigins: []string{"http://app.local"},
		Checks: map[string]handler.Check{
			"db": func(context.Context) error {
				if healthy {
					return nil
				}
				return errors.New("down")
			},
		},
	}, pingRoutes{})

	w := get(r, "/api/ping", map[string]string{"Origin": "http://app.local"})
	assert.Equal(t, "pong", w.Body.String())
	assert.Equal(t, "http://app.local", w.Header().Get("Access-Control-Allow-Origin"))
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	w = get(r, "/api/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	healthy = false
	w = get(r, "/api/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), `"db":"down"`)

	w = get(r, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "dataroom_http_requests_total")
}

func TestHealthServer(t *testing.T) {
	var failing bool
	hs := handler.NewHealthServer(map[string]handler.Check{
		"redis": func(context.Context) error {
			if failing {
				return errors.New("unreachable")
			}
			return nil
		},
	})

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	hs.Register(srv)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	client := healthpb.NewHealthClient(conn)

	ctx := context.Background()
	require.True(t, hs.Refresh(ctx))
	resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: handler.ServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.Status)

	failing = true
	require.False(t, hs.Refresh(ctx))
	resp, err = client.Check(ctx, &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.Status)
}
