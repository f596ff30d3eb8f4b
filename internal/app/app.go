package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"dataroom-service/internal/config"
	"dataroom-service/internal/drive"
	"dataroom-service/internal/handler"
	"dataroom-service/internal/handler/authHandler"
	"dataroom-service/internal/handler/fileHandler"
	"dataroom-service/internal/repository/BlackListRepo"
	"dataroom-service/internal/repository/oauthState"
	"dataroom-service/internal/repository/refreshToken"
	"dataroom-service/internal/service/auditService"
	"dataroom-service/internal/service/authService"
	"dataroom-service/internal/service/fileService"
	"dataroom-service/internal/service/importService"
	"dataroom-service/internal/service/sweepService"
	"dataroom-service/internal/storage/writer"
	"dataroom-service/pkg/database/redis"
	"dataroom-service/pkg/logger"

	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

const (
	healthInterval    = 15 * time.Second
	readHeaderTimeout = 10 * time.Second
)

// App is the assembled service: stores, services and both servers.
type App struct {
	cfg      *config.Config
	stores   *Stores
	redis    *goredis.Client
	recorder *auditService.Recorder
	sweeper  *sweepService.Sweeper
	health   *handler.HealthServer

	httpServer *http.Server
	grpcServer *grpc.Server
}

func New(ctx context.Context, cfg *config.Config) (*App, error) {
	log := logger.GetLogger(ctx)

	stores, err := OpenStores(ctx, cfg)
	if err != nil {
		return nil, err
	}

	redisClient, err := redis.Connect(ctx, cfg.Redis)
	if err != nil {
		stores.Close()
		return nil, err
	}
	stores.Checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }

	recorder := auditService.New(stores.Logs, log)
	authSvc := authService.New(
		stores.Users,
		refreshToken.New(redisClient),
		BlackListRepo.NewBlackListRepo(redisClient),
		oauthState.New(redisClient),
		recorder,
		cfg.Auth,
	)

	driveClient := drive.New(cfg.Drive)
	contentWriter := writer.New(stores.Blobs, cfg.Storage.ChunkSize)
	reconciler := importService.New(driveClient, stores.Files, contentWriter, stores.Blobs, cfg.Import)
	fileSvc := fileService.New(stores.Files, stores.Blobs, recorder)

	if cfg.Log.Development {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := handler.NewRouter(log, handler.RouterConfig{CORSOrigins: cfg.HTTP.CORSOrigins, Checks: stores.Checks},
		authHandler.New(authSvc, authHandler.Options{FrontendURL: cfg.HTTP.FrontendURL, SecureCookies: cfg.HTTP.SecureCookies}),
		fileHandler.New(fileSvc, reconciler, driveClient, authSvc, authSvc),
	)

	health := handler.NewHealthServer(stores.Checks)
	grpcServer := grpc.NewServer()
	health.Register(grpcServer)

	return &App{
		cfg:      cfg,
		stores:   stores,
		redis:    redisClient,
		recorder: recorder,
		sweeper:  sweepService.New(stores.Files, stores.Blobs, cfg.Sweep),
		health:   health,
		httpServer: &http.Server{
			Addr:              cfg.HTTP.Addr,
			Handler:           router,
			ReadHeaderTimeout: readHeaderTimeout,
		},
		grpcServer: grpcServer,
	}, nil
}

// Run serves HTTP and gRPC health until ctx is done or a server fails, then
// shuts everything down.
func (a *App) Run(ctx context.Context) error {
	log := logger.GetLogger(ctx)

	lis, err := net.Listen("tcp", ":"+a.cfg.GRPCHealthPort)
	if err != nil {
		return fmt.Errorf("failed to listen on grpc health port: %w", err)
	}

	errCh := make(chan error, 2)
	go func() {
		log.Info("http server started", zap.String("addr", a.cfg.HTTP.Addr))
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		log.Info("grpc health server started", zap.String("port", a.cfg.GRPCHealthPort))
		if err := a.grpcServer.Serve(lis); err != nil {
			errCh <- fmt.Errorf("grpc health server: %w", err)
		}
	}()

	watchCtx, stopWatch := context.WithCancel(ctx)
	defer stopWatch()
	go a.health.Watch(watchCtx, healthInterval)
	a.sweeper.Start(ctx)

	select {
	case <-ctx.Done():
		log.Info("shutdown requested")
	case err = <-errCh:
		log.Error("server failed", zap.Error(err))
	}

	a.shutdown(context.WithoutCancel(ctx))
	return err
}

func (a *App) shutdown(ctx context.Context) {
	log := logger.GetLogger(ctx)
	ctx, cancel := context.WithTimeout(ctx, a.cfg.HTTP.ShutdownTimeout)
	defer cancel()

	a.health.Shutdown()
	if err := a.httpServer.Shutdown(ctx); err != nil {
		log.Warn("http server shutdown", zap.Error(err))
	}
	a.grpcServer.GracefulStop()
	a.sweeper.Stop()
	a.recorder.Close()
	log.Info("servers stopped")
}

// Close releases the connections opened by New.
func (a *App) Close() {
	if err := a.redis.Close(); err != nil {
		logger.GetLogger(context.Background()).Warn("redis close", zap.Error(err))
	}
	a.stores.Close()
}

// Sweep fails stale processing imports once and returns how many were failed.
func Sweep(ctx context.Context, cfg *config.Config) (int, error) {
	stores, err := OpenStores(ctx, cfg)
	if err != nil {
		return 0, err
	}
	defer stores.Close()
	return sweepService.New(stores.Files, stores.Blobs, cfg.Sweep).RunOnce(ctx)
}
