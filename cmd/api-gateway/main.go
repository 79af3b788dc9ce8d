package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/grievance-api/internal/handler"
	"github.com/noah-isme/grievance-api/internal/middleware"
	"github.com/noah-isme/grievance-api/internal/repository"
	"github.com/noah-isme/grievance-api/internal/service"
	"github.com/noah-isme/grievance-api/pkg/cache"
	"github.com/noah-isme/grievance-api/pkg/config"
	"github.com/noah-isme/grievance-api/pkg/database"
	"github.com/noah-isme/grievance-api/pkg/jobs"
	"github.com/noah-isme/grievance-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/grievance-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/grievance-api/pkg/middleware/requestid"
	"github.com/noah-isme/grievance-api/pkg/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, rate limiting and view cache disabled", "error", err)
		redisClient = nil
	}

	blobs, err := storage.NewLocalStorage(cfg.Attachments.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init attachment storage", "error", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Attachments.SignedURLSecret, cfg.Attachments.SignedURLTTL)

	validate := validator.New()
	metrics := service.NewMetricsService()

	grievanceRepo := repository.NewGrievanceRepository(db)
	trackingRepo := repository.NewTrackingRepository(db)
	attachmentRepo := repository.NewAttachmentRepository(db)

	attachmentSvc := service.NewAttachmentService(attachmentRepo, blobs, signer, service.AttachmentConfig{
		MaxFileSizeBytes: cfg.Attachments.MaxFileSizeBytes,
		AllowedMIMEs:     cfg.Attachments.AllowedMIMEs,
		RetentionWindow:  cfg.Attachments.RetentionWindow,
	}, metrics, logr)

	grievanceSvc := service.NewGrievanceService(grievanceRepo, trackingRepo, attachmentSvc, validate, logr).
		WithMetrics(metrics)
	if redisClient != nil && cfg.Cache.Enabled {
		viewCache := repository.NewCacheRepository(redisClient, logr)
		grievanceSvc = grievanceSvc.WithViewCache(viewCache, cfg.Cache.ViewTTL)
	}

	statsSvc := service.NewStatsService(grievanceRepo)
	authSvc := service.NewAuthService(service.AuthConfig{
		Secret:   cfg.JWT.Secret,
		Issuer:   cfg.JWT.Issuer,
		Audience: cfg.JWT.Audience,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sweepQueue := jobs.NewQueue("attachment-sweep", func(ctx context.Context, job jobs.Job) error {
		_, err := attachmentSvc.SweepExpired(ctx)
		return err
	}, jobs.QueueConfig{Workers: 1, Logger: logr})
	sweepQueue.Start(ctx)
	defer sweepQueue.Stop()
	sweepQueue.ScheduleEvery(cfg.Attachments.SweepInterval, jobs.Job{ID: "attachment-sweep", Type: "sweep_expired"})

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	router := &handler.Router{
		Grievances:  handler.NewGrievanceHandler(grievanceSvc),
		Attachments: handler.NewAttachmentHandler(attachmentSvc),
		Stats:       handler.NewStatsHandler(statsSvc),
		Auth:        authSvc,
		Metrics:     metrics,
	}
	if redisClient != nil && cfg.RateLimit.Enabled {
		router.RateLimit = middleware.RateLimit(redisClient, middleware.RateLimitConfig{
			RequestsPerWindow: cfg.RateLimit.RequestsPerWindow,
			Window:            cfg.RateLimit.Window,
		}, logr)
	}
	router.Register(r, cfg.APIPrefix)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("shutdown failed", "error", err)
		os.Exit(1)
	}
}
