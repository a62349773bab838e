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
	"github.com/google/uuid"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/edushare/course-api/api/swagger"
	"github.com/edushare/course-api/internal/handler"
	internalmiddleware "github.com/edushare/course-api/internal/middleware"
	"github.com/edushare/course-api/internal/payos"
	"github.com/edushare/course-api/internal/repository"
	"github.com/edushare/course-api/internal/service"
	"github.com/edushare/course-api/pkg/cache"
	"github.com/edushare/course-api/pkg/config"
	"github.com/edushare/course-api/pkg/database"
	"github.com/edushare/course-api/pkg/jobs"
	"github.com/edushare/course-api/pkg/logger"
	corsmiddleware "github.com/edushare/course-api/pkg/middleware/cors"
	reqidmiddleware "github.com/edushare/course-api/pkg/middleware/requestid"
	"github.com/edushare/course-api/pkg/response"
)

// @title EduShare Course API
// @version 1.0.0
// @description Course catalog, enrollment, progress and payment service
// @BasePath /api/v1
// @schemes http https

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

	response.ExposeErrorDetail(cfg.Env == config.EnvDevelopment)
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, course list cache disabled", zap.Error(err))
		redisClient = nil
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	courseRepo := repository.NewCourseRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	userRepo := repository.NewUserRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	metricsSvc := service.NewMetricsService()
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Catalog.CacheTTL, logr,
		cfg.Catalog.CacheEnabled && redisClient != nil)
	courseSvc := service.NewCourseService(courseRepo, cacheSvc, nil, logr)
	enrollmentSvc := service.NewEnrollmentService(enrollmentRepo, courseSvc, courseRepo, metricsSvc, nil, logr)
	paymentSvc := service.NewPaymentService(paymentRepo, enrollmentRepo, courseSvc, courseRepo,
		payos.New(cfg.Payments), cfg.Payments, metricsSvc, nil, logr)
	authSvc := service.NewAuthService(userRepo, nil, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             cfg.JWT.Issuer,
	})

	courseHandler := handler.NewCourseHandler(courseSvc)
	enrollmentHandler := handler.NewEnrollmentHandler(enrollmentSvc, cfg.Progress.ResponseTimeout, logr)
	paymentHandler := handler.NewPaymentHandler(paymentSvc)
	authHandler := handler.NewAuthHandler(authSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc, db, redisClient)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	{
		courses := api.Group("/courses")
		{
			courses.GET("", courseHandler.List)
			courses.GET("/search", courseHandler.Search)
			courses.POST("", internalmiddleware.JWT(authSvc), courseHandler.Create)
			courses.GET("/my-enrollments/:userId", enrollmentHandler.MyEnrollments)
			courses.GET("/:id", courseHandler.Get)
			courses.POST("/:id/enroll", enrollmentHandler.Enroll)
			courses.GET("/:id/enrollment", enrollmentHandler.GetEnrollment)
			courses.PUT("/:id/progress", enrollmentHandler.UpdateProgress)
		}

		payments := api.Group("/payments")
		{
			payments.POST("/create", paymentHandler.Create)
			payments.GET("/:payment_id/status", paymentHandler.Status)
			payments.GET("/:payment_id/receipt", paymentHandler.Receipt)
		}

		auth := api.Group("/auth")
		{
			auth.POST("/register", authHandler.Register)
			auth.POST("/login", authHandler.Login)
			auth.POST("/refresh", authHandler.Refresh)
			auth.POST("/logout", internalmiddleware.JWT(authSvc), authHandler.Logout)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Payments.ReconcileEnabled {
		startReconciliation(ctx, cfg, paymentSvc, logr)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("server shutdown", zap.Error(err))
	}
}

// startReconciliation runs a worker pool that periodically re-polls open
// payments whose client never came back, so they still reach a final state.
func startReconciliation(ctx context.Context, cfg *config.Config, payments *service.PaymentService, logr *zap.Logger) {
	queue := jobs.NewQueue("payment-reconcile", func(ctx context.Context, job jobs.Job) error {
		return payments.ReconcilePending(ctx, cfg.Payments.ReconcileDelay, 0)
	}, jobs.QueueConfig{
		Workers:    cfg.Payments.ReconcileWorkers,
		MaxRetries: cfg.Payments.ReconcileRetries,
		RetryDelay: cfg.Payments.ReconcileDelay,
		Logger:     logr,
	})
	queue.Start(ctx)

	interval := cfg.Payments.PendingTTL
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	go func() {
		defer queue.Stop()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := queue.Enqueue(jobs.Job{
					ID:   uuid.NewString(),
					Type: "reconcile-pending",
				}); err != nil {
					logr.Warn("failed to enqueue reconciliation pass", zap.Error(err))
				}
			}
		}
	}()
}
