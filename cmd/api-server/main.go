package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/school-portal-api/api/swagger"
	"github.com/noah-isme/school-portal-api/internal/handler"
	"github.com/noah-isme/school-portal-api/internal/middleware"
	"github.com/noah-isme/school-portal-api/internal/models"
	"github.com/noah-isme/school-portal-api/internal/repository"
	"github.com/noah-isme/school-portal-api/internal/service"
	"github.com/noah-isme/school-portal-api/pkg/cache"
	"github.com/noah-isme/school-portal-api/pkg/config"
	"github.com/noah-isme/school-portal-api/pkg/database"
	"github.com/noah-isme/school-portal-api/pkg/jobs"
	"github.com/noah-isme/school-portal-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/school-portal-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/school-portal-api/pkg/middleware/requestid"
	"github.com/noah-isme/school-portal-api/pkg/storage"
)

// @title School Portal API
// @version 1.0.0
// @description Exam administration, grading and promotion service
// @BasePath /api/v1
// @schemes http

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
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, result cache disabled", "error", err)
		redisClient = nil
	}

	validate := validator.New()

	userRepo := repository.NewUserRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	examRepo := repository.NewExamRepository(db)
	resultRepo := repository.NewExamResultRepository(db, cfg.Exam.UniquenessScope)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	metricsSvc := service.NewMetricsService()

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "school-portal-api",
	})
	studentSvc := service.NewStudentService(studentRepo, validate, logr)
	examSvc := service.NewExamService(examRepo, validate, logr)
	promotionSvc := service.NewPromotionService(studentRepo, service.PromotionPolicy{
		TriggerScope: cfg.Exam.PromotionTriggerScope,
	}, logr)
	resultSvc := service.NewResultService(resultRepo, cacheRepo, metricsSvc, logr, cfg.Results.CacheTTL)

	promotionQueue := jobs.NewQueue("promotion-retry", func(ctx context.Context, job jobs.Job) error {
		studentID, ok := job.Payload.(string)
		if !ok {
			return fmt.Errorf("promotion job %s: unexpected payload %T", job.ID, job.Payload)
		}
		_, err := promotionSvc.ApplyPassing(ctx, studentID)
		return err
	}, jobs.QueueConfig{
		Workers:    cfg.Exam.PromotionWorkers,
		MaxRetries: cfg.Exam.PromotionRetries,
		RetryDelay: cfg.Exam.PromotionRetryDelay,
		Logger:     logr,
		OnDrop: func(job jobs.Job, err error) {
			logr.Error("promotion retry abandoned",
				zap.String("result_id", job.ID),
				zap.Any("student_id", job.Payload),
				zap.Error(err))
		},
	})

	submissionSvc := service.NewSubmissionService(studentRepo, examRepo, resultRepo, promotionSvc,
		promotionQueue, metricsSvc, validate, logr, cfg.Exam.PassThreshold)

	var exportSvc *service.ExportService
	if cfg.Exports.Enabled {
		store, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
		if err != nil {
			logr.Sugar().Fatalw("failed to init export storage", "error", err)
		}
		signer := storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)
		exportSvc = service.NewExportService(examRepo, resultRepo, studentRepo, store, signer, logr)
	}

	authHandler := handler.NewAuthHandler(authSvc)
	studentHandler := handler.NewStudentHandler(studentSvc, resultSvc)
	examHandler := handler.NewExamHandler(examSvc, resultSvc)
	submissionHandler := handler.NewSubmissionHandler(submissionSvc)
	resultHandler := handler.NewResultHandler(resultSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	auth.POST("/login", authHandler.Login)
	auth.POST("/refresh", authHandler.Refresh)

	authed := api.Group("")
	authed.Use(middleware.JWT(authSvc))

	authed.POST("/auth/logout", authHandler.Logout)
	authed.POST("/auth/change-password", authHandler.ChangePassword)
	authed.GET("/auth/me", authHandler.Me)

	staff := middleware.RequireRoles(models.RoleAdmin, models.RoleStaff)
	staffOrSelf := middleware.RBAC(string(models.RoleAdmin), string(models.RoleStaff), "SELF")

	authed.GET("/students", staff, studentHandler.List)
	authed.POST("/students", staff, studentHandler.Create)
	authed.GET("/students/:id", staffOrSelf, studentHandler.Get)
	authed.GET("/students/:id/results", staffOrSelf, studentHandler.Results)

	authed.GET("/exams", examHandler.List)
	authed.POST("/exams", staff, examHandler.Create)
	authed.GET("/exams/:id", staff, examHandler.Get)
	authed.GET("/exams/:id/results", staff, examHandler.Results)

	if cfg.Exam.Enabled {
		authed.POST("/submissions", submissionHandler.Submit)
	}

	authed.GET("/results/:id", resultHandler.Get)
	authed.POST("/results/:id/publish", staff, resultHandler.Publish)
	authed.POST("/results/:id/unpublish", staff, resultHandler.Unpublish)

	if exportSvc != nil {
		exportHandler := handler.NewExportHandler(exportSvc)
		authed.POST("/exams/:id/export", staff, exportHandler.Export)
		api.GET("/exports/download", exportHandler.Download)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	promotionQueue.Start(ctx)
	defer promotionQueue.Stop()

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("shutdown error", "error", err)
	}
}
