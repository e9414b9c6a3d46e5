package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/campus-systems/enroll-api/api/swagger"
	"github.com/campus-systems/enroll-api/internal/handler"
	internalmiddleware "github.com/campus-systems/enroll-api/internal/middleware"
	"github.com/campus-systems/enroll-api/internal/migrations"
	"github.com/campus-systems/enroll-api/internal/repository"
	"github.com/campus-systems/enroll-api/internal/service"
	"github.com/campus-systems/enroll-api/pkg/cache"
	"github.com/campus-systems/enroll-api/pkg/config"
	"github.com/campus-systems/enroll-api/pkg/database"
	"github.com/campus-systems/enroll-api/pkg/export"
	"github.com/campus-systems/enroll-api/pkg/logger"
	corsmiddleware "github.com/campus-systems/enroll-api/pkg/middleware/cors"
	reqidmiddleware "github.com/campus-systems/enroll-api/pkg/middleware/requestid"
)

// @title Enroll API
// @version 1.0.0
// @description Course enrollment platform with transactional seat allocation
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
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close()

	migrateCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := migrations.Run(migrateCtx, db); err != nil {
		cancel()
		logr.Fatal("failed to run migrations", zap.Error(err))
	}
	cancel()

	// Redis is optional. Without it the catalog and stats endpoints read
	// straight from postgres.
	var cacheRepo service.CacheRepository
	if cfg.Catalog.CacheEnabled {
		redisClient, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, caching disabled", zap.Error(err))
		} else {
			repo := repository.NewCacheRepository(redisClient)
			defer repo.Close() //nolint:errcheck
			cacheRepo = repo
		}
	}

	validate := validator.New()
	metricsService := service.NewMetricsService()
	cacheService := service.NewCacheService(cacheRepo, metricsService, cfg.Catalog.CacheTTL, logr, cacheRepo != nil)

	userRepo := repository.NewUserRepository(db)
	semesterRepo := repository.NewSemesterRepository(db)
	subjectRepo := repository.NewSubjectRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	historyRepo := repository.NewHistoryRepository(db)
	statsRepo := repository.NewStatsRepository(db)

	authService := service.NewAuthService(userRepo, cfg.JWT, validate, logr)
	eligibility := service.NewEligibilityChecker(enrollmentRepo, logr)
	enrollmentService := service.NewEnrollmentService(enrollmentRepo, eligibility, historyRepo, cacheService, metricsService, validate, logr)
	semesterService := service.NewSemesterService(semesterRepo, validate, logr)
	subjectService := service.NewSubjectService(subjectRepo, semesterRepo, enrollmentRepo, cacheService, export.NewCSVExporter(), export.NewPDFExporter(), validate, logr)
	statsService := service.NewStatsService(statsRepo, cacheService, cfg.Catalog.StatsTTL, logr)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metricsService))

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

	r.GET("/metrics", gin.WrapH(metricsService.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	handler.RegisterRoutes(r, cfg.APIPrefix, handler.Handlers{
		Auth:       handler.NewAuthHandler(authService),
		Semester:   handler.NewSemesterHandler(semesterService),
		Subject:    handler.NewSubjectHandler(subjectService),
		Enrollment: handler.NewEnrollmentHandler(enrollmentService),
		Stats:      handler.NewStatsHandler(statsService),
	}, authService)

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
