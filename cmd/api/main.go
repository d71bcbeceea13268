package main

import (
	"fmt"
	"log"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/aulatrack/attendance-api/api/swagger"
	"github.com/aulatrack/attendance-api/internal/handler"
	"github.com/aulatrack/attendance-api/internal/middleware"
	"github.com/aulatrack/attendance-api/internal/repository"
	"github.com/aulatrack/attendance-api/internal/service"
	"github.com/aulatrack/attendance-api/pkg/cache"
	"github.com/aulatrack/attendance-api/pkg/config"
	"github.com/aulatrack/attendance-api/pkg/database"
	"github.com/aulatrack/attendance-api/pkg/export"
	"github.com/aulatrack/attendance-api/pkg/logger"
	corsmiddleware "github.com/aulatrack/attendance-api/pkg/middleware/cors"
	reqidmiddleware "github.com/aulatrack/attendance-api/pkg/middleware/requestid"
)

// @title Campus Attendance API
// @version 1.0.0
// @description Class-session lifecycle and attendance recording
// @BasePath /
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

	var cacheRepo *repository.CacheRepository
	if cfg.Reports.CacheEnabled {
		redisClient, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Warnw("redis unavailable, report caching disabled", "error", err)
		} else {
			defer redisClient.Close()
			cacheRepo = repository.NewCacheRepository(redisClient, logr)
		}
	}

	sessionRepo := repository.NewSessionRepository(db)
	attendanceRepo := repository.NewAttendanceRepository(db)
	changeLogRepo := repository.NewChangeLogRepository(db)

	metricsService := service.NewMetricsService()
	authService := service.NewAuthService(cfg.JWT, logr)
	sessionService := service.NewSessionService(sessionRepo, nil, logr)
	var attendanceService *service.AttendanceService
	if cacheRepo != nil {
		attendanceService = service.NewAttendanceService(
			attendanceRepo, changeLogRepo, sessionRepo, sessionService,
			cacheRepo, cfg.Reports.CacheTTL, metricsService, nil, logr)
	} else {
		attendanceService = service.NewAttendanceService(
			attendanceRepo, changeLogRepo, sessionRepo, sessionService,
			nil, cfg.Reports.CacheTTL, metricsService, nil, logr)
	}

	sessionHandler := handler.NewSessionHandler(sessionService)
	attendanceHandler := handler.NewAttendanceHandler(attendanceService)
	reportHandler := handler.NewReportHandler(attendanceService, export.NewCSVExporter(), export.NewPDFExporter())
	metricsHandler := handler.NewMetricsHandler(metricsService)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsService))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Health)
	r.GET("/metrics", metricsHandler.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.JWT(authService))
	{
		api.POST("/sessions", sessionHandler.Create)
		api.GET("/sessions", sessionHandler.List)
		api.GET("/sessions/:sessionId", sessionHandler.Get)
		api.PATCH("/sessions/:sessionId", sessionHandler.Update)
		api.POST("/sessions/:sessionId/start", sessionHandler.Start)
		api.POST("/sessions/:sessionId/close", sessionHandler.Close)
		api.POST("/sessions/:sessionId/cancel", sessionHandler.Cancel)
		api.GET("/teachers/:teacherId/sessions", sessionHandler.ListForTeacher)

		api.POST("/sessions/:sessionId/attendance", attendanceHandler.Take)
		api.GET("/sessions/:sessionId/attendance", attendanceHandler.ListForSession)
		api.GET("/sessions/:sessionId/stats", attendanceHandler.SessionStats)
		api.PATCH("/attendance/:recordId", attendanceHandler.Update)
		api.POST("/attendance/:recordId/excuse", attendanceHandler.Excuse)
		api.GET("/attendance/:recordId/logs", attendanceHandler.ChangeLogs)
		api.GET("/students/:studentId/attendance", attendanceHandler.StudentHistory)
		api.GET("/students/:studentId/stats", attendanceHandler.StudentStats)

		api.GET("/reports/daily", reportHandler.Daily)
		api.GET("/reports/daily/export", reportHandler.Export)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
