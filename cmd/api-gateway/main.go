package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/tuition-api/api/swagger"
	"github.com/noah-isme/tuition-api/internal/handler"
	"github.com/noah-isme/tuition-api/internal/middleware"
	"github.com/noah-isme/tuition-api/internal/models"
	"github.com/noah-isme/tuition-api/internal/repository"
	"github.com/noah-isme/tuition-api/internal/service"
	"github.com/noah-isme/tuition-api/pkg/cache"
	"github.com/noah-isme/tuition-api/pkg/config"
	"github.com/noah-isme/tuition-api/pkg/database"
	"github.com/noah-isme/tuition-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/tuition-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/tuition-api/pkg/middleware/requestid"
)

// @title Tuition Scheduling API
// @version 1.0.0
// @description Rooms, time slots and conflict-free class timetables.
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

const shutdownTimeout = 15 * time.Second

type handlers struct {
	schedules *handler.ScheduleHandler
	rooms     *handler.RoomHandler
	timeSlots *handler.TimeSlotHandler
	metrics   *handler.MetricsHandler
}

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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect database", zap.Error(err))
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, caching disabled", zap.Error(err))
	}
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	defer cacheRepo.Close() //nolint:errcheck

	metricsSvc := service.NewMetricsService()
	tokens := service.NewTokenService(service.TokenConfig{
		Secret:   cfg.JWT.Secret,
		Issuer:   cfg.JWT.Issuer,
		Audience: cfg.JWT.Audience,
	})

	h := buildHandlers(cfg, db, cacheRepo, metricsSvc, logr)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc, "/metrics", "/health", "/ready"))

	r.GET("/health", h.metrics.Health)
	r.GET("/ready", h.metrics.Ready)

	var limiter *middleware.RateLimiter
	if cfg.RateLimit.Enabled {
		limiter = middleware.NewRateLimiter(cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.Burst, logr)
	}

	// Scrapes and docs are open; a token, when sent, keys the limiter on the user.
	public := r.Group("")
	public.Use(middleware.OptionalJWT(tokens))
	if limiter != nil {
		public.Use(limiter.Middleware())
	}
	public.GET("/metrics", h.metrics.Prometheus)
	if cfg.Env != config.EnvProduction {
		public.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.JWT(tokens))
	if limiter != nil {
		api.Use(limiter.Middleware())
	}
	registerRoutes(api, h)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}

func buildHandlers(cfg *config.Config, db *sqlx.DB, cacheRepo *repository.CacheRepository, metricsSvc *service.MetricsService, logr *zap.Logger) handlers {
	validate := validator.New()

	rooms := repository.NewRoomRepository(db)
	timeSlots := repository.NewTimeSlotRepository(db)
	classes := repository.NewClassRepository(db)
	schedules := repository.NewClassScheduleRepository(db)

	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Scheduling.CacheTTL, logr, cfg.Scheduling.CacheEnabled && cacheRepo.Enabled())
	scheduleCfg := service.ScheduleServiceConfig{
		LockTimeout: cfg.Scheduling.LockTimeout,
		CacheTTL:    cfg.Scheduling.CacheTTL,
	}

	roomSvc := service.NewRoomService(rooms, validate, logr)
	timeSlotSvc := service.NewTimeSlotService(timeSlots, db, cacheSvc, scheduleCfg, validate, logr)
	scheduleSvc := service.NewScheduleService(schedules, classes, rooms, timeSlots, db, cacheSvc, metricsSvc, scheduleCfg, validate, logr)
	exportSvc := service.NewExportService(rooms, scheduleSvc, nil, nil, logr)

	return handlers{
		schedules: handler.NewScheduleHandler(scheduleSvc),
		rooms:     handler.NewRoomHandler(roomSvc, scheduleSvc, exportSvc),
		timeSlots: handler.NewTimeSlotHandler(timeSlotSvc),
		metrics: handler.NewMetricsHandler(metricsSvc, map[string]handler.Pinger{
			"database": handler.PingFunc(db.PingContext),
			"redis":    cacheRepo,
		}),
	}
}

func registerRoutes(api *gin.RouterGroup, h handlers) {
	admins := middleware.RequireRoles(models.RoleAdmin, models.RoleSuperAdmin)
	staff := middleware.RequireRoles(models.RoleAdmin, models.RoleSuperAdmin, models.RoleTeacher)

	rooms := api.Group("/rooms")
	rooms.GET("", h.rooms.List)
	rooms.POST("", admins, h.rooms.Create)
	rooms.GET("/:id", h.rooms.Get)
	rooms.GET("/:id/schedules", h.rooms.Timetable)
	rooms.GET("/:id/schedules/export", staff, h.rooms.Export)

	slots := api.Group("/time-slots")
	slots.GET("", h.timeSlots.List)
	slots.POST("", admins, h.timeSlots.Create)
	slots.GET("/:id", h.timeSlots.Get)
	slots.PUT("/:id", admins, h.timeSlots.Update)
	slots.DELETE("/:id", admins, h.timeSlots.Delete)

	schedules := api.Group("/schedules")
	schedules.GET("", h.schedules.List)
	schedules.POST("", admins, h.schedules.Create)
	schedules.POST("/check", staff, h.schedules.Check)
	schedules.POST("/bulk", admins, h.schedules.BulkCreate)
	schedules.GET("/:id", h.schedules.Get)
	schedules.PUT("/:id", admins, h.schedules.Update)
	schedules.DELETE("/:id", admins, h.schedules.Delete)

	api.GET("/teachers/:id/schedules", middleware.RBAC(string(models.RoleAdmin), string(models.RoleSuperAdmin), middleware.RoleSelf), h.schedules.ListByTeacher)
	api.GET("/classes/:id/schedules", h.schedules.ListByClass)
	api.GET("/system/metrics", admins, h.metrics.Summary)
}
