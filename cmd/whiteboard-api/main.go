package main

import (
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/whiteboard-api/internal/handler"
	"github.com/noah-isme/whiteboard-api/internal/middleware"
	"github.com/noah-isme/whiteboard-api/internal/repository"
	"github.com/noah-isme/whiteboard-api/internal/scheduler"
	"github.com/noah-isme/whiteboard-api/internal/service"
	"github.com/noah-isme/whiteboard-api/internal/source"
	"github.com/noah-isme/whiteboard-api/pkg/cache"
	"github.com/noah-isme/whiteboard-api/pkg/config"
	"github.com/noah-isme/whiteboard-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/whiteboard-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/whiteboard-api/pkg/middleware/requestid"
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

	loc, err := time.LoadLocation(cfg.Batch.Timezone)
	if err != nil {
		logr.Sugar().Fatalw("invalid timezone", "timezone", cfg.Batch.Timezone, "error", err)
	}

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to redis", "error", err)
	}

	metricsSvc := service.NewMetricsService()
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Cache, logr)

	sheets := source.NewClient(cfg.Source)
	resolver := service.NewResolverService(sheets, loc, cfg.Batch.SearchBoundDays, logr)
	batchSvc := service.NewBatchService(service.BatchServiceParams{
		Resolver: resolver,
		Source:   sheets,
		Cache:    cacheSvc,
		Metrics:  metricsSvc,
		Schema:   cfg.Schema,
		Config:   cfg.Batch,
		Location: loc,
		Logger:   logr,
	})
	scheduleSvc := service.NewScheduleService(cacheSvc, batchSvc, cfg.Schedule, logr)

	scheduleHandler := handler.NewScheduleHandler(scheduleSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(middleware.Metrics(metricsSvc))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	api := r.Group(cfg.APIPrefix)
	{
		api.GET("/schedule", scheduleHandler.Lookup)
		api.POST("/schedule/refresh", scheduleHandler.Refresh)
		api.GET("/schedule/bulk", scheduleHandler.Bulk)
		api.GET("/schedule/cache", scheduleHandler.CacheView)
		api.GET("/schedule/export", scheduleHandler.Export)
	}

	sched := scheduler.New(batchSvc, loc, logr)
	if err := sched.Start(cfg.Batch.CronSpec); err != nil {
		logr.Sugar().Fatalw("failed to start batch scheduler", "cron", cfg.Batch.CronSpec, "error", err)
	}
	defer sched.Stop()

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Info("server starting", zap.String("addr", addr), zap.String("env", cfg.Env), zap.String("miss_policy", cfg.Schedule.MissPolicy))
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
