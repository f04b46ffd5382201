package main

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-timetable-api/internal/handler"
	internalmiddleware "github.com/noah-isme/campus-timetable-api/internal/middleware"
	"github.com/noah-isme/campus-timetable-api/internal/service"
	"github.com/noah-isme/campus-timetable-api/pkg/config"
	"github.com/noah-isme/campus-timetable-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/campus-timetable-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/campus-timetable-api/pkg/middleware/requestid"
)

type routeHandlers struct {
	timetables  *handler.TimetableHandler
	reschedules *handler.RescheduleHandler
	system      *handler.MetricsHandler
}

func newRouter(cfg *config.Config, logr *zap.Logger, metrics *service.MetricsService, h routeHandlers) *gin.Engine {
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metrics, "/metrics", "/health", "/ready"))

	r.GET("/health", h.system.Health)
	r.GET("/ready", h.system.Ready)
	r.GET("/metrics", h.system.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.GET("/system/metrics", h.system.Snapshot)

	timetables := api.Group("/timetables")
	timetables.GET("", h.timetables.Current)
	timetables.GET("/conflicts", h.timetables.CurrentConflicts)
	timetables.GET("/export", h.timetables.Export)
	timetables.POST("/generate", h.timetables.Generate)
	timetables.GET("/proposals/:id", h.timetables.Proposal)
	timetables.GET("/proposals/:id/conflicts", h.timetables.ProposalConflicts)
	timetables.POST("/proposals/:id/commit", h.timetables.Commit)
	timetables.POST("/jobs", h.timetables.EnqueueJob)
	timetables.GET("/jobs/:id", h.timetables.JobStatus)

	reschedules := api.Group("/reschedule-requests")
	reschedules.POST("", h.reschedules.Submit)
	reschedules.GET("", h.reschedules.List)
	reschedules.POST("/:id/review", h.reschedules.Review)
	reschedules.POST("/:id/apply", h.reschedules.Apply)

	return r
}
