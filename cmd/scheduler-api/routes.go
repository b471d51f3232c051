package main

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/reconsumeralization/modernmen-sub011/internal/handler"
	"github.com/reconsumeralization/modernmen-sub011/internal/middleware"
	"github.com/reconsumeralization/modernmen-sub011/internal/models"
	"github.com/reconsumeralization/modernmen-sub011/pkg/config"
	"github.com/reconsumeralization/modernmen-sub011/pkg/logger"
	corsmiddleware "github.com/reconsumeralization/modernmen-sub011/pkg/middleware/cors"
	reqidmiddleware "github.com/reconsumeralization/modernmen-sub011/pkg/middleware/requestid"
)

func newRouter(cfg *config.Config, eng *engine, checks map[string]handler.ReadinessCheck, logr *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr, "/health", "/ready", "/metrics"))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(eng.metrics))

	metricsHandler := handler.NewMetricsHandler(eng.metrics, checks)
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	bookingHandler := handler.NewBookingHandler(eng.bookings)
	availabilityHandler := handler.NewAvailabilityHandler(eng.availability)
	conflictHandler := handler.NewConflictHandler(eng.conflicts, eng.resolver)
	resolutionHandler := handler.NewResolutionHandler(eng.resolver)
	waitlistHandler := handler.NewWaitlistHandler(eng.waitlist)
	balancerHandler := handler.NewBalancerHandler(eng.balancer)
	exportHandler := handler.NewExportHandler(eng.exports)
	directoryHandler := handler.NewDirectoryHandler(eng.directory)

	intake := middleware.NewRateLimiter(cfg.Intake.RatePerMinute, cfg.Intake.Burst)
	operator := middleware.JWT(eng.auth)
	staff := middleware.RequireRoles(models.RoleOperator, models.RoleManager, models.RoleAdmin)
	managers := middleware.RequireRoles(models.RoleManager, models.RoleAdmin)

	api := r.Group(cfg.APIPrefix, middleware.WithResponseMeta())

	bookings := api.Group("/bookings")
	bookings.POST("", intake.Handler(), bookingHandler.Submit)
	bookings.POST("/batch", intake.Handler(), bookingHandler.SubmitBatch)
	bookings.POST("/direct", operator, staff, bookingHandler.Direct)
	bookings.GET("/:id", bookingHandler.Get)
	bookings.POST("/:id/confirm", bookingHandler.Confirm)
	bookings.POST("/:id/cancel", bookingHandler.Cancel)
	bookings.POST("/:id/complete", operator, staff, bookingHandler.Complete)

	api.GET("/resources", directoryHandler.Resources)
	api.GET("/resources/:id/availability", availabilityHandler.FreeSlots)
	api.GET("/resources/:id/days/:date", availabilityHandler.Day)

	conflicts := api.Group("/conflicts")
	conflicts.GET("", conflictHandler.List)
	conflicts.POST("/detect", conflictHandler.Detect)
	conflicts.GET("/:id", conflictHandler.Get)
	conflicts.POST("/:id/resolve", operator, staff, conflictHandler.Resolve)
	conflicts.POST("/:id/ignore", operator, staff,
		middleware.Audit(eng.audit, logr, models.AuditConflictIgnore, "conflict", "id"),
		conflictHandler.Ignore)

	resolutions := api.Group("/resolutions", operator, staff)
	resolutions.GET("/pending", resolutionHandler.Pending)
	resolutions.GET("/:id", resolutionHandler.Get)
	resolutions.POST("/:id/decision",
		middleware.Audit(eng.audit, logr, models.AuditDecisionAccept, "resolution", "id"),
		resolutionHandler.Decide)

	waitlist := api.Group("/waitlist")
	waitlist.GET("", waitlistHandler.List)
	waitlist.POST("/sweep", operator, staff, waitlistHandler.Sweep)
	waitlist.GET("/:id", waitlistHandler.Get)
	waitlist.POST("/:id/accept", waitlistHandler.Accept)
	waitlist.POST("/:id/decline", waitlistHandler.Decline)

	api.POST("/balancer/run", operator, managers,
		middleware.Audit(eng.audit, logr, models.AuditBalancerRun, "balancer", ""),
		balancerHandler.Run)
	api.GET("/utilization", balancerHandler.Utilization)

	api.GET("/calendar/:resourceId/:date/export", exportHandler.Roster)
	api.GET("/exports/:token", exportHandler.Download)

	api.POST("/directory/refresh", operator, managers,
		middleware.Audit(eng.audit, logr, models.AuditDirectoryRefresh, "directory", ""),
		directoryHandler.Refresh)

	api.GET("/ops/engine", operator, staff, metricsHandler.Engine)

	return r
}
