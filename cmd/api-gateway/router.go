package main

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/lab-reservation-api/internal/handler"
	internalmiddleware "github.com/noah-isme/lab-reservation-api/internal/middleware"
	"github.com/noah-isme/lab-reservation-api/internal/service"
	"github.com/noah-isme/lab-reservation-api/pkg/config"
	"github.com/noah-isme/lab-reservation-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/lab-reservation-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/lab-reservation-api/pkg/middleware/requestid"
)

type routerDeps struct {
	auth          *service.AuthService
	metrics       *service.MetricsService
	reservations  *handler.ReservationHandler
	rules         *handler.ScheduleRulesHandler
	observability *handler.MetricsHandler
}

func newRouter(cfg *config.Config, logr *zap.Logger, deps routerDeps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	if cfg.Metrics.Enabled {
		r.Use(internalmiddleware.Metrics(deps.metrics))
		r.GET("/metrics", deps.observability.Prometheus)
	}

	r.GET("/health", deps.observability.Health)
	r.GET("/ready", deps.observability.Ready)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.Use(internalmiddleware.JWT(deps.auth))

	api.GET("/schedule-rules", deps.rules.Get)
	api.PUT("/schedule-rules", internalmiddleware.RequireManager(), deps.rules.Update)

	resources := api.Group("/resources/:id")
	resources.GET("/schedule", deps.reservations.GetSchedule)
	resources.GET("/schedule/export", deps.reservations.ExportSchedule)
	resources.GET("/reservations", deps.reservations.ListByResource)
	resources.POST("/reservations", deps.reservations.Book)
	resources.POST("/assignments", internalmiddleware.RequireManager(), deps.reservations.Assign)

	api.POST("/reservations/:id/cancel", deps.reservations.Cancel)
	api.POST("/recurrences/:id/cancel", deps.reservations.CancelRecurrence)
	api.GET("/me/reservations", deps.reservations.ListMine)
	api.GET("/metrics/summary", internalmiddleware.RequireManager(), deps.observability.Summary)

	return r
}
