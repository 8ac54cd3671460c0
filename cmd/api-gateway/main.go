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
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	_ "github.com/noah-isme/lab-reservation-api/api/swagger"
	"github.com/noah-isme/lab-reservation-api/internal/handler"
	"github.com/noah-isme/lab-reservation-api/internal/repository"
	"github.com/noah-isme/lab-reservation-api/internal/service"
	"github.com/noah-isme/lab-reservation-api/pkg/cache"
	"github.com/noah-isme/lab-reservation-api/pkg/config"
	"github.com/noah-isme/lab-reservation-api/pkg/database"
	"github.com/noah-isme/lab-reservation-api/pkg/jobs"
	"github.com/noah-isme/lab-reservation-api/pkg/logger"
)

// @title Lab Reservation API
// @version 1.0.0
// @description Scheduling and conflict resolution for shared laboratory resources
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close() //nolint:errcheck

	var redisClient redis.Cmdable
	if client, err := cache.NewRedis(ctx, cfg.Redis); err != nil {
		logr.Warn("redis unavailable, caching disabled", zap.Error(err))
	} else {
		redisClient = client
		defer client.Close() //nolint:errcheck
	}

	subjectSupported := resolveSubjectSupport(ctx, cfg.Scheduling.SubjectColumn, repository.NewSchemaRepository(db), logr)

	metricsSvc := service.NewMetricsService()
	cacheSvc := service.NewCacheService(repository.NewCacheRepository(redisClient, logr), metricsSvc, cfg.Scheduling.RulesCacheTTL, logr, redisClient != nil)

	auditSvc, closeAudit := buildAudit(ctx, cfg.Audit, logr)
	defer closeAudit()

	validate := validator.New()
	rulesSvc := service.NewRulesService(
		repository.NewConfigurationRepository(db),
		cacheSvc,
		validate,
		logr,
		auditSvc,
		service.RulesServiceConfig{TimeZone: cfg.Scheduling.TimeZone, CacheTTL: cfg.Scheduling.RulesCacheTTL},
	)

	reservationRepo := repository.NewReservationRepository(db, repository.ReservationRepositoryOptions{SubjectColumn: subjectSupported})
	expander := service.NewRecurrenceExpander(
		db,
		reservationRepo,
		service.NewConflictDetector(reservationRepo),
		logr,
		service.RecurrenceExpanderConfig{MaxOccurrences: cfg.Scheduling.MaxOccurrences, SubjectSupported: subjectSupported},
	)
	reservationSvc := service.NewReservationService(rulesSvc, reservationRepo, expander, db, auditSvc, metricsSvc, validate, logr)

	var exporter *service.ExportService
	if cfg.Exports.Enabled {
		exporter = service.NewExportService(reservationSvc, logr, nil, nil)
	}

	authSvc := service.NewAuthService(logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		Issuer:            cfg.JWT.Issuer,
		Audience:          cfg.JWT.Audience,
		Leeway:            cfg.JWT.Leeway,
	})

	router := newRouter(cfg, logr, routerDeps{
		auth:          authSvc,
		metrics:       metricsSvc,
		reservations:  handler.NewReservationHandler(reservationSvc, exportHandlerSource(exporter)),
		rules:         handler.NewScheduleRulesHandler(rulesSvc),
		observability: handler.NewMetricsHandler(metricsSvc, readinessChecks(db, redisClient)),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Error("server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("server shutdown failed", zap.Error(err))
	}
	logr.Info("server stopped")
}

type columnInspector interface {
	HasColumn(ctx context.Context, table, column string) (bool, error)
}

// resolveSubjectSupport decides once whether reservations can store a subject label.
func resolveSubjectSupport(ctx context.Context, mode string, schema columnInspector, logr *zap.Logger) bool {
	switch mode {
	case config.SubjectColumnEnabled:
		return true
	case config.SubjectColumnDisabled:
		return false
	}
	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	supported, err := schema.HasColumn(probeCtx, "reservations", "subject")
	if err != nil {
		logr.Warn("subject column probe failed, storing reservations without subject", zap.Error(err))
		return false
	}
	logr.Info("subject column probed", zap.Bool("supported", supported))
	return supported
}

func buildAudit(ctx context.Context, cfg config.AuditConfig, logr *zap.Logger) (*service.AuditService, func()) {
	var publisher service.AuditPublisher = service.NewLogAuditPublisher(logr)
	closers := []func(){}
	if len(cfg.KafkaBrokers) > 0 {
		kafkaPublisher, err := repository.NewKafkaAuditPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			logr.Warn("kafka audit publisher unavailable, logging audit events", zap.Error(err))
		} else {
			publisher = kafkaPublisher
			closers = append(closers, func() {
				if err := kafkaPublisher.Close(); err != nil {
					logr.Warn("failed to close audit publisher", zap.Error(err))
				}
			})
		}
	}

	auditSvc := service.NewAuditService(publisher, logr)
	queue := jobs.NewQueue("audit", auditSvc.Handle, jobs.QueueConfig{
		Workers:    cfg.Workers,
		BufferSize: cfg.BufferSize,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: cfg.RetryDelay,
		Logger:     logr,
	})
	queue.Start(context.WithoutCancel(ctx))
	auditSvc.AttachQueue(queue)

	// Drain the queue before the publisher goes away.
	return auditSvc, func() {
		queue.Stop()
		for _, closeFn := range closers {
			closeFn()
		}
	}
}

func readinessChecks(db *sqlx.DB, client redis.Cmdable) map[string]handler.ReadinessCheck {
	checks := map[string]handler.ReadinessCheck{"postgres": db.PingContext}
	if client != nil {
		checks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
	}
	return checks
}

// exportHandlerSource keeps a nil *ExportService from becoming a non-nil interface.
func exportHandlerSource(exporter *service.ExportService) handler.ScheduleExporter {
	if exporter == nil {
		return nil
	}
	return exporter
}
