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
	"github.com/hibiken/asynq"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	_ "github.com/reconsumeralization/modernmen-sub011/api/swagger"
	"github.com/reconsumeralization/modernmen-sub011/internal/handler"
	"github.com/reconsumeralization/modernmen-sub011/internal/models"
	"github.com/reconsumeralization/modernmen-sub011/internal/repository"
	"github.com/reconsumeralization/modernmen-sub011/internal/service"
	"github.com/reconsumeralization/modernmen-sub011/pkg/cache"
	"github.com/reconsumeralization/modernmen-sub011/pkg/config"
	"github.com/reconsumeralization/modernmen-sub011/pkg/database"
	"github.com/reconsumeralization/modernmen-sub011/pkg/events"
	"github.com/reconsumeralization/modernmen-sub011/pkg/jobs"
	"github.com/reconsumeralization/modernmen-sub011/pkg/logger"
	"github.com/reconsumeralization/modernmen-sub011/pkg/storage"
)

// @title Salon Scheduling API
// @version 1.0.0
// @description Appointment placement, conflict detection and resolution, waitlist and workload balancing.
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

// engine bundles the wired services the router and cron jobs need.
type engine struct {
	metrics      *service.MetricsService
	auth         *service.OperatorAuthService
	directory    *service.DirectoryService
	store        *service.CalendarStore
	availability *service.AvailabilityService
	conflicts    *service.ConflictService
	resolver     *service.ResolverService
	waitlist     *service.WaitlistService
	bookings     *service.BookingService
	balancer     *service.BalancerService
	exports      *service.ExportService
	worker       *service.EngineWorker
	audit        *repository.AuditRepository
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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database, logr)
	if err != nil {
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, directory cache and pub/sub disabled", zap.Error(err))
	}
	if redisClient != nil {
		defer redisClient.Close() //nolint:errcheck
	}

	publisher := newPublisher(cfg, redisClient, logr)
	defer publisher.Close() //nolint:errcheck

	eng, err := buildEngine(cfg, db, redisClient, publisher, logr)
	if err != nil {
		logr.Fatal("failed to build engine", zap.Error(err))
	}

	if _, err := eng.directory.Refresh(ctx); err != nil {
		logr.Fatal("failed to load directory", zap.Error(err))
	}

	eng.worker.Start(ctx)
	defer eng.worker.Stop()

	scheduler := jobs.NewScheduler(eng.availability.Location(), 2*time.Minute, logr)
	if err := registerCron(scheduler, cfg, eng); err != nil {
		logr.Fatal("failed to register cron tasks", zap.Error(err))
	}
	scheduler.Start()
	defer scheduler.Stop()

	checks := readinessChecks(db, redisClient)
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           newRouter(cfg, eng, checks, logr),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Warn("graceful shutdown failed", zap.Error(err))
	}
	logr.Info("server stopped")
}

func newPublisher(cfg *config.Config, client *redis.Client, logr *zap.Logger) events.Publisher {
	switch cfg.Events.Transport {
	case "asynq":
		return events.NewAsynqPublisher(asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, cfg.Events.AsynqQueue)
	case "pubsub":
		if client != nil {
			return events.NewRedisPublisher(client, cache.Key(cfg.Redis.Namespace, cfg.Events.Channel))
		}
		logr.Warn("pubsub transport requested without redis, falling back to log publisher")
	}
	return events.NewLogPublisher(logr)
}

func buildEngine(cfg *config.Config, db *sqlx.DB, redisClient *redis.Client, publisher events.Publisher, logr *zap.Logger) (*engine, error) {
	business, err := service.NewBusinessHours(cfg.Business)
	if err != nil {
		return nil, fmt.Errorf("business hours: %w", err)
	}
	revenueThreshold, err := decimal.NewFromString(cfg.Resolver.RevenueAtRisk)
	if err != nil {
		return nil, fmt.Errorf("RESOLVER_REVENUE_AT_RISK: %w", err)
	}

	metrics := service.NewMetricsService()
	notifier := service.NewNotificationService(publisher, logr)

	var directoryCache *service.DirectoryCache
	if redisClient != nil {
		directoryCache = service.NewDirectoryCache(repository.NewDirectoryCacheRepository(redisClient, cfg.Redis.Namespace), metrics, cfg.Directory.CacheTTL, logr)
	}

	var source service.DirectorySource
	switch cfg.Directory.Source {
	case "file":
		source = repository.NewFileDirectoryRepository(cfg.Directory.File)
	default:
		source = repository.NewDirectoryRepository(db)
	}
	directory := service.NewDirectoryService(source, directoryCache, logr)

	bookingRepo := repository.NewBookingRepository(db)
	store := service.NewCalendarStore(repository.NewCalendarRepository(db), bookingRepo, logr)
	store.SetMetrics(metrics)

	availability := service.NewAvailabilityService(store, directory, service.NewWorkingHours(business), cfg.Business)
	detector := service.NewConflictDetector(revenueThreshold)
	conflicts := service.NewConflictService(detector, availability, store, repository.NewConflictRepository(db), logr)

	optimizer := service.NewOptimizer(availability, directory, store, cfg.Scheduler, metrics, logr)
	waitlist := service.NewWaitlistService(repository.NewWaitlistRepository(db), optimizer, store, notifier, metrics, cfg.Waitlist.OfferTTL, availability.Location(), logr)
	resolver := service.NewResolverService(store, availability, directory, optimizer, conflicts, repository.NewResolutionRepository(db), notifier, metrics, cfg.Resolver.AutoApply, logr)
	bookings := service.NewBookingService(optimizer, waitlist, store, directory, notifier, metrics, nil, cfg.Scheduler.AutoConfirm, logr)
	balancer := service.NewBalancerService(store, availability, directory, notifier, metrics, cfg.Balancer, logr)

	files, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
	if err != nil {
		return nil, fmt.Errorf("export storage: %w", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)
	exports := service.NewExportService(store, directory, availability, files, signer, service.ExportConfig{
		APIPrefix: cfg.APIPrefix,
		ResultTTL: cfg.Exports.SignedURLTTL,
	}, logr)

	worker := service.NewEngineWorker(resolver, waitlist, conflicts, bookingRepo, notifier, metrics, availability.Location(), jobs.QueueConfig{
		Workers:    cfg.Scheduler.Workers,
		BufferSize: 256,
		MaxRetries: 3,
		RetryDelay: 2 * time.Second,
		Logger:     logr,
	})
	store.AddListener(worker)
	directory.AddListener(worker)

	return &engine{
		metrics:      metrics,
		auth:         service.NewOperatorAuthService(service.OperatorAuthConfig{Secret: cfg.JWT.Secret, Issuer: cfg.JWT.Issuer}),
		directory:    directory,
		store:        store,
		availability: availability,
		conflicts:    conflicts,
		resolver:     resolver,
		waitlist:     waitlist,
		bookings:     bookings,
		balancer:     balancer,
		exports:      exports,
		worker:       worker,
		audit:        repository.NewAuditRepository(db),
	}, nil
}

func registerCron(s *jobs.Scheduler, cfg *config.Config, eng *engine) error {
	timed := func(name string, task func(context.Context) error) func(context.Context) error {
		return func(ctx context.Context) error {
			started := time.Now()
			err := task(ctx)
			eng.metrics.ObserveJob(name, err, time.Since(started))
			return err
		}
	}

	if err := s.Register("waitlist_sweep", cfg.Waitlist.SweepCron, timed("waitlist_sweep", func(ctx context.Context) error {
		_, err := eng.waitlist.Sweep(ctx)
		return err
	})); err != nil {
		return err
	}
	if err := s.Register("directory_refresh", cfg.Directory.RefreshCron, timed("directory_refresh", func(ctx context.Context) error {
		_, err := eng.directory.Refresh(ctx)
		return err
	})); err != nil {
		return err
	}
	if err := s.Register("conflict_reconcile", cfg.Resolver.ReconcileCron, timed("conflict_reconcile", func(ctx context.Context) error {
		_, err := eng.resolver.ResolveOutstanding(ctx)
		return err
	})); err != nil {
		return err
	}
	if cfg.Balancer.Enabled {
		if err := s.Register("workload_balancer", cfg.Balancer.Cron, timed("workload_balancer", func(ctx context.Context) error {
			_, err := eng.balancer.Run(ctx, "", "")
			return err
		})); err != nil {
			return err
		}
	}
	return s.Register("housekeeping", "@hourly", timed("housekeeping", func(ctx context.Context) error {
		yesterday := time.Now().In(eng.availability.Location()).AddDate(0, 0, -1).Format(models.DateLayout)
		eng.store.Evict(yesterday)
		_, err := eng.exports.Cleanup(cfg.Exports.SignedURLTTL)
		return err
	}))
}

func readinessChecks(db *sqlx.DB, client *redis.Client) map[string]handler.ReadinessCheck {
	checks := map[string]handler.ReadinessCheck{
		"postgres": db.PingContext,
	}
	if client != nil {
		checks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
	}
	return checks
}
