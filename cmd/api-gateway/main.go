package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	_ "github.com/noah-isme/campus-timetable-api/api/swagger"
	"github.com/noah-isme/campus-timetable-api/internal/handler"
	"github.com/noah-isme/campus-timetable-api/internal/models"
	"github.com/noah-isme/campus-timetable-api/internal/repository"
	"github.com/noah-isme/campus-timetable-api/internal/scheduler"
	"github.com/noah-isme/campus-timetable-api/internal/service"
	"github.com/noah-isme/campus-timetable-api/pkg/cache"
	"github.com/noah-isme/campus-timetable-api/pkg/config"
	"github.com/noah-isme/campus-timetable-api/pkg/database"
	"github.com/noah-isme/campus-timetable-api/pkg/logger"
)

// @title Campus Timetable API
// @version 1.0.0
// @description Timetable generation, conflict reporting and reschedule workflow for campus departments.
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logr); err != nil {
		logr.Fatal("server failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logr *zap.Logger) error {
	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	if cfg.Database.MigrateOnStart {
		if err := database.RunMigrations(db.DB, logger.Component(logr, "migrate")); err != nil {
			return err
		}
	}

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable; timetable cache disabled", zap.Error(err))
		redisClient = nil
	}
	cacheRepo := repository.NewCacheRepository(redisClient, logger.Component(logr, "cache"))
	defer cacheRepo.Close() //nolint:errcheck

	metrics := service.NewMetricsService()
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Redis.CacheTTL, logr, redisClient != nil)
	validate := validator.New()

	catalogs, enrollments, err := catalogSources(cfg, db)
	if err != nil {
		return err
	}
	catalogReader := service.NewWorkingDaysCatalog(catalogs, cfg.Scheduler.WorkingDays)
	entries := repository.NewScheduleEntryRepository(db)
	requests := repository.NewRescheduleRequestRepository(db)

	exports := service.NewExportService(service.ExportConfig{
		Timezone:      cfg.Exports.Timezone,
		CalendarName:  cfg.Exports.CalendarName,
		DocumentTitle: cfg.Exports.DocumentTitle,
		CSVDelimiter:  cfg.Exports.CSVDelimiter,
	}, logger.Component(logr, "export"))

	timetables := service.NewTimetableService(
		catalogReader, enrollments, entries, db,
		scheduler.NewEngine(logger.Component(logr, "scheduler")),
		exports, cacheSvc, metrics, validate, logger.Component(logr, "timetable"),
		service.TimetableConfig{
			ProposalTTL:    cfg.Scheduler.ProposalTTL,
			DefaultTimeout: cfg.Scheduler.DefaultTimeout,
			MaxBacktracks:  cfg.Scheduler.MaxBacktracks,
			Parallel:       cfg.Scheduler.Parallel,
			CacheTTL:       cfg.Redis.CacheTTL,
		},
	)
	stopSweeper, err := timetables.StartSweeper(cfg.Scheduler.SweepSchedule)
	if err != nil {
		return err
	}
	defer stopSweeper()

	reschedules := service.NewRescheduleService(requests, entries, catalogReader, enrollments, db,
		cacheSvc, metrics, validate, logger.Component(logr, "reschedule"))

	var jobs *service.GenerationJobService
	if cfg.Scheduler.Enabled {
		jobs = service.NewGenerationJobService(timetables, metrics, validate, logger.Component(logr, "jobs"), service.GenerationJobConfig{
			Workers:   cfg.Jobs.Concurrency,
			Retries:   cfg.Jobs.Retries,
			ResultTTL: cfg.Jobs.ResultTTL,
		})
		jobs.Start(ctx)
		defer jobs.Stop()
	}

	checks := map[string]handler.ReadinessCheck{"postgres": db.PingContext}
	if redisClient != nil {
		checks["redis"] = cacheRepo.Ping
	}

	router := newRouter(cfg, logr, metrics, routeHandlers{
		timetables:  handler.NewTimetableHandler(timetables, jobs),
		reschedules: handler.NewRescheduleHandler(reschedules),
		system:      handler.NewMetricsHandler(metrics, checks),
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.Scheduler.DefaultTimeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

type catalogSource interface {
	LoadCatalog(ctx context.Context, filter models.CatalogFilter) (models.Catalog, error)
}

type enrollmentSource interface {
	StudentsByCourse(ctx context.Context, courseIDs []string) (models.EnrollmentSets, error)
}

// catalogSources picks the reference data backend. Committed schedules always live in postgres.
func catalogSources(cfg *config.Config, db *sqlx.DB) (catalogSource, enrollmentSource, error) {
	switch cfg.Catalog.Source {
	case config.CatalogSourceFile:
		file, err := repository.NewFileCatalog(cfg.Catalog.Path)
		if err != nil {
			return nil, nil, err
		}
		return file, file, nil
	case config.CatalogSourcePostgres, "":
		return repository.NewCatalogRepository(db), repository.NewEnrollmentRepository(db), nil
	default:
		return nil, nil, fmt.Errorf("unknown catalog source %q", cfg.Catalog.Source)
	}
}
