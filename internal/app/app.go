package app

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/yungbote/journeys-backend/internal/data/aggregates"
	"github.com/yungbote/journeys-backend/internal/data/db"
	"github.com/yungbote/journeys-backend/internal/data/repos"
	domainagg "github.com/yungbote/journeys-backend/internal/domain/aggregates"
	httpserver "github.com/yungbote/journeys-backend/internal/http"
	httpH "github.com/yungbote/journeys-backend/internal/http/handlers"
	httpMW "github.com/yungbote/journeys-backend/internal/http/middleware"
	"github.com/yungbote/journeys-backend/internal/observability"
	"github.com/yungbote/journeys-backend/internal/platform/lock"
	"github.com/yungbote/journeys-backend/internal/platform/logger"
	"github.com/yungbote/journeys-backend/internal/services"
)

type Repos struct {
	Catalog     repos.CatalogStore
	Journeys    repos.JourneyRepo
	Chapters    repos.ChapterRepo
	Quests      repos.QuestRepo
	Tasks       repos.TaskRepo
	Assignments repos.JourneyAssignmentRepo
	Completions repos.TaskCompletionRepo
	Grants      repos.ChapterXPGrantRepo
	Onboarding  repos.UserOnboardingRepo
}

type Services struct {
	Progress      domainagg.JourneyProgressAggregate
	Journeys      services.JourneyService
	Attachments   services.AttachmentService
	CatalogImport services.CatalogImportService
	Auth          services.AuthService
}

type App struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Cfg      Config
	Metrics  *observability.Metrics
	Repos    Repos
	Services Services
	Server   *httpserver.Server

	redis   redis.UniversalClient
	closers []io.Closer
	otelOff func(context.Context) error
	cancel  context.CancelFunc
}

// New loads configuration from the environment and wires every component.
func New(ctx context.Context, log *logger.Logger) (*App, error) {
	cfg, err := LoadConfig(log)
	if err != nil {
		return nil, err
	}
	return NewWithConfig(ctx, log, cfg)
}

func NewWithConfig(ctx context.Context, log *logger.Logger, cfg Config) (*App, error) {
	a := &App{Log: log, Cfg: cfg}
	a.Metrics = observability.Init(log, cfg.Metrics)
	a.otelOff = observability.InitOTel(ctx, log, cfg.Otel)

	theDB, err := OpenDB(log, cfg)
	if err != nil {
		return nil, err
	}
	a.DB = theDB

	locker, err := a.wireLocker(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	store, err := resolveAttachmentStore(ctx, log, cfg, a.Metrics)
	if err != nil {
		a.Close()
		return nil, err
	}
	if c, ok := store.(io.Closer); ok {
		a.closers = append(a.closers, c)
	}

	a.Repos = wireRepos(theDB, log)
	a.Services = wireServices(theDB, log, cfg, a.Repos, locker, store, a.Metrics)
	a.Server = httpserver.NewServer(a.routerConfig())
	return a, nil
}

// OpenDB connects to the configured database and applies migrations.
func OpenDB(log *logger.Logger, cfg Config) (*gorm.DB, error) {
	switch cfg.DBDriver {
	case DBDriverSQLite:
		svc, err := db.NewSQLiteService(log, cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("init sqlite: %w", err)
		}
		if err := svc.AutoMigrateAll(); err != nil {
			return nil, fmt.Errorf("sqlite automigrate: %w", err)
		}
		return svc.DB(), nil
	default:
		svc, err := db.NewPostgresService(log, cfg.Postgres)
		if err != nil {
			return nil, fmt.Errorf("init postgres: %w", err)
		}
		if err := svc.AutoMigrateAll(); err != nil {
			return nil, fmt.Errorf("postgres automigrate: %w", err)
		}
		return svc.DB(), nil
	}
}

func (a *App) wireLocker(ctx context.Context) (lock.Locker, error) {
	local := lock.NewKeyed()
	if a.Cfg.LockBackend != LockBackendRedis {
		return instrumentLocker(LockBackendLocal, local, a.Metrics), nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     a.Cfg.RedisAddr,
		Password: a.Cfg.RedisPassword,
		DB:       a.Cfg.RedisDB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", a.Cfg.RedisAddr, err)
	}
	a.redis = rdb
	a.closers = append(a.closers, rdb)
	a.Log.Info("Redis lock backend connected", "addr", a.Cfg.RedisAddr, "ttl", a.Cfg.LockTTL().String())
	shared := lock.NewRedis(rdb, a.Log, lock.RedisOptions{TTL: a.Cfg.LockTTL()})
	return instrumentLocker(LockBackendRedis, lock.Chain(local, shared), a.Metrics), nil
}

func wireRepos(theDB *gorm.DB, log *logger.Logger) Repos {
	return Repos{
		Catalog:     repos.NewCatalogStore(theDB, log),
		Journeys:    repos.NewJourneyRepo(theDB, log),
		Chapters:    repos.NewChapterRepo(theDB, log),
		Quests:      repos.NewQuestRepo(theDB, log),
		Tasks:       repos.NewTaskRepo(theDB, log),
		Assignments: repos.NewJourneyAssignmentRepo(theDB, log),
		Completions: repos.NewTaskCompletionRepo(theDB, log),
		Grants:      repos.NewChapterXPGrantRepo(theDB, log),
		Onboarding:  repos.NewUserOnboardingRepo(theDB, log),
	}
}

func wireServices(
	theDB *gorm.DB,
	log *logger.Logger,
	cfg Config,
	r Repos,
	locker lock.Locker,
	store services.AttachmentStore,
	metrics *observability.Metrics,
) Services {
	base := aggregates.BaseDeps{
		DB:    theDB,
		Log:   log,
		Hooks: aggregates.NewObservabilityHooks(metrics),
	}
	progress := aggregates.NewJourneyProgressAggregate(aggregates.JourneyProgressAggregateDeps{
		Base:        base,
		Locker:      locker,
		Progress:    aggregates.NewObservabilityProgressHooks(metrics),
		Catalog:     r.Catalog,
		Journeys:    r.Journeys,
		Assignments: r.Assignments,
		Completions: r.Completions,
		Grants:      r.Grants,
		Onboarding:  r.Onboarding,
	})
	return Services{
		Progress:      progress,
		Journeys:      services.NewJourneyService(theDB, log, r.Catalog, r.Assignments, r.Completions, r.Grants, r.Onboarding),
		Attachments:   services.NewAttachmentService(log, store, r.Catalog, r.Assignments, r.Completions, metrics, cfg.AttachmentMaxUploadBytes),
		CatalogImport: NewCatalogImporter(log, theDB, metrics),
		Auth:          services.NewAuthService(log, cfg.JWTSecretKey, cfg.JWTIssuer),
	}
}

func (a *App) routerConfig() httpserver.RouterConfig {
	checks := map[string]httpH.Pinger{
		"database": func(ctx context.Context) error {
			sqlDB, err := a.DB.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}
	if a.redis != nil {
		checks["redis"] = func(ctx context.Context) error {
			return a.redis.Ping(ctx).Err()
		}
	}
	return httpserver.RouterConfig{
		Log:               a.Log,
		Metrics:           a.Metrics,
		ServiceName:       a.Cfg.Otel.ServiceName,
		TracingEnabled:    a.Cfg.Otel.Enabled,
		AllowedOrigins:    a.Cfg.AllowedOrigins,
		AuthMiddleware:    httpMW.NewAuthMiddleware(a.Log, a.Services.Auth, a.Metrics),
		JourneyHandler:    httpH.NewJourneyHandler(a.Services.Journeys),
		AssignmentHandler: httpH.NewAssignmentHandler(a.Services.Progress),
		TaskHandler:       httpH.NewTaskHandler(a.Services.Progress, a.Services.Attachments),
		HealthHandler:     httpH.NewHealthHandler(checks),
	}
}

// Start launches the background collectors. It is a no-op when metrics are
// disabled.
func (a *App) Start(ctx context.Context) {
	if a == nil || a.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	if a.Metrics == nil {
		return
	}
	a.Metrics.StartServer(ctx, a.Log, a.Cfg.Metrics.Addr)
	a.Metrics.StartPostgresCollector(ctx, a.Log, a.DB)
	if a.redis != nil {
		a.Metrics.StartRedisCollector(ctx, a.Log, a.redis)
	}
	a.Metrics.StartSLOEvaluator(ctx, a.Log, a.Cfg.SLO)
}

// Run serves HTTP until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.Server == nil {
		return errors.New("app not initialized")
	}
	addr := ":" + a.Cfg.Port
	a.Log.Info("HTTP server listening", "addr", addr)
	return a.Server.Run(ctx, addr)
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			a.Log.Warn("Close failed", "error", err)
		}
	}
	a.closers = nil
	if a.otelOff != nil {
		if err := a.otelOff(context.Background()); err != nil {
			a.Log.Warn("OTel shutdown failed", "error", err)
		}
		a.otelOff = nil
	}
	if a.DB != nil {
		if sqlDB, err := a.DB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	a.Log.Sync()
}

// NewCatalogImporter wires the catalog import service against an open
// database, for commands that do not need the full application.
func NewCatalogImporter(log *logger.Logger, theDB *gorm.DB, metrics *observability.Metrics) services.CatalogImportService {
	r := wireRepos(theDB, log)
	return services.NewCatalogImportService(
		log,
		aggregates.NewGormTxRunner(theDB),
		r.Journeys,
		r.Chapters,
		r.Quests,
		r.Tasks,
		metrics,
	)
}
