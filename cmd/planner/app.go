package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/study-planner/planner-core/config"
	"github.com/study-planner/planner-core/internal/application/command"
	"github.com/study-planner/planner-core/internal/application/eventhandler"
	"github.com/study-planner/planner-core/internal/application/query"
	"github.com/study-planner/planner-core/internal/domain/progress"
	"github.com/study-planner/planner-core/internal/domain/task"
	"github.com/study-planner/planner-core/internal/infrastructure/messaging"
	"github.com/study-planner/planner-core/internal/infrastructure/messaging/natsrelay"
	"github.com/study-planner/planner-core/internal/infrastructure/persistence/memory"
	"github.com/study-planner/planner-core/internal/infrastructure/persistence/postgres"
	"github.com/study-planner/planner-core/internal/infrastructure/persistence/redis"
	httpapi "github.com/study-planner/planner-core/internal/interface/http"
	"github.com/study-planner/planner-core/internal/interface/http/handlers"
	"github.com/study-planner/planner-core/pkg/timeutil"
)

// taskStore is what both task stores offer.
type taskStore interface {
	task.Repository
	query.TaskLister
}

// app is the wired process: stores, dispatcher, consumers and use cases.
type app struct {
	cfg *config.Config
	log *slog.Logger

	calendar   *timeutil.Calendar
	dispatcher *messaging.Dispatcher

	db       *postgres.Connection
	cache    *redis.Cache
	cached   *redis.ProgressCache
	nats     *natsrelay.Client
	tasks    taskStore
	progress progress.Repository
	topics   *postgres.TopicCatalog

	creation *eventhandler.TaskCreationService
	useCases httpapi.UseCases
	health   *handlers.HealthChecker

	closers []func()
}

// newApp connects the configured backends and seals the dispatcher. The
// in-memory stores are used when no database is configured.
func newApp(ctx context.Context, cfg *config.Config, log *slog.Logger) (a *app, err error) {
	a = &app{cfg: cfg, log: log, health: handlers.NewHealthChecker(cfg.App.Version)}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	if a.calendar, err = timeutil.NewCalendar(cfg.App.Timezone, nil); err != nil {
		return nil, err
	}
	intervals, err := cfg.Schedule.Table()
	if err != nil {
		return nil, fmt.Errorf("spacing schedule: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// Dispatcher
	// ─────────────────────────────────────────────────────────────────────────
	policy, err := messaging.ParseFailurePolicy(cfg.Dispatcher.FailurePolicy)
	if err != nil {
		return nil, err
	}
	dispatcherCfg := messaging.DefaultDispatcherConfig()
	dispatcherCfg.Policy = policy
	dispatcherCfg.HandlerTimeout = cfg.Dispatcher.HandlerTimeout
	dispatcherCfg.Logger = log
	a.dispatcher = messaging.NewDispatcher(dispatcherCfg)
	if err := a.dispatcher.Use(messaging.CorrelationMiddleware()); err != nil {
		return nil, err
	}
	if err := a.dispatcher.Use(messaging.LoggingMiddleware(log)); err != nil {
		return nil, err
	}

	// ─────────────────────────────────────────────────────────────────────────
	// Stores
	// ─────────────────────────────────────────────────────────────────────────
	var topics task.TopicActivityChecker
	if cfg.Database.URL != "" {
		if err := a.connectPostgres(ctx); err != nil {
			return nil, err
		}
		a.tasks = postgres.NewTaskRepository(a.db, a.dispatcher, log)
		a.progress = postgres.NewProgressRepository(a.db)
		a.topics = postgres.NewTopicCatalog(a.db)
		topics = a.topics
	} else {
		log.Warn("DATABASE_URL not set, using in-memory stores")
		a.tasks = memory.NewTaskRepository(a.dispatcher, log)
		a.progress = memory.NewProgressRepository()
		topics = memory.NewTopicCatalog(true)
	}

	if !cfg.Redis.Disabled {
		if err := a.connectRedis(ctx); err != nil {
			return nil, err
		}
		a.cached = redis.NewProgressCache(a.progress, a.cache, cfg.Redis.ProgressTTL, log)
		a.progress = a.cached
	}

	// ─────────────────────────────────────────────────────────────────────────
	// Consumers. The relay goes last so that local consumers have run
	// before an event leaves the process.
	// ─────────────────────────────────────────────────────────────────────────
	a.creation = eventhandler.NewTaskCreationService(a.tasks, topics, intervals, log, eventhandler.TaskCreationConfig{
		MaxAttempts:  cfg.Dispatcher.SuccessorMaxAttempts,
		InitialDelay: cfg.Dispatcher.SuccessorRetryDelay,
	})
	var (
		creation *eventhandler.TaskCreationService
		daily    *eventhandler.DailyProgressService
	)
	if cfg.Features.SuccessorScheduling {
		creation = a.creation
	}
	if cfg.Features.DailyProgress {
		daily = eventhandler.NewDailyProgressService(a.progress, log)
	}
	if err := eventhandler.Register(a.dispatcher, creation, daily); err != nil {
		return nil, err
	}

	if cfg.NATS.URL != "" {
		if err := a.connectNATS(ctx); err != nil {
			return nil, err
		}
	}
	a.dispatcher.Seal()

	// ─────────────────────────────────────────────────────────────────────────
	// Use cases
	// ─────────────────────────────────────────────────────────────────────────
	cmdCfg := command.Config{FailOnDispatchError: cfg.Dispatcher.FailOnDispatchError}
	a.useCases = httpapi.UseCases{
		CompleteTask:     command.NewCompleteTaskHandler(a.tasks, a.calendar, log, cmdCfg),
		UncompleteTask:   command.NewUncompleteTaskHandler(a.tasks, a.calendar, log, cmdCfg),
		RegisterTaskNote: command.NewRegisterTaskNoteHandler(a.tasks, a.calendar, log, cmdCfg),
		RemoveTask:       command.NewRemoveTaskHandler(a.tasks, a.calendar, log, cmdCfg),
		DailyProgress:    query.NewGetDailyProgressHandler(a.progress, a.calendar),
		ListTasks:        query.NewListTasksHandler(a.tasks, a.calendar),
	}

	log.Info("planner wired",
		"env", cfg.App.Environment,
		"timezone", cfg.App.Timezone,
		"policy", policy.String(),
		"postgres", a.db != nil,
		"redis", a.cache != nil,
		"nats", a.nats != nil,
	)
	return a, nil
}

func (a *app) connectPostgres(ctx context.Context) error {
	dbCfg := postgres.DefaultConfig()
	dbCfg.URL = a.cfg.Database.URL
	dbCfg.MaxConns = int32(a.cfg.Database.MaxConns)
	dbCfg.MinConns = int32(a.cfg.Database.MinConns)
	dbCfg.MaxConnLifetime = a.cfg.Database.ConnMaxLifetime
	dbCfg.MaxConnIdleTime = a.cfg.Database.ConnMaxIdleTime
	dbCfg.ConnectTimeout = a.cfg.Database.ConnectTimeout

	a.log.Info("connecting to database...")
	conn, err := postgres.NewConnection(ctx, dbCfg)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	a.db = conn
	a.closers = append(a.closers, conn.Close)
	a.health.AddDetailedCheck("postgres", conn.HealthCheck)
	return nil
}

func (a *app) connectRedis(ctx context.Context) error {
	redisCfg := redis.DefaultConfig()
	redisCfg.URL = a.cfg.Redis.URL
	redisCfg.Host = a.cfg.Redis.Host
	redisCfg.Port = a.cfg.Redis.Port
	redisCfg.Password = a.cfg.Redis.Password
	redisCfg.DB = a.cfg.Redis.DB
	redisCfg.PoolSize = a.cfg.Redis.PoolSize
	redisCfg.DialTimeout = a.cfg.Redis.DialTimeout

	a.log.Info("connecting to Redis...")
	cache, err := redis.NewCache(ctx, redisCfg)
	if err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	a.cache = cache
	a.closers = append(a.closers, func() { _ = cache.Close() })
	a.health.AddCheck("redis", handlers.PingCheck(cache))
	return nil
}

func (a *app) connectNATS(ctx context.Context) error {
	natsCfg := natsrelay.DefaultConfig()
	natsCfg.URL = a.cfg.NATS.URL
	natsCfg.Name = a.cfg.App.Name
	natsCfg.Stream = a.cfg.NATS.Stream
	natsCfg.SubjectPrefix = a.cfg.NATS.SubjectPrefix

	client, err := natsrelay.Connect(ctx, natsCfg, a.log)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}
	a.nats = client
	a.closers = append(a.closers, func() { _ = client.Close() })
	a.health.AddCheck("nats", handlers.PingCheck(client))

	relayCfg := natsrelay.DefaultRelayConfig()
	relayCfg.SubjectPrefix = a.cfg.NATS.SubjectPrefix
	relayCfg.MaxAttempts = a.cfg.NATS.MaxAttempts
	relay := natsrelay.NewRelay(client, relayCfg, a.log)

	return natsrelay.Register(a.dispatcher, relay,
		task.EventTaskCompleted,
		task.EventTaskUncompleted,
		task.EventTaskNoteRegistered,
	)
}

// Close releases the backends in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
