// Package app assembles the database, AI client, job processor and optional
// Redis and RabbitMQ backends shared by the api, worker and jobctl binaries.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"gorm.io/gorm"

	"github.com/suPer8Hu/coursegen/internal/ai"
	"github.com/suPer8Hu/coursegen/internal/config"
	"github.com/suPer8Hu/coursegen/internal/course"
	"github.com/suPer8Hu/coursegen/internal/db"
	"github.com/suPer8Hu/coursegen/internal/logger"
	"github.com/suPer8Hu/coursegen/internal/metrics"
	"github.com/suPer8Hu/coursegen/internal/pipeline"
	"github.com/suPer8Hu/coursegen/internal/prompt"
	"github.com/suPer8Hu/coursegen/internal/store/rabbitmq"
	"github.com/suPer8Hu/coursegen/internal/store/redisstore"
)

type Options struct {
	// Publish connects a RabbitMQ publisher so new jobs are enqueued.
	Publish bool
	// Migrate runs AutoMigrate on startup.
	Migrate bool
}

type App struct {
	Cfg       config.Config
	Log       *logger.Logger
	DB        *gorm.DB
	Repo      *course.Repo
	Courses   *course.Service
	Processor *pipeline.Processor
	Metrics   *prometheus.Registry

	// nil when the backend is not configured or unreachable
	Redis     *redisstore.Store
	Publisher *rabbitmq.Publisher
}

func New(ctx context.Context, cfg config.Config, log *logger.Logger, opts Options) (*App, error) {
	if log == nil {
		log = logger.Nop()
	}

	gdb, err := db.Connect(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	if opts.Migrate {
		if err := db.Migrate(gdb); err != nil {
			return nil, fmt.Errorf("db migrate: %w", err)
		}
	}

	provider, err := ai.NewConfiguredRegistry(cfg).Get(ctx, cfg.AIProvider, "")
	if err != nil {
		return nil, err
	}
	builder, err := prompt.NewBuilder()
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(reg)

	a := &App{Cfg: cfg, Log: log, DB: gdb, Repo: course.NewRepo(gdb), Metrics: reg}

	if cfg.RedisAddr != "" {
		rs, err := redisstore.Connect(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			log.Warn("redis unavailable, job locks and events disabled", "addr", cfg.RedisAddr, "error", err)
		} else {
			a.Redis = rs
		}
	}
	if opts.Publish && cfg.RabbitURL != "" {
		pub, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue)
		if err != nil {
			log.Warn("rabbitmq unavailable, jobs must be triggered directly", "queue", cfg.RabbitQueue, "error", err)
		} else {
			a.Publisher = pub
		}
	}

	deps := pipeline.Deps{
		Gateway:    a.Repo,
		Generator:  ai.NewClient(provider, ai.OptionsFromConfig(cfg), collector, log.With("component", "ai")),
		Prompts:    builder,
		MaxRetries: cfg.JobMaxRetries,
		Recorder:   collector,
		Log:        log.With("component", "pipeline"),
	}
	var pub course.Publisher
	if a.Publisher != nil {
		pub = a.Publisher
		deps.Dispatcher = a.Publisher
	}
	if a.Redis != nil {
		deps.Locker = a.Redis.Locker(cfg.JobLockTTL)
		deps.Notifier = a.Redis.Notifier()
	}

	a.Courses = course.NewService(a.Repo, pub, cfg.JobMaxRetries)
	a.Processor = pipeline.NewProcessor(deps)
	return a, nil
}

// Process runs one job by kind, as delivered by the queue or the CLI.
func (a *App) Process(ctx context.Context, kind course.JobKind, jobID string) (any, error) {
	ref := pipeline.JobRef{Trigger: pipeline.TriggerDirect, JobID: jobID}
	switch kind {
	case course.KindSyllabus:
		return a.Processor.ProcessSyllabusJob(ctx, ref)
	case course.KindContent:
		return a.Processor.ProcessContentJob(ctx, ref)
	default:
		return nil, fmt.Errorf("unknown job kind %q", kind)
	}
}

func (a *App) Close() error {
	var errs []error
	if a.Publisher != nil {
		errs = append(errs, a.Publisher.Close())
	}
	if a.Redis != nil {
		errs = append(errs, a.Redis.Close())
	}
	if a.DB != nil {
		if sqlDB, err := a.DB.DB(); err == nil {
			errs = append(errs, sqlDB.Close())
		}
	}
	return errors.Join(errs...)
}
