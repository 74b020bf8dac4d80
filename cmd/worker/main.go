package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/suPer8Hu/coursegen/internal/app"
	"github.com/suPer8Hu/coursegen/internal/config"
	"github.com/suPer8Hu/coursegen/internal/logger"
	"github.com/suPer8Hu/coursegen/internal/metrics"
	"github.com/suPer8Hu/coursegen/internal/pipeline"
	"github.com/suPer8Hu/coursegen/internal/store/rabbitmq"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// the worker also publishes: first-module content jobs are enqueued after a syllabus completes
	a, err := app.New(ctx, cfg, log, app.Options{Publish: true})
	if err != nil {
		log.Fatal("startup failed", "error", err)
	}
	defer a.Close()

	if cfg.WorkerMetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler(a.Metrics))
		msrv := &http.Server{Addr: cfg.WorkerMetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := msrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics server", "error", err)
			}
		}()
		defer msrv.Close()
	}

	consumer, err := rabbitmq.NewConsumer(cfg.RabbitURL, cfg.RabbitQueue, cfg.WorkerConcurrency, log)
	if err != nil {
		log.Fatal("rabbitmq consumer", "error", err)
	}
	defer consumer.Close()

	handle := func(ctx context.Context, m rabbitmq.JobMessage) error {
		_, err := a.Process(ctx, m.Kind, m.JobID)
		return err
	}
	// a redelivered job that was already handled is acked, not dead-lettered
	settled := func(err error) bool {
		return pipeline.Outcome(err) == "ineligible"
	}

	if err := consumer.Run(ctx, handle, settled); err != nil {
		log.Error("worker stopped", "error", err)
	}
}
