package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/suPer8Hu/coursegen/internal/app"
	"github.com/suPer8Hu/coursegen/internal/config"
	"github.com/suPer8Hu/coursegen/internal/httpapi"
	"github.com/suPer8Hu/coursegen/internal/httpapi/handlers"
	"github.com/suPer8Hu/coursegen/internal/logger"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	if cfg.LogMode != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log, app.Options{Publish: true, Migrate: true})
	if err != nil {
		log.Fatal("startup failed", "error", err)
	}
	defer a.Close()

	var events handlers.EventSource
	if a.Redis != nil {
		events = a.Redis
	}
	// one AI call per attempt plus slack for the database writes
	h := handlers.NewHandler(a.Courses, a.Processor, events, log, cfg.AITimeout*2+10*time.Second)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpapi.NewRouter(cfg, h, log, a.Metrics),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", cfg.HTTPAddr, "ai_provider", cfg.AIProvider, "db_driver", cfg.DBDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("http server", "error", err)
		}
	}()

	<-ctx.Done()
	log.Info("api shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown", "error", err)
	}
}
