// Command jobctl inspects, enqueues and runs course generation jobs by hand.
//
//	jobctl show syllabus <job-id>
//	jobctl publish content <job-id>
//	jobctl process syllabus <job-id>
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/suPer8Hu/coursegen/internal/app"
	"github.com/suPer8Hu/coursegen/internal/config"
	"github.com/suPer8Hu/coursegen/internal/logger"
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

	open := func(ctx context.Context, publish bool) (*app.App, func(), error) {
		a, err := app.New(ctx, cfg, log, app.Options{Publish: publish})
		if err != nil {
			return nil, nil, err
		}
		return a, func() { _ = a.Close() }, nil
	}

	if err := newRootCmd(open, os.Stdout).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
