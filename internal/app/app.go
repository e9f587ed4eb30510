package app

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
)

type App struct {
	log     *slog.Logger
	runners []Runner
	drainer Drainer
	wait    time.Duration
}

func New(log *slog.Logger, drainer Drainer, wait time.Duration, runners ...Runner) *App {
	return &App{log: log, runners: runners, drainer: drainer, wait: wait}
}

// Run blocks until SIGINT/SIGTERM or the first runner failure, then drains.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return a.run(ctx)
}

func (a *App) run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, r := range a.runners {
		g.Go(func() error { return r.Run(gctx) })
	}
	err := g.Wait()
	if err != nil {
		a.log.Error("runner failed", "err", err)
	}

	sctx, cancel := context.WithTimeout(context.Background(), a.wait)
	defer cancel()
	if derr := a.drainer.Shutdown(sctx); derr != nil {
		a.log.Warn("drain incomplete", "err", derr)
		if err == nil {
			err = fmt.Errorf("drain: %w", derr)
		}
	}
	return err
}
