package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

type job func(ctx context.Context) error

// runWatch runs fn immediately and then every interval until ctx is done.
func runWatch(ctx context.Context, logger *slog.Logger, interval time.Duration, fn job) error {
	if interval <= 0 {
		return fmt.Errorf("watch interval must be positive, got %s", interval)
	}
	logger.Info("Starting watcher.", "interval", interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if err := fn(ctx); err != nil {
			logger.Error("Import cycle failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// runScheduled runs fn on a standard five-field cron spec until ctx is done.
// A run still in progress when the next one is due is skipped.
func runScheduled(ctx context.Context, logger *slog.Logger, spec string, fn job) error {
	cl := cronLogger{logger: logger}
	c := cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)))
	if _, err := c.AddFunc(spec, func() {
		if err := fn(ctx); err != nil {
			logger.Error("Import cycle failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", spec, err)
	}

	logger.Info("Starting scheduler.", "schedule", spec)
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	logger.Info("Scheduler stopped.")
	return nil
}

// cronLogger routes the scheduler's own messages into slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
