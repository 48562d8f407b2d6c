package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/teamtriage/backend/internal/app"
	"github.com/teamtriage/backend/internal/config"
	httpapi "github.com/teamtriage/backend/internal/http"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	zerolog.TimeFieldFormat = time.RFC3339
	level, _ := zerolog.ParseLevel(cfg.LogLevel)
	logger := log.Level(level).With().Str("service", cfg.AppName).Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialise components")
	}
	defer c.Close()

	deps := httpapi.Deps{
		Pipeline:  c.Pipeline,
		Ingestor:  c.Ingestor,
		Vectors:   c.Vectors,
		Scheduler: c.Scheduler,
	}
	if c.Store != nil {
		deps.Store = c.Store
	}
	router := httpapi.Router(cfg, deps, logger)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info().Str("port", cfg.Port).Msg("server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	schedDone := make(chan struct{})
	if cfg.SchedulerEnabled {
		go func() {
			defer close(schedDone)
			c.Scheduler.Run(ctx)
		}()
	} else {
		logger.Info().Msg("scheduler disabled; use POST /api/scheduler/run to poll manually")
		close(schedDone)
	}

	<-ctx.Done()

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctxShutdown)
	stopped := make(chan struct{})
	go func() {
		<-schedDone
		c.Scheduler.Wait()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-ctxShutdown.Done():
		logger.Warn().Msg("scheduler did not stop before shutdown deadline")
	}
	logger.Info().Msg("server stopped")
}
