package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/levenlabs/go-lflag"
	"github.com/levenlabs/go-llog"

	"github.com/peakshed/peakshed/pkg/battery"
	"github.com/peakshed/peakshed/pkg/config"
	"github.com/peakshed/peakshed/pkg/forecast"
	"github.com/peakshed/peakshed/pkg/log"
	"github.com/peakshed/peakshed/pkg/manager"
	"github.com/peakshed/peakshed/pkg/notify"
	"github.com/peakshed/peakshed/pkg/server"
	"github.com/peakshed/peakshed/pkg/storage"
	"github.com/peakshed/peakshed/pkg/thermostat"
)

func main() {
	// .env is for local development, deployments set real environment
	// variables
	_ = godotenv.Load()

	// init packages, config must be first so secrets are loaded before the
	// providers read them
	conf := config.Configured()
	b := battery.Configured(conf)
	t := thermostat.Configured(conf)
	f := forecast.Configured(conf)
	s := storage.Configured()
	n := notify.Configured(conf)
	mgr := manager.Configured(conf, b, t, f, s, n)

	// init server
	srv := server.Configured(mgr, s)

	// parse flags
	lflag.Configure()

	var level slog.Level
	// lflag automatically sets llog's level, but we need to set the slog level
	switch llog.GetLevel() {
	case llog.DebugLevel:
		level = slog.LevelDebug
	case llog.InfoLevel:
		level = slog.LevelInfo
	case llog.WarnLevel:
		level = slog.LevelWarn
	case llog.ErrorLevel:
		level = slog.LevelError
	default:
		panic(fmt.Errorf("unknown log level: %s", llog.GetLevel().String()))
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
	slog.Debug("logger configured", slog.String("level", level.String()))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// If initialization inside lflag.Do failed, we wouldn't be here (panic).
	defer func() {
		if err := s.Close(); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to close storage", "error", err)
		}
	}()
	if n.Telemetry != nil {
		defer n.Telemetry.Close()
	}

	// run the control loop alongside the API server; either failing takes
	// the process down
	go func() {
		if err := mgr.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Ctx(ctx).ErrorContext(ctx, "control loop failed", "error", err)
			cancel()
		}
	}()

	if err := srv.Run(ctx); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "server failed", "error", err)
		os.Exit(1)
	}
	log.Ctx(ctx).InfoContext(ctx, "server exited cleanly")
}
