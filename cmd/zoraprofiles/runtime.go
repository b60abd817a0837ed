package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/viper"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	zp "github.com/Keksclan/zoraprofiles"
	"github.com/Keksclan/zoraprofiles/internal/settings"
	"github.com/Keksclan/zoraprofiles/tracing"
)

// runtime is what every subcommand needs: resolved settings, a logger and
// the server options derived from both.
type runtime struct {
	settings settings.Settings
	logger   *zap.Logger
	opts     []zp.Option
	shutdown func(context.Context) error
}

func newRuntime(v *viper.Viper) (*runtime, error) {
	s, err := settings.FromViper(v)
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	logger, err := newLogger(s.LogLevel)
	if err != nil {
		return nil, err
	}

	rt := &runtime{
		settings: s,
		logger:   logger,
		shutdown: func(context.Context) error { return nil },
	}
	rt.opts = append(zp.DefaultOptions(), zp.WithLogger(logger))
	rt.opts = append(rt.opts, zp.FromSettings(s)...)

	if s.OTelStdout {
		exporter, err := stdouttrace.New(stdouttrace.WithWriter(os.Stderr), stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("create stdout trace exporter: %w", err)
		}
		tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
		rt.shutdown = tp.Shutdown
		rt.opts = append(rt.opts, zp.WithOpenTelemetry(tracing.TracingConfig{
			TracerProvider: tp,
			Propagators:    propagation.TraceContext{},
		}))
	}
	return rt, nil
}

func (rt *runtime) close() {
	if err := rt.shutdown(context.Background()); err != nil {
		rt.logger.Warn("trace provider shutdown failed", zap.Error(err))
	}
	_ = rt.logger.Sync()
}

func newLogger(level string) (*zap.Logger, error) {
	if level == "debug" {
		return zap.NewDevelopment()
	}
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", settings.KeyLogLevel, err)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}
