package telemetry

import (
	"context"
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/robalyx/decelerator/internal/setup/config"
	"github.com/uptrace/uptrace-go/uptrace"
)

// InitExporters configures Sentry and Uptrace when they are enabled.
// The returned function flushes both and must be called on shutdown.
func InitExporters(cfg *config.CommonConfig, serviceType ServiceType) (func(context.Context), error) {
	var shutdowns []func(context.Context)

	if cfg.Sentry.DSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.Sentry.DSN,
			Environment:      cfg.Sentry.Environment,
			Release:          "decelerator@" + config.RepositoryVersion,
			AttachStacktrace: true,
		}); err != nil {
			return nil, fmt.Errorf("failed to initialize sentry: %w", err)
		}

		shutdowns = append(shutdowns, func(context.Context) {
			sentry.Flush(2 * time.Second)
		})
	}

	if cfg.Telemetry.UptraceDSN != "" {
		version := cfg.Telemetry.ServiceVersion
		if version == "" {
			version = config.RepositoryVersion
		}

		uptrace.ConfigureOpentelemetry(
			uptrace.WithDSN(cfg.Telemetry.UptraceDSN),
			uptrace.WithServiceName("decelerator-"+serviceType.String()),
			uptrace.WithServiceVersion(version),
		)

		shutdowns = append(shutdowns, func(ctx context.Context) {
			_ = uptrace.Shutdown(ctx)
		})
	}

	return func(ctx context.Context) {
		for i := len(shutdowns) - 1; i >= 0; i-- {
			shutdowns[i](ctx)
		}
	}, nil
}
