// Package cli provides common initialization shared by cmd/spendly and
// cmd/spendly-cli.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"spendly/internal/amqp"
	"spendly/internal/app"
	"spendly/internal/backend"
	"spendly/internal/cache"
	"spendly/internal/config"
	"spendly/internal/log"
	"spendly/internal/services"
	"spendly/internal/store"
)

// DefaultConfigPath is read when no --config flag is given.
const DefaultConfigPath = "spendly.yaml"

// LoadEnvFile loads the .env file for local development.
// A missing file is ignored.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig loads configuration from path and the environment
// and validates it.
func LoadAndValidateConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SetupLogger builds the process logger at the configured level and installs
// it as the slog default. out defaults to stdout.
func SetupLogger(cfg *config.Config, component string, out io.Writer) *log.Logger {
	if out == nil {
		out = os.Stdout
	}
	logger := log.New(log.Config{
		Level:     cfg.SlogLevel(),
		Component: component,
		Output:    out,
	})
	log.SetDefault(logger)
	return logger
}

// ShutdownContext is cancelled on SIGINT or SIGTERM.
func ShutdownContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

type pinger interface {
	Ping(ctx context.Context) error
}

// Runtime is the wired application: storage backend, optional event
// publisher, expense service and controller.
type Runtime struct {
	Config *config.Config
	Logger *log.Logger
	App    *app.App

	backend *backend.BackendResult
}

// Options adjusts Bootstrap for a particular front end.
type Options struct {
	// DisableEvents skips the AMQP publisher even when configured.
	DisableEvents bool
	Clock         app.Clock
}

// Bootstrap opens the configured backend, connects the publisher when an
// AMQP URL is set and hydrates the store. A broker that cannot be reached
// is logged and skipped.
func Bootstrap(ctx context.Context, cfg *config.Config, logger *log.Logger, opts Options) (*Runtime, error) {
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}
	res, err := backend.NewFactory(logger.WithComponent(log.ComponentBackend).Logger).CreateBackend(ctx, bcfg)
	if err != nil {
		return nil, err
	}

	var publisher services.EventPublisher
	if cfg.AMQP.URL != "" && !opts.DisableEvents {
		client, err := amqp.NewClient(cfg.AMQP.URL, cfg.AMQP.Exchange, logger)
		if err != nil {
			logger.Warn("Save notifications disabled", log.FieldComponent, log.ComponentAMQP, log.FieldError, err)
		} else {
			publisher = client
		}
	}

	st := store.New(res.Backend, logger)
	svc := services.NewExpenseService(st, publisher, logger)
	a := app.New(svc, app.Options{
		Clock:  opts.Clock,
		Cache:  cache.NewSummaries(cfg.Cache.Size, cfg.Cache.TTL),
		Logger: logger,
	})
	a.Init(ctx)

	return &Runtime{Config: cfg, Logger: logger, App: a, backend: res}, nil
}

// Ready pings the backend when it supports it.
func (r *Runtime) Ready(ctx context.Context) error {
	if p, ok := r.backend.Backend.(pinger); ok {
		if err := p.Ping(ctx); err != nil {
			return fmt.Errorf("storage not ready: %w", err)
		}
	}
	return nil
}

// Close waits for pending notifications, then releases the backend.
func (r *Runtime) Close() error {
	var errs []error
	if err := r.App.Close(); err != nil {
		errs = append(errs, err)
	}
	if r.backend.Cleanup != nil {
		if err := r.backend.Cleanup(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
