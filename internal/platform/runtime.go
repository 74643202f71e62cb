// Package platform boots the infrastructure shared by every Flowdesk process:
// configuration, the structured logger, the ledger database and, for the
// processes that coordinate through it, Redis.
package platform

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/flowdesk-backend/pkg/config"
	"github.com/angelmondragon/flowdesk-backend/pkg/db"
	"github.com/angelmondragon/flowdesk-backend/pkg/logger"
	"github.com/angelmondragon/flowdesk-backend/pkg/migrate"
	"github.com/angelmondragon/flowdesk-backend/pkg/redis"
)

// Options selects what Boot brings up.
type Options struct {
	// Kind names the process in logs and in cfg.Service.Kind.
	Kind string
	// Redis connects the coordination store (webhook markers, cron leases).
	Redis bool
	// AutoMigrate applies pending migrations in dev when the feature flag is on.
	AutoMigrate bool
	// Load replaces config.Load.
	Load func() (*config.Config, error)
}

// Runtime is the booted infrastructure. Close releases it in reverse order.
type Runtime struct {
	Config *config.Config
	Logger *logger.Logger
	DB     *db.Client
	Redis  *redis.Client

	closers []namedCloser
}

type namedCloser struct {
	name  string
	close func() error
}

// Boot loads configuration and connects the ledger. On error everything
// already opened is closed again.
func Boot(ctx context.Context, opts Options) (*Runtime, error) {
	if opts.Kind == "" {
		return nil, errors.New("process kind is required")
	}
	if err := godotenv.Load(); err != nil {
		logger.New(logger.Options{ServiceName: opts.Kind}).Debug(ctx, "dotenv.not_found")
	}
	load := opts.Load
	if load == nil {
		load = config.Load
	}
	cfg, err := load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfg.Service.Kind = opts.Kind

	rt := &Runtime{Config: cfg, Logger: NewLogger(opts.Kind, cfg.App)}
	if err := rt.connect(ctx, opts); err != nil {
		rt.Close(ctx)
		return nil, err
	}
	return rt, nil
}

func (rt *Runtime) connect(ctx context.Context, opts Options) error {
	ledger, err := db.New(ctx, rt.Config.DB, rt.Logger)
	if err != nil {
		return fmt.Errorf("connect ledger: %w", err)
	}
	rt.DB = ledger
	rt.onClose("database", ledger.Close)

	if opts.AutoMigrate {
		if err := migrate.ApplyOnBoot(ctx, rt.Config, rt.Logger, ledger); err != nil {
			return fmt.Errorf("dev migrations: %w", err)
		}
	}

	if opts.Redis {
		client, err := redis.New(ctx, rt.Config.Redis, rt.Logger)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		rt.Redis = client
		rt.onClose("redis", client.Close)
	}
	return nil
}

// NewLogger builds the process logger from the app settings.
func NewLogger(kind string, app config.AppConfig) *logger.Logger {
	return logger.New(logger.Options{
		ServiceName: kind,
		Level:       logger.ParseLevel(app.LogLevel),
		Format:      app.LogFormat,
		WarnStack:   app.LogWarnStack,
	})
}

func (rt *Runtime) onClose(name string, fn func() error) {
	rt.closers = append(rt.closers, namedCloser{name: name, close: fn})
}

// Context returns ctx tagged with the environment and process kind.
func (rt *Runtime) Context(ctx context.Context) context.Context {
	return rt.Logger.WithFields(ctx, logger.Fields{
		"env":          rt.Config.App.Env,
		"service_kind": rt.Config.Service.Kind,
	})
}

// Close releases resources newest first. Failures are logged, not returned,
// because Close runs on the way out of main.
func (rt *Runtime) Close(ctx context.Context) {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		c := rt.closers[i]
		if err := c.close(); err != nil {
			rt.Logger.Error(rt.Logger.WithField(ctx, "resource", c.name), "shutdown.close_failed", err)
		}
	}
	rt.closers = nil
}

// Exit logs err, releases the runtime and terminates the process.
func (rt *Runtime) Exit(ctx context.Context, msg string, err error) {
	rt.Logger.Error(ctx, msg, err)
	rt.Close(ctx)
	os.Exit(1)
}

// Fatal is Exit for failures before a Runtime exists.
func Fatal(kind, msg string, err error) {
	logger.New(logger.Options{ServiceName: kind}).Error(context.Background(), msg, err)
	os.Exit(1)
}
