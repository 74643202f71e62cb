package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/flowdesk-backend/pkg/config"
	"github.com/angelmondragon/flowdesk-backend/pkg/logger"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Client owns the ledger's connection pool.
type Client struct {
	gorm *gorm.DB
	sql  *sql.DB
}

// New opens the ledger database. Postgres is the production driver; sqlite is
// accepted for local runs against a file database.
func New(ctx context.Context, cfg config.DBConfig, logg *logger.Logger) (*Client, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("database dsn is required")
	}

	var dialector gorm.Dialector
	switch driver := strings.ToLower(strings.TrimSpace(cfg.Driver)); driver {
	case "", DriverPostgres:
		dialector = postgres.New(postgres.Config{DSN: dsn, PreferSimpleProtocol: true})
	case DriverSQLite:
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	conn, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 newQueryLogger(logg, cfg.SlowQuery),
		SkipDefaultTransaction: true,
		NowFunc:                func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("open ledger database: %w", err)
	}
	client, err := wrap(conn)
	if err != nil {
		return nil, err
	}

	client.sql.SetMaxOpenConns(cfg.MaxOpenConns)
	client.sql.SetMaxIdleConns(cfg.MaxIdleConns)
	client.sql.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	client.sql.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := client.Ping(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping ledger database: %w", err)
	}
	if logg != nil {
		logg.Info(logg.WithField(ctx, "driver", dialector.Name()), "db.connected")
	}
	return client, nil
}

func wrap(conn *gorm.DB) (*Client, error) {
	sqlDB, err := conn.DB()
	if err != nil {
		return nil, fmt.Errorf("ledger sql handle: %w", err)
	}
	return &Client{gorm: conn, sql: sqlDB}, nil
}

// DB returns the gorm handle repositories are built on.
func (c *Client) DB() *gorm.DB {
	return c.gorm
}

// SQL returns the pooled database/sql handle, used by the migration runner.
func (c *Client) SQL() *sql.DB {
	return c.sql
}

func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.sql == nil {
		return errors.New("ledger database not initialized")
	}
	return c.sql.PingContext(ctx)
}

func (c *Client) Close() error {
	if c == nil || c.sql == nil {
		return nil
	}
	return c.sql.Close()
}

// WithTx runs fn in one transaction. A returned error or a panic rolls back
// every write made through tx.
func (c *Client) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return c.gorm.WithContext(ctx).Transaction(fn)
}
