// Package dbtest opens throwaway sqlite databases carrying the payments schema.
package dbtest

import (
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// sqlite stand-ins for the goose migrations; uuids and decimals are stored as text.
var schema = []string{
	`CREATE TABLE solutions (
  id TEXT PRIMARY KEY,
  title TEXT NOT NULL,
  description TEXT NOT NULL DEFAULT '',
  email TEXT NOT NULL DEFAULT '',
  premium_price TEXT,
  pro_price TEXT,
  discount TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE orders (
  id TEXT PRIMARY KEY,
  solution_id TEXT NOT NULL,
  stripe_session_id TEXT UNIQUE,
  payment_intent_id TEXT,
  payment_status TEXT NOT NULL DEFAULT 'pending',
  stripe_payment_captured INTEGER NOT NULL DEFAULT 0,
  amount TEXT NOT NULL,
  currency TEXT NOT NULL DEFAULT 'usd',
  customer_email TEXT NOT NULL,
  plan_type TEXT NOT NULL,
  metadata TEXT NOT NULL DEFAULT '{}',
  last_event_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE stripe_events (
  id TEXT PRIMARY KEY,
  event_id TEXT NOT NULL UNIQUE,
  event_type TEXT NOT NULL,
  payment_intent_id TEXT,
  session_id TEXT,
  order_id TEXT,
  status TEXT,
  amount TEXT,
  metadata TEXT NOT NULL DEFAULT '{}',
  raw_event BLOB,
  event_created_at DATETIME NOT NULL,
  created_at DATETIME
);`,
	`CREATE TABLE outbox_events (
  id TEXT PRIMARY KEY,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  order_id TEXT,
  stripe_event_id TEXT,
  payload BLOB NOT NULL,
  created_at DATETIME,
  published_at DATETIME,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  last_error TEXT
);`,
}

// New returns an isolated in-memory database with every payments table created.
func New(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	Apply(t, db)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

// Apply creates the payments tables on an already open sqlite handle.
func Apply(t testing.TB, db *gorm.DB) {
	t.Helper()
	for _, stmt := range schema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
}
