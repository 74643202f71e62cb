package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	FeatureFlags FeatureFlagsConfig
	Stripe       StripeConfig
	Webhook      WebhookConfig
	Reconcile    ReconcileConfig
	Checkout     CheckoutConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"FLOWDESK_APP_ENV" required:"true"`
	Port         string `envconfig:"FLOWDESK_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"FLOWDESK_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"FLOWDESK_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"FLOWDESK_LOG_WARN_STACK" default:"false"`
	// CORSOrigins lists the sites allowed to call the public endpoints.
	CORSOrigins []string `envconfig:"FLOWDESK_CORS_ORIGINS" default:"http://localhost:5173"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"FLOWDESK_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"FLOWDESK_DB_DSN"`
	Driver string `envconfig:"FLOWDESK_DB_DRIVER" default:"postgres"`
	// SlowQuery logs statements at or above this duration; zero disables it.
	SlowQuery time.Duration `envconfig:"FLOWDESK_DB_SLOW_QUERY" default:"500ms"`

	LegacyHost     string `envconfig:"FLOWDESK_DB_HOST"`
	LegacyPort     int    `envconfig:"FLOWDESK_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"FLOWDESK_DB_USER"`
	LegacyPassword string `envconfig:"FLOWDESK_DB_PASSWORD"`
	LegacyName     string `envconfig:"FLOWDESK_DB_NAME"`
	LegacySSLMode  string `envconfig:"FLOWDESK_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"FLOWDESK_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"FLOWDESK_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"FLOWDESK_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"FLOWDESK_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"FLOWDESK_REDIS_URL" required:"true"`
	Address      string        `envconfig:"FLOWDESK_REDIS_ADDR"`
	Password     string        `envconfig:"FLOWDESK_REDIS_PASSWORD"`
	DB           int           `envconfig:"FLOWDESK_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"FLOWDESK_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"FLOWDESK_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"FLOWDESK_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"FLOWDESK_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"FLOWDESK_REDIS_WRITE_TIMEOUT" default:"5s"`
	KeyPrefix    string        `envconfig:"FLOWDESK_REDIS_KEY_PREFIX" default:"flowdesk"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"FLOWDESK_AUTO_MIGRATE" default:"false"`
}

type StripeConfig struct {
	APIKey string `envconfig:"FLOWDESK_STRIPE_API_KEY"`
	Secret string `envconfig:"FLOWDESK_STRIPE_SECRET"`
	Env    string `envconfig:"FLOWDESK_STRIPE_ENV" default:"test"`
	// Tolerance bounds the age of a webhook signature timestamp.
	Tolerance time.Duration `envconfig:"FLOWDESK_STRIPE_WEBHOOK_TOLERANCE" default:"5m"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

type WebhookConfig struct {
	IdempotencyTTL time.Duration `envconfig:"FLOWDESK_WEBHOOK_IDEMPOTENCY_TTL" default:"72h"`
	MaxBodyBytes   int64         `envconfig:"FLOWDESK_WEBHOOK_MAX_BODY_BYTES" default:"65536"`
}

type ReconcileConfig struct {
	PageSize     int           `envconfig:"FLOWDESK_RECONCILE_PAGE_SIZE" default:"100"`
	CronInterval time.Duration `envconfig:"FLOWDESK_RECONCILE_CRON_INTERVAL" default:"15m"`
	// CronTick is how often the worker checks which jobs are due.
	CronTick time.Duration `envconfig:"FLOWDESK_CRON_TICK" default:"1m"`
}

type CheckoutConfig struct {
	// SiteURL is used when the request carries no Origin header.
	SiteURL  string `envconfig:"FLOWDESK_SITE_URL" default:"http://localhost:5173"`
	Currency string `envconfig:"FLOWDESK_CHECKOUT_CURRENCY" default:"usd"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"FLOWDESK_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	PaymentsTopic string `envconfig:"FLOWDESK_PUBSUB_PAYMENTS_TOPIC" default:"flowdesk-payment-events"`
	// SolutionsTopic receives solution facts (discount grants); empty sends
	// them to PaymentsTopic.
	SolutionsTopic string `envconfig:"FLOWDESK_PUBSUB_SOLUTIONS_TOPIC"`
}

// Topics lists the distinct topics the outbox publishes to.
func (p PubSubConfig) Topics() []string {
	out := []string{strings.TrimSpace(p.PaymentsTopic)}
	if s := strings.TrimSpace(p.SolutionsTopic); s != "" && s != out[0] {
		out = append(out, s)
	}
	return out
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"FLOWDESK_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"FLOWDESK_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"FLOWDESK_OUTBOX_MAX_ATTEMPTS" default:"10"`

	Retention     time.Duration `envconfig:"FLOWDESK_OUTBOX_RETENTION" default:"720h"`
	PruneInterval time.Duration `envconfig:"FLOWDESK_OUTBOX_PRUNE_INTERVAL" default:"24h"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
