package config

const (
	EnvPrefix = "FLOWDESK"

	AppEnvDev  = "dev"
	AppEnvProd = "production"

	EnvAppEnv   = "FLOWDESK_APP_ENV"
	EnvPort     = "FLOWDESK_APP_PORT"
	EnvDBDSN    = "FLOWDESK_DB_DSN"
	EnvDBHost   = "FLOWDESK_DB_HOST"
	EnvDBUser   = "FLOWDESK_DB_USER"
	EnvDBName   = "FLOWDESK_DB_NAME"
	EnvRedisURL = "FLOWDESK_REDIS_URL"

	EnvStripeAPIKey    = "FLOWDESK_STRIPE_API_KEY"
	EnvStripeSecret    = "FLOWDESK_STRIPE_SECRET"
	EnvStripeTolerance = "FLOWDESK_STRIPE_WEBHOOK_TOLERANCE"
	EnvReconcilePage   = "FLOWDESK_RECONCILE_PAGE_SIZE"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
