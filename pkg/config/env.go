package config

const (
	EnvPrefix = "STOCKLEDGER"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DBDriverPostgres = "postgres"
	DBDriverSQLite   = "sqlite"

	EventSinkPubSub = "pubsub"
	EventSinkKafka  = "kafka"
)

const (
	EnvAppEnv    = "STOCKLEDGER_APP_ENV"
	EnvPort      = "STOCKLEDGER_APP_PORT"
	EnvLogLevel  = "STOCKLEDGER_LOG_LEVEL"
	EnvDBDSN     = "STOCKLEDGER_DB_DSN"
	EnvDBDriver  = "STOCKLEDGER_DB_DRIVER"
	EnvDBHost    = "STOCKLEDGER_DB_HOST"
	EnvDBPort    = "STOCKLEDGER_DB_PORT"
	EnvDBUser    = "STOCKLEDGER_DB_USER"
	EnvDBPass    = "STOCKLEDGER_DB_PASSWORD"
	EnvDBName    = "STOCKLEDGER_DB_NAME"
	EnvRedisURL  = "STOCKLEDGER_REDIS_URL"
	EnvJWTSecret = "STOCKLEDGER_JWT_SECRET"
	EnvJWTIssuer = "STOCKLEDGER_JWT_ISSUER"
	EnvJWTExpMin = "STOCKLEDGER_JWT_EXPIRATION_MINUTES"

	EnvLowStockThreshold = "STOCKLEDGER_LOW_STOCK_THRESHOLD"
	EnvCartTTL           = "STOCKLEDGER_CART_TTL"
	EnvEventingSink      = "STOCKLEDGER_EVENTING_SINK"
	EnvKafkaBrokers      = "STOCKLEDGER_KAFKA_BROKERS"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
