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
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Inventory    InventoryConfig
	Eventing     EventingConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Kafka        KafkaConfig
	Outbox       OutboxConfig
	Cron         CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Eventing.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"STOCKLEDGER_APP_ENV" required:"true"`
	Port         string `envconfig:"STOCKLEDGER_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"STOCKLEDGER_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"STOCKLEDGER_LOG_WARN_STACK" default:"false"`

	CORSOrigins        []string `envconfig:"STOCKLEDGER_CORS_ORIGINS"`
	RateLimitPerMinute int      `envconfig:"STOCKLEDGER_RATE_LIMIT_PER_MINUTE" default:"120"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"STOCKLEDGER_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"STOCKLEDGER_DB_DSN"`
	Driver string `envconfig:"STOCKLEDGER_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"STOCKLEDGER_DB_HOST"`
	LegacyPort     int    `envconfig:"STOCKLEDGER_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"STOCKLEDGER_DB_USER"`
	LegacyPassword string `envconfig:"STOCKLEDGER_DB_PASSWORD"`
	LegacyName     string `envconfig:"STOCKLEDGER_DB_NAME"`
	LegacySSLMode  string `envconfig:"STOCKLEDGER_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"STOCKLEDGER_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"STOCKLEDGER_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"STOCKLEDGER_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"STOCKLEDGER_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

// IsSQLite reports whether the configured driver targets sqlite.
func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(strings.TrimSpace(db.Driver), DBDriverSQLite)
}

type RedisConfig struct {
	URL          string        `envconfig:"STOCKLEDGER_REDIS_URL" required:"true"`
	Address      string        `envconfig:"STOCKLEDGER_REDIS_ADDR"`
	Password     string        `envconfig:"STOCKLEDGER_REDIS_PASSWORD"`
	DB           int           `envconfig:"STOCKLEDGER_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"STOCKLEDGER_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"STOCKLEDGER_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"STOCKLEDGER_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"STOCKLEDGER_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"STOCKLEDGER_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"STOCKLEDGER_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"STOCKLEDGER_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"STOCKLEDGER_JWT_EXPIRATION_MINUTES" required:"true"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"STOCKLEDGER_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"STOCKLEDGER_AUTO_MIGRATE" default:"false"`
	StatsCache  bool `envconfig:"STOCKLEDGER_STATS_CACHE" default:"true"`
}

// InventoryConfig holds the thresholds used by the reservation and stats services.
type InventoryConfig struct {
	LowStockThreshold  int           `envconfig:"STOCKLEDGER_LOW_STOCK_THRESHOLD" default:"5"`
	CartTTL            time.Duration `envconfig:"STOCKLEDGER_CART_TTL" default:"72h"`
	ReconcileBatchSize int           `envconfig:"STOCKLEDGER_RECONCILE_BATCH_SIZE" default:"200"`
	StatsCacheTTL      time.Duration `envconfig:"STOCKLEDGER_STATS_CACHE_TTL" default:"60s"`
}

type EventingConfig struct {
	OutboxIdempotencyTTL time.Duration `envconfig:"STOCKLEDGER_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
	Sink                 string        `envconfig:"STOCKLEDGER_EVENTING_SINK" default:"pubsub"`
}

func (e EventingConfig) validate() error {
	switch strings.ToLower(strings.TrimSpace(e.Sink)) {
	case EventSinkPubSub, EventSinkKafka:
		return nil
	default:
		return fmt.Errorf("%s must be one of %s, %s", EnvEventingSink, EventSinkPubSub, EventSinkKafka)
	}
}

// UsesKafka reports whether outbox events are delivered to Kafka instead of Pub/Sub.
func (e EventingConfig) UsesKafka() bool {
	return strings.EqualFold(strings.TrimSpace(e.Sink), EventSinkKafka)
}

type GCPConfig struct {
	ProjectID              string `envconfig:"STOCKLEDGER_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"STOCKLEDGER_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"STOCKLEDGER_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	InventoryTopic        string `envconfig:"STOCKLEDGER_PUBSUB_INVENTORY_TOPIC" default:"sl-inventory-events"`
	InventorySubscription string `envconfig:"STOCKLEDGER_PUBSUB_INVENTORY_SUBSCRIPTION"`
}

type KafkaConfig struct {
	Brokers          []string `envconfig:"STOCKLEDGER_KAFKA_BROKERS" default:"localhost:9092"`
	InventoryTopic   string   `envconfig:"STOCKLEDGER_KAFKA_INVENTORY_TOPIC" default:"inventory.events"`
	FulfillmentTopic string   `envconfig:"STOCKLEDGER_KAFKA_FULFILLMENT_TOPIC" default:"fulfillment.events"`
	ConsumerGroup    string   `envconfig:"STOCKLEDGER_KAFKA_CONSUMER_GROUP" default:"stockledger-movement-worker"`
	Workers          int      `envconfig:"STOCKLEDGER_KAFKA_WORKERS" default:"4"`
	ProducerBuffer   int      `envconfig:"STOCKLEDGER_KAFKA_PRODUCER_BUFFER" default:"256"`
}

type OutboxConfig struct {
	BatchSize      int           `envconfig:"STOCKLEDGER_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int           `envconfig:"STOCKLEDGER_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int           `envconfig:"STOCKLEDGER_OUTBOX_MAX_ATTEMPTS" default:"10"`
	Retention      time.Duration `envconfig:"STOCKLEDGER_OUTBOX_RETENTION" default:"720h"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"STOCKLEDGER_CRON_INTERVAL" default:"5m"`
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
