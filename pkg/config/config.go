package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App            AppConfig
	DB             DBConfig
	Redis          RedisConfig
	JWT            JWTConfig
	GCP            GCPConfig
	PubSub         PubSubConfig
	Payments       PaymentsConfig
	Notifications  NotificationsConfig
	Reconciliation ReconciliationConfig
	Locks          LocksConfig
	Cron           CronConfig
	FeatureFlags   FeatureFlagsConfig
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
	Env          string `envconfig:"CHOWHUB_APP_ENV" required:"true"`
	Port         string `envconfig:"CHOWHUB_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"CHOWHUB_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"CHOWHUB_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"CHOWHUB_DB_DSN"`
	Driver string `envconfig:"CHOWHUB_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"CHOWHUB_DB_HOST"`
	LegacyPort     int    `envconfig:"CHOWHUB_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"CHOWHUB_DB_USER"`
	LegacyPassword string `envconfig:"CHOWHUB_DB_PASSWORD"`
	LegacyName     string `envconfig:"CHOWHUB_DB_NAME"`
	LegacySSLMode  string `envconfig:"CHOWHUB_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"CHOWHUB_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"CHOWHUB_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"CHOWHUB_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"CHOWHUB_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"CHOWHUB_REDIS_URL" required:"true"`
	Address      string        `envconfig:"CHOWHUB_REDIS_ADDR"`
	Password     string        `envconfig:"CHOWHUB_REDIS_PASSWORD"`
	DB           int           `envconfig:"CHOWHUB_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"CHOWHUB_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"CHOWHUB_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"CHOWHUB_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"CHOWHUB_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"CHOWHUB_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"CHOWHUB_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"CHOWHUB_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"CHOWHUB_JWT_EXPIRATION_MINUTES" default:"60"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"CHOWHUB_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"CHOWHUB_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"CHOWHUB_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	NotificationTopic        string `envconfig:"CHOWHUB_PUBSUB_NOTIFICATION_TOPIC" default:"ch-notification-dispatch"`
	NotificationSubscription string `envconfig:"CHOWHUB_PUBSUB_NOTIFICATION_SUBSCRIPTION" required:"true"`
}

type PaymentsConfig struct {
	Provider        string  `envconfig:"CHOWHUB_PAYMENTS_PROVIDER" default:"acme"`
	WebhookSecret   string  `envconfig:"CHOWHUB_PAYMENTS_WEBHOOK_SECRET" required:"true"`
	AmountTolerance float64 `envconfig:"CHOWHUB_PAYMENTS_AMOUNT_TOLERANCE" default:"0.01"`
	Currency        string  `envconfig:"CHOWHUB_PAYMENTS_CURRENCY" default:"NGN"`
}

type NotificationsConfig struct {
	ClaimBatchSize    int           `envconfig:"CHOWHUB_NOTIFICATIONS_CLAIM_BATCH_SIZE" default:"25"`
	MaxAttempts       int           `envconfig:"CHOWHUB_NOTIFICATIONS_MAX_ATTEMPTS" default:"3"`
	ProcessingTimeout time.Duration `envconfig:"CHOWHUB_NOTIFICATIONS_PROCESSING_TIMEOUT" default:"10m"`
	DispatchInterval  time.Duration `envconfig:"CHOWHUB_NOTIFICATIONS_DISPATCH_INTERVAL" default:"5s"`
}

type ReconciliationConfig struct {
	BatchLimit          int           `envconfig:"CHOWHUB_RECONCILE_BATCH_LIMIT" default:"50"`
	StaleQueueThreshold time.Duration `envconfig:"CHOWHUB_RECONCILE_STALE_QUEUE_THRESHOLD" default:"30m"`
}

type LocksConfig struct {
	DefaultTTL time.Duration `envconfig:"CHOWHUB_LOCKS_DEFAULT_TTL" default:"30s"`
	MaxTTL     time.Duration `envconfig:"CHOWHUB_LOCKS_MAX_TTL" default:"5m"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"CHOWHUB_CRON_INTERVAL" default:"5m"`
	LockTTL  time.Duration `envconfig:"CHOWHUB_CRON_LOCK_TTL" default:"10m"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"CHOWHUB_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"CHOWHUB_AUTO_MIGRATE" default:"false"`
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
