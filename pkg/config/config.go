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
	Wallet       WalletConfig
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
	Env          string `envconfig:"MAHARA_APP_ENV" required:"true"`
	Port         string `envconfig:"MAHARA_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"MAHARA_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"MAHARA_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"MAHARA_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"MAHARA_DB_DSN"`
	Driver string `envconfig:"MAHARA_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"MAHARA_DB_HOST"`
	LegacyPort     int    `envconfig:"MAHARA_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"MAHARA_DB_USER"`
	LegacyPassword string `envconfig:"MAHARA_DB_PASSWORD"`
	LegacyName     string `envconfig:"MAHARA_DB_NAME"`
	LegacySSLMode  string `envconfig:"MAHARA_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"MAHARA_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"MAHARA_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"MAHARA_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"MAHARA_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"MAHARA_REDIS_URL" required:"true"`
	Address      string        `envconfig:"MAHARA_REDIS_ADDR"`
	Password     string        `envconfig:"MAHARA_REDIS_PASSWORD"`
	DB           int           `envconfig:"MAHARA_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"MAHARA_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"MAHARA_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"MAHARA_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"MAHARA_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"MAHARA_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"MAHARA_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"MAHARA_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"MAHARA_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"MAHARA_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"MAHARA_AUTO_MIGRATE" default:"false"`
}

type WalletConfig struct {
	// TTL for the HTTP-layer idempotency replay cache on money-moving endpoints.
	// Ledger-level idempotency keys never expire; this only bounds stored responses.
	HTTPIdempotencyTTL time.Duration `envconfig:"MAHARA_WALLET_HTTP_IDEMPOTENCY_TTL" default:"168h"`
	// Hard cap on a single transaction's absolute amount, in smallest units.
	MaxTransactionCents int64 `envconfig:"MAHARA_WALLET_MAX_TRANSACTION_CENTS" default:"100000000"`

	// Fixed-window throttle for money-moving endpoints. Zero disables a limit.
	WriteRateWindow  time.Duration `envconfig:"MAHARA_WALLET_WRITE_RATE_WINDOW" default:"1m"`
	WriteRatePerUser int           `envconfig:"MAHARA_WALLET_WRITE_RATE_PER_USER" default:"30"`
	WriteRatePerIP   int           `envconfig:"MAHARA_WALLET_WRITE_RATE_PER_IP" default:"120"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"MAHARA_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"MAHARA_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"MAHARA_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	WalletTopic        string `envconfig:"MAHARA_PUBSUB_WALLET_TOPIC" default:"mahara-wallet-events"`
	WalletSubscription string `envconfig:"MAHARA_PUBSUB_WALLET_SUBSCRIPTION"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"MAHARA_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"MAHARA_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"MAHARA_OUTBOX_MAX_ATTEMPTS" default:"10"`
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
