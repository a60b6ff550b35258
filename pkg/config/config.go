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
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Platform     PlatformConfig
	Payments     PaymentsConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	FeatureFlags FeatureFlagsConfig
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
	Env          string `envconfig:"DOMICILIOS_APP_ENV" required:"true"`
	Port         string `envconfig:"DOMICILIOS_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"DOMICILIOS_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"DOMICILIOS_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"DOMICILIOS_DB_DSN"`
	Driver string `envconfig:"DOMICILIOS_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"DOMICILIOS_DB_HOST"`
	LegacyPort     int    `envconfig:"DOMICILIOS_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"DOMICILIOS_DB_USER"`
	LegacyPassword string `envconfig:"DOMICILIOS_DB_PASSWORD"`
	LegacyName     string `envconfig:"DOMICILIOS_DB_NAME"`
	LegacySSLMode  string `envconfig:"DOMICILIOS_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"DOMICILIOS_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"DOMICILIOS_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"DOMICILIOS_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"DOMICILIOS_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"DOMICILIOS_REDIS_URL" required:"true"`
	Password     string        `envconfig:"DOMICILIOS_REDIS_PASSWORD"`
	DB           int           `envconfig:"DOMICILIOS_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"DOMICILIOS_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"DOMICILIOS_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"DOMICILIOS_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"DOMICILIOS_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"DOMICILIOS_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"DOMICILIOS_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"DOMICILIOS_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"DOMICILIOS_JWT_EXPIRATION_MINUTES" default:"1440"`
}

// PlatformConfig holds the marketplace pricing knobs. Fees are applied at
// order assembly time and snapshotted on the order row.
type PlatformConfig struct {
	ServiceFeePercent int   `envconfig:"DOMICILIOS_SERVICE_FEE_PERCENT" default:"5"`
	DeliveryFeeCents  int64 `envconfig:"DOMICILIOS_DELIVERY_FEE_CENTS" default:"200000"`
	MaxSubtotalCents  int64 `envconfig:"DOMICILIOS_MAX_SUBTOTAL_CENTS" default:"500000000"`
}

type PaymentsConfig struct {
	BaseURL      string        `envconfig:"DOMICILIOS_PAYMENTS_BASE_URL" required:"true"`
	PrivateKey   string        `envconfig:"DOMICILIOS_PAYMENTS_PRIVATE_KEY" required:"true"`
	EventsSecret string        `envconfig:"DOMICILIOS_PAYMENTS_EVENTS_SECRET" required:"true"`
	Timeout      time.Duration `envconfig:"DOMICILIOS_PAYMENTS_TIMEOUT" default:"10s"`
	EventTTL     time.Duration `envconfig:"DOMICILIOS_PAYMENTS_EVENT_TTL" default:"72h"`
}

type GCPConfig struct {
	ProjectID       string `envconfig:"DOMICILIOS_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON string `envconfig:"DOMICILIOS_GCP_CREDENTIALS_JSON"`
}

type PubSubConfig struct {
	NotificationTopic string `envconfig:"DOMICILIOS_PUBSUB_NOTIFICATION_TOPIC" default:"dmc-notification-events"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"DOMICILIOS_AUTO_MIGRATE" default:"false"`
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
