package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix is applied by envconfig when processing the environment.
const EnvPrefix = "ticketero"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

type Config struct {
	App           AppConfig
	Service       ServiceConfig
	DB            DBConfig
	Redis         RedisConfig
	GCP           GCPConfig
	PubSub        PubSubConfig
	Outbox        OutboxConfig
	Recovery      RecoveryConfig
	Notifications NotificationsConfig
	Telegram      TelegramConfig
	FeatureFlags  FeatureFlagsConfig
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
	Env          string `envconfig:"TICKETERO_APP_ENV" required:"true"`
	Port         string `envconfig:"TICKETERO_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"TICKETERO_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"TICKETERO_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"TICKETERO_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"TICKETERO_DB_DSN"`
	Driver string `envconfig:"TICKETERO_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"TICKETERO_DB_HOST"`
	LegacyPort     int    `envconfig:"TICKETERO_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"TICKETERO_DB_USER"`
	LegacyPassword string `envconfig:"TICKETERO_DB_PASSWORD"`
	LegacyName     string `envconfig:"TICKETERO_DB_NAME"`
	LegacySSLMode  string `envconfig:"TICKETERO_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"TICKETERO_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"TICKETERO_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"TICKETERO_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"TICKETERO_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"TICKETERO_REDIS_URL"`
	Address      string        `envconfig:"TICKETERO_REDIS_ADDR"`
	Password     string        `envconfig:"TICKETERO_REDIS_PASSWORD"`
	DB           int           `envconfig:"TICKETERO_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"TICKETERO_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"TICKETERO_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"TICKETERO_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"TICKETERO_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"TICKETERO_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"TICKETERO_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"TICKETERO_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"TICKETERO_GOOGLE_APPLICATION_CREDENTIALS"`
}

// PubSubConfig scopes the transport topics. Namespace, when set, is prefixed
// to every routing key so multiple branches can share one project.
type PubSubConfig struct {
	Namespace      string        `envconfig:"TICKETERO_PUBSUB_NAMESPACE"`
	PublishTimeout time.Duration `envconfig:"TICKETERO_PUBSUB_PUBLISH_TIMEOUT" default:"15s"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"TICKETERO_OUTBOX_BATCH_SIZE" default:"10"`
	PollIntervalMS int `envconfig:"TICKETERO_OUTBOX_POLL_MS" default:"5000"`
	MaxRetries     int `envconfig:"TICKETERO_OUTBOX_MAX_RETRIES" default:"5"`
}

type RecoveryConfig struct {
	HeartbeatTimeout time.Duration `envconfig:"TICKETERO_RECOVERY_HEARTBEAT_TIMEOUT" default:"5m"`
	CheckInterval    time.Duration `envconfig:"TICKETERO_RECOVERY_CHECK_INTERVAL" default:"60s"`
}

type NotificationsConfig struct {
	UpcomingInterval  time.Duration `envconfig:"TICKETERO_NOTIFY_UPCOMING_INTERVAL" default:"30s"`
	RetryInterval     time.Duration `envconfig:"TICKETERO_NOTIFY_RETRY_INTERVAL" default:"60s"`
	PositionThreshold int           `envconfig:"TICKETERO_NOTIFY_POSITION_THRESHOLD" default:"3"`
	MaxSendAttempts   int           `envconfig:"TICKETERO_NOTIFY_MAX_SEND_ATTEMPTS" default:"3"`
}

type TelegramConfig struct {
	BotToken    string        `envconfig:"TICKETERO_TELEGRAM_BOT_TOKEN"`
	APIURL      string        `envconfig:"TICKETERO_TELEGRAM_API_URL" default:"https://api.telegram.org/bot"`
	SendTimeout time.Duration `envconfig:"TICKETERO_TELEGRAM_SEND_TIMEOUT" default:"10s"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"TICKETERO_AUTO_MIGRATE" default:"false"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		"TICKETERO_DB_HOST": db.LegacyHost,
		"TICKETERO_DB_USER": db.LegacyUser,
		"TICKETERO_DB_NAME": db.LegacyName,
	}
	for _, env := range []string{"TICKETERO_DB_HOST", "TICKETERO_DB_USER", "TICKETERO_DB_NAME"} {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either TICKETERO_DB_DSN or %s are required", strings.Join(missing, ", "))
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
