package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App           AppConfig
	Service       ServiceConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	FeatureFlags  FeatureFlagsConfig
	Lending       LendingConfig
	Eventing      EventingConfig
	GCP           GCPConfig
	PubSub        PubSubConfig
	RabbitMQ      RabbitMQConfig
	Outbox        OutboxConfig
	Notifications NotificationsConfig
	RateLimit     RateLimitConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.FeatureFlags.UseSQLite {
		cfg.DB.Driver = DriverSQLite
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Eventing.validate(cfg.GCP, cfg.RabbitMQ); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string   `envconfig:"LIBRARY_APP_ENV" required:"true"`
	Port         string   `envconfig:"LIBRARY_APP_PORT" default:"8080"`
	LogLevel     string   `envconfig:"LIBRARY_LOG_LEVEL" default:"info"`
	LogWarnStack bool     `envconfig:"LIBRARY_LOG_WARN_STACK" default:"false"`
	CORSOrigins  []string `envconfig:"LIBRARY_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"LIBRARY_SERVICE_KIND" default:"api"`
	// MetricsAddr makes background workers serve /metrics when set, e.g. ":9090".
	MetricsAddr string `envconfig:"LIBRARY_METRICS_ADDR"`
}

type DBConfig struct {
	DSN    string `envconfig:"LIBRARY_DB_DSN"`
	Driver string `envconfig:"LIBRARY_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"LIBRARY_DB_HOST"`
	Port     int    `envconfig:"LIBRARY_DB_PORT" default:"5432"`
	User     string `envconfig:"LIBRARY_DB_USER"`
	Password string `envconfig:"LIBRARY_DB_PASSWORD"`
	Name     string `envconfig:"LIBRARY_DB_NAME"`
	SSLMode  string `envconfig:"LIBRARY_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"LIBRARY_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"LIBRARY_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"LIBRARY_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"LIBRARY_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(db.Driver, DriverSQLite)
}

type RedisConfig struct {
	URL          string        `envconfig:"LIBRARY_REDIS_URL"`
	Address      string        `envconfig:"LIBRARY_REDIS_ADDR"`
	Password     string        `envconfig:"LIBRARY_REDIS_PASSWORD"`
	DB           int           `envconfig:"LIBRARY_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"LIBRARY_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"LIBRARY_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"LIBRARY_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"LIBRARY_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"LIBRARY_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// Enabled reports whether any redis endpoint is configured.
func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.URL) != "" || strings.TrimSpace(r.Address) != ""
}

type JWTConfig struct {
	Secret            string `envconfig:"LIBRARY_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"LIBRARY_JWT_ISSUER" default:"library-backend"`
	ExpirationMinutes int    `envconfig:"LIBRARY_JWT_EXPIRATION_MINUTES" default:"60"`
}

func (j JWTConfig) Expiration() time.Duration {
	if j.ExpirationMinutes <= 0 {
		return time.Hour
	}
	return time.Duration(j.ExpirationMinutes) * time.Minute
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"LIBRARY_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"LIBRARY_AUTO_MIGRATE" default:"false"`
}

// LendingConfig holds the loan policy knobs.
type LendingConfig struct {
	BorrowLimit          int           `envconfig:"LIBRARY_BORROW_LIMIT" default:"3"`
	ReservationTTL       time.Duration `envconfig:"LIBRARY_RESERVATION_TTL" default:"24h"`
	DefaultLoanDays      int           `envconfig:"LIBRARY_DEFAULT_LOAN_DAYS" default:"14"`
	MaxLoanDays          int           `envconfig:"LIBRARY_MAX_LOAN_DAYS" default:"60"`
	MaintenanceInterval  time.Duration `envconfig:"LIBRARY_MAINTENANCE_INTERVAL" default:"1h"`
	MaintenanceBatchSize int           `envconfig:"LIBRARY_MAINTENANCE_BATCH_SIZE" default:"100"`
}

type EventingConfig struct {
	Transport      string        `envconfig:"LIBRARY_EVENTING_TRANSPORT" default:"pubsub"`
	IdempotencyTTL time.Duration `envconfig:"LIBRARY_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

func (e EventingConfig) UsesRabbitMQ() bool {
	return strings.EqualFold(e.Transport, TransportRabbitMQ)
}

func (e EventingConfig) validate(gcp GCPConfig, rabbit RabbitMQConfig) error {
	switch strings.ToLower(strings.TrimSpace(e.Transport)) {
	case TransportPubSub:
		return nil
	case TransportRabbitMQ:
		if strings.TrimSpace(rabbit.URL) == "" {
			return fmt.Errorf("%s is required when %s=%s", EnvRabbitMQURL, EnvEventingTransport, TransportRabbitMQ)
		}
		return nil
	default:
		return fmt.Errorf("unsupported %s %q", EnvEventingTransport, e.Transport)
	}
}

type GCPConfig struct {
	ProjectID string `envconfig:"LIBRARY_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	LoanEventsTopic          string `envconfig:"LIBRARY_PUBSUB_LOAN_EVENTS_TOPIC" default:"library-loan-events"`
	NotificationSubscription string `envconfig:"LIBRARY_PUBSUB_NOTIFICATION_SUBSCRIPTION" default:"library-loan-notifications"`
}

type RabbitMQConfig struct {
	URL           string `envconfig:"LIBRARY_RABBITMQ_URL"`
	Exchange      string `envconfig:"LIBRARY_RABBITMQ_EXCHANGE" default:"library.events"`
	LoanQueue     string `envconfig:"LIBRARY_RABBITMQ_LOAN_QUEUE" default:"library.loan.notifications"`
	PrefetchCount int    `envconfig:"LIBRARY_RABBITMQ_PREFETCH" default:"50"`
}

type OutboxConfig struct {
	BatchSize      int           `envconfig:"LIBRARY_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int           `envconfig:"LIBRARY_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int           `envconfig:"LIBRARY_OUTBOX_MAX_ATTEMPTS" default:"10"`
	Retention      time.Duration `envconfig:"LIBRARY_OUTBOX_RETENTION" default:"168h"`
}

// NotificationsConfig bounds how long inbox rows survive. Unread rows are
// kept longer so a member returning from a break still sees them.
type NotificationsConfig struct {
	ReadRetention   time.Duration `envconfig:"LIBRARY_NOTIFICATIONS_READ_RETENTION" default:"720h"`
	UnreadRetention time.Duration `envconfig:"LIBRARY_NOTIFICATIONS_UNREAD_RETENTION" default:"2160h"`
}

type RateLimitConfig struct {
	RequestsPerMinute int `envconfig:"LIBRARY_RATE_LIMIT_RPM" default:"120"`
	Burst             int `envconfig:"LIBRARY_RATE_LIMIT_BURST" default:"30"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}
	if db.IsSQLite() {
		db.DSN = DefaultSQLiteDSN
		return nil
	}

	missing := []string{}
	values := map[string]string{
		EnvDBHost: db.Host,
		EnvDBUser: db.User,
		EnvDBName: db.Name,
	}
	for _, env := range discreteDBEnvVars {
		if values[env] == "" {
			missing = append(missing, env)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.User)
	if db.Password != "" {
		userInfo = url.UserPassword(db.User, db.Password)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   db.Name,
	}
	if db.SSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.SSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
