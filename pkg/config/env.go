package config

const (
	EnvPrefix = "LIBRARY"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DriverPostgres   = "postgres"
	DriverSQLite     = "sqlite"
	DefaultSQLiteDSN = "file:library.db?cache=shared&_foreign_keys=1"

	TransportPubSub   = "pubsub"
	TransportRabbitMQ = "rabbitmq"
)

const (
	EnvAppEnv            = "LIBRARY_APP_ENV"
	EnvPort              = "LIBRARY_APP_PORT"
	EnvDBDSN             = "LIBRARY_DB_DSN"
	EnvDBHost            = "LIBRARY_DB_HOST"
	EnvDBUser            = "LIBRARY_DB_USER"
	EnvDBName            = "LIBRARY_DB_NAME"
	EnvUseSQLite         = "LIBRARY_USE_SQLITE"
	EnvRedisURL          = "LIBRARY_REDIS_URL"
	EnvJWTSecret         = "LIBRARY_JWT_SECRET"
	EnvBorrowLimit       = "LIBRARY_BORROW_LIMIT"
	EnvReservationTTL    = "LIBRARY_RESERVATION_TTL"
	EnvEventingTransport = "LIBRARY_EVENTING_TRANSPORT"
	EnvRabbitMQURL       = "LIBRARY_RABBITMQ_URL"
)

var discreteDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
