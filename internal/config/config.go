package config

import (
	"log"

	"github.com/ilyakaznacheev/cleanenv"
)

type key string

const (
	KeyLogger  = key("logger")
	KeyUUID    = key("uuid")
	KeyMetrics = key("metrics")
)

type Config struct {
	Service  Service
	Platform Platform
	Logger   Logger
	Postgres Postgres
	Realtime Realtime
	Rooms    Rooms
	Calls    Calls
	Kafka    Kafka
}

type Service struct {
	Name      string `env:"SERVICE_NAME" env-default:"messaging-service"`
	Port      string `env:"SERVICE_PORT" env-default:"8080"`
	JWTSecret string `env:"SERVICE_JWT_SECRET" env-required:"true"`
}

type Platform struct {
	Env string `env:"PLATFORM_ENV" env-default:"dev"`
}

type Logger struct {
	Host string `env:"LOGGER_HOST" env-default:"localhost"`
	Port string `env:"LOGGER_PORT" env-default:"9200"`
}

type Postgres struct {
	User     string `env:"POSTGRES_USER" env-required:"true"`
	Password string `env:"POSTGRES_PASSWORD" env-required:"true"`
	Database string `env:"POSTGRES_DB" env-required:"true"`
	Host     string `env:"POSTGRES_HOST" env-default:"localhost"`
	Port     string `env:"POSTGRES_PORT" env-default:"5432"`
}

type Realtime struct {
	BaseURL    string `env:"REALTIME_BASE_URL" env-required:"true"`
	GatewayURL string `env:"REALTIME_GATEWAY_URL" env-required:"true"`
	APIKey     string `env:"REALTIME_API_KEY" env-required:"true"`
	JWTSecret  string `env:"REALTIME_JWT_SECRET" env-required:"true"`
	Timeout    int    `env:"REALTIME_TIMEOUT_SECONDS" env-default:"10"`
}

type Rooms struct {
	BaseURL string `env:"ROOMS_BASE_URL" env-required:"true"`
	APIKey  string `env:"ROOMS_API_KEY" env-required:"true"`
	TTL     int    `env:"ROOMS_TTL_SECONDS" env-default:"7200"`
	Timeout int    `env:"ROOMS_TIMEOUT_SECONDS" env-default:"10"`
}

type Calls struct {
	StalenessHours int    `env:"CALLS_STALENESS_HOURS" env-default:"3"`
	SweepCron      string `env:"CALLS_SWEEP_CRON" env-default:"0 * * * *"`
	CronSecret     string `env:"CALLS_CRON_SECRET" env-required:"true"`
}

type Kafka struct {
	Host      string `env:"KAFKA_HOST" env-default:"localhost"`
	Port      string `env:"KAFKA_PORT" env-default:"9092"`
	UserTopic string `env:"KAFKA_USER_TOPIC" env-default:"user_profile_updates"`
}

func MustLoad() *Config {
	cfg := &Config{}
	if err := cleanenv.ReadEnv(cfg); err != nil {
		log.Fatalf("failed to read config: %v", err)
	}
	return cfg
}
