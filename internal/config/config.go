package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config is the complete service configuration, read from the environment.
type Config struct {
	HTTP     HTTPConfig     `envPrefix:"HTTP_"`
	Postgres PostgresConfig `envPrefix:"POSTGRES_"`
	Redis    RedisConfig    `envPrefix:"REDIS_"`
	Minio    MinioConfig    `envPrefix:"MINIO_"`
	JWT      JWTConfig      `envPrefix:"JWT_"`
	Logger   LoggerConfig   `envPrefix:"LOG_"`
	Jobs     JobsConfig     `envPrefix:"JOBS_"`
}

type HTTPConfig struct {
	Port            int           `env:"PORT" envDefault:"8080"`
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"10s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`
	DBReadTimeout   time.Duration `env:"DB_READ_TIMEOUT" envDefault:"3s"`
	DBWriteTimeout  time.Duration `env:"DB_WRITE_TIMEOUT" envDefault:"5s"`
}

func (c HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

type PostgresConfig struct {
	Host          string `env:"HOST" envDefault:"localhost"`
	Port          int    `env:"PORT" envDefault:"5432"`
	User          string `env:"USER" envDefault:"postgres"`
	Password      string `env:"PASSWORD"`
	DBName        string `env:"DB" envDefault:"medkit"`
	SSLMode       string `env:"SSL_MODE" envDefault:"disable"`
	MaxConns      int32  `env:"MAX_CONNS" envDefault:"10"`
	RunMigrations bool   `env:"RUN_MIGRATIONS" envDefault:"true"`
}

func (c PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User,
		c.Password,
		c.Host,
		c.Port,
		c.DBName,
		c.SSLMode,
	)
}

type RedisConfig struct {
	Addr     string `env:"ADDR" envDefault:"localhost:6379"`
	Password string `env:"PASSWORD"`
	DB       int    `env:"DB" envDefault:"0"`
}

type MinioConfig struct {
	Endpoint     string        `env:"ENDPOINT" envDefault:"localhost:9000"`
	AccessKey    string        `env:"ACCESS_KEY" envDefault:"minioadmin"`
	SecretKey    string        `env:"SECRET_KEY" envDefault:"minioadmin"`
	UseSSL       bool          `env:"USE_SSL" envDefault:"false"`
	ExportBucket string        `env:"EXPORT_BUCKET" envDefault:"medkit-exports"`
	URLExpiry    time.Duration `env:"URL_EXPIRY" envDefault:"1h"`
}

// JWTConfig selects how operator tokens are verified: a JWKS endpoint when
// JWKSURL is set, the shared HS256 secret otherwise.
type JWTConfig struct {
	Secret  string `env:"SECRET"`
	JWKSURL string `env:"JWKS_URL"`
}

type LoggerConfig struct {
	Level  string `env:"LEVEL" envDefault:"info"`
	AsJSON bool   `env:"JSON" envDefault:"true"`
}

type JobsConfig struct {
	Enabled              bool          `env:"ENABLED" envDefault:"true"`
	DiscardRateRefresh   time.Duration `env:"DISCARD_RATE_REFRESH" envDefault:"15m"`
	DiscardRateMonths    int           `env:"DISCARD_RATE_MONTHS" envDefault:"6"`
	SnapshotExportCron   string        `env:"SNAPSHOT_EXPORT_CRON" envDefault:"0 2 * * *"`
	SnapshotExportFormat string        `env:"SNAPSHOT_EXPORT_FORMAT" envDefault:"json"`
}

// Load reads the configuration from the environment. A .env file is only
// consulted when APP_ENV=local.
func Load(path ...string) (*Config, error) {
	const op = "config.Load"

	if shouldLoadDotenv() {
		if err := godotenv.Load(path...); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s: load .env: %w", op, err)
		}
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if cfg.JWT.Secret == "" && cfg.JWT.JWKSURL == "" {
		return nil, fmt.Errorf("%s: one of JWT_SECRET or JWT_JWKS_URL is required", op)
	}

	return &cfg, nil
}

func shouldLoadDotenv() bool {
	return os.Getenv("APP_ENV") == "local"
}
