// Package config loads service settings from the environment.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v9"
	"github.com/joho/godotenv"
)

// Storage drivers.
const (
	StorageLocal = "local"
	StorageR2    = "r2"
)

type DBConfig struct {
	URL            string        `env:"URL"`
	Host           string        `env:"HOST" envDefault:"localhost"`
	Port           int           `env:"PORT" envDefault:"5432"`
	User           string        `env:"USER" envDefault:"postgres"`
	Password       string        `env:"PASSWORD"`
	Name           string        `env:"NAME" envDefault:"sistema_preco"`
	SSLMode        string        `env:"SSLMODE" envDefault:"disable"`
	MaxConns       int32         `env:"MAX_CONNS" envDefault:"10"`
	MinConns       int32         `env:"MIN_CONNS" envDefault:"1"`
	ConnectTimeout time.Duration `env:"CONNECT_TIMEOUT" envDefault:"2m"`
}

// DSN returns URL when set, else a key/value connection string.
func (c DBConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
}

type RedisConfig struct {
	Addr     string `env:"ADDR" envDefault:"localhost:6379"`
	Password string `env:"PASSWORD"`
	DB       int    `env:"DB" envDefault:"0"`
	PoolSize int    `env:"POOL_SIZE" envDefault:"20"`
}

type StorageConfig struct {
	Driver string `env:"DRIVER" envDefault:"local"`

	// local
	Dir     string `env:"DIR" envDefault:"./data"`
	BaseURL string `env:"BASE_URL" envDefault:"/files"`

	// r2
	AccountID string `env:"R2_ACCOUNT_ID"`
	AccessKey string `env:"R2_ACCESS_KEY"`
	SecretKey string `env:"R2_SECRET_KEY"`
	Bucket    string `env:"R2_BUCKET"`
	PublicURL string `env:"R2_PUBLIC_URL"`
}

type Config struct {
	Port           string   `env:"PORT" envDefault:"8080"`
	Env            string   `env:"APP_ENV" envDefault:"development"`
	JWTSecret      string   `env:"JWT_SECRET,required,notEmpty"`
	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`

	DB      DBConfig      `envPrefix:"DB_"`
	Redis   RedisConfig   `envPrefix:"REDIS_"`
	Storage StorageConfig `envPrefix:"STORAGE_"`

	RuleSetCacheTTL      time.Duration `env:"RULESET_CACHE_TTL" envDefault:"1m"`
	SimulationRatePerSec float64       `env:"SIMULATION_RATE_PER_SEC" envDefault:"5"`
	SimulationBurst      int           `env:"SIMULATION_BURST" envDefault:"20"`
	HistoryTTL           time.Duration `env:"HISTORY_TTL" envDefault:"720h"`
	PreviewTTL           time.Duration `env:"TETO_PREVIEW_TTL" envDefault:"1h"`
	SweepInterval        time.Duration `env:"TETO_SWEEP_INTERVAL" envDefault:"15m"`
}

// Load reads .env when present, then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// IsProduction reports whether the service runs with production settings.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate checks settings env tags cannot express.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case StorageLocal:
	case StorageR2:
		s := c.Storage
		if s.AccountID == "" || s.AccessKey == "" || s.SecretKey == "" || s.Bucket == "" {
			return errors.New("config: r2 storage needs STORAGE_R2_ACCOUNT_ID, STORAGE_R2_ACCESS_KEY, STORAGE_R2_SECRET_KEY and STORAGE_R2_BUCKET")
		}
	default:
		return fmt.Errorf("config: unknown STORAGE_DRIVER %q", c.Storage.Driver)
	}

	if c.SimulationRatePerSec <= 0 || c.SimulationBurst <= 0 {
		return errors.New("config: SIMULATION_RATE_PER_SEC and SIMULATION_BURST must be positive")
	}
	if c.PreviewTTL <= 0 || c.SweepInterval <= 0 {
		return errors.New("config: TETO_PREVIEW_TTL and TETO_SWEEP_INTERVAL must be positive")
	}
	return nil
}
