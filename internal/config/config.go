package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/url"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type AppConfig struct {
	Port     string `env:"APP_PORT" envDefault:"8080"`
	Env      string `env:"APP_ENV" envDefault:"development"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

type PostgresConfig struct {
	Host            string        `env:"DB_HOST,notEmpty"`
	Port            string        `env:"DB_PORT" envDefault:"5432"`
	User            string        `env:"DB_USER,notEmpty"`
	Password        string        `env:"DB_PASSWORD,notEmpty"`
	DBName          string        `env:"DB_NAME,notEmpty"`
	SSLMode         string        `env:"DB_SSLMODE" envDefault:"disable"`
	MaxConns        int32         `env:"DB_MAX_CONNS" envDefault:"10"`
	MinConns        int32         `env:"DB_MIN_CONNS" envDefault:"2"`
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" envDefault:"30m"`
	MigrationsPath  string        `env:"DB_MIGRATIONS_PATH" envDefault:"migrations"`
}

type AuthConfig struct {
	JWTSecret string        `env:"JWT_SECRET,notEmpty"`
	TokenTTL  time.Duration `env:"JWT_TOKEN_TTL" envDefault:"24h"`
}

type StripeConfig struct {
	SecretKey  string `env:"STRIPE_SECRET_KEY,notEmpty"`
	Currency   string `env:"STRIPE_CURRENCY" envDefault:"usd"`
	SuccessURL string `env:"STRIPE_SUCCESS_URL,notEmpty"`
	CancelURL  string `env:"STRIPE_CANCEL_URL,notEmpty"`
}

type Config struct {
	App      AppConfig
	Postgres PostgresConfig
	Auth     AuthConfig
	Stripe   StripeConfig
}

// Load reads an optional .env file at path and then parses the process
// environment into a Config.
func Load(path string) (*Config, error) {
	if path != "" {
		err := godotenv.Load(path)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load .env: %w", err)
		}
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config from environment: %w", err)
	}

	if len(cfg.Auth.JWTSecret) < 32 {
		return nil, errors.New("JWT_SECRET must be at least 32 bytes")
	}

	return cfg, nil
}

// DSN returns a postgres:// connection URL for the pool.
func (p PostgresConfig) DSN() string {
	return p.connURL("postgres")
}

// MigrateURL returns the pgx5:// URL understood by golang-migrate.
func (p PostgresConfig) MigrateURL() string {
	return p.connURL("pgx5")
}

func (p PostgresConfig) connURL(scheme string) string {
	u := url.URL{
		Scheme:   scheme,
		User:     url.UserPassword(p.User, p.Password),
		Host:     net.JoinHostPort(p.Host, p.Port),
		Path:     "/" + p.DBName,
		RawQuery: "sslmode=" + url.QueryEscape(p.SSLMode),
	}
	return u.String()
}
