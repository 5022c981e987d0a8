// Package config reads service settings from the environment, optionally
// seeded from a .env file in the working directory.
package config

import (
	"errors"
	"fmt"
	"log"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DriverPostgres = "postgres"
	DriverPgx      = "pgx"
	DriverSQLite   = "sqlite3"

	minJWTSecretLength = 32
)

type Config struct {
	DBDriver    string
	DSN         string
	ServerPort  string
	JWTSecret   string
	TokenTTL    time.Duration
	RedisAddr   string
	RateLimit   int
	RateWindow  time.Duration
	AutoMigrate bool
	// X-Forwarded-For is honoured only from these peers (addresses or CIDRs).
	TrustedProxies []string
}

// LoadDotEnv loads .env when it exists. Real environment variables win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			if os.IsNotExist(err) {
				log.Printf("%s file not found, relying on environment variables", p)
				continue
			}
			return err
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("error loading %s: %w", p, err)
		}
	}
	return nil
}

// Load builds a Config for a service listening on the port named by portVar.
func Load(portVar string) (*Config, error) {
	cfg := &Config{
		DBDriver:    getenv("DB_DRIVER", DriverPostgres),
		ServerPort:  os.Getenv(portVar),
		JWTSecret:   os.Getenv("JWT_SECRET"),
		RedisAddr:   os.Getenv("REDIS_ADDR"),
		AutoMigrate: getenv("AUTO_MIGRATE", "false") == "true",
	}
	cfg.TrustedProxies = listEnv("TRUSTED_PROXIES")

	var missing []string
	if cfg.ServerPort == "" {
		missing = append(missing, portVar)
	}

	switch cfg.DBDriver {
	case DriverPostgres, DriverPgx:
		missing = append(missing, Require(
			"POSTGRES_USER", "POSTGRES_PASSWORD", "POSTGRES_DB",
			"POSTGRES_HOST", "POSTGRES_PORT")...)
		cfg.DSN = PostgresDSN(cfg.DBDriver)
	case DriverSQLite:
		cfg.DSN = getenv("SQLITE_PATH", "taskmaster.db")
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.DBDriver)
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("environment variables must be set: %s", strings.Join(missing, ", "))
	}
	if len(cfg.JWTSecret) < minJWTSecretLength {
		return nil, errors.New("JWT_SECRET must be at least 32 characters")
	}

	var err error
	if cfg.TokenTTL, err = durationEnv("TOKEN_TTL", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.RateWindow, err = durationEnv("RATE_LIMIT_WINDOW", time.Second); err != nil {
		return nil, err
	}
	if cfg.RateLimit, err = intEnv("RATE_LIMIT", 5); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Require returns the names of the variables that are unset or empty.
func Require(vars ...string) []string {
	var missing []string
	for _, v := range vars {
		if os.Getenv(v) == "" {
			missing = append(missing, v)
		}
	}
	return missing
}

// PostgresDSN builds a connection string for lib/pq or pgx from POSTGRES_* vars.
func PostgresDSN(driver string) string {
	user := os.Getenv("POSTGRES_USER")
	password := os.Getenv("POSTGRES_PASSWORD")
	dbname := os.Getenv("POSTGRES_DB")
	host := os.Getenv("POSTGRES_HOST")
	port := os.Getenv("POSTGRES_PORT")
	sslmode := getenv("POSTGRES_SSLMODE", "disable")

	if driver == DriverPgx {
		u := url.URL{
			Scheme:   "postgres",
			User:     url.UserPassword(user, password),
			Host:     net.JoinHostPort(host, port),
			Path:     "/" + dbname,
			RawQuery: url.Values{"sslmode": {sslmode}}.Encode(),
		}
		return u.String()
	}
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		quoteDSNValue(host), quoteDSNValue(user), quoteDSNValue(password),
		quoteDSNValue(dbname), quoteDSNValue(port), quoteDSNValue(sslmode))
}

// quoteDSNValue quotes a key=value connection string value so spaces,
// quotes and backslashes survive parsing.
func quoteDSNValue(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}

// listEnv splits a comma-separated variable, dropping blank entries.
func listEnv(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%s must be a positive duration, got %q", key, v)
	}
	return d, nil
}

func intEnv(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer, got %q", key, v)
	}
	return n, nil
}
