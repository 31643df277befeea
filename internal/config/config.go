package config

import (
	"fmt"
	"log"
	"net"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type AppConfig struct {
	Port string

	Database DatabaseConfig
	Provider ProviderConfig
	Redis    RedisConfig

	// LockTTL bounds how long an in-flight ingestion lock is held.
	LockTTL time.Duration

	// HealthCheckInterval controls how often the storage backend is probed.
	HealthCheckInterval time.Duration
}

type DatabaseConfig struct {
	Driver   string // postgres, sqlite or memory
	Server   string
	Port     string
	User     string
	Password string
	Database string
	Encrypt  bool
	// TrustServerCertificate skips certificate verification when Encrypt is set.
	TrustServerCertificate bool

	Path    string // sqlite file
	Migrate bool
}

type ProviderConfig struct {
	MeteoblueAPIKey string
	// LocationResolver is meteoblue or google.
	LocationResolver      string
	GoogleGeocodingAPIKey string

	Timeout    time.Duration
	MaxRetries int
	RateLimit  float64 // requests per second, 0 disables limiting
}

type RedisConfig struct {
	Addr     string // empty keeps the lock in process
	Password string
	DB       int
}

// Load reads configuration from environment with sensible defaults.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("INFO: No .env file found or error loading it: %v", err)
	}

	var err error
	cfg := &AppConfig{}
	cfg.Port = getenvDefault("PORT", "5000")

	db := &cfg.Database
	db.Driver = getenvDefault("DB_DRIVER", "postgres")
	switch db.Driver {
	case "postgres", "sqlite", "memory":
	default:
		return nil, fmt.Errorf("invalid DB_DRIVER %q: want postgres, sqlite or memory", db.Driver)
	}
	db.Server = getenvDefault("DB_SERVER", "localhost")
	db.Port = getenvDefault("DB_PORT", "5432")
	db.User = os.Getenv("DB_USER")
	db.Password = os.Getenv("DB_PASSWORD")
	db.Database = getenvDefault("DB_DATABASE", "weather")
	db.Path = getenvDefault("DB_PATH", "weather.db")
	if db.Encrypt, err = getenvBool("DB_ENCRYPT", false); err != nil {
		return nil, err
	}
	if db.TrustServerCertificate, err = getenvBool("DB_TRUST_SERVER_CERTIFICATE", false); err != nil {
		return nil, err
	}
	if db.Migrate, err = getenvBool("DB_MIGRATE", true); err != nil {
		return nil, err
	}

	p := &cfg.Provider
	p.MeteoblueAPIKey = os.Getenv("METEOBLUE_API_KEY")
	p.LocationResolver = getenvDefault("LOCATION_RESOLVER", "meteoblue")
	p.GoogleGeocodingAPIKey = os.Getenv("GOOGLE_GEOCODING_API_KEY")
	switch p.LocationResolver {
	case "meteoblue":
	case "google":
		if p.GoogleGeocodingAPIKey == "" {
			return nil, fmt.Errorf("LOCATION_RESOLVER=google requires GOOGLE_GEOCODING_API_KEY")
		}
	default:
		return nil, fmt.Errorf("invalid LOCATION_RESOLVER %q: want meteoblue or google", p.LocationResolver)
	}
	if p.Timeout, err = getenvDuration("PROVIDER_TIMEOUT", 15*time.Second); err != nil {
		return nil, err
	}
	if p.MaxRetries, err = getenvInt("PROVIDER_MAX_RETRIES", 0); err != nil {
		return nil, err
	}
	if p.MaxRetries < 0 {
		return nil, fmt.Errorf("invalid PROVIDER_MAX_RETRIES: must not be negative")
	}
	rps, err := getenvDefaultFloat("PROVIDER_RATE_LIMIT", 5)
	if err != nil {
		return nil, err
	}
	p.RateLimit = rps

	cfg.Redis.Addr = os.Getenv("REDIS_ADDR")
	cfg.Redis.Password = os.Getenv("REDIS_PASSWORD")
	if cfg.Redis.DB, err = getenvInt("REDIS_DB", 0); err != nil {
		return nil, err
	}

	if cfg.LockTTL, err = getenvDuration("LOCK_TTL", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.HealthCheckInterval, err = getenvDuration("HEALTHCHECK_INTERVAL", time.Minute); err != nil {
		return nil, err
	}

	if p.MeteoblueAPIKey == "" {
		log.Println("WARN: METEOBLUE_API_KEY is not set; upstream calls will be rejected")
	}

	return cfg, nil
}

// SSLMode maps the encryption flags onto a Postgres sslmode.
func (d DatabaseConfig) SSLMode() string {
	switch {
	case !d.Encrypt:
		return "disable"
	case d.TrustServerCertificate:
		return "require"
	default:
		return "verify-full"
	}
}

// ConnectionString returns the DSN for the configured driver. For sqlite it
// is the database file path; for memory it is empty.
func (d DatabaseConfig) ConnectionString() string {
	switch d.Driver {
	case "sqlite":
		return d.Path
	case "memory":
		return ""
	}

	u := url.URL{
		Scheme:   "postgres",
		Host:     net.JoinHostPort(d.Server, d.Port),
		Path:     "/" + d.Database,
		RawQuery: url.Values{"sslmode": {d.SSLMode()}}.Encode(),
	}
	if d.User != "" {
		u.User = url.UserPassword(d.User, d.Password)
	}
	return u.String()
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getenvDefaultFloat(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, v)
	}
	return f, nil
}

func getenvBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

func getenvDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
