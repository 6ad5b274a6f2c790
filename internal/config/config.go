package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App       AppConfig
	Postgres  PostgresConfig
	Redis     RedisConfig
	Logger    LoggerConfig
	Auth      AuthConfig
	Session   SessionConfig
	OAuth     OAuthConfig
	Mail      MailConfig
	RateLimit RateLimitConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
	AllowedOrigins        []string
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values. Addr may list several
// comma separated nodes for cluster or sentinel deployments.
type RedisConfig struct {
	Addr       string
	MasterName string
	Password   string
	DB         int
	PoolSize   int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level   string
	Service string
	// Format is "json" or "console".
	Format string
}

// AuthConfig defines authentication parameters and key material.
type AuthConfig struct {
	AccessTokenSecret  string
	RefreshTokenSecret string
	PendingTokenSecret string

	AccessTokenTTLMinutes  int
	RefreshTokenTTLMinutes int
	PendingTokenTTLMinutes int

	// EncryptionKey is the 64 hex char AES-256 key for TOTP seeds.
	EncryptionKey string
	BcryptCost    int

	OTPIssuer        string
	OTPPeriodSeconds int
	OTPSkew          uint

	ExposeOTP        bool
	PendingSingleUse bool
	StrictAccess     bool
	RoleTablePath    string
	CookieSecure     bool
}

// SessionConfig selects the refresh-token whitelist backend.
type SessionConfig struct {
	Backend   string
	KeyPrefix string
}

// OAuthConfig holds identity provider settings.
type OAuthConfig struct {
	GoogleClientID string
}

// MailConfig holds SMTP settings. An empty Host means codes are only logged.
type MailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// RateLimitConfig sets per-client request budgets within a shared window.
type RateLimitConfig struct {
	WindowMinutes int
	Signup        int
	Signin        int
	Refresh       int
	ResendOTP     int
}

const (
	SessionBackendRedis  = "redis"
	SessionBackendMemory = "memory"
)

// Load reads configuration from environment variables, applying defaults where possible.
// Missing or malformed key material is an error: the process must not start without it.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	maxConns := int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10))
	minConns := int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2))
	runMigrations := getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true)
	connMaxIdle := int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30))
	connMaxLife := int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300))

	appEnv := getEnv("APP_ENV", "development")
	isProduction := appEnv == "production"

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "auth-service"),
			Env:                   appEnv,
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
			AllowedOrigins:        getEnvAsList("APP_ORIGINS"),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       maxConns,
			MinConns:       minConns,
			RunMigrations:  runMigrations,
			ConnMaxIdleSec: connMaxIdle,
			ConnMaxLifeSec: connMaxLife,
		},
		Redis: RedisConfig{
			Addr:       getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			MasterName: os.Getenv("REDIS_MASTER_NAME"),
			Password:   os.Getenv("REDIS_PASSWORD"),
			DB:         redisDB,
			PoolSize:   getEnvAsInt("REDIS_POOL_SIZE", 0),
		},
		Logger: LoggerConfig{
			Level:   getEnv("LOG_LEVEL", "info"),
			Service: getEnv("APP_NAME", "auth-service"),
			Format:  strings.ToLower(getEnv("LOG_FORMAT", "json")),
		},
		Auth: AuthConfig{
			AccessTokenSecret:      os.Getenv("AUTH_ACCESS_TOKEN_SECRET"),
			RefreshTokenSecret:     os.Getenv("AUTH_REFRESH_TOKEN_SECRET"),
			PendingTokenSecret:     os.Getenv("AUTH_PENDING_TOKEN_SECRET"),
			AccessTokenTTLMinutes:  getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 15),
			RefreshTokenTTLMinutes: getEnvAsInt("AUTH_REFRESH_TOKEN_TTL_MINUTES", 7*24*60),
			PendingTokenTTLMinutes: getEnvAsInt("AUTH_PENDING_TOKEN_TTL_MINUTES", 5),
			EncryptionKey:          os.Getenv("AUTH_ENCRYPTION_KEY"),
			BcryptCost:             getEnvAsInt("AUTH_BCRYPT_COST", 10),
			OTPIssuer:              getEnv("AUTH_OTP_ISSUER", "auth-service"),
			OTPPeriodSeconds:       getEnvAsInt("AUTH_OTP_PERIOD_SECONDS", 300),
			OTPSkew:                uint(getEnvAsInt("AUTH_OTP_SKEW", 1)),
			ExposeOTP:              getEnvAsBool("AUTH_EXPOSE_OTP", appEnv == "development"),
			PendingSingleUse:       getEnvAsBool("AUTH_PENDING_SINGLE_USE", false),
			StrictAccess:           getEnvAsBool("AUTH_STRICT_ACCESS", false),
			RoleTablePath:          os.Getenv("AUTH_ROLE_TABLE_PATH"),
			CookieSecure:           getEnvAsBool("AUTH_COOKIE_SECURE", isProduction),
		},
		Session: SessionConfig{
			Backend:   strings.ToLower(getEnv("SESSION_BACKEND", SessionBackendRedis)),
			KeyPrefix: getEnv("SESSION_KEY_PREFIX", "auth"),
		},
		OAuth: OAuthConfig{
			GoogleClientID: os.Getenv("OAUTH_GOOGLE_CLIENT_ID"),
		},
		Mail: MailConfig{
			Host:     os.Getenv("SMTP_HOST"),
			Port:     getEnvAsInt("SMTP_PORT", 587),
			Username: os.Getenv("SMTP_USER"),
			Password: os.Getenv("SMTP_PASS"),
			From:     getEnv("SMTP_FROM", "no-reply@example.com"),
		},
		RateLimit: RateLimitConfig{
			WindowMinutes: getEnvAsInt("RATE_LIMIT_WINDOW_MINUTES", 15),
			Signup:        getEnvAsInt("RATE_LIMIT_SIGNUP", 10),
			Signin:        getEnvAsInt("RATE_LIMIT_SIGNIN", 15),
			Refresh:       getEnvAsInt("RATE_LIMIT_REFRESH", 20),
			ResendOTP:     getEnvAsInt("RATE_LIMIT_RESEND_OTP", 3),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks key material and enumerated settings.
func (c *Config) Validate() error {
	var errs []error

	secrets := map[string]string{
		"AUTH_ACCESS_TOKEN_SECRET":  c.Auth.AccessTokenSecret,
		"AUTH_REFRESH_TOKEN_SECRET": c.Auth.RefreshTokenSecret,
		"AUTH_PENDING_TOKEN_SECRET": c.Auth.PendingTokenSecret,
	}
	seen := make(map[string]string, len(secrets))
	for _, name := range []string{"AUTH_ACCESS_TOKEN_SECRET", "AUTH_REFRESH_TOKEN_SECRET", "AUTH_PENDING_TOKEN_SECRET"} {
		val := secrets[name]
		if val == "" {
			errs = append(errs, fmt.Errorf("%s is required", name))
			continue
		}
		if other, dup := seen[val]; dup {
			errs = append(errs, fmt.Errorf("%s must differ from %s", name, other))
			continue
		}
		seen[val] = name
	}

	if key, err := hex.DecodeString(c.Auth.EncryptionKey); err != nil || len(key) != 32 {
		errs = append(errs, errors.New("AUTH_ENCRYPTION_KEY must be 64 hex characters (32 bytes)"))
	}

	switch c.Session.Backend {
	case SessionBackendRedis, SessionBackendMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown SESSION_BACKEND %q", c.Session.Backend))
	}

	if c.Auth.OTPPeriodSeconds <= 0 {
		errs = append(errs, errors.New("AUTH_OTP_PERIOD_SECONDS must be positive"))
	}

	return errors.Join(errs...)
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// IsProduction reports whether the service runs with production settings.
func (a AppConfig) IsProduction() bool {
	return a.Env == "production"
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// AccessTokenTTL returns the access token lifetime.
func (a AuthConfig) AccessTokenTTL() time.Duration {
	return minutes(a.AccessTokenTTLMinutes, 15)
}

// RefreshTokenTTL returns the refresh token lifetime.
func (a AuthConfig) RefreshTokenTTL() time.Duration {
	return minutes(a.RefreshTokenTTLMinutes, 7*24*60)
}

// PendingTokenTTL returns the pending (2FA) token lifetime.
func (a AuthConfig) PendingTokenTTL() time.Duration {
	return minutes(a.PendingTokenTTLMinutes, 5)
}

// Window returns the rate limiting window.
func (r RateLimitConfig) Window() time.Duration {
	return minutes(r.WindowMinutes, 15)
}

func minutes(val, fallback int) time.Duration {
	if val <= 0 {
		val = fallback
	}
	return time.Duration(val) * time.Minute
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
