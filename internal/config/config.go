package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration required by the API process.
// Values come from env; a .env file in the working directory is loaded first
// when present and never overrides variables already set.
// No business logic should depend on raw environment variables.
type Config struct {
	App    AppConfig
	Retell RetellConfig
	DB     DBConfig
	Redis  RedisConfig
	Auth   AuthConfig
}

type AppConfig struct {
	Env  string
	Port int
}

type RetellConfig struct {
	APIKey     string
	FromNumber string
	AgentID    string
	BaseURL    string

	// WebhookVerifyKey signs webhook bodies. Without it no signature can be
	// validated and signed deliveries are rejected.
	WebhookVerifyKey string
	// AllowUnsigned accepts deliveries that carry no signature header at all.
	// Local development only.
	AllowUnsigned bool

	// Timeout bounds every outbound provider request. No retries are made.
	Timeout time.Duration
}

// DBConfig enables the Postgres webhook journal when Host is set.
type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// Accepts: disable, require, verify-ca, verify-full
	SSLMode string

	// MaxOpenConns bounds the journal's pool; 0 keeps the pool default.
	MaxOpenConns int
}

// RedisConfig enables the outbound call concurrency cap when Host is set.
type RedisConfig struct {
	Host string
	Port int

	// OutboundCallLimit caps concurrent create-call requests across replicas.
	OutboundCallLimit int
}

// AuthConfig enables bearer auth on the calls API when JWTSecret is set.
type AuthConfig struct {
	JWTSecret      string
	JWTIssuer      string
	JWTAudience    string
	AccessTokenTTL time.Duration
}

const (
	defaultPort          = 8000
	defaultRetellBaseURL = "https://api.retellai.com"
	defaultRetellTimeout = 30 * time.Second
)

func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	c := Config{}
	var parseErrs []error

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	c.App.Port, parseErrs = optionalInt(parseErrs, "APP_PORT")

	c.Retell.APIKey = os.Getenv("RETELL_API_KEY")
	c.Retell.FromNumber = strings.TrimSpace(os.Getenv("RETELL_FROM_NUMBER"))
	c.Retell.AgentID = strings.TrimSpace(os.Getenv("RETELL_AGENT_ID"))
	c.Retell.BaseURL = strings.TrimSpace(os.Getenv("RETELL_BASE_URL"))
	c.Retell.WebhookVerifyKey = os.Getenv("RETELL_WEBHOOK_VERIFY_KEY")
	c.Retell.AllowUnsigned, parseErrs = optionalBool(parseErrs, "RETELL_WEBHOOK_ALLOW_UNSIGNED")
	c.Retell.Timeout, parseErrs = optionalDuration(parseErrs, "RETELL_TIMEOUT")

	c.DB.Host = strings.TrimSpace(os.Getenv("DB_HOST"))
	c.DB.Port, parseErrs = optionalInt(parseErrs, "DB_PORT")
	c.DB.User = strings.TrimSpace(os.Getenv("DB_USER"))
	c.DB.Password = os.Getenv("DB_PASSWORD")
	c.DB.Name = strings.TrimSpace(os.Getenv("DB_NAME"))
	c.DB.SSLMode = strings.TrimSpace(os.Getenv("DB_SSLMODE"))
	c.DB.MaxOpenConns, parseErrs = optionalInt(parseErrs, "DB_MAX_OPEN_CONNS")

	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	c.Redis.Port, parseErrs = optionalInt(parseErrs, "REDIS_PORT")
	c.Redis.OutboundCallLimit, parseErrs = optionalInt(parseErrs, "OUTBOUND_CALL_LIMIT")

	c.Auth, parseErrs = readAuth(parseErrs)

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// LoadAuth reads only the AUTH_* variables. Token tooling uses it so it
// doesn't need the provider settings the API server requires.
func LoadAuth() (AuthConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return AuthConfig{}, fmt.Errorf("load .env: %w", err)
	}
	a, errs := readAuth(nil)
	if err := joinErrors(errs); err != nil {
		return AuthConfig{}, err
	}
	if a.AccessTokenTTL <= 0 {
		a.AccessTokenTTL = 12 * time.Hour
	}
	return a, nil
}

func readAuth(errs []error) (AuthConfig, []error) {
	a := AuthConfig{
		JWTSecret:   os.Getenv("AUTH_JWT_SECRET"),
		JWTIssuer:   strings.TrimSpace(os.Getenv("AUTH_JWT_ISSUER")),
		JWTAudience: strings.TrimSpace(os.Getenv("AUTH_JWT_AUDIENCE")),
	}
	a.AccessTokenTTL, errs = optionalDuration(errs, "AUTH_ACCESS_TTL")
	return a, errs
}

// Validate checks required values and fills defaults in place.
func (c *Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		c.App.Env = "local"
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port == 0 {
		c.App.Port = defaultPort
	}
	if c.App.Port < 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}

	if c.Retell.APIKey == "" {
		errs = append(errs, errors.New("RETELL_API_KEY is required"))
	}
	if c.Retell.FromNumber == "" {
		errs = append(errs, errors.New("RETELL_FROM_NUMBER is required"))
	}
	if c.Retell.AgentID == "" {
		errs = append(errs, errors.New("RETELL_AGENT_ID is required"))
	}
	if c.Retell.BaseURL == "" {
		c.Retell.BaseURL = defaultRetellBaseURL
	}
	c.Retell.BaseURL = strings.TrimRight(c.Retell.BaseURL, "/")
	if c.Retell.Timeout <= 0 {
		c.Retell.Timeout = defaultRetellTimeout
	}
	if c.Retell.AllowUnsigned && c.IsProduction() {
		errs = append(errs, errors.New("RETELL_WEBHOOK_ALLOW_UNSIGNED must not be set in production"))
	}

	if c.JournalEnabled() {
		if c.DB.Port == 0 {
			c.DB.Port = 5432
		}
		if c.DB.Port < 0 || c.DB.Port > 65535 {
			errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
		}
		if c.DB.User == "" {
			errs = append(errs, errors.New("DB_USER is required when DB_HOST is set"))
		}
		if c.DB.Name == "" {
			errs = append(errs, errors.New("DB_NAME is required when DB_HOST is set"))
		}
		if c.DB.SSLMode == "" {
			if c.IsProduction() {
				errs = append(errs, errors.New("DB_SSLMODE is required in production"))
			} else {
				c.DB.SSLMode = "disable"
			}
		}
		if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
			errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
		}
		if c.DB.MaxOpenConns < 0 {
			errs = append(errs, fmt.Errorf("DB_MAX_OPEN_CONNS must be >= 0, got %d", c.DB.MaxOpenConns))
		}
	}

	if c.CallCapEnabled() {
		if c.Redis.Port == 0 {
			c.Redis.Port = 6379
		}
		if c.Redis.Port < 0 || c.Redis.Port > 65535 {
			errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
		}
		if c.Redis.OutboundCallLimit <= 0 {
			errs = append(errs, errors.New("OUTBOUND_CALL_LIMIT must be > 0 when REDIS_HOST is set"))
		}
	}

	if c.AuthEnabled() {
		if c.IsProduction() && c.Auth.JWTIssuer == "" {
			errs = append(errs, errors.New("AUTH_JWT_ISSUER is required in production"))
		}
		if c.Auth.AccessTokenTTL <= 0 {
			c.Auth.AccessTokenTTL = 12 * time.Hour
		}
	} else if c.IsProduction() {
		errs = append(errs, errors.New("AUTH_JWT_SECRET is required in production"))
	}

	return joinErrors(errs)
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) JournalEnabled() bool { return c.DB.Host != "" }

func (c Config) CallCapEnabled() bool { return c.Redis.Host != "" }

func (c Config) AuthEnabled() bool { return c.Auth.JWTSecret != "" }

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c Config) PostgresDSN() string {
	// Avoid logging this string; it contains secrets.
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func optionalInt(errs []error, key string) (int, []error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, errs
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, append(errs, fmt.Errorf("%s must be an integer, got %q", key, v))
	}
	return n, errs
}

func optionalBool(errs []error, key string) (bool, []error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return false, errs
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, append(errs, fmt.Errorf("%s must be a boolean, got %q", key, v))
	}
	return b, errs
}

func optionalDuration(errs []error, key string) (time.Duration, []error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, errs
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, append(errs, fmt.Errorf("%s must be a duration, got %q", key, v))
	}
	return d, errs
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
