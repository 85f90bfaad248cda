package internal

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
)

const EnvProduction = "production"

type Config struct {
	Environment   string              `mapstructure:"environment" envconfig:"APP_ENV" validate:"required,oneof=development test staging production"`
	Server        ServerConfig        `mapstructure:"http_server" envconfig:"HTTP"`
	Database      DatabaseConfig      `mapstructure:"database" envconfig:"DB"`
	Redis         RedisConfig         `mapstructure:"redis" envconfig:"REDIS"`
	Security      SecurityConfig      `mapstructure:"security" envconfig:"SECURITY"`
	Authorization AuthorizationConfig `mapstructure:"authorization" envconfig:"AUTHZ"`
	Observability ObservabilityConfig `mapstructure:"observability" envconfig:"OBSERVABILITY"`
}

type ServerConfig struct {
	Port              int           `mapstructure:"port" envconfig:"PORT" validate:"min=1,max=65535"`
	BaseURL           string        `mapstructure:"base_url" envconfig:"BASE_URL"`
	AllowedOrigins    string        `mapstructure:"allowed_origins" envconfig:"ALLOWED_ORIGINS"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" envconfig:"READ_HEADER_TIMEOUT"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout" envconfig:"READ_TIMEOUT"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout" envconfig:"IDLE_TIMEOUT"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout" envconfig:"WRITE_TIMEOUT"`
	LoginRateLimit    int           `mapstructure:"login_rate_limit" envconfig:"LOGIN_RATE_LIMIT" validate:"min=1"`
	LoginRateWindow   time.Duration `mapstructure:"login_rate_window" envconfig:"LOGIN_RATE_WINDOW" validate:"min=1s"`
	// TrustProxyHeaders takes the client address from X-Forwarded-For and
	// X-Real-IP. Only enable it behind a proxy that overwrites them.
	TrustProxyHeaders bool          `mapstructure:"trust_proxy_headers" envconfig:"TRUST_PROXY_HEADERS"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver" envconfig:"DRIVER" validate:"required,oneof=postgres sqlite"`
	Source          string        `mapstructure:"source" envconfig:"SOURCE" validate:"required"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" envconfig:"MAX_OPEN_CONNS" validate:"required,min=1"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" envconfig:"MAX_IDLE_CONNS" validate:"required,min=1"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" envconfig:"CONN_MAX_LIFETIME" validate:"required,min=1m"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time" envconfig:"CONN_MAX_IDLE_TIME" validate:"required,min=1m"`
	AutoMigrate     bool          `mapstructure:"auto_migrate" envconfig:"AUTO_MIGRATE"`
}

type RedisConfig struct {
	Enabled   bool   `mapstructure:"enabled" envconfig:"ENABLED"`
	Addr      string `mapstructure:"addr" envconfig:"ADDR" validate:"required_if=Enabled true"`
	Password  string `mapstructure:"password" envconfig:"PASSWORD"`
	DB        int    `mapstructure:"db" envconfig:"DB" validate:"min=0"`
	KeyPrefix string `mapstructure:"key_prefix" envconfig:"KEY_PREFIX" validate:"required"`
}

type SecurityConfig struct {
	JWTSecret                 string        `mapstructure:"jwt_secret" envconfig:"JWT_SECRET"`
	JWTIssuer                 string        `mapstructure:"jwt_issuer" envconfig:"JWT_ISSUER"`
	AccessTokenDuration       time.Duration `mapstructure:"access_token_duration" envconfig:"ACCESS_TOKEN_DURATION" validate:"required,min=1m,max=1h"`
	RefreshTokenDuration      time.Duration `mapstructure:"refresh_token_duration" envconfig:"REFRESH_TOKEN_DURATION" validate:"required,min=1h"`
	RememberMeRefreshDuration time.Duration `mapstructure:"remember_me_refresh_duration" envconfig:"REMEMBER_ME_REFRESH_DURATION" validate:"required,min=1h"`
	BCryptCost                int           `mapstructure:"bcrypt_cost" envconfig:"BCRYPT_COST" validate:"required,min=4,max=15"`
	MaxLoginAttempts          int           `mapstructure:"max_login_attempts" envconfig:"MAX_LOGIN_ATTEMPTS" validate:"required,min=1"`
	LockoutDuration           time.Duration `mapstructure:"lockout_duration" envconfig:"LOCKOUT_DURATION" validate:"required,min=1m"`
	AttemptWindow             time.Duration `mapstructure:"attempt_window" envconfig:"ATTEMPT_WINDOW" validate:"required,min=1m"`
}

type AuthorizationConfig struct {
	CacheTTL         time.Duration `mapstructure:"cache_ttl" envconfig:"CACHE_TTL" validate:"required,min=1s"`
	CacheBackend     string        `mapstructure:"cache_backend" envconfig:"CACHE_BACKEND" validate:"required,oneof=memory redis"`
	BlacklistBackend string        `mapstructure:"blacklist_backend" envconfig:"BLACKLIST_BACKEND" validate:"required,oneof=memory redis"`
}

type ObservabilityConfig struct {
	Metrics MetricsConfig `mapstructure:"metrics" envconfig:"METRICS"`
	Logging LoggingConfig `mapstructure:"logging" envconfig:"LOGGING"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" envconfig:"ENABLED"`
	Path    string `mapstructure:"path" envconfig:"PATH" validate:"required_if=Enabled true"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" envconfig:"LEVEL" validate:"required,oneof=debug info warn error"`
	Format string `mapstructure:"format" envconfig:"FORMAT" validate:"required,oneof=json text"`
}

// DefaultConfig is the baseline both loaders start from; file or env values
// override individual fields.
func DefaultConfig() Config {
	return Config{
		Environment: "development",
		Server: ServerConfig{
			Port:              8080,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			IdleTimeout:       60 * time.Second,
			WriteTimeout:      15 * time.Second,
			LoginRateLimit:    20,
			LoginRateWindow:   time.Minute,
		},
		Database: DatabaseConfig{
			Driver:          "postgres",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
			ConnMaxIdleTime: 5 * time.Minute,
		},
		Redis: RedisConfig{
			KeyPrefix: "rbac",
		},
		Security: SecurityConfig{
			JWTIssuer:                 "rbac-service",
			AccessTokenDuration:       15 * time.Minute,
			RefreshTokenDuration:      7 * 24 * time.Hour,
			RememberMeRefreshDuration: 30 * 24 * time.Hour,
			BCryptCost:                12,
			MaxLoginAttempts:          5,
			LockoutDuration:           30 * time.Minute,
			AttemptWindow:             30 * time.Minute,
		},
		Authorization: AuthorizationConfig{
			CacheTTL:         15 * time.Minute,
			CacheBackend:     "memory",
			BlacklistBackend: "memory",
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{Enabled: true, Path: "/metrics"},
			Logging: LoggingConfig{Level: "info", Format: "text"},
		},
	}
}

// LoadConfigFromEnv reads configuration from environment variables on top of
// DefaultConfig.
func LoadConfigFromEnv() (*Config, error) {
	cfg := DefaultConfig()
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("process env config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) IsProduction() bool {
	return c != nil && c.Environment == EnvProduction
}

// ----------------- VALIDATION -----------------

var structValidator = validator.New(validator.WithRequiredStructEnabled())

func (c *Config) Validate() error {
	var errs []string

	if err := structValidator.Struct(c); err != nil {
		errs = append(errs, err.Error())
	}

	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("server config: %v", err))
	}

	if err := c.Database.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("database config: %v", err))
	}

	if err := c.Security.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("security config: %v", err))
	}

	if err := c.Authorization.Validate(c.Redis); err != nil {
		errs = append(errs, fmt.Sprintf("authorization config: %v", err))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	return nil
}

func (c *ServerConfig) Validate() error {
	if c.AllowedOrigins != "" {
		origins := strings.Split(c.AllowedOrigins, ",")
		for _, origin := range origins {
			origin = strings.TrimSpace(origin)
			if origin == "*" {
				continue
			}
			if _, err := url.Parse(origin); err != nil {
				return fmt.Errorf("invalid allowed origin %s: %w", origin, err)
			}
		}
	}
	if c.ReadTimeout < c.ReadHeaderTimeout {
		return errors.New("read_timeout must be >= read_header_timeout")
	}
	return nil
}

func (c *DatabaseConfig) Validate() error {
	if c.MaxIdleConns > c.MaxOpenConns {
		return errors.New("max_idle_conns cannot be greater than max_open_conns")
	}
	return nil
}

func (c *DatabaseConfig) GetDSN() string {
	return c.Source
}

func (c *SecurityConfig) Validate() error {
	if c.JWTSecret != "" && len(c.JWTSecret) < 32 {
		return errors.New("jwt_secret must be at least 32 characters")
	}
	if c.RememberMeRefreshDuration < c.RefreshTokenDuration {
		return errors.New("remember_me_refresh_duration must be >= refresh_token_duration")
	}
	return nil
}

func (c *AuthorizationConfig) Validate(redis RedisConfig) error {
	if (c.CacheBackend == "redis" || c.BlacklistBackend == "redis") && !redis.Enabled {
		return errors.New("redis backends require redis.enabled")
	}
	return nil
}
