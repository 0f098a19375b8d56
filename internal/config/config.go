// Package config loads the service configuration from the environment and an
// optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/sevigo/peer-warden/internal/logger"
)

// Config holds the application's configuration values.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DBConfig       `mapstructure:"database"`
	Logging  logger.Config  `mapstructure:"logging"`
	Canvas   CanvasConfig   `mapstructure:"canvas"`
	Passback PassbackConfig `mapstructure:"passback"`
	Events   EventsConfig   `mapstructure:"events"`
	Jobs     JobsConfig     `mapstructure:"jobs"`
}

type ServerConfig struct {
	Port           string        `mapstructure:"port"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// DBConfig selects the review store backend. Driver is "postgres" or "sqlite".
type DBConfig struct {
	Driver          string        `mapstructure:"driver"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	SSLMode         string        `mapstructure:"sslmode"`
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
}

// CanvasConfig configures the submission registry backed by the Canvas REST API.
type CanvasConfig struct {
	BaseURL     string `mapstructure:"base_url"`
	APIToken    string `mapstructure:"api_token"`
	PageSize    int    `mapstructure:"page_size"`
	Concurrency int    `mapstructure:"concurrency"`
	// RosterFile is a YAML roster used instead of Canvas when BaseURL is empty.
	RosterFile  string `mapstructure:"roster_file"`
}

// PassbackConfig configures grade delivery. When TokenURL is set the client
// credentials grant is used, otherwise APIToken is sent as a bearer token.
type PassbackConfig struct {
	TokenURL        string        `mapstructure:"token_url"`
	ClientID        string        `mapstructure:"client_id"`
	ClientSecret    string        `mapstructure:"client_secret"`
	Scopes          []string      `mapstructure:"scopes"`
	APIToken        string        `mapstructure:"api_token"`
	SendScore       bool          `mapstructure:"send_score"`
	CompletionScore float64       `mapstructure:"completion_score"`
	MaxAttempts     int           `mapstructure:"max_attempts"`
	BaseDelay       time.Duration `mapstructure:"base_delay"`
	MaxDelay        time.Duration `mapstructure:"max_delay"`
	Timeout         time.Duration `mapstructure:"timeout"`
	ClaimLease      time.Duration `mapstructure:"claim_lease"`
}

type EventsConfig struct {
	AMQPURL    string `mapstructure:"amqp_url"`
	Exchange   string `mapstructure:"exchange"`
	RoutingKey string `mapstructure:"routing_key"`
}

type JobsConfig struct {
	MaxWorkers int `mapstructure:"max_workers"`
	QueueSize  int `mapstructure:"queue_size"`
}

// setDefaults registers every key so that AutomaticEnv can resolve it during Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.request_timeout", 60*time.Second)

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.username", "peerwarden")
	v.SetDefault("database.password", "")
	v.SetDefault("database.database", "peerwarden")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.path", "peer-warden.db")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.conn_max_lifetime", 30*time.Minute)
	v.SetDefault("database.conn_max_idle_time", 5*time.Minute)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.output", "stdout")

	v.SetDefault("canvas.base_url", "")
	v.SetDefault("canvas.api_token", "")
	v.SetDefault("canvas.page_size", 100)
	v.SetDefault("canvas.concurrency", 4)
	v.SetDefault("canvas.roster_file", "")

	v.SetDefault("passback.token_url", "")
	v.SetDefault("passback.client_id", "")
	v.SetDefault("passback.client_secret", "")
	v.SetDefault("passback.scopes", []string{"https://purl.imsglobal.org/spec/lti-ags/scope/score"})
	v.SetDefault("passback.api_token", "")
	v.SetDefault("passback.send_score", true)
	v.SetDefault("passback.completion_score", 1.0)
	v.SetDefault("passback.max_attempts", 3)
	v.SetDefault("passback.base_delay", 500*time.Millisecond)
	v.SetDefault("passback.max_delay", 10*time.Second)
	v.SetDefault("passback.timeout", 15*time.Second)
	v.SetDefault("passback.claim_lease", 5*time.Minute)

	v.SetDefault("events.amqp_url", "")
	v.SetDefault("events.exchange", "peer-review")
	v.SetDefault("events.routing_key", "reviewer.completed")

	v.SetDefault("jobs.max_workers", 4)
	v.SetDefault("jobs.queue_size", 100)
}

// LoadConfig reads configuration from environment variables and a .env file,
// using the global viper instance so that CLI flag bindings apply.
func LoadConfig() (*Config, error) {
	v := viper.GetViper()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			slog.Error("failed to read config file", "error", err)
		}
	}
	return Load(v)
}

// Load builds a Config from an already prepared viper instance. Nested keys are
// resolved from environment variables with dots replaced by underscores, e.g.
// DATABASE_DRIVER or PASSBACK_MAX_ATTEMPTS.
func Load(v *viper.Viper) (*Config, error) {
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.Database.Driver = strings.ToLower(strings.TrimSpace(cfg.Database.Driver))
	cfg.Logging.Level = strings.ToLower(cfg.Logging.Level)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres":
		if c.Database.Host == "" || c.Database.Database == "" {
			return fmt.Errorf("DATABASE_HOST and DATABASE_DATABASE must be set for postgres")
		}
	case "sqlite":
		if c.Database.Path == "" {
			return fmt.Errorf("DATABASE_PATH must be set for sqlite")
		}
	default:
		return fmt.Errorf("unsupported database driver: %q", c.Database.Driver)
	}

	p := c.Passback
	if p.MaxAttempts < 1 {
		return fmt.Errorf("PASSBACK_MAX_ATTEMPTS must be at least 1, got %d", p.MaxAttempts)
	}
	if p.BaseDelay < 0 || p.MaxDelay < p.BaseDelay {
		return fmt.Errorf("PASSBACK_MAX_DELAY (%s) must not be below PASSBACK_BASE_DELAY (%s)", p.MaxDelay, p.BaseDelay)
	}
	if p.CompletionScore < 0 || p.CompletionScore > 1 {
		return fmt.Errorf("PASSBACK_COMPLETION_SCORE must be within [0, 1], got %v", p.CompletionScore)
	}
	if p.TokenURL != "" && p.ClientID == "" {
		return fmt.Errorf("PASSBACK_CLIENT_ID must be set when PASSBACK_TOKEN_URL is used")
	}
	if p.Timeout <= 0 {
		return fmt.Errorf("PASSBACK_TIMEOUT must be positive")
	}
	if budget := p.DeliveryBudget(); p.ClaimLease <= budget {
		return fmt.Errorf("PASSBACK_CLAIM_LEASE (%s) must exceed the worst-case delivery time %s (max attempts x (timeout + max delay))",
			p.ClaimLease, budget)
	}

	if c.Jobs.MaxWorkers < 1 {
		return fmt.Errorf("JOBS_MAX_WORKERS must be at least 1, got %d", c.Jobs.MaxWorkers)
	}
	if c.Canvas.Concurrency < 1 {
		return fmt.Errorf("CANVAS_CONCURRENCY must be at least 1, got %d", c.Canvas.Concurrency)
	}
	return nil
}

// Score returns the score sent with a completed report, or nil when scores are disabled.
func (p PassbackConfig) Score() *float64 {
	if !p.SendScore {
		return nil
	}
	s := p.CompletionScore
	return &s
}

// DeliveryBudget is the longest a single report delivery can take, retries
// and backoff included. A claim lease must outlive it.
func (p PassbackConfig) DeliveryBudget() time.Duration {
	return time.Duration(p.MaxAttempts) * (p.Timeout + p.MaxDelay)
}
