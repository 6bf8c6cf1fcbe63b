package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/spec-kit/mentor-ticket-service/internal/domain"
	"github.com/spec-kit/mentor-ticket-service/internal/sla"
)

// Storage drivers.
const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App        AppConfig
	Storage    StorageConfig
	Postgres   PostgresConfig
	Redis      RedisConfig
	Logger     LoggerConfig
	Auth       AuthConfig
	SLA        SLAConfig
	Triage     TriageConfig
	Escalation EscalationConfig
	RateLimit  RateLimitConfig
	Telemetry  TelemetryConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// StorageConfig selects the ticket store.
type StorageConfig struct {
	Driver string
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	MigrationsDir  string
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Enabled         bool
	Addr            string
	Password        string
	DB              int
	EventsChannel   string
	ProfileCacheTTL time.Duration
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines authentication parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
	ChatServiceKeyHash    string
	BcryptCost            int
}

// SLAConfig holds resolution windows per priority.
type SLAConfig struct {
	UrgentHours     float64
	HighHours       float64
	MediumHours     float64
	LowHours        float64
	AtRiskFraction  float64
	MonitorInterval time.Duration
}

// TriageConfig overrides triage recognition sets.
type TriageConfig struct {
	CrisisScenarios []string
}

// EscalationConfig tunes the chat bridge.
type EscalationConfig struct {
	DedupWindow         time.Duration
	MaxDescriptionChars int
}

// RateLimitConfig bounds per-client request rates. RPS <= 0 disables limiting.
type RateLimitConfig struct {
	RPS   float64
	Burst int
}

// TelemetryConfig controls OpenTelemetry exporters.
type TelemetryConfig struct {
	Enabled      bool
	Stdout       bool
	OTLPEndpoint string
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	dsn := os.Getenv("POSTGRES_DSN")
	driver := StorageMemory
	if dsn != "" {
		driver = StoragePostgres
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "mentor-ticket-service"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Storage: StorageConfig{
			Driver: strings.ToLower(getEnv("STORAGE_DRIVER", driver)),
		},
		Postgres: PostgresConfig{
			DSN:            dsn,
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			MigrationsDir:  getEnv("POSTGRES_MIGRATIONS_DIR", "migrations"),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Enabled:         getEnvAsBool("REDIS_ENABLED", false),
			Addr:            getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password:        os.Getenv("REDIS_PASSWORD"),
			DB:              redisDB,
			EventsChannel:   getEnv("REDIS_EVENTS_CHANNEL", "ticket-events"),
			ProfileCacheTTL: time.Duration(getEnvAsInt("REDIS_PROFILE_CACHE_TTL_SECONDS", 300)) * time.Second,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
			ChatServiceKeyHash:    os.Getenv("AUTH_CHAT_SERVICE_KEY_HASH"),
			BcryptCost:            getEnvAsInt("AUTH_BCRYPT_COST", 12),
		},
		SLA: SLAConfig{
			UrgentHours:     getEnvAsFloat("SLA_URGENT_HOURS", 2),
			HighHours:       getEnvAsFloat("SLA_HIGH_HOURS", 8),
			MediumHours:     getEnvAsFloat("SLA_MEDIUM_HOURS", 24),
			LowHours:        getEnvAsFloat("SLA_LOW_HOURS", 72),
			AtRiskFraction:  getEnvAsFloat("SLA_AT_RISK_FRACTION", sla.DefaultAtRiskFraction),
			MonitorInterval: time.Duration(getEnvAsInt("SLA_MONITOR_INTERVAL_SECONDS", 60)) * time.Second,
		},
		Triage: TriageConfig{
			CrisisScenarios: getEnvAsList("TRIAGE_CRISIS_SCENARIOS"),
		},
		Escalation: EscalationConfig{
			DedupWindow:         time.Duration(getEnvAsInt("ESCALATION_DEDUP_WINDOW_MINUTES", 10)) * time.Minute,
			MaxDescriptionChars: getEnvAsInt("ESCALATION_MAX_DESCRIPTION_CHARS", 2000),
		},
		RateLimit: RateLimitConfig{
			RPS:   getEnvAsFloat("RATE_LIMIT_RPS", 20),
			Burst: getEnvAsInt("RATE_LIMIT_BURST", 40),
		},
		Telemetry: TelemetryConfig{
			Enabled:      getEnvAsBool("TELEMETRY_ENABLED", false),
			Stdout:       getEnvAsBool("TELEMETRY_STDOUT", false),
			OTLPEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the service cannot run with.
func (c *Config) Validate() error {
	var errs []error
	switch c.Storage.Driver {
	case StorageMemory:
	case StoragePostgres:
		if c.Postgres.DSN == "" {
			errs = append(errs, errors.New("STORAGE_DRIVER=postgres requires POSTGRES_DSN"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORAGE_DRIVER %q", c.Storage.Driver))
	}
	if err := c.SLAPolicy().Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Escalation.DedupWindow <= 0 {
		errs = append(errs, errors.New("ESCALATION_DEDUP_WINDOW_MINUTES must be positive"))
	}
	if c.Escalation.MaxDescriptionChars <= 0 {
		errs = append(errs, errors.New("ESCALATION_MAX_DESCRIPTION_CHARS must be positive"))
	}
	if c.SLA.MonitorInterval <= 0 {
		errs = append(errs, errors.New("SLA_MONITOR_INTERVAL_SECONDS must be positive"))
	}
	return errors.Join(errs...)
}

// SLAPolicy builds the deadline policy from the configured windows.
func (c *Config) SLAPolicy() sla.Policy {
	return sla.Policy{
		Durations: map[domain.TicketPriority]time.Duration{
			domain.TicketPriorityUrgent: hours(c.SLA.UrgentHours),
			domain.TicketPriorityHigh:   hours(c.SLA.HighHours),
			domain.TicketPriorityMedium: hours(c.SLA.MediumHours),
			domain.TicketPriorityLow:    hours(c.SLA.LowHours),
		},
		AtRiskFraction: c.SLA.AtRiskFraction,
	}
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// AccessTokenTTL returns the mentor token lifetime.
func (a AuthConfig) AccessTokenTTL() time.Duration {
	return time.Duration(a.AccessTokenTTLMinutes) * time.Minute
}

func hours(h float64) time.Duration {
	return time.Duration(h * float64(time.Hour))
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

func getEnvAsFloat(key string, fallback float64) float64 {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return fallback
	}
	return parsed
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

func getEnvAsList(key string) []string {
	val := os.Getenv(key)
	if val == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
