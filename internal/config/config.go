package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Database   DatabaseConfig
	Redis      RedisConfig
	JWT        JWTConfig
	Server     ServerConfig
	Realtime   RealtimeConfig
	Log        LogConfig
	SelfHosted bool
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string //nolint:gosec // G117: DB connection config
	DBName   string
	SSLMode  string
	MaxConns int
}

// RedisConfig holds Redis connection settings. An empty Addr disables the
// board cache.
type RedisConfig struct {
	Addr     string
	Password string //nolint:gosec // G117: Redis connection config
	DB       int
	BoardTTL time.Duration
}

// JWTConfig holds JWT authentication settings.
type JWTConfig struct {
	Secret     string //nolint:gosec // G117: JWT signing secret config
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	CORSOrigins     []string
	RateLimit       float64
	RateBurst       int
}

// RealtimeConfig tunes the websocket endpoint.
type RealtimeConfig struct {
	QueueSize    int
	MaxTopics    int
	PingInterval time.Duration
	WriteTimeout time.Duration
	ReadLimit    int64
	InboundRate  float64
	InboundBurst int
}

type LogConfig struct {
	Level  string
	Format string // "json" or "console"
}

// Load reads configuration from environment variables.
// Defaults are safe for local development only. In production,
// sensitive values (JWT secret, DB password) must be set explicitly.
func Load() (*Config, error) {
	p := &parser{}

	cfg := &Config{
		Database: DatabaseConfig{
			Host:     getEnv("BOARDSYNC_DB_HOST", "localhost"),
			Port:     p.int("BOARDSYNC_DB_PORT", 5432),
			User:     getEnv("BOARDSYNC_DB_USER", "boardsync"),
			Password: getEnv("BOARDSYNC_DB_PASSWORD", ""),
			DBName:   getEnv("BOARDSYNC_DB_NAME", "boardsync_dev"),
			SSLMode:  getEnv("BOARDSYNC_DB_SSLMODE", "disable"),
			MaxConns: p.int("BOARDSYNC_DB_MAX_CONNS", 25),
		},
		Redis: RedisConfig{
			Addr:     getEnv("BOARDSYNC_REDIS_ADDR", "localhost:6379"),
			Password: getEnv("BOARDSYNC_REDIS_PASSWORD", ""),
			DB:       p.int("BOARDSYNC_REDIS_DB", 0),
			BoardTTL: p.duration("BOARDSYNC_BOARD_CACHE_TTL", 5*time.Minute),
		},
		JWT: JWTConfig{
			Secret:     getEnv("BOARDSYNC_JWT_SECRET", ""),
			AccessTTL:  p.duration("BOARDSYNC_JWT_ACCESS_TTL", 15*time.Minute),
			RefreshTTL: p.duration("BOARDSYNC_JWT_REFRESH_TTL", 7*24*time.Hour),
		},
		Server: ServerConfig{
			Addr:            getEnv("BOARDSYNC_SERVER_ADDR", ":8080"),
			ReadTimeout:     p.duration("BOARDSYNC_SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:    p.duration("BOARDSYNC_SERVER_WRITE_TIMEOUT", 30*time.Second),
			ShutdownTimeout: p.duration("BOARDSYNC_SERVER_SHUTDOWN_TIMEOUT", 15*time.Second),
			CORSOrigins:     getEnvList("BOARDSYNC_CORS_ORIGINS", []string{"http://localhost:5173"}),
			RateLimit:       p.float("BOARDSYNC_RATE_LIMIT", 100),
			RateBurst:       p.int("BOARDSYNC_RATE_BURST", 200),
		},
		Realtime: RealtimeConfig{
			QueueSize:    p.int("BOARDSYNC_WS_QUEUE_SIZE", 64),
			MaxTopics:    p.int("BOARDSYNC_WS_MAX_TOPICS", 256),
			PingInterval: p.duration("BOARDSYNC_WS_PING_INTERVAL", 30*time.Second),
			WriteTimeout: p.duration("BOARDSYNC_WS_WRITE_TIMEOUT", 10*time.Second),
			ReadLimit:    int64(p.int("BOARDSYNC_WS_READ_LIMIT", 64<<10)),
			InboundRate:  p.float("BOARDSYNC_WS_INBOUND_RATE", 20),
			InboundBurst: p.int("BOARDSYNC_WS_INBOUND_BURST", 40),
		},
		Log: LogConfig{
			Level:  getEnv("BOARDSYNC_LOG_LEVEL", "info"),
			Format: getEnv("BOARDSYNC_LOG_FORMAT", "json"),
		},
		SelfHosted: p.bool("BOARDSYNC_SELF_HOSTED", false),
	}

	if p.err != nil {
		return nil, fmt.Errorf("config.Load: %w", p.err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	return cfg, nil
}

// validate checks required fields and value bounds.
func (c *Config) validate() error {
	// JWT secret is required (no insecure default).
	if c.JWT.Secret == "" {
		return errors.New("BOARDSYNC_JWT_SECRET is required")
	}
	if len(c.JWT.Secret) < 32 {
		return errors.New("BOARDSYNC_JWT_SECRET must be at least 32 characters")
	}

	if c.Database.SSLMode == "disable" && !c.SelfHosted {
		log.Warn().Msg("BOARDSYNC_DB_SSLMODE=disable is insecure for production; set to 'require' or 'verify-full'")
	}

	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("BOARDSYNC_DB_PORT must be 1-65535, got %d", c.Database.Port)
	}
	if c.Database.MaxConns < 1 {
		return fmt.Errorf("BOARDSYNC_DB_MAX_CONNS must be >= 1, got %d", c.Database.MaxConns)
	}
	if c.Redis.BoardTTL < 0 {
		return fmt.Errorf("BOARDSYNC_BOARD_CACHE_TTL must not be negative, got %s", c.Redis.BoardTTL)
	}
	if c.JWT.AccessTTL <= 0 {
		return fmt.Errorf("BOARDSYNC_JWT_ACCESS_TTL must be positive, got %s", c.JWT.AccessTTL)
	}
	if c.JWT.RefreshTTL <= 0 {
		return fmt.Errorf("BOARDSYNC_JWT_REFRESH_TTL must be positive, got %s", c.JWT.RefreshTTL)
	}
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("BOARDSYNC_SERVER_READ_TIMEOUT must be positive, got %s", c.Server.ReadTimeout)
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("BOARDSYNC_SERVER_WRITE_TIMEOUT must be positive, got %s", c.Server.WriteTimeout)
	}
	if c.Server.RateLimit <= 0 || c.Server.RateBurst < 1 {
		return fmt.Errorf("BOARDSYNC_RATE_LIMIT and BOARDSYNC_RATE_BURST must be positive, got %v/%d", c.Server.RateLimit, c.Server.RateBurst)
	}
	if c.Realtime.QueueSize < 1 {
		return fmt.Errorf("BOARDSYNC_WS_QUEUE_SIZE must be >= 1, got %d", c.Realtime.QueueSize)
	}
	if c.Realtime.MaxTopics < 1 {
		return fmt.Errorf("BOARDSYNC_WS_MAX_TOPICS must be >= 1, got %d", c.Realtime.MaxTopics)
	}
	if c.Realtime.PingInterval <= 0 || c.Realtime.WriteTimeout <= 0 {
		return errors.New("BOARDSYNC_WS_PING_INTERVAL and BOARDSYNC_WS_WRITE_TIMEOUT must be positive")
	}
	if c.Realtime.InboundRate <= 0 || c.Realtime.InboundBurst < 1 {
		return fmt.Errorf("BOARDSYNC_WS_INBOUND_RATE and BOARDSYNC_WS_INBOUND_BURST must be positive, got %v/%d", c.Realtime.InboundRate, c.Realtime.InboundBurst)
	}
	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("BOARDSYNC_LOG_LEVEL: %w", err)
	}
	if c.Log.Format != "json" && c.Log.Format != "console" {
		return fmt.Errorf("BOARDSYNC_LOG_FORMAT must be json or console, got %q", c.Log.Format)
	}

	return nil
}

// parser collects the first parse error so Load reads as a flat table.
type parser struct {
	err error
}

func (p *parser) int(key string, fallback int) int {
	v, err := getEnvInt(key, fallback)
	p.keep(err)
	return v
}

func (p *parser) float(key string, fallback float64) float64 {
	v, err := getEnvFloat(key, fallback)
	p.keep(err)
	return v
}

func (p *parser) bool(key string, fallback bool) bool {
	v, err := getEnvBool(key, fallback)
	p.keep(err)
	return v
}

func (p *parser) duration(key string, fallback time.Duration) time.Duration {
	v, err := getEnvDuration(key, fallback)
	p.keep(err)
	return v
}

func (p *parser) keep(err error) {
	if err != nil && p.err == nil {
		p.err = err
	}
}

// DSN returns the PostgreSQL connection string.
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as int: %w", key, v, err)
	}
	return n, nil
}

func getEnvFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as float: %w", key, v, err)
	}
	return f, nil
}

func getEnvBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("parsing %s=%q as bool: %w", key, v, err)
	}
	return b, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as duration: %w", key, v, err)
	}
	return d, nil
}

func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
