package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Storage   StorageConfig
	Auth      AuthConfig
	Punch     PunchConfig
	Photo     PhotoConfig
	Feed      FeedConfig
	RateLimit RateLimitConfig
	Logging   LoggingConfig
}

// ServerConfig holds HTTP server configuration. There is deliberately no
// server-level write timeout: it would sever long-lived feed streams, and
// the per-route request timeout already bounds the JSON endpoints.
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	IdleTimeout     time.Duration
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
}

// DatabaseConfig holds PostgreSQL connection configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// StorageConfig holds S3-compatible object storage configuration
type StorageConfig struct {
	Endpoint        string
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
	PresignExpiry   time.Duration
}

// AuthConfig holds operator authentication configuration.
// AdminPasswordHash is a bcrypt hash; plaintext admin passwords are never
// read from the environment.
type AuthConfig struct {
	AdminUsername     string
	AdminPasswordHash string
	JWTSecret         string
	TokenExpiry       time.Duration
	Issuer            string
}

// PunchConfig holds punch-processing configuration
type PunchConfig struct {
	LockoutThreshold int
	LockoutDuration  time.Duration
	DedupeWindow     time.Duration
	Timezone         string
	ResolverWorkers  int
	BcryptCost       int
}

// PhotoConfig holds photo pipeline configuration
type PhotoConfig struct {
	MaxBytes      int64
	MaxDimension  int
	JPEGQuality   int
	UploadTimeout time.Duration
	Workers       int
	QueueSize     int
	MaxRetries    int
}

// FeedConfig holds live feed (SSE) configuration
type FeedConfig struct {
	HeartbeatInterval time.Duration
	ConnectionTimeout time.Duration
	MaxConnections    int
	EventBufferSize   int
}

// RateLimitConfig holds punch endpoint rate limiting configuration
type RateLimitConfig struct {
	Enabled  bool
	Requests int
	Window   time.Duration
}

// LoggingConfig holds structured logging configuration
type LoggingConfig struct {
	Level     string
	Format    string
	Output    string
	AddSource bool
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getEnv("SERVER_PORT", "8080"),
			ReadTimeout:     getDurationEnv("SERVER_READ_TIMEOUT", 15*time.Second),
			IdleTimeout:     getDurationEnv("SERVER_IDLE_TIMEOUT", 60*time.Second),
			RequestTimeout:  getDurationEnv("SERVER_REQUEST_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getDurationEnv("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
			AllowedOrigins:  getSliceEnv("SERVER_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "timeclock"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Storage: StorageConfig{
			Endpoint:        getEnv("STORAGE_ENDPOINT", ""),
			Region:          getEnv("STORAGE_REGION", "auto"),
			Bucket:          getEnv("STORAGE_BUCKET", "timeclock-photos"),
			AccessKeyID:     getEnv("STORAGE_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("STORAGE_SECRET_ACCESS_KEY", ""),
			UsePathStyle:    getBoolEnv("STORAGE_USE_PATH_STYLE", true),
			PresignExpiry:   getDurationEnv("STORAGE_PRESIGN_EXPIRY", 15*time.Minute),
		},
		Auth: AuthConfig{
			AdminUsername:     getEnv("ADMIN_USERNAME", "admin"),
			AdminPasswordHash: getEnv("ADMIN_PASSWORD_HASH", ""),
			JWTSecret:         getEnv("JWT_SECRET", ""),
			TokenExpiry:       getDurationEnv("JWT_EXPIRY", 8*time.Hour),
			Issuer:            getEnv("JWT_ISSUER", "timeclock"),
		},
		Punch: PunchConfig{
			LockoutThreshold: getIntEnv("PUNCH_LOCKOUT_THRESHOLD", 10),
			LockoutDuration:  getDurationEnv("PUNCH_LOCKOUT_DURATION", 60*time.Minute),
			DedupeWindow:     getDurationEnv("PUNCH_DEDUPE_WINDOW", 5*time.Second),
			Timezone:         getEnv("PUNCH_TIMEZONE", "Asia/Bangkok"),
			ResolverWorkers:  getIntEnv("PUNCH_RESOLVER_WORKERS", 8),
			BcryptCost:       getIntEnv("PUNCH_BCRYPT_COST", 12),
		},
		Photo: PhotoConfig{
			MaxBytes:      int64(getIntEnv("PHOTO_MAX_BYTES", 10*1024*1024)),
			MaxDimension:  getIntEnv("PHOTO_MAX_DIMENSION", 1280),
			JPEGQuality:   getIntEnv("PHOTO_JPEG_QUALITY", 80),
			UploadTimeout: getDurationEnv("PHOTO_UPLOAD_TIMEOUT", 30*time.Second),
			Workers:       getIntEnv("PHOTO_WORKERS", 2),
			QueueSize:     getIntEnv("PHOTO_QUEUE_SIZE", 64),
			MaxRetries:    getIntEnv("PHOTO_MAX_RETRIES", 3),
		},
		Feed: FeedConfig{
			HeartbeatInterval: getDurationEnv("FEED_HEARTBEAT_INTERVAL", 30*time.Second),
			ConnectionTimeout: getDurationEnv("FEED_CONNECTION_TIMEOUT", 1*time.Hour),
			MaxConnections:    getIntEnv("FEED_MAX_CONNECTIONS", 10),
			EventBufferSize:   getIntEnv("FEED_EVENT_BUFFER_SIZE", 500),
		},
		RateLimit: RateLimitConfig{
			Enabled:  getBoolEnv("RATE_LIMIT_ENABLED", true),
			Requests: getIntEnv("RATE_LIMIT_REQUESTS", 30),
			Window:   getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),
		},
		Logging: LoggingConfig{
			Level:     getEnv("LOG_LEVEL", "info"),
			Format:    getEnv("LOG_FORMAT", "json"),
			Output:    getEnv("LOG_OUTPUT", "stdout"),
			AddSource: getBoolEnv("LOG_ADD_SOURCE", false),
		},
	}
}

// Validate checks that the configuration can run a server. Called once at
// startup; a misconfigured terminal should refuse to boot rather than fail
// its first punch.
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.Auth.AdminPasswordHash == "" {
		return fmt.Errorf("ADMIN_PASSWORD_HASH is required")
	}
	if c.Database.DBName == "" {
		return fmt.Errorf("DB_NAME is required")
	}
	if c.Punch.LockoutThreshold < 1 {
		return fmt.Errorf("PUNCH_LOCKOUT_THRESHOLD must be at least 1, got %d", c.Punch.LockoutThreshold)
	}
	if c.Punch.LockoutDuration <= 0 {
		return fmt.Errorf("PUNCH_LOCKOUT_DURATION must be positive, got %s", c.Punch.LockoutDuration)
	}
	if c.Punch.DedupeWindow < 0 {
		return fmt.Errorf("PUNCH_DEDUPE_WINDOW must not be negative, got %s", c.Punch.DedupeWindow)
	}
	if c.Punch.ResolverWorkers < 1 {
		return fmt.Errorf("PUNCH_RESOLVER_WORKERS must be at least 1, got %d", c.Punch.ResolverWorkers)
	}
	if c.Punch.BcryptCost < 4 || c.Punch.BcryptCost > 31 {
		return fmt.Errorf("PUNCH_BCRYPT_COST must be between 4 and 31, got %d", c.Punch.BcryptCost)
	}
	if _, err := c.Punch.Location(); err != nil {
		return err
	}
	if c.Photo.JPEGQuality < 1 || c.Photo.JPEGQuality > 100 {
		return fmt.Errorf("PHOTO_JPEG_QUALITY must be between 1 and 100, got %d", c.Photo.JPEGQuality)
	}
	if c.Storage.Endpoint != "" && c.Storage.Bucket == "" {
		return fmt.Errorf("STORAGE_BUCKET is required when STORAGE_ENDPOINT is set")
	}
	return nil
}

// DSN returns the PostgreSQL connection string
func (d *DatabaseConfig) DSN() string {
	return "host=" + d.Host +
		" port=" + d.Port +
		" user=" + d.User +
		" password=" + d.Password +
		" dbname=" + d.DBName +
		" sslmode=" + d.SSLMode
}

// Location loads the configured business timezone.
func (p *PunchConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid PUNCH_TIMEZONE %q: %w", p.Timezone, err)
	}
	return loc, nil
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getIntEnv returns integer from environment variable or default
func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

// getBoolEnv returns boolean from environment variable or default
func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getDurationEnv returns duration from environment variable or default.
// Accepts Go duration strings ("90s", "60m") or a bare number of seconds.
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		if secs, err := strconv.Atoi(value); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultValue
}

// getSliceEnv returns a comma-separated list from environment variable or default
func getSliceEnv(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return defaultValue
}
