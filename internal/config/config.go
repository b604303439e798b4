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

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	Email     EmailConfig
	Logger    LoggerConfig
	RateLimit RateLimitConfig
}

type ServerConfig struct {
	Port         string
	Environment  string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// AllowOrigins is a comma separated CORS allow list.
	AllowOrigins string
	FrontendFQDN string
}

type DatabaseConfig struct {
	Host         string
	Port         string
	User         string
	Password     string
	DBName       string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	ConnRetries  int
	AutoMigrate  bool
}

type RedisConfig struct {
	// Enabled false keeps consumed tokens in process memory.
	Enabled  bool
	Host     string
	Port     string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret   string
	ResetTTL time.Duration
	// how long consumed single-use tokens are remembered past their expiry
	ConsumedRetention time.Duration
}

type EmailConfig struct {
	Provider    string
	APIKey      string
	Domain      string
	FromEmail   string
	FromName    string
	BaseURL     string
	SendTimeout time.Duration
}

type LoggerConfig struct {
	Level    string
	Encoding string
}

type RateLimitConfig struct {
	LoginPerMinute int
	LoginBurst     int
}

var ErrMissingSecret = errors.New("SECRET_KEY is required")

func Load() (*Config, error) {
	// .env is optional outside development
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:         getEnv("SERVER_PORT", "8000"),
			Environment:  getEnv("ENVIRONMENT", "development"),
			ReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 10*time.Second),
			AllowOrigins: getEnv("CORS_ALLOW_ORIGINS", "*"),
			FrontendFQDN: strings.TrimRight(getEnv("FRONTEND_FQDN", "http://localhost:3000"), "/"),
		},
		Database: DatabaseConfig{
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnv("DB_PORT", "5432"),
			User:         getEnv("DB_USER", "kegtracker"),
			Password:     getEnv("DB_PASSWORD", "kegtracker"),
			DBName:       getEnv("DB_NAME", "kegtracker"),
			SSLMode:      getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns: getIntEnv("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getIntEnv("DB_MAX_IDLE_CONNS", 5),
			ConnRetries:  getIntEnv("DB_CONNECT_RETRIES", 5),
			AutoMigrate:  getBoolEnv("DB_AUTO_MIGRATE", true),
		},
		Redis: RedisConfig{
			Enabled:  getBoolEnv("REDIS_ENABLED", true),
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			Secret:            getEnv("SECRET_KEY", ""),
			ResetTTL:          getDurationEnv("RESET_TOKEN_TTL", 60*time.Minute),
			ConsumedRetention: getDurationEnv("CONSUMED_TOKEN_RETENTION", 30*24*time.Hour),
		},
		Email: EmailConfig{
			Provider:    getEnv("EMAIL_PROVIDER", "log"),
			APIKey:      getEnv("EMAIL_API_KEY", ""),
			Domain:      getEnv("EMAIL_DOMAIN", ""),
			FromEmail:   getEnv("EMAIL_FROM", "noreply@kegtracker.local"),
			FromName:    getEnv("EMAIL_FROM_NAME", "KegTracker"),
			BaseURL:     getEnv("EMAIL_BASE_URL", ""),
			SendTimeout: getDurationEnv("EMAIL_SEND_TIMEOUT", 10*time.Second),
		},
		Logger: LoggerConfig{
			Level:    getEnv("LOG_LEVEL", "info"),
			Encoding: getEnv("LOG_ENCODING", "json"),
		},
		RateLimit: RateLimitConfig{
			LoginPerMinute: getIntEnv("LOGIN_RATE_PER_MINUTE", 10),
			LoginBurst:     getIntEnv("LOGIN_RATE_BURST", 5),
		},
	}

	if cfg.JWT.Secret == "" {
		return nil, ErrMissingSecret
	}
	return cfg, nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
