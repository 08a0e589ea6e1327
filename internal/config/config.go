package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server   ServerConfig
	Feed     FeedConfig
	Dispatch DispatchConfig
	Worker   WorkerConfig
	SMTP     SMTPConfig
	DB       DatabaseConfig
	Logging  LoggingConfig
}

type ServerConfig struct {
	Host           string
	Port           int
	RateLimitRPS   int
	RateLimitBurst int
}

type FeedConfig struct {
	URL       string
	UserAgent string
	Timeout   time.Duration
}

type DispatchConfig struct {
	PollInterval    time.Duration
	SweepInterval   time.Duration
	ExpiryLookahead time.Duration
	AlertsURL       string // link embedded in digests
}

type WorkerConfig struct {
	Count      int
	BufferSize int
}

type SMTPConfig struct {
	Host     string
	Port     int
	From     string
	Username string
	Password string
	// SMSGateway is the carrier email gateway domain used to deliver
	// SMS bodies as number@gateway messages.
	SMSGateway string
}

type DatabaseConfig struct {
	Path string
}

type LoggingConfig struct {
	Level string
}

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:           getEnv("SERVER_HOST", "localhost"),
			Port:           getEnvInt("SERVER_PORT", 8080),
			RateLimitRPS:   getEnvInt("RATE_LIMIT_RPS", 5),
			RateLimitBurst: getEnvInt("RATE_LIMIT_BURST", 10),
		},
		Feed: FeedConfig{
			URL:       getEnv("FEED_URL", "https://api.weather.gov/alerts/active"),
			UserAgent: getEnv("FEED_USER_AGENT", "(weather-notify, ops@stormsignal.dev)"),
			Timeout:   getEnvDuration("FEED_TIMEOUT", 15*time.Second),
		},
		Dispatch: DispatchConfig{
			PollInterval:    getEnvDuration("POLL_INTERVAL", 5*time.Minute),
			SweepInterval:   getEnvDuration("SWEEP_INTERVAL", 10*time.Minute),
			ExpiryLookahead: getEnvDuration("EXPIRY_LOOKAHEAD", 30*time.Minute),
			AlertsURL:       getEnv("ALERTS_URL", "http://localhost:8080/api/alerts"),
		},
		Worker: WorkerConfig{
			Count:      getEnvInt("WORKER_COUNT", 4),
			BufferSize: getEnvInt("WORKER_BUFFER_SIZE", 64),
		},
		SMTP: SMTPConfig{
			Host:       getEnv("SMTP_HOST", "localhost"),
			Port:       getEnvInt("SMTP_PORT", 587),
			From:       getEnv("SMTP_FROM", "alerts@stormsignal.dev"),
			Username:   getEnv("SMTP_USERNAME", ""),
			Password:   getEnv("SMTP_PASSWORD", ""),
			SMSGateway: getEnv("SMS_GATEWAY", "tmomail.net"),
		},
		DB: DatabaseConfig{
			Path: getEnv("DB_PATH", "./data/weather-notify.db"),
		},
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.RateLimitRPS < 1 || c.Server.RateLimitBurst < 1 {
		return fmt.Errorf("rate limit rps and burst must be at least 1")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	if c.Feed.URL == "" {
		return fmt.Errorf("feed URL must not be empty")
	}
	if c.Dispatch.PollInterval < time.Minute {
		return fmt.Errorf("poll interval must be at least 1 minute")
	}
	if c.Dispatch.SweepInterval < time.Minute {
		return fmt.Errorf("sweep interval must be at least 1 minute")
	}
	if c.Dispatch.ExpiryLookahead <= 0 {
		return fmt.Errorf("expiry lookahead must be positive")
	}
	if c.Worker.Count < 1 {
		return fmt.Errorf("worker count must be at least 1")
	}

	return nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return fallback
}
