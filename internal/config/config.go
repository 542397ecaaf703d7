package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	AppName     string
	Env         string
	Host        string
	Port        int
	DBDriver    string
	DatabaseURL string

	JWTSecret          string
	AccessTokenMinutes int
	EncryptKey         string
	LegacyEncryptKeys  []string

	CORSOrigins []string
	Debug       bool

	// Delivery pipeline
	MessagesPerMinute int

	LoginAttemptsPerMinute int

	// Presence and maintenance
	PresenceStaleAfter  time.Duration
	MaintenanceInterval time.Duration

	// Offline queue
	OfflineQueueCapacity int
	OfflineQueueMaxUsers int
	OfflineQueueTTL      time.Duration

	TypingTimeout time.Duration

	// Push channel; empty URL logs notifications instead of sending them.
	PushURL     string
	PushTimeout time.Duration
}

func Load() (*Config, error) {
	dbHost := getEnv("POSTGRES_HOST", "localhost")
	dbPort := getEnv("POSTGRES_PORT", "5432")
	dbUser := getEnv("POSTGRES_USER", "postgres")
	dbPass := getEnv("POSTGRES_PASSWORD", "postgres")
	dbName := getEnv("POSTGRES_DB", "aphila")

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(dbUser, dbPass),
		Host:     fmt.Sprintf("%s:%s", dbHost, dbPort),
		Path:     dbName,
		RawQuery: "sslmode=disable",
	}

	cfg := &Config{
		AppName:  getEnv("APP_NAME", "aphila realtime gateway"),
		Env:      getEnv("APP_ENV", "development"),
		Host:     getEnv("HTTP_HOST", "0.0.0.0"),
		Port:     getEnvAsInt("HTTP_PORT", 8000),
		DBDriver: strings.ToLower(getEnv("DB_DRIVER", "postgres")),

		JWTSecret:          os.Getenv("JWT_SECRET"),
		AccessTokenMinutes: getEnvAsInt("ACCESS_TOKEN_EXPIRE_MINUTES", 60*24),
		EncryptKey:         os.Getenv("ENCRYPTION_KEY"),
		LegacyEncryptKeys:  splitList(os.Getenv("LEGACY_ENCRYPTION_KEYS")),

		Debug: getEnvAsBool("DEBUG", true),

		MessagesPerMinute: getEnvAsInt("MESSAGES_PER_MINUTE", 60),

		LoginAttemptsPerMinute: getEnvAsInt("LOGIN_ATTEMPTS_PER_MINUTE", 10),

		PresenceStaleAfter:  getEnvAsDuration("PRESENCE_STALE_AFTER", 5*time.Minute),
		MaintenanceInterval: getEnvAsDuration("MAINTENANCE_INTERVAL", 5*time.Minute),

		OfflineQueueCapacity: getEnvAsInt("OFFLINE_QUEUE_CAPACITY", 100),
		OfflineQueueMaxUsers: getEnvAsInt("OFFLINE_QUEUE_MAX_USERS", 10000),
		OfflineQueueTTL:      getEnvAsDuration("OFFLINE_QUEUE_TTL", 24*time.Hour),

		TypingTimeout: getEnvAsDuration("TYPING_TIMEOUT", 3*time.Second),

		PushURL:     getEnv("PUSH_URL", ""),
		PushTimeout: getEnvAsDuration("PUSH_TIMEOUT", 5*time.Second),
	}

	switch cfg.DBDriver {
	case "postgres":
		cfg.DatabaseURL = u.String()
	case "sqlite":
		cfg.DatabaseURL = getEnv("SQLITE_PATH", "aphila.db")
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.DBDriver)
	}

	if origins := splitList(getEnv("CORS_ORIGINS", "")); len(origins) > 0 {
		cfg.CORSOrigins = origins
	} else {
		cfg.CORSOrigins = []string{"http://localhost:3000", "http://localhost:5173"}
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.EncryptKey == "" {
		return nil, fmt.Errorf("ENCRYPTION_KEY is required")
	}
	for name, v := range map[string]int{
		"MESSAGES_PER_MINUTE":       cfg.MessagesPerMinute,
		"LOGIN_ATTEMPTS_PER_MINUTE": cfg.LoginAttemptsPerMinute,
		"OFFLINE_QUEUE_CAPACITY":    cfg.OfflineQueueCapacity,
		"OFFLINE_QUEUE_MAX_USERS":   cfg.OfflineQueueMaxUsers,
	} {
		if v <= 0 {
			return nil, fmt.Errorf("%s must be positive", name)
		}
	}
	for name, d := range map[string]time.Duration{
		"PRESENCE_STALE_AFTER": cfg.PresenceStaleAfter,
		"MAINTENANCE_INTERVAL": cfg.MaintenanceInterval,
		"OFFLINE_QUEUE_TTL":    cfg.OfflineQueueTTL,
		"TYPING_TIMEOUT":       cfg.TypingTimeout,
		"PUSH_TIMEOUT":         cfg.PushTimeout,
	} {
		if d <= 0 {
			return nil, fmt.Errorf("%s must be positive", name)
		}
	}

	return cfg, nil
}

func (c *Config) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvAsInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvAsBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getEnvAsDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
