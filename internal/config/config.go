package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App struct {
		ENV         string
		NodeID      int64
		SeedOnStart bool
	}

	Log struct {
		Level     string
		Format    string
		Component string
		Source    bool
		File      string
	}

	DB struct {
		Driver   string
		DSN      string
		Host     string
		Port     string
		User     string
		Password string
		Name     string
	}

	Redis struct {
		Addr     string
		Password string
		DB       int
	}

	GRPC struct {
		Host string
		Port string
	}

	HTTP struct {
		Host           string
		Port           string
		AllowedOrigins []string
	}

	Auth struct {
		JWTSecret string
		TokenTTL  time.Duration
	}

	Kafka struct {
		Brokers    []string
		PushTopic  string
		BadgeTopic string
	}

	Matching struct {
		DailySignalLimit       int
		ProvisionalSignalQuota int
		MinPhotos              int
	}

	Presence struct {
		TTL           time.Duration
		FanoutEnabled bool
		FanoutChannel string
	}

	Cache struct {
		ConnectionsTTL time.Duration
		HistoryTTL     time.Duration
		PairLockTTL    time.Duration
	}

	Realtime struct {
		EventsPerSecond float64
		EventBurst      int
		SendBuffer      int
	}
}

func New() *Config {
	// .env is optional; real environment always wins.
	_ = godotenv.Load()

	cfg := &Config{}

	cfg.App.ENV = getEnvDefault("APP_ENV", "production")
	// seeding truncates every table, so it is never implied by APP_ENV
	cfg.App.SeedOnStart = isTruthy(os.Getenv("SEED_ON_START"))
	cfg.App.NodeID = int64(getIntDefault("NODE_ID", 1))

	// Logger
	cfg.Log.Level = getEnvDefault("LOG_LEVEL", "info")
	cfg.Log.Format = getEnvDefault("LOG_FORMAT", "json")
	cfg.Log.Component = getEnvDefault("LOG_COMPONENT", "venue_match")
	cfg.Log.Source = isTruthy(os.Getenv("LOG_SOURCE"))
	cfg.Log.File = getEnvDefault("LOG_FILE", "")

	// Database
	cfg.DB.Driver = strings.ToLower(getEnvDefault("DB_DRIVER", "mysql"))
	cfg.DB.DSN = os.Getenv("DB_DSN")
	if cfg.DB.DSN == "" {
		cfg.DB.Host = getEnvDefault("DB_HOST", "localhost")
		cfg.DB.User = getEnvDefault("DB_USER", "root")
		cfg.DB.Password = getEnvDefault("DB_PASSWORD", "root")
		cfg.DB.Name = getEnvDefault("DB_NAME", "venue_match")

		switch cfg.DB.Driver {
		case "postgres":
			cfg.DB.Port = getEnvDefault("DB_PORT", "5432")
			cfg.DB.DSN = fmt.Sprintf(
				"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable TimeZone=UTC",
				cfg.DB.Host, cfg.DB.Port, cfg.DB.User, cfg.DB.Password, cfg.DB.Name,
			)
		case "sqlite":
			cfg.DB.DSN = getEnvDefault("DB_PATH", "venue_match.db")
		default:
			cfg.DB.Port = getEnvDefault("DB_PORT", "3306")
			cfg.DB.DSN = fmt.Sprintf(
				"%s:%s@tcp(%s:%s)/%s?parseTime=true&charset=utf8mb4&loc=UTC",
				cfg.DB.User, cfg.DB.Password, cfg.DB.Host, cfg.DB.Port, cfg.DB.Name,
			)
		}
	}

	// Redis
	cfg.Redis.Addr = getEnvDefault("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnvDefault("REDIS_PASSWORD", "")
	cfg.Redis.DB = getIntDefault("REDIS_DB", 0)

	// gRPC
	cfg.GRPC.Host = getEnvDefault("GRPC_HOST", "127.0.0.1")
	cfg.GRPC.Port = getEnvDefault("GRPC_PORT", "50051")

	// HTTP (websocket upgrade, health, metrics)
	cfg.HTTP.Host = getEnvDefault("HTTP_HOST", "0.0.0.0")
	cfg.HTTP.Port = getEnvDefault("HTTP_PORT", "8080")
	cfg.HTTP.AllowedOrigins = splitCSV(os.Getenv("HTTP_ALLOWED_ORIGINS"))

	// Auth
	cfg.Auth.JWTSecret = getEnvDefault("JWT_SECRET", "dev-secret-change-me")
	cfg.Auth.TokenTTL = getDurationDefault("JWT_TTL", 7*24*time.Hour)

	// Kafka (push + badge dispatch); empty brokers means log-only dispatch
	cfg.Kafka.Brokers = splitCSV(os.Getenv("KAFKA_BROKERS"))
	cfg.Kafka.PushTopic = getEnvDefault("KAFKA_PUSH_TOPIC", "push.notifications")
	cfg.Kafka.BadgeTopic = getEnvDefault("KAFKA_BADGE_TOPIC", "badges.triggers")

	// Matching policy
	cfg.Matching.DailySignalLimit = getIntDefault("DAILY_SIGNAL_LIMIT", 15)
	cfg.Matching.ProvisionalSignalQuota = getIntDefault("PROVISIONAL_SIGNAL_QUOTA", 3)
	cfg.Matching.MinPhotos = getIntDefault("MIN_PHOTOS", 2)

	// Presence
	cfg.Presence.TTL = getDurationDefault("PRESENCE_TTL", 2*time.Hour)
	cfg.Presence.FanoutEnabled = isTruthy(getEnvDefault("PRESENCE_FANOUT", "true"))
	cfg.Presence.FanoutChannel = getEnvDefault("PRESENCE_FANOUT_CHANNEL", "realtime:rooms")

	// Cache
	cfg.Cache.ConnectionsTTL = getDurationDefault("CACHE_CONNECTIONS_TTL", 5*time.Minute)
	cfg.Cache.HistoryTTL = getDurationDefault("CACHE_HISTORY_TTL", 5*time.Minute)
	cfg.Cache.PairLockTTL = getDurationDefault("PAIR_LOCK_TTL", 5*time.Second)

	// Realtime
	cfg.Realtime.EventsPerSecond = getFloatDefault("WS_EVENTS_PER_SECOND", 20)
	cfg.Realtime.EventBurst = getIntDefault("WS_EVENT_BURST", 40)
	cfg.Realtime.SendBuffer = getIntDefault("WS_SEND_BUFFER", 256)

	return cfg
}

func getEnvDefault(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func getIntDefault(k string, def int) int {
	if v, err := strconv.Atoi(getEnvDefault(k, "")); err == nil {
		return v
	}
	return def
}

func getFloatDefault(k string, def float64) float64 {
	if v, err := strconv.ParseFloat(getEnvDefault(k, ""), 64); err == nil {
		return v
	}
	return def
}

func getDurationDefault(k string, def time.Duration) time.Duration {
	if v, err := time.ParseDuration(getEnvDefault(k, "")); err == nil && v > 0 {
		return v
	}
	return def
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func isTruthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "y", "on":
		return true
	}
	return false
}
