package config

import (
	"os"
	"strconv"
	"time"

	"chat-sync/pkg/logger"

	"github.com/joho/godotenv"
)

type Config struct {
	Service   ServiceConfig
	Session   SessionConfig
	Sync      SyncConfig
	Transport TransportConfig
	Archive   ArchiveConfig
	LogLevel  string
}

type ServiceConfig struct {
	HTTPURL     string
	WSURL       string
	HTTPTimeout time.Duration
}

// SessionConfig carries credentials captured elsewhere. Either Token or
// UserID/Username/Secret is expected to be set.
type SessionConfig struct {
	Token    string
	UserID   int64
	Username string
	Secret   string
}

type SyncConfig struct {
	PublicRoom         string
	ReconcileWait      time.Duration
	DedupTTL           time.Duration
	DedupSweepInterval time.Duration
}

type TransportConfig struct {
	HandshakeTimeout time.Duration
	PingPeriod       time.Duration
	PongWait         time.Duration
	WriteWait        time.Duration
	ReconnectInitial time.Duration
	ReconnectMax     time.Duration
	SendRate         float64
	SendBurst        int
}

type ArchiveConfig struct {
	DatabaseURL string
}

func Load() *Config {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		logger.Debug("No .env file found or error loading .env file: %v", err)
	}

	return &Config{
		Service: ServiceConfig{
			HTTPURL:     getEnvOrDefault("HTTP_URL", "http://localhost:8080"),
			WSURL:       getEnvOrDefault("WS_URL", "ws://localhost:8080/ws"),
			HTTPTimeout: getDurationOrDefault("HTTP_TIMEOUT", "10s"),
		},
		Session: SessionConfig{
			Token:    os.Getenv("TOKEN"),
			UserID:   int64(getIntOrDefault("USER_ID", 0)),
			Username: os.Getenv("USERNAME"),
			Secret:   os.Getenv("SECRET"),
		},
		Sync: SyncConfig{
			PublicRoom:         getEnvOrDefault("PUBLIC_ROOM", "global"),
			ReconcileWait:      getDurationOrDefault("RECONCILE_WAIT", "1s"),
			DedupTTL:           getDurationOrDefault("DEDUP_TTL", "10s"),
			DedupSweepInterval: getDurationOrDefault("DEDUP_SWEEP_INTERVAL", "5s"),
		},
		Transport: TransportConfig{
			HandshakeTimeout: getDurationOrDefault("HANDSHAKE_TIMEOUT", "10s"),
			PingPeriod:       getDurationOrDefault("PING_PERIOD", "54s"),
			PongWait:         getDurationOrDefault("PONG_WAIT", "60s"),
			WriteWait:        getDurationOrDefault("WRITE_WAIT", "10s"),
			ReconnectInitial: getDurationOrDefault("RECONNECT_INITIAL", "500ms"),
			ReconnectMax:     getDurationOrDefault("RECONNECT_MAX", "30s"),
			SendRate:         getFloatOrDefault("SEND_RATE", 10),
			SendBurst:        getIntOrDefault("SEND_BURST", 20),
		},
		Archive: ArchiveConfig{
			DatabaseURL: os.Getenv("DATABASE_URL"),
		},
		LogLevel: getEnvOrDefault("LOG_LEVEL", "info"),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDurationOrDefault(key, defaultValue string) time.Duration {
	value := getEnvOrDefault(key, defaultValue)
	duration, err := time.ParseDuration(value)
	if err != nil {
		logger.Fatal("Invalid duration for %s: %v", key, err)
	}
	return duration
}

func getIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		logger.Fatal("Invalid integer for %s: %v", key, err)
	}
	return intValue
}

func getFloatOrDefault(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		logger.Fatal("Invalid number for %s: %v", key, err)
	}
	return f
}
