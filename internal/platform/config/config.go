package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Server captures process level configuration.
type Server struct {
	Addr               string
	LogLevel           string
	LogFormat          string
	AdminToken         string
	WorkflowConfigPath string
	// LedgerServiceURL points at the ledger-report service. Empty selects the
	// in-process simulated ledger.
	LedgerServiceURL string
	LedgerAPIKey     string
	LedgerTimeout    time.Duration
	PostgresDSN      string
	Redis            RedisConfig
	Kafka            KafkaConfig
}

// RedisConfig configures the optional Redis idempotency store.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// ResultTTL bounds how long completed workflow results are replayable.
	ResultTTL time.Duration
}

// KafkaConfig configures the optional audit sink.
type KafkaConfig struct {
	Brokers []string
	Topic   string
	// CreateTopic provisions Topic at startup with the given layout.
	CreateTopic       bool
	Partitions        int
	ReplicationFactor int
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	return Server{
		Addr:               envOr("BSKT_ADDR", ":3001"),
		LogLevel:           envOr("LOG_LEVEL", "info"),
		LogFormat:          envOr("LOG_FORMAT", "json"),
		AdminToken:         os.Getenv("ADMIN_TOKEN"),
		WorkflowConfigPath: envOr("WORKFLOW_CONFIG", "config.yaml"),
		LedgerServiceURL:   os.Getenv("LEDGER_SERVICE_URL"),
		LedgerAPIKey:       os.Getenv("LEDGER_API_KEY"),
		LedgerTimeout:      envDuration("LEDGER_TIMEOUT", 30*time.Second),
		PostgresDSN:        os.Getenv("DATABASE_URL"),
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     envInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
			ResultTTL:    envDuration("IDEMPOTENCY_TTL", 24*time.Hour),
		},
		Kafka: KafkaConfig{
			Brokers: splitList(os.Getenv("KAFKA_BROKERS")),
			Topic:   envOr("KAFKA_AUDIT_TOPIC", "bskt.workflow.audit"),

			CreateTopic:       envBool("KAFKA_CREATE_TOPIC", false),
			Partitions:        envInt("KAFKA_AUDIT_PARTITIONS", 3),
			ReplicationFactor: envInt("KAFKA_AUDIT_REPLICATION", 1),
		},
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
