package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	stringsutil "veris/pkg/platform/strings"
)

// Server captures process level configuration.
type Server struct {
	Addr          string
	JWTSigningKey string
	JWTIssuer     string
	JWTAudience   string
	PostgresDSN   string
	Redis         RedisConfig
	Kafka         KafkaConfig
	AMQP          AMQPConfig
	// RateLimitPerMinute caps mutations per caller; zero disables limiting.
	RateLimitPerMinute int
	LogLevel           string
}

// RedisConfig holds connection settings for the membership store and
// revocation checks. An empty URL disables Redis entirely.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig holds settings for the Kafka event sink. Empty brokers
// disable the sink.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// AMQPConfig holds settings for the AMQP event sink. An empty URL disables
// the sink.
type AMQPConfig struct {
	URL      string
	Exchange string
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	addr := os.Getenv("VERIS_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	jwtSigningKey := os.Getenv("JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		// Use a default for development - should be overridden in production
		jwtSigningKey = "dev-secret-key-change-in-production"
	}

	topic := os.Getenv("KAFKA_TOPIC")
	if topic == "" {
		topic = "veris.identity.events"
	}

	exchange := os.Getenv("AMQP_EXCHANGE")
	if exchange == "" {
		exchange = "veris.identity"
	}

	return Server{
		Addr:          addr,
		JWTSigningKey: jwtSigningKey,
		JWTIssuer:     envOr("JWT_ISSUER", "veris"),
		JWTAudience:   envOr("JWT_AUDIENCE", "veris-api"),
		PostgresDSN:   os.Getenv("POSTGRES_DSN"),
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     envInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers: envList("KAFKA_BROKERS"),
			Topic:   topic,
		},
		AMQP: AMQPConfig{
			URL:      os.Getenv("AMQP_URL"),
			Exchange: exchange,
		},
		RateLimitPerMinute: envInt("RATE_LIMIT_PER_MINUTE", 120),
		LogLevel:           envOr("LOG_LEVEL", "info"),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func envList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	return stringsutil.DedupeAndTrim(strings.Split(v, ","))
}
