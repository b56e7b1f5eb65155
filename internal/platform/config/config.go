package config

import (
	"os"
	"strings"
	"time"
)

// Server captures process-level configuration. FromEnv builds it so main
// stays lean.
type Server struct {
	Addr          string
	JWTSigningKey string
	JWTIssuer     string
	JWTAudience   string
	TokenTTL      time.Duration

	// PostgresURL selects the Postgres stores when set; otherwise the
	// process runs on in-memory stores (development mode).
	PostgresURL string

	Redis RedisConfig
	Kafka KafkaConfig

	// ResendAPIKey enables outbound OTP mail. Empty means codes are only
	// written to the log (development mode).
	ResendAPIKey string
	MailFrom     string

	OTPTTL           time.Duration
	FaceFreshFor     time.Duration
	LockoutThreshold int
	LockoutWindow    time.Duration
}

// RedisConfig configures the optional Redis-backed lockout store.
type RedisConfig struct {
	URL          string
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig configures the audit mirror relay. Empty brokers disables the
// relay; outbox events then stay in storage until an operator drains them.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

func FromEnv() Server {
	cfg := Server{
		Addr:             envOr("BALLOTGATE_ADDR", ":8080"),
		JWTSigningKey:    envOr("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		JWTIssuer:        envOr("JWT_ISSUER", "ballotgate"),
		JWTAudience:      envOr("JWT_AUDIENCE", "ballotgate"),
		TokenTTL:         24 * time.Hour,
		PostgresURL:      os.Getenv("DATABASE_URL"),
		ResendAPIKey:     os.Getenv("RESEND_API_KEY"),
		MailFrom:         envOr("MAIL_FROM", "BallotGate <noreply@ballotgate.example>"),
		OTPTTL:           10 * time.Minute,
		FaceFreshFor:     5 * time.Minute,
		LockoutThreshold: 5,
		LockoutWindow:    15 * time.Minute,
	}

	cfg.Redis = RedisConfig{
		URL:          os.Getenv("REDIS_URL"),
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.Kafka = KafkaConfig{
			Brokers: strings.Split(brokers, ","),
			Topic:   envOr("AUDIT_MIRROR_TOPIC", "ballotgate.audit-mirror"),
		}
	}

	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
