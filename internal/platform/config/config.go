package config

import (
	"os"
	"strconv"
	"time"
)

// Server captures process-level configuration so main stays lean.
type Server struct {
	Addr          string
	AdminToken    string
	JWTSigningKey string

	PostgresDSN  string
	Redis        RedisConfig
	KafkaBrokers string

	// Marketplace fee configuration. Validated at startup: each side is
	// capped at 1000 bps (10%).
	MakerFeeBps  int64
	TakerFeeBps  int64
	FeeRecipient string

	// Comma-separated settlement currencies the order book and
	// distribution engine accept.
	PaymentAssets string
}

// RedisConfig holds connection settings for the rolling-window store.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// FromEnv builds a Server config from environment variables.
func FromEnv() Server {
	addr := os.Getenv("TRANCHE_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	adminToken := os.Getenv("TRANCHE_ADMIN_TOKEN")

	jwtSigningKey := os.Getenv("JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		// Development default - must be overridden in production.
		jwtSigningKey = "dev-secret-key-change-in-production"
	}

	return Server{
		Addr:          addr,
		AdminToken:    adminToken,
		JWTSigningKey: jwtSigningKey,
		PostgresDSN:   os.Getenv("TRANCHE_POSTGRES_DSN"),
		Redis: RedisConfig{
			URL:          os.Getenv("TRANCHE_REDIS_URL"),
			PoolSize:     envInt("TRANCHE_REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("TRANCHE_REDIS_MIN_IDLE", 2),
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		KafkaBrokers:  os.Getenv("TRANCHE_KAFKA_BROKERS"),
		MakerFeeBps:   envInt64("TRANCHE_MAKER_FEE_BPS", 25),
		TakerFeeBps:   envInt64("TRANCHE_TAKER_FEE_BPS", 50),
		FeeRecipient:  os.Getenv("TRANCHE_FEE_RECIPIENT"),
		PaymentAssets: envStr("TRANCHE_PAYMENT_ASSETS", "USDT"),
	}
}

func envStr(key, fallback string) string {
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

func envInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}
