package config

import (
	"os"
	"strconv"
	"time"
)

// Server captures process-level configuration.
type Server struct {
	Addr          string
	PostgresDSN   string
	JWTSigningKey string
	LockTimeout   time.Duration
	Redis         RedisConfig
}

// RedisConfig captures Redis connection settings. An empty URL means Redis
// is not configured and callers fall back to uncached behavior.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// StatsCacheTTL bounds staleness of dashboard aggregates.
var StatsCacheTTL = 2 * time.Minute

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	addr := os.Getenv("AMPARO_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	jwtSigningKey := os.Getenv("AMPARO_JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		// Use a default for development - should be overridden in production
		jwtSigningKey = "dev-secret-key-change-in-production"
	}

	lockTimeout := 30 * time.Minute
	if raw := os.Getenv("AMPARO_LOCK_TIMEOUT_MINUTES"); raw != "" {
		if minutes, err := strconv.Atoi(raw); err == nil && minutes > 0 {
			lockTimeout = time.Duration(minutes) * time.Minute
		}
	}

	return Server{
		Addr:          addr,
		PostgresDSN:   os.Getenv("AMPARO_POSTGRES_DSN"),
		JWTSigningKey: jwtSigningKey,
		LockTimeout:   lockTimeout,
		Redis: RedisConfig{
			URL:          os.Getenv("AMPARO_REDIS_URL"),
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
	}
}
