// Package cache provee un cache TTL multi-backend (memoria o redis).
//
// Usos en el servicio: replay-guard de nonces OAuth, cache de api keys
// validadas y refresh tokens opacos.
package cache

import "time"

type Cache interface {
	Get(key string) (value []byte, ok bool)
	Set(key string, value []byte, ttl time.Duration)
	Delete(key string)
}

// Config selecciona el backend.
type Config struct {
	Kind       string // "memory" | "redis"
	RedisAddr  string
	RedisDB    int
	DefaultTTL time.Duration
}

// New crea el cache según configuración; default memoria.
func New(cfg Config) Cache {
	if cfg.Kind == "redis" && cfg.RedisAddr != "" {
		return NewRedis(cfg.RedisAddr, cfg.RedisDB)
	}
	ttl := cfg.DefaultTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return NewMemory(ttl)
}
