package router

import (
	"net"
	"strconv"

	"github.com/gofiber/storage/redis"

	"github.com/cleanconnect/cleanconnect/internal/pkg/cache"
	"github.com/cleanconnect/cleanconnect/internal/pkg/env"
)

// NewLimiterStorage returns Redis storage for the API rate limiter, so the
// limit holds across replicas. It reuses the cache connection settings.
func NewLimiterStorage() *redis.Storage {
	cacheClient := cache.GetClient()
	host := "localhost"
	port := 6379
	password := env.GetEnv("CACHE_PASSWORD", "")
	if cacheClient != nil {
		addr := cacheClient.Options().Addr
		if h, p, err := net.SplitHostPort(addr); err == nil {
			host = h
			if v, err := strconv.Atoi(p); err == nil {
				port = v
			}
		}
		if p := cacheClient.Options().Password; p != "" {
			password = p
		}
	}

	// Database 1 keeps limiter keys apart from the cache (DB 0).
	return redis.New(redis.Config{
		Host:     host,
		Port:     port,
		Password: password,
		Database: env.GetInt("LIMITER_CACHE_DB", 1),
		Reset:    false,
	})
}
