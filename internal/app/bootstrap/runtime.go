// Package bootstrap wires the runtime dependencies shared by the citas
// binaries from a loaded config.
package bootstrap

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/citas/internal/citas"
	appconfig "github.com/wolfman30/citas/internal/config"
	"github.com/wolfman30/citas/internal/observability/metrics"
	"github.com/wolfman30/citas/internal/session"
	"github.com/wolfman30/citas/pkg/logging"
)

// BuildLogger returns the logger described by cfg. Logs go to stderr so
// they never interleave with terminal output.
func BuildLogger(cfg *appconfig.Config) *logging.Logger {
	if cfg == nil {
		return logging.Default()
	}
	return logging.NewWithOptions(logging.Options{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		Output: os.Stderr,
	})
}

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available", "error", err)
		_ = client.Close()
		return nil
	}
	return client
}

// BuildSessionStore picks the session store named by cfg.SessionStore. A
// redis store whose server cannot be reached is an error, not a silent
// fallback.
func BuildSessionStore(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (session.Store, func(), error) {
	if cfg == nil {
		return nil, nil, fmt.Errorf("bootstrap: config is required")
	}
	if cfg.SessionStore != "redis" {
		return session.NewMemoryStore(), func() {}, nil
	}
	client := BuildRedisClient(ctx, cfg, logger, true)
	if client == nil {
		return nil, nil, fmt.Errorf("bootstrap: redis session store unavailable at %s", cfg.RedisAddr)
	}
	return session.NewRedisStore(client, cfg.SessionTTL), func() { _ = client.Close() }, nil
}

// BuildMetrics registers the client metrics on a fresh registry and returns
// the scrape handler for it.
func BuildMetrics() (*metrics.ClientMetrics, http.Handler) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return metrics.NewClientMetrics(reg), promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// BuildAPIClient returns the booking API client described by cfg.
func BuildAPIClient(cfg *appconfig.Config, logger *logging.Logger, m *metrics.ClientMetrics) *citas.Client {
	return citas.NewClient(cfg.APIBaseURL, logger,
		citas.WithTimeout(cfg.RequestTimeout),
		citas.WithMetrics(m),
	)
}
