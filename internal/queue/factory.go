package queue

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kiranshivaraju/sketchforge/internal/config"
	"github.com/kiranshivaraju/sketchforge/internal/queue/memq"
	"github.com/kiranshivaraju/sketchforge/internal/queue/redisq"
	"github.com/redis/go-redis/v9"
)

// RedisOptions builds broker client options. A URL takes precedence over the
// host/port/credential fields.
func RedisOptions(cfg config.RedisConfig) (*redis.Options, error) {
	if cfg.URL != "" {
		opts, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("parse redis URL: %w", err)
		}
		return opts, nil
	}
	return &redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	}, nil
}

// ProbeBroker connects to the broker and pings it once. Any failure is
// reported as ErrBackendUnavailable and the client is closed.
func ProbeBroker(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	opts, err := RedisOptions(cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	client := redis.NewClient(opts)

	probeCtx, cancel := context.WithTimeout(ctx, cfg.ProbeTimeout)
	defer cancel()
	if err := client.Ping(probeCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: ping %s: %v", ErrBackendUnavailable, opts.Addr, err)
	}
	return client, nil
}

// NewBackend returns the durable backend over client, or the in-process
// fallback scheduler when client is nil. Called once at startup.
func NewBackend(client *redis.Client, cfg config.QueueConfig, logger *slog.Logger) Backend {
	if client == nil {
		logger.Warn("queue broker unavailable, using volatile in-process scheduler")
		return memq.New(memq.Config{
			TickInterval: cfg.TickInterval,
			BatchSize:    cfg.BatchSize,
			Retention:    cfg.Retention,
			Concurrency:  ConcurrencyMap(),
		}, logger)
	}
	logger.Info("queue broker reachable, using durable backend")
	return redisq.New(client, redisq.Config{
		Prefix:      cfg.Prefix,
		PollTimeout: cfg.PollTimeout,
		Concurrency: ConcurrencyMap(),
	}, logger)
}
