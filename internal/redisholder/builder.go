package redisholder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/trunov/assethub/internal/config"
	"github.com/trunov/assethub/internal/logging"
)

func Build(ctx context.Context, cfg *config.RedisConfig) (*Holder, error) {
	var cl redis.UniversalClient
	cl, err := newClusterClient(ctx, cfg)
	if err != nil {
		clusterErr := err
		cl, err = newClient(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("create redis client: %w", err)
		}
		if len(cfg.Nodes) > 1 {
			log.Warn().Str("component", "redis").Err(clusterErr).Msg("cluster client failed, using single-node client")
		}
	}

	h := NewHolder(cl)

	if cfg.HealthCheckInterval > 0 {
		go healthLoop(ctx, h, cfg)
	}

	return h, nil
}

func healthLoop(ctx context.Context, h *Holder, cfg *config.RedisConfig) {
	interval := config.Seconds(cfg.HealthCheckInterval)
	logger := logging.Component("redis")
	logger.Debug().Dur("interval", interval).Msg("health loop started")

	ping := func() {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := h.Get().Ping(pingCtx).Err()
		cancel()

		if err == nil {
			return
		}
		logger.Warn().Err(err).Msg("ping failed, attempting reconnect")

		// Rebuild client (cluster first, then fallback)
		newCl, newErr := rebuild(ctx, cfg)
		if newErr != nil {
			logger.Error().Err(newErr).Msg("reconnect failed")
			return
		}

		old := h.swap(newCl)
		if old != nil {
			_ = old.Close()
		}
		logger.Info().Msg("reconnected")
	}

	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = h.Close()
			logger.Debug().Err(ctx.Err()).Msg("health loop stopped")
			return
		case <-t.C:
			ping()
		}
	}
}

func rebuild(ctx context.Context, cfg *config.RedisConfig) (redis.UniversalClient, error) {
	if cl, err := newClusterClient(ctx, cfg); err == nil {
		return cl, nil
	}
	return newClient(ctx, cfg)
}

func newClusterClient(ctx context.Context, cfg *config.RedisConfig) (*redis.ClusterClient, error) {
	if len(cfg.Nodes) < 2 {
		return nil, errors.New("cluster needs at least two nodes")
	}

	nodeAddrs := make([]string, 0, len(cfg.Nodes))
	for _, node := range cfg.Nodes {
		nodeAddrs = append(nodeAddrs, node.Addr())
	}

	cl := redis.NewClusterClient(&redis.ClusterOptions{
		RouteByLatency: true,
		Password:       cfg.Password,
		Addrs:          nodeAddrs,
		DialTimeout:    config.Seconds(cfg.DialTimeout),
		ReadTimeout:    config.Seconds(cfg.ReadTimeout),
		WriteTimeout:   config.Seconds(cfg.WriteTimeout),
		PoolSize:       20,
		PoolTimeout:    30 * time.Second,
		MaxRetries:     3,
	})

	if err := cl.Ping(ctx).Err(); err != nil {
		_ = cl.Close()
		return nil, fmt.Errorf("error pinging redis cluster: %w", err)
	}

	return cl, nil
}

func newClient(ctx context.Context, cfg *config.RedisConfig) (*redis.Client, error) {
	addrs := make([]string, 0, len(cfg.Nodes)+1)
	if cfg.Addr != "" {
		addrs = append(addrs, cfg.Addr)
	}
	for _, node := range cfg.Nodes {
		addrs = append(addrs, node.Addr())
	}

	var stickyErr = errors.New("no redis address defined")

	for _, addr := range addrs {
		cl := redis.NewClient(&redis.Options{
			Addr:         addr,
			Password:     cfg.Password,
			DB:           cfg.DatabaseID,
			DialTimeout:  config.Seconds(cfg.DialTimeout),
			ReadTimeout:  config.Seconds(cfg.ReadTimeout),
			WriteTimeout: config.Seconds(cfg.WriteTimeout),
		})

		if err := cl.Ping(ctx).Err(); err != nil {
			_ = cl.Close()
			stickyErr = fmt.Errorf("error pinging redis server %s: %w", addr, err)
			continue
		}

		return cl, nil
	}

	return nil, stickyErr
}
