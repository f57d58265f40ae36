package service

import (
	"context"
	"errors"

	"iuran-data/internal/config"
	"iuran-data/internal/events"
	"iuran-data/internal/repository"
	"iuran-data/internal/sheet"
	"iuran-data/internal/store"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// Runtime 名册服务 + 统计服务 + 事件发布的装配结果，iuran-data 与 rosterctl 共用
type Runtime struct {
	Roster     RosterService
	Stats      StatsService
	Publishers events.Fanout

	closers []func() error
}

// NewRuntime wires the optional sinks from cfg:
// MQTT when enabled, the Redis stream when EVENTS_STREAM is set,
// and the stats cache (which roster events invalidate) when STATS_CACHE_ENABLED.
// An unreachable broker or Redis only disables that sink.
func NewRuntime(ctx context.Context, cfg *config.Config, rosterStore repository.RosterStore, logger *zap.Logger) *Runtime {
	rt := &Runtime{}

	if cfg.MQTT.Enabled {
		mqttPub, err := events.NewMQTTPublisher(&cfg.MQTT, logger)
		if err != nil {
			logger.Warn("MQTT enabled but connection failed, roster events disabled", zap.Error(err))
		} else {
			rt.Publishers = append(rt.Publishers, mqttPub)
			rt.closers = append(rt.closers, func() error {
				mqttPub.Close()
				return nil
			})
		}
	}

	stats := NewStatsService(rosterStore)
	if cfg.Stats.CacheEnabled || cfg.Events.Stream != "" {
		client := store.NewRedisClient(&cfg.Redis)
		kv := store.NewRedisKV(client)
		if err := kv.Ping(ctx); err != nil {
			logger.Warn("redis unavailable, stats cache and event stream disabled", zap.Error(err))
			_ = client.Close()
		} else {
			rt.closers = append(rt.closers, redisCloser(client))
			if cfg.Events.Stream != "" {
				rt.Publishers = append(rt.Publishers, events.NewStreamPublisher(client, cfg.Events.Stream, cfg.Events.StreamMaxLen))
			}
			if cfg.Stats.CacheEnabled {
				cached := NewCachedStats(stats, kv, cfg.Stats.CacheTTL, logger)
				rt.Publishers = append(rt.Publishers, cached)
				stats = cached
			}
		}
	}

	rt.Stats = stats
	rt.Roster = NewRosterService(rosterStore, sheet.NewCodec(), rt.Publishers, logger)
	return rt
}

func redisCloser(c *redis.Client) func() error {
	return func() error { return c.Close() }
}

// Close 释放 MQTT / Redis 连接
func (rt *Runtime) Close() error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	rt.closers = nil
	return errors.Join(errs...)
}
