package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"iuran-data/internal/domain"
	"iuran-data/internal/events"
	"iuran-data/internal/repository"
	"iuran-data/internal/store"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Stats 仪表盘统计
type Stats struct {
	ResidentCount int `json:"resident_count"`
	SecurityCount int `json:"security_count"`
	ClaimedCount  int `json:"claimed_count"`
}

// StatsService 仪表盘统计接口
type StatsService interface {
	GetStats(ctx context.Context) (*Stats, error)
}

type statsService struct {
	store repository.RosterStore
}

func NewStatsService(store repository.RosterStore) StatsService {
	return &statsService{store: store}
}

// GetStats runs the three counts concurrently. Any failure fails the whole call.
func (s *statsService) GetStats(ctx context.Context) (*Stats, error) {
	var (
		out      Stats
		resident = domain.RoleResident
		security = domain.RoleSecurity
		claimed  = true
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := s.store.CountRoster(gctx, repository.CountFilter{Role: &resident})
		if err != nil {
			return fmt.Errorf("count residents: %w", err)
		}
		out.ResidentCount = n
		return nil
	})
	g.Go(func() error {
		n, err := s.store.CountRoster(gctx, repository.CountFilter{Role: &security})
		if err != nil {
			return fmt.Errorf("count security: %w", err)
		}
		out.SecurityCount = n
		return nil
	})
	g.Go(func() error {
		n, err := s.store.CountRoster(gctx, repository.CountFilter{IsClaimed: &claimed})
		if err != nil {
			return fmt.Errorf("count claimed: %w", err)
		}
		out.ClaimedCount = n
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &out, nil
}

const statsCacheKey = "iuran:dashboard:stats"

// CachedStats redis 读穿缓存；缓存故障时直接查询
type CachedStats struct {
	next   StatsService
	kv     store.KV
	ttl    time.Duration
	logger *zap.Logger
}

func NewCachedStats(next StatsService, kv store.KV, ttl time.Duration, logger *zap.Logger) *CachedStats {
	return &CachedStats{next: next, kv: kv, ttl: ttl, logger: logger}
}

func (c *CachedStats) GetStats(ctx context.Context) (*Stats, error) {
	raw, err := c.kv.Get(ctx, statsCacheKey)
	if err == nil {
		var st Stats
		if jerr := json.Unmarshal([]byte(raw), &st); jerr == nil {
			return &st, nil
		}
		c.logger.Warn("discarding corrupt stats cache entry")
	} else if !errors.Is(err, store.ErrMiss) {
		c.logger.Warn("stats cache read failed", zap.Error(err))
	}

	st, err := c.next.GetStats(ctx)
	if err != nil {
		return nil, err
	}
	if b, err := json.Marshal(st); err == nil {
		if err := c.kv.Set(ctx, statsCacheKey, string(b), c.ttl); err != nil {
			c.logger.Warn("stats cache write failed", zap.Error(err))
		}
	}
	return st, nil
}

// Invalidate 删除缓存，下次读取重新统计
func (c *CachedStats) Invalidate(ctx context.Context) error {
	return c.kv.Del(ctx, statsCacheKey)
}

// Publish drops the cached stats on every roster change, so it can sit in an events.Fanout.
func (c *CachedStats) Publish(ctx context.Context, _ events.RosterEvent) error {
	return c.Invalidate(ctx)
}
