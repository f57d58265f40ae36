package repository

import (
	"context"
	"fmt"

	"iuran-data/internal/config"
	"iuran-data/internal/database"

	"go.uber.org/zap"
)

// OpenRosterStore 按 STORE_BACKEND 创建名册存储；返回的 close 总是非 nil
func OpenRosterStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (RosterStore, func() error, error) {
	noop := func() error { return nil }

	switch cfg.StoreBackend {
	case config.BackendPostgres:
		db, err := database.NewPostgresDB(ctx, &cfg.Database)
		if err != nil {
			return nil, noop, err
		}
		logger.Info("roster store: postgres", zap.String("host", cfg.Database.Host), zap.String("db", cfg.Database.Database))
		return NewPostgresRosterStore(db), func() error { return database.Close(db) }, nil
	case config.BackendPostgREST:
		logger.Info("roster store: postgrest", zap.String("url", cfg.PostgREST.URL))
		return NewPostgRESTRosterStore(&cfg.PostgREST, logger), noop, nil
	case config.BackendMemory:
		// 内存 repo：本地联调用，重启即清空
		logger.Warn("roster store: memory (data is not persisted)")
		return NewMemoryRosterStore(), noop, nil
	}
	return nil, noop, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
}
