package app

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xenking/order-registry/internal/domain/audit"
	"github.com/xenking/order-registry/internal/domain/auth"
	"github.com/xenking/order-registry/internal/domain/order"
	"github.com/xenking/order-registry/internal/repository"
	"github.com/xenking/order-registry/internal/storage/memory"
	"github.com/xenking/order-registry/pkg/health"
)

// storage bundles the repositories of one backend.
type storage struct {
	orders  order.Repository
	changes audit.ChangeLogRepository
	trails  audit.TrailRepository
	apikeys auth.Repository

	// pinger is nil for backends without a connection to check.
	pinger health.Pinger
	close  func()
}

func openStorage(ctx context.Context, lg *zap.Logger, cfg *Config) (*storage, error) {
	switch cfg.Storage {
	case StoragePostgres:
		pool, err := repository.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, errors.Wrap(err, "create db pool")
		}
		if err := repository.RunMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, errors.Wrap(err, "run migrations")
		}
		return &storage{
			orders:  repository.NewOrderRepository(pool),
			changes: repository.NewChangeLogRepository(pool),
			trails:  repository.NewTrailRepository(pool),
			apikeys: repository.NewAPIKeyRepository(pool),
			pinger:  pool,
			close:   pool.Close,
		}, nil

	case StorageMemory:
		var keys []auth.APIKeyInfo
		if cfg.BootstrapAPIKey != "" {
			keys = append(keys, auth.APIKeyInfo{
				ID:      uuid.New().String(),
				KeyHash: auth.HashKey([]byte(cfg.APIKeyPepper), cfg.BootstrapAPIKey),
				Name:    "bootstrap",
			})
		} else {
			lg.Warn("No bootstrap API key configured, write requests will be rejected")
		}
		lg.Warn("Using in-memory storage, data is lost on restart")
		return &storage{
			orders:  memory.NewOrderRepository(),
			changes: memory.NewChangeLogRepository(),
			trails:  memory.NewTrailRepository(),
			apikeys: memory.NewAPIKeyRepository(keys...),
			close:   func() {},
		}, nil

	default:
		return nil, errors.Errorf("unknown storage %q", cfg.Storage)
	}
}
