package cache

import (
	"context"
	"time"

	"civlily/backend/internal/domain"
)

// SnapshotCache holds bootstrap snapshots between ledger mutations so
// repeated client loads do not hit the repository.
type SnapshotCache interface {
	Get(ctx context.Context, key string) (*domain.BootstrapSnapshot, bool, error)
	Set(ctx context.Context, key string, value *domain.BootstrapSnapshot, ttl time.Duration) error
	Invalidate(ctx context.Context, key string) error
}

type NoopSnapshotCache struct{}

func (NoopSnapshotCache) Get(_ context.Context, _ string) (*domain.BootstrapSnapshot, bool, error) {
	return nil, false, nil
}

func (NoopSnapshotCache) Set(_ context.Context, _ string, _ *domain.BootstrapSnapshot, _ time.Duration) error {
	return nil
}

func (NoopSnapshotCache) Invalidate(_ context.Context, _ string) error {
	return nil
}
