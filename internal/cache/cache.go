package cache

import (
	"context"
	"time"

	"stokku/backend/internal/domain"
)

// ItemLookupCache fronts the scan-time code/SKU lookups during a partial
// opname, where the same handful of items is resolved over and over.
type ItemLookupCache interface {
	Get(ctx context.Context, key string) (*domain.Item, bool, error)
	Set(ctx context.Context, key string, item *domain.Item, ttl time.Duration) error
	Invalidate(ctx context.Context, keys ...string) error
}

type NoopItemLookupCache struct{}

func (NoopItemLookupCache) Get(_ context.Context, _ string) (*domain.Item, bool, error) {
	return nil, false, nil
}

func (NoopItemLookupCache) Set(_ context.Context, _ string, _ *domain.Item, _ time.Duration) error {
	return nil
}

func (NoopItemLookupCache) Invalidate(_ context.Context, _ ...string) error {
	return nil
}
