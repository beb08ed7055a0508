package cache

import (
	"context"
	"time"

	"krishikendra/backend/internal/domain"
)

// DashboardCache holds the most recent dashboard aggregation so repeated
// dashboard loads do not re-run the summary queries. A miss is not an error.
type DashboardCache interface {
	Get(ctx context.Context, key string) (*domain.DashboardResponse, bool, error)
	Set(ctx context.Context, key string, value *domain.DashboardResponse, ttl time.Duration) error
	Invalidate(ctx context.Context, key string) error
}

type NoopDashboardCache struct{}

func (NoopDashboardCache) Get(_ context.Context, _ string) (*domain.DashboardResponse, bool, error) {
	return nil, false, nil
}

func (NoopDashboardCache) Set(_ context.Context, _ string, _ *domain.DashboardResponse, _ time.Duration) error {
	return nil
}

func (NoopDashboardCache) Invalidate(_ context.Context, _ string) error {
	return nil
}
