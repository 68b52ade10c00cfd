// Package store provides adapters for the build history backends.
package store

import (
	"context"
	"fmt"

	"github.com/MyCarrier-DevOps/goLibMyCarrier/slippy"

	"github.com/MyCarrier-DevOps/slippy-catchup/internal/domain"
)

// SlipQuerier is the subset of slippy.SlipStore used to answer build history queries.
type SlipQuerier interface {
	FindByCommits(ctx context.Context, repository string, commits []string) (*slippy.Slip, string, error)
	Close() error
}

// ClickHouseAdapter wraps goLibMyCarrier's SlipStore to implement domain.SlipFinder.
// This adapter translates between the external library types and our domain types.
type ClickHouseAdapter struct {
	store SlipQuerier
}

// NewClickHouseAdapter creates a new adapter wrapping the given SlipStore.
func NewClickHouseAdapter(store SlipQuerier) *ClickHouseAdapter {
	return &ClickHouseAdapter{
		store: store,
	}
}

// FindByCommits searches for a slip matching any of the given commits.
// Returns (nil, "", nil) if no matching slip is found.
func (a *ClickHouseAdapter) FindByCommits(
	ctx context.Context,
	repository string,
	commits []string,
) (*domain.Slip, string, error) {
	if len(commits) == 0 {
		return nil, "", nil
	}

	slip, matchedCommit, err := a.store.FindByCommits(ctx, repository, commits)
	if err != nil {
		return nil, "", fmt.Errorf("slip store query for %s: %w", repository, err)
	}

	if slip == nil {
		return nil, "", nil
	}

	return &domain.Slip{
		CorrelationID: slip.CorrelationID,
	}, matchedCommit, nil
}

// Close releases any resources held by the store.
func (a *ClickHouseAdapter) Close() error {
	return a.store.Close()
}
