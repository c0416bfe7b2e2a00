package repository

import (
	"context"
	"fmt"
	"sync"

	"coinsnap/internal/domain"
)

// InMemoryDatasetRepository is a DatasetSink backed by a map. Useful for dry
// runs and tests.
type InMemoryDatasetRepository struct {
	name     string
	datasets map[string][]domain.NormalizedAsset
	mu       sync.RWMutex
}

func NewInMemoryDatasetRepository(name string) *InMemoryDatasetRepository {
	return &InMemoryDatasetRepository{
		name:     name,
		datasets: make(map[string][]domain.NormalizedAsset),
	}
}

func (r *InMemoryDatasetRepository) Name() string {
	return r.name
}

func (r *InMemoryDatasetRepository) ReplaceDataset(_ context.Context, dataset string, assets []domain.NormalizedAsset) error {
	if !domain.IsDataset(dataset) {
		return fmt.Errorf("%q: %w", dataset, domain.ErrUnknownDataset)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	// Replace the whole dataset; copy so later caller edits don't leak in.
	r.datasets[dataset] = append([]domain.NormalizedAsset{}, assets...)
	return nil
}

func (r *InMemoryDatasetRepository) LoadDataset(_ context.Context, dataset string) ([]domain.NormalizedAsset, error) {
	if !domain.IsDataset(dataset) {
		return nil, fmt.Errorf("%q: %w", dataset, domain.ErrUnknownDataset)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]domain.NormalizedAsset, len(r.datasets[dataset]))
	copy(result, r.datasets[dataset])
	return result, nil
}
