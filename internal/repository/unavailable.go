package repository

import (
	"context"
	"fmt"

	"coinsnap/internal/domain"
)

// UnavailableDatasetRepository stands in for a sink that could not be set up.
// Every write fails with the setup error, so the run records the sink as
// failed and moves on to the next one.
type UnavailableDatasetRepository struct {
	name string
	err  error
}

func NewUnavailableDatasetRepository(name string, err error) *UnavailableDatasetRepository {
	return &UnavailableDatasetRepository{name: name, err: err}
}

func (r *UnavailableDatasetRepository) Name() string {
	return r.name
}

func (r *UnavailableDatasetRepository) ReplaceDataset(_ context.Context, dataset string, _ []domain.NormalizedAsset) error {
	return fmt.Errorf("%s unavailable, %s not written: %w", r.name, dataset, r.err)
}
