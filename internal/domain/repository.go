package domain

import "context"

// AssetSource retrieves raw asset records from the market data API.
type AssetSource interface {
	// ListAssets returns up to limit records. A nil slice with a nil error
	// means the API answered without any records.
	ListAssets(ctx context.Context, limit int) ([]AssetRecord, error)
	// GetAsset returns a single record or ErrAssetNotFound.
	GetAsset(ctx context.Context, id string) (AssetRecord, error)
}

// DatasetSink replaces a named dataset with the given rows.
// Implementations: relational store, spreadsheet, in-memory.
type DatasetSink interface {
	Name() string
	ReplaceDataset(ctx context.Context, dataset string, assets []NormalizedAsset) error
}

// DatasetReader reads back a persisted dataset.
type DatasetReader interface {
	LoadDataset(ctx context.Context, dataset string) ([]NormalizedAsset, error)
}
