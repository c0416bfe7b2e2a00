package domain

// AssetRecord is one raw asset object as returned by the market data API.
// Values are left untyped; numbers usually arrive as decimal strings.
type AssetRecord map[string]any

// ID returns the API identifier of the asset (e.g. "bitcoin"), or "" if absent.
func (r AssetRecord) ID() string {
	if v, ok := r["id"].(string); ok {
		return v
	}
	return ""
}

// NormalizedAsset is a typed, validated asset row.
type NormalizedAsset struct {
	Rank              int64   `json:"rank" db:"rank"`
	Symbol            string  `json:"symbol" db:"symbol"`
	Name              string  `json:"name" db:"name"`
	PriceUsd          float64 `json:"priceUsd" db:"priceUsd"`
	MarketCapUsd      float64 `json:"marketCapUsd" db:"marketCapUsd"`
	VolumeUsd24Hr     float64 `json:"volumeUsd24Hr" db:"volumeUsd24Hr"`
	ChangePercent24Hr float64 `json:"changePercent24Hr" db:"changePercent24Hr"`
}

// Columns is the fixed column order shared by the relational schema and the
// spreadsheet header row.
var Columns = []string{
	"rank",
	"symbol",
	"name",
	"priceUsd",
	"marketCapUsd",
	"volumeUsd24Hr",
	"changePercent24Hr",
}

// Row returns the asset values in Columns order.
func (a NormalizedAsset) Row() []any {
	return []any{
		a.Rank,
		a.Symbol,
		a.Name,
		a.PriceUsd,
		a.MarketCapUsd,
		a.VolumeUsd24Hr,
		a.ChangePercent24Hr,
	}
}

// TopTierSize is the split point between the top tier and the remainder.
const TopTierSize = 5

// Dataset names. They double as relational table names.
const (
	TopTierDataset   = "top_5_coins"
	RemainderDataset = "other_coins"
)

// Datasets lists every dataset in persistence order.
var Datasets = []string{TopTierDataset, RemainderDataset}

// IsDataset reports whether name is one of the fixed datasets.
func IsDataset(name string) bool {
	return name == TopTierDataset || name == RemainderDataset
}

// PartitionedDataset is a sorted snapshot split into the first TopTierSize
// assets and everything after them.
type PartitionedDataset struct {
	TopTier   []NormalizedAsset `json:"topTier"`
	Remainder []NormalizedAsset `json:"remainder"`
}

// Len returns the number of assets on both sides.
func (p PartitionedDataset) Len() int {
	return len(p.TopTier) + len(p.Remainder)
}

// Dataset returns the side stored under the given dataset name.
func (p PartitionedDataset) Dataset(name string) ([]NormalizedAsset, error) {
	switch name {
	case TopTierDataset:
		return p.TopTier, nil
	case RemainderDataset:
		return p.Remainder, nil
	}
	return nil, ErrUnknownDataset
}
