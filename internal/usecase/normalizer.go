package usecase

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"coinsnap/internal/domain"
)

// Normalize coerces raw records into typed assets, drops records whose rank
// is not numeric, sorts the survivors by rank (stable) and splits them at
// domain.TopTierSize.
//
// Non-rank measures that fail coercion become zero. Zero surviving records is
// not an error: both partitions are returned empty.
func Normalize(records []domain.AssetRecord) (domain.PartitionedDataset, error) {
	if len(records) == 0 {
		return domain.PartitionedDataset{}, domain.ErrEmptyInput
	}

	assets := make([]domain.NormalizedAsset, 0, len(records))
	for _, rec := range records {
		rank, ok := coerceRank(rec["rank"])
		if !ok {
			continue
		}
		assets = append(assets, domain.NormalizedAsset{
			Rank:              rank,
			Symbol:            coerceText(rec["symbol"]),
			Name:              coerceText(rec["name"]),
			PriceUsd:          coerceMeasure(rec["priceUsd"]),
			MarketCapUsd:      coerceMeasure(rec["marketCapUsd"]),
			VolumeUsd24Hr:     coerceMeasure(rec["volumeUsd24Hr"]),
			ChangePercent24Hr: coerceMeasure(rec["changePercent24Hr"]),
		})
	}

	slices.SortStableFunc(assets, func(a, b domain.NormalizedAsset) int {
		switch {
		case a.Rank < b.Rank:
			return -1
		case a.Rank > b.Rank:
			return 1
		}
		return 0
	})

	return Partition(assets), nil
}

// Partition splits sorted assets into the top tier and the remainder. The
// returned slices never share backing storage with each other.
func Partition(assets []domain.NormalizedAsset) domain.PartitionedDataset {
	split := min(domain.TopTierSize, len(assets))
	return domain.PartitionedDataset{
		TopTier:   slices.Clone(assets[:split]),
		Remainder: slices.Clone(assets[split:]),
	}
}

// toNumber parses v as a finite number.
func toNumber(v any) (decimal.Decimal, bool) {
	var s string
	switch n := v.(type) {
	case nil:
		return decimal.Decimal{}, false
	case json.Number:
		s = n.String()
	case string:
		s = strings.TrimSpace(n)
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return decimal.Decimal{}, false
		}
		return decimal.NewFromFloat(n), true
	case float32:
		return toNumber(float64(n))
	case int:
		return decimal.NewFromInt(int64(n)), true
	case int64:
		return decimal.NewFromInt(n), true
	case int32:
		return decimal.NewFromInt(int64(n)), true
	default:
		return decimal.Decimal{}, false
	}
	if s == "" {
		return decimal.Decimal{}, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}

// coerceRank accepts integral numbers only; rank is an INTEGER column.
func coerceRank(v any) (int64, bool) {
	d, ok := toNumber(v)
	if !ok || !d.IsInteger() {
		return 0, false
	}
	if d.GreaterThan(decimal.NewFromInt(math.MaxInt64)) || d.LessThan(decimal.NewFromInt(math.MinInt64)) {
		return 0, false
	}
	return d.IntPart(), true
}

func coerceMeasure(v any) float64 {
	d, ok := toNumber(v)
	if !ok {
		return 0
	}
	f := d.InexactFloat64()
	if math.IsInf(f, 0) {
		return 0
	}
	return f
}

func coerceText(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	}
	return fmt.Sprint(v)
}
