package market

import (
	"cmp"
	"slices"

	"github.com/gramseva/marketfeed/internal/model"
)

// MarketSummary is the dashboard overview across all records.
type MarketSummary struct {
	TotalCommodities int                 `json:"totalCommodities"`
	AvgPriceChange   float64             `json:"avgPriceChange"`
	TopGainers       []model.PriceRecord `json:"topGainers"`
	TopLosers        []model.PriceRecord `json:"topLosers"`
	HighVolume       []model.PriceRecord `json:"highVolume"`
}

// GetMarketSummary returns the top movers and average change. An empty store
// yields a zero summary.
func (s *Service) GetMarketSummary() MarketSummary {
	records := s.store.Snapshot()
	summary := MarketSummary{
		TotalCommodities: len(records),
		TopGainers:       []model.PriceRecord{},
		TopLosers:        []model.PriceRecord{},
		HighVolume:       []model.PriceRecord{},
	}
	if len(records) == 0 {
		return summary
	}

	var sum float64
	for _, r := range records {
		sum += r.PriceChangePercent
	}
	summary.AvgPriceChange = model.Round2(sum / float64(len(records)))

	summary.TopGainers = topN(records, 3, func(a, b model.PriceRecord) int {
		return cmpFloat(b.PriceChangePercent, a.PriceChangePercent)
	})
	summary.TopLosers = topN(records, 3, func(a, b model.PriceRecord) int {
		return cmpFloat(a.PriceChangePercent, b.PriceChangePercent)
	})
	summary.HighVolume = topN(records, 3, func(a, b model.PriceRecord) int {
		return b.Volume - a.Volume
	})
	return summary
}

func topN(records []model.PriceRecord, n int, less func(a, b model.PriceRecord) int) []model.PriceRecord {
	sorted := slices.Clone(records)
	slices.SortStableFunc(sorted, less)
	return sorted[:min(n, len(sorted))]
}

func cmpFloat(a, b float64) int {
	return cmp.Compare(a, b)
}
