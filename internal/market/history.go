package market

import (
	"cmp"
	"math"
	"slices"
	"strings"
	"time"
)

// HistoryPoint is one synthetic daily observation.
type HistoryPoint struct {
	Date   string `json:"date"`
	Price  int    `json:"price"`
	Volume int    `json:"volume"`
}

const defaultHistoryBase = 2000

// GetHistoricalData synthesizes a daily series for commodity around its
// current price, oldest first.
//
//	last30: the 30 days ending today
//	month:  the 1st of the current month through today
//	year:   January 1st through today
func (s *Service) GetHistoricalData(commodity string, period Period) []HistoryPoint {
	base := float64(defaultHistoryBase)
	for _, r := range s.store.Snapshot() {
		if strings.EqualFold(r.Commodity, commodity) {
			base = float64(r.Price)
			break
		}
	}

	now := s.now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	var start time.Time
	var days int
	switch period {
	case PeriodMonth:
		days = today.Day()
		start = today.AddDate(0, 0, 1-days)
	case PeriodYear:
		days = today.YearDay()
		start = time.Date(today.Year(), time.January, 1, 0, 0, 0, 0, today.Location())
	default:
		days = 30
		start = today.AddDate(0, 0, -29)
	}

	floor := float64(s.cfg.PriceFloor)
	out := make([]HistoryPoint, 0, days)
	for i := 0; i < days; i++ {
		date := start.AddDate(0, 0, i)

		var variation float64
		switch period {
		case PeriodYear:
			season := math.Sin(float64(date.Month()-1)/12*2*math.Pi) * 0.2
			variation = (s.rand.Float64()-0.5)*1000 + season*base
		case PeriodMonth:
			variation = (s.rand.Float64() - 0.5) * 300
		default:
			variation = (s.rand.Float64() - 0.5) * 200
		}

		out = append(out, HistoryPoint{
			Date:   date.Format(time.DateOnly),
			Price:  int(math.Round(math.Max(floor, base+variation))),
			Volume: s.rand.IntN(1000) + 100,
		})
	}

	slices.SortStableFunc(out, func(a, b HistoryPoint) int {
		return cmp.Compare(a.Date, b.Date)
	})
	return out
}
