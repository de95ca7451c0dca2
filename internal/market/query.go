package market

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gramseva/marketfeed/internal/model"
)

// ErrNoData is returned when a query matches no records.
var ErrNoData = errors.New("no data for commodity")

// GetCurrentPrices returns records whose commodity and market contain the
// given substrings (case-insensitive, empty matches all), newest first.
func (s *Service) GetCurrentPrices(commodity, market string) []model.PriceRecord {
	return filterRecords(s.store.Snapshot(), commodity, market)
}

func filterRecords(records []model.PriceRecord, commodity, market string) []model.PriceRecord {
	commodity = strings.ToLower(commodity)
	market = strings.ToLower(market)

	out := make([]model.PriceRecord, 0, len(records))
	for _, r := range records {
		if commodity != "" && !strings.Contains(strings.ToLower(r.Commodity), commodity) {
			continue
		}
		if market != "" && !strings.Contains(strings.ToLower(r.Market), market) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// MarketQuote is one market row of a price comparison.
type MarketQuote struct {
	Market        string `json:"market"`
	Price         int    `json:"price"`
	Distance      int    `json:"distance"`
	TransportCost int    `json:"transportCost"`
	NetPrice      int    `json:"netPrice"`
}

// PriceComparison ranks the markets quoting a commodity by net price.
type PriceComparison struct {
	Commodity       string        `json:"commodity"`
	Markets         []MarketQuote `json:"markets"`
	BestMarket      string        `json:"bestMarket"`
	PriceDifference int           `json:"priceDifference"`
}

// NetPricer computes what a seller would net in a given market.
type NetPricer interface {
	Quote(record model.PriceRecord) MarketQuote
}

// NetPricerFunc adapts a function to NetPricer.
type NetPricerFunc func(record model.PriceRecord) MarketQuote

// Quote calls f.
func (f NetPricerFunc) Quote(record model.PriceRecord) MarketQuote {
	return f(record)
}

// randomNetPricer stands in for real logistics data.
type randomNetPricer struct {
	r Rand
}

func (p randomNetPricer) Quote(record model.PriceRecord) MarketQuote {
	return MarketQuote{
		Market:        record.Market,
		Price:         record.Price,
		Distance:      p.r.IntN(500),
		TransportCost: p.r.IntN(200),
		NetPrice:      record.Price - p.r.IntN(200),
	}
}

// GetPriceComparison quotes every market carrying commodity and picks the one
// with the highest net price. Ties keep the first market seen.
func (s *Service) GetPriceComparison(commodity string) (PriceComparison, error) {
	records := s.GetCurrentPrices(commodity, "")
	if len(records) == 0 {
		return PriceComparison{}, fmt.Errorf("%w: %s", ErrNoData, commodity)
	}

	quotes := make([]MarketQuote, 0, len(records))
	for _, r := range records {
		quotes = append(quotes, s.pricer.Quote(r))
	}

	best, worst := quotes[0], quotes[0]
	for _, q := range quotes[1:] {
		if q.NetPrice > best.NetPrice {
			best = q
		}
		if q.NetPrice < worst.NetPrice {
			worst = q
		}
	}

	return PriceComparison{
		Commodity:       commodity,
		Markets:         quotes,
		BestMarket:      best.Market,
		PriceDifference: best.NetPrice - worst.NetPrice,
	}, nil
}
