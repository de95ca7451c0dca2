package market

import (
	"time"

	"github.com/gramseva/marketfeed/internal/model"
)

// SeedRecords returns the initial price table, stamped with now.
func SeedRecords(now time.Time) []model.PriceRecord {
	return []model.PriceRecord{
		{
			ID: "1", Commodity: "Wheat", Variety: "HD-2967",
			Market: "Delhi (Najafgarh)", State: "Delhi", District: "South West Delhi",
			Price: 2150, Unit: "Quintal", Timestamp: now,
			PriceChange: 25, PriceChangePercent: 1.18, Volume: 450,
			Quality: model.QualityFAQ, Source: model.SourceAPMC, Trend: model.TrendRising,
		},
		{
			ID: "2", Commodity: "Rice", Variety: "Basmati-1121",
			Market: "Punjab (Amritsar)", State: "Punjab", District: "Amritsar",
			Price: 4200, Unit: "Quintal", Timestamp: now,
			PriceChange: -30, PriceChangePercent: -0.71, Volume: 280,
			Quality: model.QualityGood, Source: model.SourceAPMC, Trend: model.TrendFalling,
		},
		{
			ID: "3", Commodity: "Cotton", Variety: "Bt Cotton",
			Market: "Gujarat (Rajkot)", State: "Gujarat", District: "Rajkot",
			Price: 8500, Unit: "Quintal", Timestamp: now,
			PriceChange: 150, PriceChangePercent: 1.8, Volume: 180,
			Quality: model.QualityGood, Source: model.SourceAPMC, Trend: model.TrendRising,
		},
		{
			ID: "4", Commodity: "Sugarcane",
			Market: "Maharashtra (Pune)", State: "Maharashtra", District: "Pune",
			Price: 320, Unit: "Quintal", Timestamp: now,
			PriceChange: 5, PriceChangePercent: 1.59, Volume: 650,
			Quality: model.QualityAverage, Source: model.SourcePrivate, Trend: model.TrendStable,
		},
		{
			ID: "5", Commodity: "Maize", Variety: "Composite",
			Market: "Karnataka (Bangalore)", State: "Karnataka", District: "Bangalore Rural",
			Price: 1850, Unit: "Quintal", Timestamp: now,
			PriceChange: -20, PriceChangePercent: -1.07, Volume: 320,
			Quality: model.QualityFAQ, Source: model.SourceAPMC, Trend: model.TrendFalling,
		},
		{
			ID: "6", Commodity: "Onion", Variety: "Red Onion",
			Market: "Maharashtra (Nashik)", State: "Maharashtra", District: "Nashik",
			Price: 2800, Unit: "Quintal", Timestamp: now,
			PriceChange: 200, PriceChangePercent: 7.69, Volume: 420,
			Quality: model.QualityGood, Source: model.SourceAPMC, Trend: model.TrendRising,
		},
	}
}
