// Package model defines shared data types used across the GramSeva market feed.
//
// Conventions:
//   - Prices: integer rupees per unit (never below the store floor of 100)
//   - Percentages: float64 rounded to two decimals via Round2
//   - Timestamps: time.Time in UTC, serialized as RFC 3339
//   - IDs: UUIDv7 strings (time-ordered with a random suffix)
package model
