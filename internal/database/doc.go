// Package database provides the TimescaleDB connection pool and schema for
// tick and alert history.
//
// Tables:
//   - price_ticks: one row per record per tick (hypertable on ts)
//   - market_alerts: one row per raised alert
package database
