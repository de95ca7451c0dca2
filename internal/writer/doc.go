// Package writer persists the market feed to TimescaleDB.
//
// Writers:
//   - price_ticks: every record of every tick snapshot
//   - market_alerts: every alert the engine raises
//
// Rows are queued from bus callbacks and flushed in batches, on a timer or
// when a table's queue reaches BatchSize. All inserts are append-only with
// ON CONFLICT DO NOTHING, so replays are harmless.
package writer
