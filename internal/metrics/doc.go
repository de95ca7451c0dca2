// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - Tick count, duration and snapshot size
//   - Price subscriber count and subscriber panics
//   - Alerts by type and toasts by type
//   - Relay client count and relayed frames by type
//   - Transport reconnect attempts
//   - Agmarknet poll results and persistence batch sizes
package metrics
