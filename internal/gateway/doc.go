// Package gateway serves the browser-facing HTTP API and the /ws stream.
//
// Routes:
//
//	GET    /api/prices?commodity=&market=
//	GET    /api/prices/compare/{commodity}
//	GET    /api/analytics/{commodity}?period=
//	GET    /api/history/{commodity}?period=
//	GET    /api/summary
//	GET    /api/alerts
//	POST   /api/alerts
//	POST   /api/alerts/{id}/read
//	GET    /api/notifications/config
//	PUT    /api/notifications/config
//	POST   /api/notifications/test
//	DELETE /api/toasts
//	GET    /ws
//	GET    /health
//
// The stream sends the current price snapshot as its first frame, then
// prices, alert, toast, toast_dismiss, desktop, desktop_dismiss and sound
// frames as they happen.
package gateway
