// Package news turns Postgres LISTEN/NOTIFY payloads into market news and
// market status toasts.
//
// Publish with:
//
//	SELECT pg_notify('market_news', '{"kind":"news","title":"MSP revised","message":"...","importance":"high"}');
//	SELECT pg_notify('market_news', '{"kind":"market_status","open":true}');
package news
