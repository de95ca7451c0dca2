// Package api provides the client for the Agmarknet daily mandi price
// resource published on the Open Government Data platform (data.gov.in).
//
// Endpoint:
//   - GET {base}/resource/{resource_id}?api-key=...&format=json&filters[commodity]=...
//
// Prices are modal/min/max rupees per quintal, reported per arrival date.
// Records are normalized (title-cased names, parsed dates, integer prices)
// before they are handed to the market service.
package api
