// Package poller implements the Agmarknet price poller.
//
// The poller:
//   - Fetches mandi prices for each configured commodity on an interval
//   - Bounds concurrent requests with an errgroup limit
//   - Keeps the latest arrival per commodity/market
//   - Hands each price to the market service as an observation, which the
//     next tick applies in place of a random move
package poller
