// Package buffer provides the in-memory containers shared by the market feed:
//
//   - Queue: an unbounded FIFO that grows when 70% full, used to hand external
//     price observations to the update loop between ticks
//   - Ring: a fixed-capacity history that evicts the oldest entry, used for the
//     alert and toast retention policy
package buffer
