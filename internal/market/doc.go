// Package market owns the in-memory price table and the loop that mutates it.
//
// # Overview
//
// Store holds one PriceRecord per (commodity, market) pair. Service drives the
// update loop: on every tick it perturbs each record by a bounded random delta,
// recomputes the derived fields, hands each record to the alert evaluator and
// publishes the full snapshot on the event bus.
//
// # Ownership
//
// Only Service.Tick writes to the Store. Observations from external feeds are
// queued through Ingest and applied on the next tick, so subscribers always
// see a snapshot in which every record has been mutated exactly once.
//
// # Randomness
//
// All draws go through the Rand interface. NewRand returns a seedable,
// goroutine-safe source; tests inject scripted sequences to assert exact
// outputs.
package market
