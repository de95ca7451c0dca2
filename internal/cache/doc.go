// Package cache mirrors the latest price snapshot into Redis so other
// processes can read current prices without subscribing, and so a restarted
// gateway can resume from the last published table.
package cache
