// Package notify is the fan-out point for user-visible notifications.
//
// Service turns domain events into toasts and desktop notifications according
// to a runtime-editable Config. Toasts are published on the event bus so any
// number of displays can render them; desktop notifications go through a
// Desktop implementation that must first grant permission. When sound is
// enabled every toast also plays a short synthesized tone through a Player.
//
// Config is persisted as a JSON blob under StorageKey in a ConfigStore, either
// a local file or Redis, and reloaded on Start.
package notify
