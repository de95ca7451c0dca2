package connection

import (
	"errors"
	"time"
)

// Errors
var (
	ErrNotConnected    = errors.New("not connected")
	ErrStaleConnection = errors.New("connection stale (no ping)")
	ErrAlreadyClosed   = errors.New("already closed")
)

// DefaultURL is the relay address used when none is configured.
const DefaultURL = "ws://localhost:4000"

// State is the lifecycle state of a Client.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateOpen
	StateReconnecting
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateReconnecting:
		return "reconnecting"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// transitions lists the states reachable from each state.
var transitions = map[State][]State{
	StateDisconnected: {StateConnecting},
	StateConnecting:   {StateOpen, StateReconnecting, StateFailed, StateDisconnected},
	StateOpen:         {StateReconnecting, StateFailed, StateDisconnected},
	StateReconnecting: {StateConnecting, StateDisconnected},
	StateFailed:       {StateConnecting, StateDisconnected},
}

// CanTransition reports whether the state machine allows from -> to.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// ClientConfig configures a Client.
type ClientConfig struct {
	URL              string        // Relay URL (e.g., ws://localhost:4000)
	BaseInterval     time.Duration // Reconnect delay is BaseInterval * attempt
	MaxAttempts      int           // Reconnects before giving up
	PingTimeout      time.Duration // Max time without ping before considering connection stale
	WriteTimeout     time.Duration // Write deadline for sends
	HandshakeTimeout time.Duration
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		URL:              DefaultURL,
		BaseInterval:     3 * time.Second,
		MaxAttempts:      10,
		PingTimeout:      90 * time.Second, // relay pings every 30s
		WriteTimeout:     5 * time.Second,
		HandshakeTimeout: 10 * time.Second,
	}
}
