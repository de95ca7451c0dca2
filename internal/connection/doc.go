// Package connection implements the reconnecting realtime transport client.
//
// The Client:
//   - Dials the chat relay over WebSocket
//   - Tracks its lifecycle as a state machine: Disconnected, Connecting,
//     Open, Reconnecting, Failed
//   - Reconnects with linear backoff (BaseInterval * attempt) up to
//     MaxAttempts, then parks in Failed until Connect is called again
//   - Decodes inbound frames and fans them out to registered listeners,
//     dropping malformed frames
//   - Cancels pending reconnect timers on Disconnect
package connection
