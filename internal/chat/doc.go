// Package chat defines the JSON frames exchanged between the realtime
// transport client and the relay.
//
// Server to client frames are an envelope {"type": ..., "payload": {...}}
// carrying one of Connected, Presence, Typing or Message. Client to server
// frames are flat objects tagged by "type" ("message" or "typing").
//
// Decoding never panics: malformed JSON yields ErrMalformedFrame and an
// unrecognized type yields ErrUnknownType, so callers can drop the frame.
package chat
