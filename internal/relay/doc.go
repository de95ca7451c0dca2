// Package relay implements the realtime chat relay: a WebSocket server that
// keeps only the set of connected clients.
//
// On connect a client gets a generated id and display name, receives a
// connected frame with the current presence list, and every other client
// receives a presence join. Message frames are broadcast to every client,
// sender included. Typing frames go to everyone except the sender. A
// periodic sweep pings each connection and terminates any that did not
// answer the previous ping.
package relay
