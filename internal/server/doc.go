// Package server implements the presence and message-relay core of relaychat.
//
// A Hub owns the Registry of live WebSocket connections. Each connection is
// bound to at most one identity at handshake time, is watched by a ping/pong
// liveness monitor, relays inbound frames to every connection of the
// recipient, and receives a roster snapshot whenever membership changes.
package server
