// Package signaling implements the client side of the media server's
// WebSocket signaling protocol.
//
// A Client owns one control channel (Transport) and, once the server sends an
// offer, one negotiated Connection. All protocol state lives on a single
// event-loop goroutine started by Client.Run; callbacks from the Connection
// (which may fire on arbitrary goroutines) are re-posted onto that loop before
// they touch any state.
package signaling
