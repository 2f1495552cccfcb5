// Package collab is the realtime layer of the notes server: which sessions
// are in which room, how edits fan out to peers, and how bursts of edits are
// coalesced into occasional writes to the document store.
//
// Transports (Socket.IO, plain WebSocket) adapt their connections to Peer and
// feed decoded client messages to Session.Dispatch.
package collab
