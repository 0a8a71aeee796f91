// Package relay implements the connection-broadcast core shared by every
// transport: a synchronized peer registry, the accept loop, one receive loop
// per peer, and the broadcast engine that fans each message out to every
// other peer while pruning the ones that can no longer be written to.
//
// Transports plug in through the Conn and Listener interfaces; display and
// logging collaborators observe the engine through a Sink.
package relay
