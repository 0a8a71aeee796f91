// Package server implements the transports and outer surfaces of the relay.
//
// The implementation is organized into specialized files for configuration,
// the raw TCP and WebSocket adapters, HTTP routing and handlers, console
// output, and the Server type that runs every enabled transport against a
// single relay engine.
package server
