// Package pairing implements the matchmaking and relay engine.
//
// A Service owns every live connection, the FIFO waiting pool and the pairing
// edges between connections. All state transitions happen under one mutex, so
// no caller can observe a half-built or half-torn-down pairing. Outbound events
// are handed to each connection's Sink while the lock is held; sinks must never
// block, which keeps per-edge delivery order identical to the order in which
// the service processed the events.
//
// Partners are referenced by ConnID rather than by pointer. Tearing down a
// pairing clears both keys, and a connection removed from the registry can no
// longer be reached by Forward.
package pairing
