// Package signaling is the WebSocket transport for the matching service.
//
// Each connection gets one read goroutine (the HTTP handler) that parses
// control frames and forwards everything else to the partner, and one write
// goroutine that drains a byte-bounded send queue. The matching service
// enqueues into that queue without blocking, so a slow client is closed
// rather than stalling its partner.
package signaling
