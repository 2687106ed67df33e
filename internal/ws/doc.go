// Package ws is the WebSocket transport for the inquiry gateway.
//
// Each frame is a JSON envelope {"event": name, "data": payload}. Inbound
// envelopes are decoded and dispatched to the message router; outbound
// events are queued per connection and written by a single write pump, so
// concurrent broadcasts never interleave frames. A connection whose send
// buffer fills is closed rather than allowed to stall the gateway.
package ws
