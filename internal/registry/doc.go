// Package registry tracks live connection-to-chat bindings.
//
// A binding associates a transport connection with a chat in a role
// (student or admin). Bindings exist only in memory: they are created when
// a client joins a chat and destroyed on disconnect or explicit detach.
//
// The registry answers the two questions the router needs:
//
//   - presence: is at least one admin watching this chat?
//   - fan-out: which connections should receive an event for this chat?
//
// Delivery is best-effort. A connection whose Send fails is implicitly
// unbound; there are no retries.
package registry
