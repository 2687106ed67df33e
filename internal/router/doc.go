// Package router is the core orchestrator of the inquiry gateway.
//
// Every inbound event (a student or admin joining, a message, an
// intervention toggle, a disconnect) maps to one Router operation. Each
// operation runs a full cycle: update presence in the registry, persist via
// the store, invoke the reply engine when the AI is active, route tool
// intents through the escalation controller, and fan the resulting events
// out to every connection bound to the chat.
//
// # Concurrency
//
// Events for the same chat are serialized by a per-chat mutex: the persisted
// message sequence is strict, an AI reply never interleaves with a
// concurrently arriving message for the same chat, and booking decisions see
// a settled chat state. Different chats proceed fully in parallel. The
// engine and the store are the only blocking calls, both made while the
// chat's mutex is held; the mutex is released on every path, so a failed
// store call never wedges the chat.
//
// There is no mid-flight cancellation: if the sending connection drops while
// the engine is composing, the reply is still persisted and broadcast to the
// remaining bindings.
//
// # Rejections
//
// Unauthorized operations (admin message while the AI is active, student
// message without a binding) are logged no-ops surfaced as sentinel errors;
// the transport layer decides which of them turn into error events and
// never tears down the connection for them.
package router
