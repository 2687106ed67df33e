// Package escalation governs whether the AI or a human operator answers a chat.
//
// Each chat is in one of two states, persisted as the chat's
// is_human_enabled flag:
//
//   - AI active (initial): the reply engine answers student messages
//   - human active: the AI is suspended and an admin answers
//
// Transitions into human-active come from an engine-signaled escalation
// intent or an explicit admin toggle; the only way back is the admin toggle.
// Every transition is persisted first and then announced to all connections
// bound to the chat.
//
// The controller also executes the engine's booking tool intents. Booking
// confirmation claims the slot atomically through the store, so two chats
// racing for the same slot resolve to one confirmation and one corrective
// tool result.
package escalation
