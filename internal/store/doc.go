// Package store provides persistent storage for the inquiry gateway using SQLite.
//
// # Data Models
//
//   - Chat: a student conversation with its is_human_enabled escalation flag
//   - Message: immutable chat messages, totally ordered per chat by a
//     persisted sequence number
//   - BookingSlot: bookable advisor call slots, free until claimed by a chat
//
// # Consistency
//
// ClaimSlot is the one cross-cutting consistency primitive: it is a
// compare-and-swap on slot availability (UPDATE ... WHERE chat_id IS NULL),
// so concurrent booking attempts for the same slot resolve to exactly one
// winner. Callers must treat any earlier "list slots" result as a snapshot
// and rely on ClaimSlot for the authoritative answer.
//
// # SQLite Configuration
//
// The store uses SQLite with WAL mode for concurrent reads:
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA foreign_keys=ON;
//
// Rows are soft-deleted via a deleted_at column; reads filter deleted rows.
//
// # Error Handling
//
// Common errors:
//
//   - ErrNotFound: Requested entity does not exist
//   - ErrSlotUnavailable: Booking race lost or invalid slot reference
//
// All methods accept context.Context for cancellation support.
package store
