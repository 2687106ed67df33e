// Package wire defines the event names and JSON payload shapes shared with
// the chat frontend. Event names and field names are a compatibility
// contract; changing them breaks deployed clients.
package wire
