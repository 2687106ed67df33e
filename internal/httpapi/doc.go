// Package httpapi serves the gateway's REST surface: the admin dashboard's
// chat listing and history endpoints, the model switch, and the health
// check. The websocket endpoint is mounted on the same router so the whole
// HTTP surface binds one listener.
package httpapi
