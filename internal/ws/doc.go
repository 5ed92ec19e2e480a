// Package ws provides the real-time messaging core: WebSocket connection
// handling, the live-connection registry and inbound message routing.
//
// The package implements:
//   - Client: One live WebSocket connection with a buffered outbound queue
//   - Registry: Tracks authenticated connections and the event-wide and
//     per-conversation broadcast groups, and owns all fan-out
//   - Router: Decodes inbound envelopes and dispatches them to the registry
//     or the message store
//   - Handler: Upgrades HTTP requests and runs the per-connection pumps
//
// Key behaviors:
//   - At most one current connection per authenticated user (last auth wins)
//   - Presence (user_online/user_offline) broadcast to the event group
//   - Best-effort fan-out: one slow or dead recipient never blocks the rest
//   - Idempotent disconnect teardown of every registry index
package ws
