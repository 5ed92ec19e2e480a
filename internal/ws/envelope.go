package ws

import "github.com/event-connect/backend/internal/model"

// EnvelopeType tags an Envelope with its command or event kind.
type EnvelopeType string

const (
	// Client -> Server command types
	TypeAuth                 EnvelopeType = "auth"
	TypeJoinConversation     EnvelopeType = "join_conversation"
	TypeLeaveConversation    EnvelopeType = "leave_conversation"
	TypeStartTyping          EnvelopeType = "start_typing"
	TypeStopTyping           EnvelopeType = "stop_typing"
	TypeMarkConversationRead EnvelopeType = "mark_conversation_read"
	TypeSendMessage          EnvelopeType = "send_message"

	// Server -> Client event types
	TypeAuthOK           EnvelopeType = "auth_ok"
	TypeAuthError        EnvelopeType = "auth_error"
	TypeUserOnline       EnvelopeType = "user_online"
	TypeUserOffline      EnvelopeType = "user_offline"
	TypeUserTyping       EnvelopeType = "user_typing"
	TypeUserStopTyping   EnvelopeType = "user_stop_typing"
	TypeConversationRead EnvelopeType = "conversation_read"
	TypeNewMessage       EnvelopeType = "new_message"
	TypeError            EnvelopeType = "error"
)

// Error codes carried in the error field of an error envelope.
const (
	ErrUnauthorized       = "unauthorized"
	ErrInvalidJSON        = "invalid_json"
	ErrUnknownMessageType = "unknown_message_type"
)

// Envelope is one tagged message exchanged over the transport. Inbound and
// outbound envelopes share the same open tagged-union shape; unused fields
// are omitted from the wire.
type Envelope struct {
	Type           EnvelopeType   `json:"type"`
	Token          string         `json:"token,omitempty"`
	ConversationID string         `json:"conversationId,omitempty"`
	Content        string         `json:"content,omitempty"`
	MessageType    string         `json:"messageType,omitempty"`
	UserID         string         `json:"userId,omitempty"`
	EventID        string         `json:"eventId,omitempty"`
	Error          string         `json:"error,omitempty"`
	Message        *model.Message `json:"message,omitempty"`
}
