package model

import "time"

// Identity is the user/event pair bound to a connection after a token
// has been verified.
type Identity struct {
	UserID  string `json:"userId"`
	EventID string `json:"eventId"`
}

// Conversation is a two-party chat thread scoped to an event. Participant
// IDs are stored in lexicographic order so the pair is canonical.
type Conversation struct {
	ID              string     `json:"id"`
	EventID         string     `json:"event_id"`
	Participant1ID  string     `json:"participant1_id"`
	Participant2ID  string     `json:"participant2_id"`
	LastMessage     string     `json:"last_message,omitempty"`
	LastMessageTime *time.Time `json:"last_message_time,omitempty"`
	UnreadCount1    int        `json:"unread_count1"`
	UnreadCount2    int        `json:"unread_count2"`
	CreatedAt       time.Time  `json:"created_at"`

	// Listing enrichment, populated only by ConversationsForUser.
	OtherParticipantName  string `json:"other_participant_name,omitempty"`
	OtherParticipantPhoto string `json:"other_participant_photo,omitempty"`
	UnreadCount           int    `json:"unread_count"`
}

// Message is one stored chat message. SenderName and SenderPhoto are
// enrichment fields and may be absent when the sender profile cannot
// be resolved.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	SenderID       string    `json:"sender_id"`
	Content        string    `json:"content"`
	MessageType    string    `json:"message_type"`
	IsRead         bool      `json:"is_read"`
	CreatedAt      time.Time `json:"created_at"`
	SenderName     string    `json:"sender_name,omitempty"`
	SenderPhoto    string    `json:"sender_photo,omitempty"`
}

// SenderProfile holds the display fields used to enrich outbound messages.
type SenderProfile struct {
	Name     string `json:"name"`
	PhotoURL string `json:"photo_url"`
}
