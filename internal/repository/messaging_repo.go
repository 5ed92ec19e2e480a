// Package repository provides data access for conversations, messages and
// attendee display fields.
package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/event-connect/backend/internal/model"
)

// MessagingRepository is the durable message store. It persists messages,
// maintains conversation last-message metadata and unread counters, and
// resolves attendee display fields for outbound enrichment.
type MessagingRepository struct {
	db *sql.DB
}

// NewMessagingRepository creates a new MessagingRepository.
func NewMessagingRepository(db *sql.DB) *MessagingRepository {
	return &MessagingRepository{db: db}
}

// CreateOrGetConversation returns the conversation between two participants
// in an event, creating it if it does not exist. Participant IDs are stored
// in lexicographic order so the pair is canonical regardless of caller order.
func (r *MessagingRepository) CreateOrGetConversation(ctx context.Context, eventID, participant1ID, participant2ID string) (*model.Conversation, error) {
	p1, p2 := participant1ID, participant2ID
	if p2 < p1 {
		p1, p2 = p2, p1
	}

	conv, err := r.getConversationByParticipants(ctx, eventID, p1, p2)
	if err == nil {
		return conv, nil
	}
	if err != model.ErrConversationNotFound {
		return nil, err
	}

	now := time.Now().UTC()
	id := uuid.NewString()
	query := `
		INSERT INTO conversations (id, event_id, participant1_id, participant2_id, created_at)
		VALUES (?, ?, ?, ?, ?)
	`
	if _, err := r.db.ExecContext(ctx, query, id, eventID, p1, p2, now); err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}

	return &model.Conversation{
		ID:             id,
		EventID:        eventID,
		Participant1ID: p1,
		Participant2ID: p2,
		CreatedAt:      now,
	}, nil
}

// SendMessage persists a message, updates the conversation's last-message
// metadata and increments the other participant's unread counter. It returns
// the stored record.
func (r *MessagingRepository) SendMessage(ctx context.Context, conversationID, senderID, content, messageType string) (*model.Message, error) {
	if messageType == "" {
		messageType = "text"
	}
	now := time.Now().UTC()

	// The CASE keys the unread increment off which participant sent; a zero
	// rows-affected result means the conversation does not exist.
	update := `
		UPDATE conversations
		SET last_message = ?,
		    last_message_time = ?,
		    unread_count1 = unread_count1 + CASE WHEN participant1_id = ? THEN 0 ELSE 1 END,
		    unread_count2 = unread_count2 + CASE WHEN participant1_id = ? THEN 1 ELSE 0 END
		WHERE id = ?
	`
	result, err := r.db.ExecContext(ctx, update, content, now, senderID, senderID, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to update conversation metadata: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return nil, model.ErrConversationNotFound
	}

	msg := &model.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        content,
		MessageType:    messageType,
		CreatedAt:      now,
	}

	insert := `
		INSERT INTO messages (id, conversation_id, sender_id, content, message_type, is_read, created_at)
		VALUES (?, ?, ?, ?, ?, 0, ?)
	`
	if _, err := r.db.ExecContext(ctx, insert, msg.ID, msg.ConversationID, msg.SenderID, msg.Content, msg.MessageType, msg.CreatedAt); err != nil {
		return nil, fmt.Errorf("failed to insert message: %w", err)
	}

	return msg, nil
}

// MarkRead marks every message not sent by userID as read and zeroes that
// user's unread counter for the conversation.
func (r *MessagingRepository) MarkRead(ctx context.Context, conversationID, userID string) error {
	update := `
		UPDATE conversations
		SET unread_count1 = CASE WHEN participant1_id = ? THEN 0 ELSE unread_count1 END,
		    unread_count2 = CASE WHEN participant1_id = ? THEN unread_count2 ELSE 0 END
		WHERE id = ?
	`
	result, err := r.db.ExecContext(ctx, update, userID, userID, conversationID)
	if err != nil {
		return fmt.Errorf("failed to reset unread counter: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return model.ErrConversationNotFound
	}

	markRead := `
		UPDATE messages
		SET is_read = 1
		WHERE conversation_id = ? AND sender_id != ?
	`
	if _, err := r.db.ExecContext(ctx, markRead, conversationID, userID); err != nil {
		return fmt.Errorf("failed to mark messages as read: %w", err)
	}

	return nil
}

// ConversationsForUser lists an attendee's conversations in an event, most
// recently active first, enriched with the other participant's display fields
// and the caller's unread count.
func (r *MessagingRepository) ConversationsForUser(ctx context.Context, attendeeID, eventID string) ([]*model.Conversation, error) {
	query := `
		SELECT
		  c.id, c.event_id, c.participant1_id, c.participant2_id,
		  c.last_message, c.last_message_time,
		  c.unread_count1, c.unread_count2, c.created_at,
		  CASE WHEN c.participant1_id = ? THEN a2.name ELSE a1.name END,
		  CASE WHEN c.participant1_id = ? THEN a2.photo_url ELSE a1.photo_url END,
		  CASE WHEN c.participant1_id = ? THEN c.unread_count1 ELSE c.unread_count2 END
		FROM conversations c
		JOIN attendees a1 ON c.participant1_id = a1.id
		JOIN attendees a2 ON c.participant2_id = a2.id
		WHERE c.event_id = ? AND (c.participant1_id = ? OR c.participant2_id = ?)
		ORDER BY c.last_message_time DESC
	`

	rows, err := r.db.QueryContext(ctx, query, attendeeID, attendeeID, attendeeID, eventID, attendeeID, attendeeID)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	var conversations []*model.Conversation
	for rows.Next() {
		conv := &model.Conversation{}
		var lastMessage sql.NullString
		var lastMessageTime sql.NullTime
		var otherName sql.NullString
		var otherPhoto sql.NullString

		err := rows.Scan(
			&conv.ID,
			&conv.EventID,
			&conv.Participant1ID,
			&conv.Participant2ID,
			&lastMessage,
			&lastMessageTime,
			&conv.UnreadCount1,
			&conv.UnreadCount2,
			&conv.CreatedAt,
			&otherName,
			&otherPhoto,
			&conv.UnreadCount,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}

		if lastMessage.Valid {
			conv.LastMessage = lastMessage.String
		}
		if lastMessageTime.Valid {
			t := lastMessageTime.Time
			conv.LastMessageTime = &t
		}
		if otherName.Valid {
			conv.OtherParticipantName = otherName.String
		}
		if otherPhoto.Valid {
			conv.OtherParticipantPhoto = otherPhoto.String
		}

		conversations = append(conversations, conv)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating conversations: %w", err)
	}

	return conversations, nil
}

// Messages returns one page of a conversation's history in chronological
// order. Sender display fields are joined in when the sender still exists.
func (r *MessagingRepository) Messages(ctx context.Context, conversationID string, limit, offset int) ([]*model.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	query := `
		SELECT m.id, m.conversation_id, m.sender_id, m.content, m.message_type, m.is_read, m.created_at,
		       a.name, a.photo_url
		FROM messages m
		LEFT JOIN attendees a ON m.sender_id = a.id
		WHERE m.conversation_id = ?
		ORDER BY m.created_at DESC
		LIMIT ? OFFSET ?
	`

	rows, err := r.db.QueryContext(ctx, query, conversationID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	var messages []*model.Message
	for rows.Next() {
		msg := &model.Message{}
		var senderName sql.NullString
		var senderPhoto sql.NullString

		err := rows.Scan(
			&msg.ID,
			&msg.ConversationID,
			&msg.SenderID,
			&msg.Content,
			&msg.MessageType,
			&msg.IsRead,
			&msg.CreatedAt,
			&senderName,
			&senderPhoto,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}

		if senderName.Valid {
			msg.SenderName = senderName.String
		}
		if senderPhoto.Valid {
			msg.SenderPhoto = senderPhoto.String
		}

		messages = append(messages, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating messages: %w", err)
	}

	// Newest page first out of the query, chronological for the caller.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, nil
}

// UnreadCount sums the attendee's unread counters across all of their
// conversations in an event.
func (r *MessagingRepository) UnreadCount(ctx context.Context, attendeeID, eventID string) (int, error) {
	query := `
		SELECT COALESCE(SUM(
		  CASE WHEN participant1_id = ? THEN unread_count1 ELSE unread_count2 END
		), 0)
		FROM conversations
		WHERE event_id = ? AND (participant1_id = ? OR participant2_id = ?)
	`

	var total int
	err := r.db.QueryRowContext(ctx, query, attendeeID, eventID, attendeeID, attendeeID).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to sum unread counters: %w", err)
	}

	return total, nil
}

// SenderProfile resolves the display fields for an attendee.
func (r *MessagingRepository) SenderProfile(ctx context.Context, userID string) (*model.SenderProfile, error) {
	query := `SELECT name, COALESCE(photo_url, '') FROM attendees WHERE id = ?`

	profile := &model.SenderProfile{}
	err := r.db.QueryRowContext(ctx, query, userID).Scan(&profile.Name, &profile.PhotoURL)
	if err == sql.ErrNoRows {
		return nil, model.ErrAttendeeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up sender profile: %w", err)
	}

	return profile, nil
}

// CreateAttendee inserts an attendee record. Attendee import is handled
// elsewhere; this exists for seeding and tests.
func (r *MessagingRepository) CreateAttendee(ctx context.Context, id, eventID, name, photoURL string) error {
	query := `
		INSERT OR REPLACE INTO attendees (id, event_id, name, photo_url)
		VALUES (?, ?, ?, ?)
	`
	if _, err := r.db.ExecContext(ctx, query, id, eventID, name, photoURL); err != nil {
		return fmt.Errorf("failed to create attendee: %w", err)
	}
	return nil
}

func (r *MessagingRepository) getConversationByParticipants(ctx context.Context, eventID, p1, p2 string) (*model.Conversation, error) {
	query := `
		SELECT id, event_id, participant1_id, participant2_id,
		       last_message, last_message_time, unread_count1, unread_count2, created_at
		FROM conversations
		WHERE event_id = ? AND participant1_id = ? AND participant2_id = ?
	`

	conv := &model.Conversation{}
	var lastMessage sql.NullString
	var lastMessageTime sql.NullTime

	err := r.db.QueryRowContext(ctx, query, eventID, p1, p2).Scan(
		&conv.ID,
		&conv.EventID,
		&conv.Participant1ID,
		&conv.Participant2ID,
		&lastMessage,
		&lastMessageTime,
		&conv.UnreadCount1,
		&conv.UnreadCount2,
		&conv.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, model.ErrConversationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}

	if lastMessage.Valid {
		conv.LastMessage = lastMessage.String
	}
	if lastMessageTime.Valid {
		t := lastMessageTime.Time
		conv.LastMessageTime = &t
	}

	return conv, nil
}
