package ws

import (
	"context"
	"log"
	"strings"

	"github.com/event-connect/backend/internal/model"
)

// MessageStore is the persistence contract consumed by the router. Store
// calls are treated as slow, failable remote operations and never run while
// registry indexes are locked.
type MessageStore interface {
	SendMessage(ctx context.Context, conversationID, senderID, content, messageType string) (*model.Message, error)
	MarkRead(ctx context.Context, conversationID, userID string) error
	SenderProfile(ctx context.Context, userID string) (*model.SenderProfile, error)
}

// Router decodes one inbound envelope per call and dispatches it to the
// registry or the message store. Only auth is allowed before the connection
// authenticates; everything else gets an unauthorized error reply.
type Router struct {
	registry *Registry
	store    MessageStore
}

// NewRouter creates a router over the given registry and store.
func NewRouter(registry *Registry, store MessageStore) *Router {
	return &Router{
		registry: registry,
		store:    store,
	}
}

// Handle processes one inbound envelope from a connection. Recognized
// commands with missing required fields are dropped silently; unknown
// commands get an unknown_message_type error reply.
func (rt *Router) Handle(ctx context.Context, c *Client, env *Envelope) {
	if env.Type == TypeAuth {
		rt.handleAuth(c, env.Token)
		return
	}

	identity, authed := rt.registry.Identity(c)
	if !authed {
		c.SendEnvelope(&Envelope{Type: TypeError, Error: ErrUnauthorized})
		return
	}

	switch env.Type {
	case TypeJoinConversation:
		if env.ConversationID == "" {
			return
		}
		rt.registry.JoinConversation(c, env.ConversationID)

	case TypeLeaveConversation:
		if env.ConversationID == "" {
			return
		}
		rt.registry.LeaveConversation(c, env.ConversationID)

	case TypeStartTyping, TypeStopTyping:
		if env.ConversationID == "" {
			return
		}
		out := TypeUserTyping
		if env.Type == TypeStopTyping {
			out = TypeUserStopTyping
		}
		rt.registry.BroadcastConversation(env.ConversationID, &Envelope{
			Type:           out,
			UserID:         identity.UserID,
			ConversationID: env.ConversationID,
		}, c)

	case TypeMarkConversationRead:
		if env.ConversationID == "" {
			return
		}
		if err := rt.store.MarkRead(ctx, env.ConversationID, identity.UserID); err != nil {
			log.Printf("Failed to mark conversation %s read: %v", env.ConversationID, err)
			return
		}
		rt.registry.BroadcastConversation(env.ConversationID, &Envelope{
			Type:           TypeConversationRead,
			ConversationID: env.ConversationID,
			UserID:         identity.UserID,
		}, c)

	case TypeSendMessage:
		rt.handleSendMessage(ctx, c, identity, env)

	default:
		c.SendEnvelope(&Envelope{Type: TypeError, Error: ErrUnknownMessageType})
	}
}

// HandleAuthToken authenticates a connection from an out-of-band token hint
// (the query-parameter shortcut). Equivalent to an auth command without the
// reply envelope.
func (rt *Router) HandleAuthToken(c *Client, token string) bool {
	return rt.registry.Authenticate(c, token)
}

func (rt *Router) handleAuth(c *Client, token string) {
	if !rt.registry.Authenticate(c, token) {
		c.SendEnvelope(&Envelope{Type: TypeAuthError})
		return
	}
	identity, _ := rt.registry.Identity(c)
	c.SendEnvelope(&Envelope{
		Type:    TypeAuthOK,
		UserID:  identity.UserID,
		EventID: identity.EventID,
	})
}

func (rt *Router) handleSendMessage(ctx context.Context, c *Client, identity model.Identity, env *Envelope) {
	content := strings.TrimSpace(env.Content)
	if env.ConversationID == "" || content == "" {
		return
	}

	// Persist before broadcast: a store failure means nothing goes out.
	msg, err := rt.store.SendMessage(ctx, env.ConversationID, identity.UserID, content, env.MessageType)
	if err != nil {
		log.Printf("Failed to persist message in conversation %s: %v", env.ConversationID, err)
		return
	}

	// Enrichment is optional; a missing profile only omits the fields.
	if profile, err := rt.store.SenderProfile(ctx, identity.UserID); err == nil {
		msg.SenderName = profile.Name
		msg.SenderPhoto = profile.PhotoURL
	}

	rt.registry.BroadcastConversation(env.ConversationID, &Envelope{
		Type:           TypeNewMessage,
		ConversationID: env.ConversationID,
		Message:        msg,
	}, nil)
}
