package ws

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/event-connect/backend/internal/model"
)

// fakeStore implements MessageStore in memory and records calls.
type fakeStore struct {
	mu           sync.Mutex
	sendCalls    []string // contents passed to SendMessage
	markCalls    []string // conversation ids passed to MarkRead
	failSend     bool
	failMarkRead bool
	profiles     map[string]model.SenderProfile
}

func (s *fakeStore) SendMessage(_ context.Context, conversationID, senderID, content, messageType string) (*model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSend {
		return nil, errors.New("store unavailable")
	}
	s.sendCalls = append(s.sendCalls, content)
	if messageType == "" {
		messageType = "text"
	}
	return &model.Message{
		ID:             "m1",
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        content,
		MessageType:    messageType,
		CreatedAt:      time.Now(),
	}, nil
}

func (s *fakeStore) MarkRead(_ context.Context, conversationID, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failMarkRead {
		return errors.New("store unavailable")
	}
	s.markCalls = append(s.markCalls, conversationID)
	return nil
}

func (s *fakeStore) SenderProfile(_ context.Context, userID string) (*model.SenderProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	profile, ok := s.profiles[userID]
	if !ok {
		return nil, model.ErrAttendeeNotFound
	}
	return &profile, nil
}

func (s *fakeStore) sendCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sendCalls)
}

// routerFixture wires a registry, fake store and two authenticated clients
// that share conversation c1.
func routerFixture(t *testing.T) (*Router, *fakeStore, *Client, *Client) {
	t.Helper()
	registry := newTestRegistry()
	store := &fakeStore{profiles: map[string]model.SenderProfile{
		"u1": {Name: "Sara", PhotoURL: "https://example.com/sara.jpg"},
	}}
	router := NewRouter(registry, store)

	a := NewClient(nil)
	b := NewClient(nil)
	registry.Connect(a)
	registry.Connect(b)
	registry.Authenticate(a, "token-u1")
	registry.Authenticate(b, "token-u2")
	receiveEnvelope(t, a, time.Second) // drain user_online for u2
	registry.JoinConversation(a, "c1")
	registry.JoinConversation(b, "c1")

	return router, store, a, b
}

func TestRouterUnauthorized(t *testing.T) {
	registry := newTestRegistry()
	router := NewRouter(registry, &fakeStore{})

	c := NewClient(nil)
	registry.Connect(c)

	router.Handle(context.Background(), c, &Envelope{Type: TypeJoinConversation, ConversationID: "c1"})

	env := receiveEnvelope(t, c, time.Second)
	if env == nil || env.Type != TypeError || env.Error != ErrUnauthorized {
		t.Errorf("expected unauthorized error, got %+v", env)
	}
	if registry.ConversationGroupSize("c1") != 0 {
		t.Error("unauthorized join must not change membership")
	}
}

func TestRouterAuthReplies(t *testing.T) {
	registry := newTestRegistry()
	router := NewRouter(registry, &fakeStore{})

	c := NewClient(nil)
	registry.Connect(c)

	router.Handle(context.Background(), c, &Envelope{Type: TypeAuth, Token: "bogus"})
	env := receiveEnvelope(t, c, time.Second)
	if env == nil || env.Type != TypeAuthError {
		t.Errorf("expected auth_error, got %+v", env)
	}

	router.Handle(context.Background(), c, &Envelope{Type: TypeAuth, Token: "token-u1"})
	env = receiveEnvelope(t, c, time.Second)
	if env == nil || env.Type != TypeAuthOK || env.UserID != "u1" || env.EventID != "e1" {
		t.Errorf("expected auth_ok for u1/e1, got %+v", env)
	}
}

func TestRouterUnknownType(t *testing.T) {
	router, _, a, _ := routerFixture(t)

	router.Handle(context.Background(), a, &Envelope{Type: "resize"})

	env := receiveEnvelope(t, a, time.Second)
	if env == nil || env.Type != TypeError || env.Error != ErrUnknownMessageType {
		t.Errorf("expected unknown_message_type error, got %+v", env)
	}
}

func TestRouterMissingFieldsDroppedSilently(t *testing.T) {
	router, store, a, b := routerFixture(t)

	// Recognized commands with missing required fields: no reply, no broadcast.
	router.Handle(context.Background(), a, &Envelope{Type: TypeJoinConversation})
	router.Handle(context.Background(), a, &Envelope{Type: TypeStartTyping})
	router.Handle(context.Background(), a, &Envelope{Type: TypeMarkConversationRead})
	router.Handle(context.Background(), a, &Envelope{Type: TypeSendMessage, Content: "hi"})

	if env := receiveEnvelope(t, a, 50*time.Millisecond); env != nil {
		t.Errorf("expected no reply for dropped commands, got %+v", env)
	}
	if env := receiveEnvelope(t, b, 50*time.Millisecond); env != nil {
		t.Errorf("expected no broadcast for dropped commands, got %+v", env)
	}
	if store.sendCount() != 0 {
		t.Error("dropped send_message must not reach the store")
	}
}

func TestRouterTypingBroadcastExcludesSender(t *testing.T) {
	router, _, a, b := routerFixture(t)

	router.Handle(context.Background(), a, &Envelope{Type: TypeStartTyping, ConversationID: "c1"})

	env := receiveEnvelope(t, b, time.Second)
	if env == nil || env.Type != TypeUserTyping || env.UserID != "u1" || env.ConversationID != "c1" {
		t.Errorf("expected user_typing for u1 at B, got %+v", env)
	}
	if env := receiveEnvelope(t, a, 50*time.Millisecond); env != nil {
		t.Errorf("sender must not receive its own typing event, got %+v", env)
	}

	router.Handle(context.Background(), a, &Envelope{Type: TypeStopTyping, ConversationID: "c1"})
	env = receiveEnvelope(t, b, time.Second)
	if env == nil || env.Type != TypeUserStopTyping {
		t.Errorf("expected user_stop_typing at B, got %+v", env)
	}
}

func TestRouterMarkReadBroadcasts(t *testing.T) {
	router, store, a, b := routerFixture(t)

	router.Handle(context.Background(), a, &Envelope{Type: TypeMarkConversationRead, ConversationID: "c1"})

	if len(store.markCalls) != 1 || store.markCalls[0] != "c1" {
		t.Errorf("expected one MarkRead call for c1, got %v", store.markCalls)
	}
	env := receiveEnvelope(t, b, time.Second)
	if env == nil || env.Type != TypeConversationRead || env.UserID != "u1" {
		t.Errorf("expected conversation_read at B, got %+v", env)
	}
	if env := receiveEnvelope(t, a, 50*time.Millisecond); env != nil {
		t.Errorf("reader must not receive its own read event, got %+v", env)
	}
}

func TestRouterMarkReadStoreFailure(t *testing.T) {
	router, store, a, b := routerFixture(t)
	store.failMarkRead = true

	router.Handle(context.Background(), a, &Envelope{Type: TypeMarkConversationRead, ConversationID: "c1"})

	if env := receiveEnvelope(t, b, 50*time.Millisecond); env != nil {
		t.Errorf("store failure must suppress the broadcast, got %+v", env)
	}
}

func TestRouterSendMessageDeliversToWholeGroup(t *testing.T) {
	router, _, a, b := routerFixture(t)

	router.Handle(context.Background(), a, &Envelope{Type: TypeSendMessage, ConversationID: "c1", Content: "  hello  "})

	for name, c := range map[string]*Client{"sender": a, "peer": b} {
		env := receiveEnvelope(t, c, time.Second)
		if env == nil || env.Type != TypeNewMessage {
			t.Fatalf("%s: expected new_message, got %+v", name, env)
		}
		if env.Message == nil || env.Message.Content != "hello" {
			t.Errorf("%s: expected trimmed content %q, got %+v", name, "hello", env.Message)
		}
		if env.Message.SenderName != "Sara" {
			t.Errorf("%s: expected sender enrichment, got %+v", name, env.Message)
		}
	}
}

func TestRouterSendMessageEmptyContent(t *testing.T) {
	router, store, a, b := routerFixture(t)

	router.Handle(context.Background(), a, &Envelope{Type: TypeSendMessage, ConversationID: "c1", Content: "   \t\n"})

	if store.sendCount() != 0 {
		t.Error("whitespace-only content must never reach the store")
	}
	if env := receiveEnvelope(t, b, 50*time.Millisecond); env != nil {
		t.Errorf("whitespace-only content must not broadcast, got %+v", env)
	}
}

func TestRouterSendMessageStoreFailure(t *testing.T) {
	router, store, a, b := routerFixture(t)
	store.failSend = true

	router.Handle(context.Background(), a, &Envelope{Type: TypeSendMessage, ConversationID: "c1", Content: "hello"})

	if env := receiveEnvelope(t, b, 50*time.Millisecond); env != nil {
		t.Errorf("uncommitted message must not broadcast, got %+v", env)
	}
	if env := receiveEnvelope(t, a, 50*time.Millisecond); env != nil {
		t.Errorf("store failure must not error the sender connection, got %+v", env)
	}
}

func TestRouterSendMessageMissingProfile(t *testing.T) {
	router, _, _, b := routerFixture(t)

	// u2 has no profile entry in the fake store.
	router.Handle(context.Background(), b, &Envelope{Type: TypeSendMessage, ConversationID: "c1", Content: "hi"})

	env := receiveEnvelope(t, b, time.Second)
	if env == nil || env.Type != TypeNewMessage {
		t.Fatalf("expected new_message, got %+v", env)
	}
	if env.Message.SenderName != "" || env.Message.SenderPhoto != "" {
		t.Errorf("missing profile must omit enrichment fields, got %+v", env.Message)
	}
}
