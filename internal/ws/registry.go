package ws

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/event-connect/backend/internal/model"
)

// TokenVerifier validates an opaque credential and returns the identity it
// carries.
type TokenVerifier interface {
	Verify(token string) (*model.Identity, error)
}

// Registry tracks every live connection together with its authentication
// state, the per-event presence groups and the per-conversation broadcast
// groups. All indexes form a single unit of shared state guarded by one
// mutex; verifier calls and transport sends happen outside the critical
// section.
type Registry struct {
	verifier TokenVerifier

	mu            sync.RWMutex
	sessions      map[string]*Client            // session id -> live client
	identities    map[string]model.Identity     // session id -> identity, present once authenticated
	users         map[string]string             // user id -> current session id
	events        map[string]map[string]*Client // event id -> session id -> client
	conversations map[string]map[string]*Client // conversation id -> session id -> client
}

// NewRegistry creates an empty registry using the given token verifier.
func NewRegistry(verifier TokenVerifier) *Registry {
	return &Registry{
		verifier:      verifier,
		sessions:      make(map[string]*Client),
		identities:    make(map[string]model.Identity),
		users:         make(map[string]string),
		events:        make(map[string]map[string]*Client),
		conversations: make(map[string]map[string]*Client),
	}
}

// Connect registers a connection as present but unauthenticated. No
// broadcast side effects.
func (r *Registry) Connect(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[c.ID()] = c
}

// Authenticate verifies the token and, on success, binds the identity to the
// connection, joins it to its event group, makes it the current session for
// its user (superseding any prior mapping) and announces user_online to the
// rest of the event group. Returns false on verification failure with no
// state change. Re-authenticating an already-authenticated connection moves
// it to the new identity: last authenticate wins.
func (r *Registry) Authenticate(c *Client, token string) bool {
	identity, err := r.verifier.Verify(token)
	if err != nil {
		return false
	}

	r.mu.Lock()
	if _, live := r.sessions[c.ID()]; !live {
		r.mu.Unlock()
		return false
	}

	if prev, ok := r.identities[c.ID()]; ok {
		r.removeFromEventLocked(prev.EventID, c.ID())
		if r.users[prev.UserID] == c.ID() {
			delete(r.users, prev.UserID)
		}
	}

	r.identities[c.ID()] = *identity
	r.users[identity.UserID] = c.ID()

	group := r.events[identity.EventID]
	if group == nil {
		group = make(map[string]*Client)
		r.events[identity.EventID] = group
	}
	group[c.ID()] = c

	recipients := r.eventSnapshotLocked(identity.EventID, c)
	r.mu.Unlock()

	deliver(recipients, &Envelope{Type: TypeUserOnline, UserID: identity.UserID})
	return true
}

// Disconnect tears a connection out of every index and, if it was
// authenticated, announces user_offline to its former event group. It is
// idempotent: a second call for the same connection is a no-op, and a stale
// disconnect never evicts a newer session that superseded this one.
func (r *Registry) Disconnect(c *Client) {
	r.mu.Lock()
	if _, live := r.sessions[c.ID()]; !live {
		r.mu.Unlock()
		return
	}
	delete(r.sessions, c.ID())

	identity, authed := r.identities[c.ID()]
	delete(r.identities, c.ID())

	var recipients []*Client
	if authed {
		if r.users[identity.UserID] == c.ID() {
			delete(r.users, identity.UserID)
		}
		r.removeFromEventLocked(identity.EventID, c.ID())
		recipients = r.eventSnapshotLocked(identity.EventID, c)
	}

	for conversationID, members := range r.conversations {
		if _, ok := members[c.ID()]; ok {
			delete(members, c.ID())
			if len(members) == 0 {
				delete(r.conversations, conversationID)
			}
		}
	}
	r.mu.Unlock()

	c.Close()

	if authed {
		deliver(recipients, &Envelope{Type: TypeUserOffline, UserID: identity.UserID})
	}
}

// JoinConversation adds a connection to a conversation group. Pure index
// mutation, no broadcast.
func (r *Registry) JoinConversation(c *Client, conversationID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, live := r.sessions[c.ID()]; !live {
		return
	}

	members := r.conversations[conversationID]
	if members == nil {
		members = make(map[string]*Client)
		r.conversations[conversationID] = members
	}
	members[c.ID()] = c
}

// LeaveConversation removes a connection from a conversation group, deleting
// the group when it empties. Pure index mutation, no broadcast.
func (r *Registry) LeaveConversation(c *Client, conversationID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	members := r.conversations[conversationID]
	if members == nil {
		return
	}
	delete(members, c.ID())
	if len(members) == 0 {
		delete(r.conversations, conversationID)
	}
}

// BroadcastEvent fans an envelope out to every member of an event group,
// optionally excluding one connection. Delivery is best effort per
// recipient.
func (r *Registry) BroadcastEvent(eventID string, env *Envelope, exclude *Client) {
	r.mu.RLock()
	recipients := r.eventSnapshotLocked(eventID, exclude)
	r.mu.RUnlock()

	deliver(recipients, env)
}

// BroadcastConversation fans an envelope out to every member of a
// conversation group, optionally excluding one connection. Delivery is best
// effort per recipient.
func (r *Registry) BroadcastConversation(conversationID string, env *Envelope, exclude *Client) {
	r.mu.RLock()
	recipients := r.conversationSnapshotLocked(conversationID, exclude)
	r.mu.RUnlock()

	deliver(recipients, env)
}

// Identity returns the identity bound to a connection, if authenticated.
func (r *Registry) Identity(c *Client) (model.Identity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	identity, ok := r.identities[c.ID()]
	return identity, ok
}

// CurrentSessionID returns the session id currently mapped to a user.
func (r *Registry) CurrentSessionID(userID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.users[userID]
	return id, ok
}

// SessionCount returns the number of live connections, authenticated or not.
func (r *Registry) SessionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// EventGroupSize returns the membership size of an event group.
func (r *Registry) EventGroupSize(eventID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.events[eventID])
}

// ConversationGroupSize returns the membership size of a conversation group.
func (r *Registry) ConversationGroupSize(conversationID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conversations[conversationID])
}

// InConversation reports whether a connection has joined a conversation.
func (r *Registry) InConversation(c *Client, conversationID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.conversations[conversationID][c.ID()]
	return ok
}

// Close tears down every live connection. Used on shutdown.
func (r *Registry) Close() {
	r.mu.Lock()
	clients := make([]*Client, 0, len(r.sessions))
	for _, c := range r.sessions {
		clients = append(clients, c)
	}
	r.sessions = make(map[string]*Client)
	r.identities = make(map[string]model.Identity)
	r.users = make(map[string]string)
	r.events = make(map[string]map[string]*Client)
	r.conversations = make(map[string]map[string]*Client)
	r.mu.Unlock()

	for _, c := range clients {
		c.Close()
	}
}

func (r *Registry) removeFromEventLocked(eventID, sessionID string) {
	group := r.events[eventID]
	if group == nil {
		return
	}
	delete(group, sessionID)
	if len(group) == 0 {
		delete(r.events, eventID)
	}
}

// eventSnapshotLocked copies an event group's membership so fan-out can send
// without holding the index lock. Callers must hold mu.
func (r *Registry) eventSnapshotLocked(eventID string, exclude *Client) []*Client {
	group := r.events[eventID]
	if len(group) == 0 {
		return nil
	}
	snapshot := make([]*Client, 0, len(group))
	for _, c := range group {
		if c == exclude {
			continue
		}
		snapshot = append(snapshot, c)
	}
	return snapshot
}

func (r *Registry) conversationSnapshotLocked(conversationID string, exclude *Client) []*Client {
	members := r.conversations[conversationID]
	if len(members) == 0 {
		return nil
	}
	snapshot := make([]*Client, 0, len(members))
	for _, c := range members {
		if c == exclude {
			continue
		}
		snapshot = append(snapshot, c)
	}
	return snapshot
}

// deliver sends one marshaled envelope to each recipient. Client.Send never
// raises; a recipient that cannot keep up is closed and reaped on its own
// disconnect.
func deliver(recipients []*Client, env *Envelope) {
	if len(recipients) == 0 {
		return
	}
	data, err := json.Marshal(env)
	if err != nil {
		log.Printf("Failed to marshal broadcast envelope: %v", err)
		return
	}
	for _, c := range recipients {
		c.Send(data)
	}
}
