package ws

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/event-connect/backend/internal/model"
)

// tableVerifier returns a verifier that accepts tokens "t0".."t{n-1}" for
// distinct users "u0".."u{n-1}" all scoped to event e1.
func tableVerifier(n int) TokenVerifier {
	identities := make(map[string]model.Identity, n)
	for i := 0; i < n; i++ {
		identities[fmt.Sprintf("t%d", i)] = model.Identity{
			UserID:  fmt.Sprintf("u%d", i),
			EventID: "e1",
		}
	}
	return &stubVerifier{identities: identities}
}

// For any number of connections and any subset of concurrent disconnects,
// every registry index inspected at quiescence contains exactly the
// connections that are still live — no dangling members, no missing ones.
func TestRegistryIndexConsistencyProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("indexes match live connections at quiescence", prop.ForAll(
		func(n int, disconnectMask int) bool {
			registry := NewRegistry(tableVerifier(n))

			clients := make([]*Client, n)
			for i := 0; i < n; i++ {
				clients[i] = NewClient(nil)
				registry.Connect(clients[i])
				if !registry.Authenticate(clients[i], fmt.Sprintf("t%d", i)) {
					return false
				}
				registry.JoinConversation(clients[i], "c1")
			}

			var wg sync.WaitGroup
			live := n
			for i := 0; i < n; i++ {
				if disconnectMask&(1<<i) == 0 {
					continue
				}
				live--
				wg.Add(1)
				go func(c *Client) {
					defer wg.Done()
					registry.Disconnect(c)
				}(clients[i])
			}
			wg.Wait()

			if registry.SessionCount() != live {
				return false
			}
			if registry.EventGroupSize("e1") != live {
				return false
			}
			if registry.ConversationGroupSize("c1") != live {
				return false
			}
			for i := 0; i < n; i++ {
				gone := disconnectMask&(1<<i) != 0
				if registry.InConversation(clients[i], "c1") == gone {
					return false
				}
				_, mapped := registry.CurrentSessionID(fmt.Sprintf("u%d", i))
				if mapped == gone {
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 12),
		gen.IntRange(0, 1<<12-1),
	))

	properties.TestingRun(t)
}

// For any chain of connections authenticating as the same user, the newest
// one owns the user mapping, earlier ones stay open, and a stale disconnect
// never evicts the newest mapping.
func TestSupersedeChainProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	verifier := &stubVerifier{identities: map[string]model.Identity{
		"t": {UserID: "u1", EventID: "e1"},
	}}

	properties.Property("last authenticate wins and survives stale disconnects", prop.ForAll(
		func(chainLen int, staleIdx int) bool {
			registry := NewRegistry(verifier)

			clients := make([]*Client, chainLen)
			for i := range clients {
				clients[i] = NewClient(nil)
				registry.Connect(clients[i])
				if !registry.Authenticate(clients[i], "t") {
					return false
				}
			}

			newest := clients[chainLen-1]
			if id, ok := registry.CurrentSessionID("u1"); !ok || id != newest.ID() {
				return false
			}
			for _, c := range clients[:chainLen-1] {
				if c.IsClosed() {
					return false
				}
			}

			if staleIdx >= chainLen-1 {
				staleIdx = 0
			}
			if chainLen > 1 {
				registry.Disconnect(clients[staleIdx])
				if id, ok := registry.CurrentSessionID("u1"); !ok || id != newest.ID() {
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 8),
		gen.IntRange(0, 7),
	))

	properties.TestingRun(t)
}

// Broadcasting to a group where one member's transport has failed still
// delivers to every other member and never raises to the caller.
func TestBroadcastIsolationProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("one dead recipient never blocks the rest", prop.ForAll(
		func(k int, deadIdx int) bool {
			registry := NewRegistry(tableVerifier(k))

			members := make([]*Client, k)
			for i := 0; i < k; i++ {
				members[i] = NewClient(nil)
				registry.Connect(members[i])
				registry.Authenticate(members[i], fmt.Sprintf("t%d", i))
				registry.JoinConversation(members[i], "c1")
			}
			// Presence frames are enqueued synchronously during Authenticate,
			// so a non-blocking drain empties every queue.
			for _, m := range members {
				for drained := false; !drained; {
					select {
					case <-m.SendChan():
					default:
						drained = true
					}
				}
			}

			deadIdx = deadIdx % k
			members[deadIdx].Close()

			registry.BroadcastConversation("c1", &Envelope{Type: TypeUserTyping, UserID: "u0", ConversationID: "c1"}, nil)

			for i, m := range members {
				if i == deadIdx {
					continue
				}
				select {
				case _, ok := <-m.SendChan():
					if !ok {
						return false
					}
				case <-time.After(time.Second):
					return false
				}
			}
			return true
		},
		gen.IntRange(2, 10),
		gen.IntRange(0, 9),
	))

	properties.TestingRun(t)
}
