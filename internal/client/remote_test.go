// ABOUTME: End-to-end tests running chat sessions and the inbox view model over the remote client
// ABOUTME: Two actors talk through a gateway with HTTP writes, websocket echoes and dropped sockets

package client

import (
	"context"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/bazaar-gateway/internal/auth"
	"github.com/2389/bazaar-gateway/internal/chat"
	"github.com/2389/bazaar-gateway/internal/dedupe"
	"github.com/2389/bazaar-gateway/internal/dm"
	"github.com/2389/bazaar-gateway/internal/inbox"
	"github.com/2389/bazaar-gateway/internal/store"
)

type remoteActor struct {
	identity *auth.Identity
	api      *Client
	feed     *FeedClient
}

func (f *fixture) actor(t *testing.T, name string) *remoteActor {
	t.Helper()
	identity := auth.NewIdentity()
	_, err := identity.SignIn(f.tokens[name])
	require.NoError(t, err)

	feed := NewFeedClient(f.server.URL, f.tokens[name], FeedOptions{Logger: testLogger()})
	t.Cleanup(feed.Close)
	return &remoteActor{identity: identity, api: f.client(name), feed: feed}
}

func (a *remoteActor) open(t *testing.T, conversationID string) *chat.Session {
	t.Helper()
	s, err := chat.Open(context.Background(), chat.Config{
		ConversationID: conversationID,
		Store:          a.api,
		Profiles:       a.api,
		Feed:           a.feed,
		Identity:       a.identity,
		Logger:         testLogger(),
	})
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func contents(entries []chat.Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Content
	}
	return out
}

func TestRemote_TwoSessionsConverse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice, bob := f.actor(t, "alice"), f.actor(t, "bob")

	conv, err := alice.api.Resolve(ctx, "alice", "bob")
	require.NoError(t, err)

	aliceSession := alice.open(t, conv.ID)
	bobSession := bob.open(t, conv.ID)
	require.Eventually(t, func() bool { return f.gw.SubscriberCount() == 2 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, aliceSession.Send(ctx, "Is the bike still available?"))
	require.NoError(t, bobSession.Send(ctx, "Yes"))

	want := []string{"Is the bike still available?", "Yes"}
	for _, s := range []*chat.Session{aliceSession, bobSession} {
		require.Eventually(t, func() bool {
			return assert.ObjectsAreEqual(want, contents(s.Messages()))
		}, 2*time.Second, 10*time.Millisecond)
		for _, e := range s.Messages() {
			assert.Equal(t, chat.StateConfirmed, e.State)
			assert.NotEmpty(t, e.ID)
		}
	}

	// the echo of alice's own message does not duplicate it
	time.Sleep(100 * time.Millisecond)
	assert.Len(t, aliceSession.Messages(), 2)
}

func TestRemote_NonParticipantCannotOpen(t *testing.T) {
	f := newFixture(t)
	conv, err := f.client("alice").Resolve(context.Background(), "alice", "bob")
	require.NoError(t, err)

	carol := f.actor(t, "carol")
	_, err = chat.Open(context.Background(), chat.Config{
		ConversationID: conv.ID,
		Store:          carol.api,
		Profiles:       carol.api,
		Feed:           carol.feed,
		Identity:       carol.identity,
	})
	require.Error(t, err)
	assert.True(t, dm.IsNotFound(err))
}

func TestRemote_InboxReloadsOnNewConversation(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	alice := f.actor(t, "alice")

	window := dedupe.NewWindow(time.Minute, 128)
	defer window.Close()
	vm := inbox.New(inbox.Config{
		Store:    alice.api,
		Resolver: alice.api,
		Feed:     alice.feed,
		Window:   window,
		Logger:   testLogger(),
	})

	entries, err := vm.Load(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, entries)

	watchDone := make(chan error, 1)
	go func() { watchDone <- vm.Watch(ctx, "alice") }()
	require.Eventually(t, func() bool { return f.gw.SubscriberCount() == 2 }, 2*time.Second, 10*time.Millisecond)

	conv, err := f.client("carol").Resolve(ctx, "carol", "alice")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		e := vm.Entries()
		return len(e) == 1 && e[0].Conversation.ID == conv.ID
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "carol", vm.Entries()[0].CounterpartID)

	id, err := vm.OpenOrCreateByCounterpart(ctx, "alice", "carol")
	require.NoError(t, err)
	assert.Equal(t, conv.ID, id)

	id, err = vm.OpenOrCreateByCounterpart(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.NotEqual(t, conv.ID, id)

	cancel()
	select {
	case err := <-watchDone:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}

// relay forwards TCP connections to target. While down it cuts every open
// connection and refuses new ones.
type relay struct {
	ln     net.Listener
	target string

	mu    sync.Mutex
	down  bool
	conns []net.Conn
}

func newRelay(t *testing.T, target string) *relay {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	r := &relay{ln: ln, target: target}
	go r.serve()
	t.Cleanup(func() {
		_ = ln.Close()
		r.setDown(true)
	})
	return r
}

func (r *relay) URL() string {
	return "http://" + r.ln.Addr().String()
}

func (r *relay) serve() {
	for {
		c, err := r.ln.Accept()
		if err != nil {
			return
		}
		r.mu.Lock()
		if r.down {
			r.mu.Unlock()
			_ = c.Close()
			continue
		}
		up, err := net.Dial("tcp", r.target)
		if err != nil {
			r.mu.Unlock()
			_ = c.Close()
			continue
		}
		r.conns = append(r.conns, c, up)
		r.mu.Unlock()

		go pipe(c, up)
		go pipe(up, c)
	}
}

func pipe(dst, src net.Conn) {
	_, _ = io.Copy(dst, src)
	_ = dst.Close()
	_ = src.Close()
}

func (r *relay) setDown(down bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.down = down
	if down {
		for _, c := range r.conns {
			_ = c.Close()
		}
		r.conns = nil
	}
}

func TestRemote_SessionRecoversMessagesSentWhileDisconnected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.client("alice")

	conv, err := alice.Resolve(ctx, "alice", "bob")
	require.NoError(t, err)

	r := newRelay(t, f.server.Listener.Addr().String())
	identity := auth.NewIdentity()
	_, err = identity.SignIn(f.tokens["bob"])
	require.NoError(t, err)
	feed := NewFeedClient(r.URL(), f.tokens["bob"], FeedOptions{
		MinBackoff: 10 * time.Millisecond,
		MaxBackoff: 20 * time.Millisecond,
		Logger:     testLogger(),
	})
	t.Cleanup(feed.Close)

	bob := f.client("bob")
	session, err := chat.Open(ctx, chat.Config{
		ConversationID: conv.ID,
		Store:          bob,
		Profiles:       bob,
		Feed:           feed,
		Identity:       identity,
		Logger:         testLogger(),
	})
	require.NoError(t, err)
	t.Cleanup(session.Close)
	require.Eventually(t, func() bool { return f.gw.SubscriberCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	r.setDown(true)
	require.Eventually(t, func() bool { return f.gw.SubscriberCount() == 0 }, 2*time.Second, 10*time.Millisecond)

	_, err = alice.InsertMessage(ctx, &store.NewMessage{ConversationID: conv.ID, Content: "sent during redial"})
	require.NoError(t, err)

	r.setDown(false)
	require.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]string{"sent during redial"}, contents(session.Messages()))
	}, 2*time.Second, 10*time.Millisecond)

	_, err = alice.InsertMessage(ctx, &store.NewMessage{ConversationID: conv.ID, Content: "sent after redial"})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]string{"sent during redial", "sent after redial"}, contents(session.Messages()))
	}, 2*time.Second, 10*time.Millisecond)
}
