// ABOUTME: Tests for SQLite store implementation
// ABOUTME: Covers conversation uniqueness, message ordering, profiles and actors

package store

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSQLiteStore_CreatesDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "subdir", "nested", "test.db")

	store, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer store.Close()

	_, err = os.Stat(dbPath)
	assert.NoError(t, err, "database file should exist in nested directory")
}

func TestSQLite_CreateAndGetConversation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	conv := &Conversation{
		ID:           "conv-1",
		ParticipantA: "alice",
		ParticipantB: "bob",
		CreatedAt:    time.Now().UTC(),
	}
	require.NoError(t, store.CreateConversation(ctx, conv))

	got, err := store.GetConversation(ctx, "conv-1")
	require.NoError(t, err)
	assert.Equal(t, "alice", got.ParticipantA)
	assert.Equal(t, "bob", got.ParticipantB)
	assert.WithinDuration(t, conv.CreatedAt, got.CreatedAt, time.Microsecond)
}

func TestSQLite_GetConversation_NotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetConversation(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLite_CreateConversation_DuplicatePairEitherOrder(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateConversation(ctx, &Conversation{
		ID: "conv-1", ParticipantA: "alice", ParticipantB: "bob", CreatedAt: time.Now(),
	}))

	err := store.CreateConversation(ctx, &Conversation{
		ID: "conv-2", ParticipantA: "alice", ParticipantB: "bob", CreatedAt: time.Now(),
	})
	assert.ErrorIs(t, err, ErrDuplicateConversation, "same order should clash")

	err = store.CreateConversation(ctx, &Conversation{
		ID: "conv-3", ParticipantA: "bob", ParticipantB: "alice", CreatedAt: time.Now(),
	})
	assert.ErrorIs(t, err, ErrDuplicateConversation, "reversed order should clash")
}

func TestSQLite_CreateConversation_ConcurrentSingleWinner(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	const n = 16
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := range n {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, b := "alice", "bob"
			if i%2 == 1 {
				a, b = b, a
			}
			errs[i] = store.CreateConversation(ctx, &Conversation{
				ID:           "conv-" + string(rune('a'+i)),
				ParticipantA: a,
				ParticipantB: b,
				CreatedAt:    time.Now(),
			})
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		assert.ErrorIs(t, err, ErrDuplicateConversation)
	}
	assert.Equal(t, 1, wins)

	convs, err := store.ListConversations(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, convs, 1)
}

func TestSQLite_FindConversation_IsOrdered(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateConversation(ctx, &Conversation{
		ID: "conv-1", ParticipantA: "alice", ParticipantB: "bob", CreatedAt: time.Now(),
	}))

	got, err := store.FindConversation(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.Equal(t, "conv-1", got.ID)

	_, err = store.FindConversation(ctx, "bob", "alice")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLite_ListConversations(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Now().UTC()

	require.NoError(t, store.CreateConversation(ctx, &Conversation{
		ID: "old", ParticipantA: "alice", ParticipantB: "bob", CreatedAt: base,
	}))
	require.NoError(t, store.CreateConversation(ctx, &Conversation{
		ID: "new", ParticipantA: "carol", ParticipantB: "alice", CreatedAt: base.Add(time.Minute),
	}))
	require.NoError(t, store.CreateConversation(ctx, &Conversation{
		ID: "other", ParticipantA: "bob", ParticipantB: "carol", CreatedAt: base,
	}))

	convs, err := store.ListConversations(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, convs, 2)
	assert.Equal(t, "new", convs[0].ID)
	assert.Equal(t, "old", convs[1].ID)
}

func TestSQLite_InsertMessage_AssignsIdentityAndOrder(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	createConv(t, store, "conv-1", "alice", "bob")

	fixed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return fixed }

	first, err := store.InsertMessage(ctx, &NewMessage{ConversationID: "conv-1", SenderID: "alice", Content: "Hello"})
	require.NoError(t, err)
	second, err := store.InsertMessage(ctx, &NewMessage{ConversationID: "conv-1", SenderID: "bob", Content: "Hi"})
	require.NoError(t, err)

	assert.NotEmpty(t, first.ID)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Less(t, first.Seq, second.Seq, "ties on sent_at are broken by insertion order")

	msgs, err := store.ListMessages(ctx, "conv-1")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "Hello", msgs[0].Content)
	assert.Equal(t, "Hi", msgs[1].Content)
	assert.True(t, msgs[0].SentAt.Equal(fixed))

	latest, err := store.LatestMessage(ctx, "conv-1")
	require.NoError(t, err)
	assert.Equal(t, second.ID, latest.ID)
}

func TestSQLite_ListMessages_SortsBySentTime(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	createConv(t, store, "conv-1", "alice", "bob")

	times := []time.Time{
		time.Date(2025, 3, 1, 12, 0, 2, 0, time.UTC),
		time.Date(2025, 3, 1, 12, 0, 1, 500, time.UTC),
		time.Date(2025, 3, 1, 12, 0, 3, 0, time.UTC),
	}
	for i, ts := range times {
		store.now = func() time.Time { return ts }
		_, err := store.InsertMessage(ctx, &NewMessage{
			ConversationID: "conv-1", SenderID: "alice", Content: string(rune('a' + i)),
		})
		require.NoError(t, err)
	}

	msgs, err := store.ListMessages(ctx, "conv-1")
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, []string{"b", "a", "c"}, []string{msgs[0].Content, msgs[1].Content, msgs[2].Content})
}

func TestSQLite_InsertMessage_UnknownConversation(t *testing.T) {
	store := newTestStore(t)

	_, err := store.InsertMessage(context.Background(), &NewMessage{
		ConversationID: "missing", SenderID: "alice", Content: "Hello",
	})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLite_LatestMessage_EmptyConversation(t *testing.T) {
	store := newTestStore(t)
	createConv(t, store, "conv-1", "alice", "bob")

	_, err := store.LatestMessage(context.Background(), "conv-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLite_Profiles(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.GetProfile(ctx, "alice")
	assert.ErrorIs(t, err, ErrNotFound, "profiles may not exist yet")

	require.NoError(t, store.UpsertProfile(ctx, &Profile{ActorID: "alice", DisplayName: "Alice"}))
	require.NoError(t, store.UpsertProfile(ctx, &Profile{ActorID: "alice", DisplayName: "Alice N.", AvatarURL: "avatars/alice.png"}))

	got, err := store.GetProfile(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "Alice N.", got.DisplayName)
	assert.Equal(t, "avatars/alice.png", got.AvatarURL)
	assert.False(t, got.UpdatedAt.IsZero())
}

func TestSQLite_Actors(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	exists, err := store.ActorExists(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, store.RegisterActor(ctx, "alice"))
	require.NoError(t, store.RegisterActor(ctx, "alice"), "re-registering is a no-op")

	exists, err = store.ActorExists(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, exists)
}

func createConv(t *testing.T, s Store, id, a, b string) {
	t.Helper()
	require.NoError(t, s.CreateConversation(context.Background(), &Conversation{
		ID: id, ParticipantA: a, ParticipantB: b, CreatedAt: time.Now(),
	}))
}

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	return store
}
