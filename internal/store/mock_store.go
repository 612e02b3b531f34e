// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite while keeping its uniqueness rules

package store

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrUnavailable is returned by MockStore operations while the store is marked down.
var ErrUnavailable = errors.New("store unavailable")

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	mu            sync.RWMutex
	actors        map[string]bool
	conversations map[string]*Conversation // keyed by conversation ID
	pairIndex     map[string]string        // keyed by unordered pair -> conversation ID
	messages      map[string][]*Message    // keyed by conversation ID
	profiles      map[string]*Profile      // keyed by actor ID
	seq           int64

	// Now supplies message timestamps; tests may override it.
	Now func() time.Time

	// InsertErr, when set, is returned by InsertMessage instead of storing.
	InsertErr error
	// BeforeCreate, when set, runs before CreateConversation takes the lock.
	// Tests use it to interleave concurrent callers.
	BeforeCreate func(conv *Conversation)

	down bool
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		actors:        make(map[string]bool),
		conversations: make(map[string]*Conversation),
		pairIndex:     make(map[string]string),
		messages:      make(map[string][]*Message),
		profiles:      make(map[string]*Profile),
		Now:           time.Now,
	}
}

// SetDown makes every subsequent call fail with ErrUnavailable until cleared.
func (m *MockStore) SetDown(down bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.down = down
}

func pairKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + "\x00" + b
}

// RegisterActor records an actor.
func (m *MockStore) RegisterActor(ctx context.Context, actorID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.down {
		return ErrUnavailable
	}
	m.actors[actorID] = true
	return nil
}

// ActorExists reports whether the actor was registered.
func (m *MockStore) ActorExists(ctx context.Context, actorID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.down {
		return false, ErrUnavailable
	}
	return m.actors[actorID], nil
}

// CreateConversation stores a new conversation, rejecting a second conversation
// for the same unordered pair with ErrDuplicateConversation.
func (m *MockStore) CreateConversation(ctx context.Context, conv *Conversation) error {
	if m.BeforeCreate != nil {
		m.BeforeCreate(conv)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.down {
		return ErrUnavailable
	}

	key := pairKey(conv.ParticipantA, conv.ParticipantB)
	if _, exists := m.pairIndex[key]; exists {
		return ErrDuplicateConversation
	}
	if _, exists := m.conversations[conv.ID]; exists {
		return ErrDuplicateConversation
	}

	// Make a copy to avoid external modification
	c := *conv
	m.conversations[c.ID] = &c
	m.pairIndex[key] = c.ID
	return nil
}

// GetConversation retrieves a conversation by ID.
func (m *MockStore) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.down {
		return nil, ErrUnavailable
	}

	c, ok := m.conversations[id]
	if !ok {
		return nil, ErrNotFound
	}
	result := *c
	return &result, nil
}

// FindConversation retrieves a conversation by its exact stored participant order.
func (m *MockStore) FindConversation(ctx context.Context, participantA, participantB string) (*Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.down {
		return nil, ErrUnavailable
	}

	for _, c := range m.conversations {
		if c.ParticipantA == participantA && c.ParticipantB == participantB {
			result := *c
			return &result, nil
		}
	}
	return nil, ErrNotFound
}

// ListConversations returns the actor's conversations, newest first.
func (m *MockStore) ListConversations(ctx context.Context, actorID string) ([]*Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.down {
		return nil, ErrUnavailable
	}

	var result []*Conversation
	for _, c := range m.conversations {
		if c.HasParticipant(actorID) {
			cc := *c
			result = append(result, &cc)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

// ConversationCount returns the number of stored conversations.
func (m *MockStore) ConversationCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.conversations)
}

// InsertMessage stores a message, assigning ID, sent time and sequence.
func (m *MockStore) InsertMessage(ctx context.Context, in *NewMessage) (*Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.down {
		return nil, ErrUnavailable
	}
	if m.InsertErr != nil {
		return nil, m.InsertErr
	}
	if _, ok := m.conversations[in.ConversationID]; !ok {
		return nil, ErrNotFound
	}

	m.seq++
	msg := &Message{
		ID:             uuid.New().String(),
		ConversationID: in.ConversationID,
		SenderID:       in.SenderID,
		Content:        in.Content,
		SentAt:         m.Now().UTC(),
		Seq:            m.seq,
	}
	stored := *msg
	m.messages[in.ConversationID] = append(m.messages[in.ConversationID], &stored)
	return msg, nil
}

// ListMessages returns a conversation's messages in chronological order.
func (m *MockStore) ListMessages(ctx context.Context, conversationID string) ([]*Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.down {
		return nil, ErrUnavailable
	}

	msgs := m.messages[conversationID]
	result := make([]*Message, len(msgs))
	for i, msg := range msgs {
		mc := *msg
		result[i] = &mc
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Before(result[j])
	})
	return result, nil
}

// LatestMessage returns the most recent message of a conversation.
func (m *MockStore) LatestMessage(ctx context.Context, conversationID string) (*Message, error) {
	msgs, err := m.ListMessages(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return nil, ErrNotFound
	}
	return msgs[len(msgs)-1], nil
}

// GetProfile retrieves an actor's profile.
func (m *MockStore) GetProfile(ctx context.Context, actorID string) (*Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.down {
		return nil, ErrUnavailable
	}

	p, ok := m.profiles[actorID]
	if !ok {
		return nil, ErrNotFound
	}
	result := *p
	return &result, nil
}

// UpsertProfile creates or replaces an actor's profile.
func (m *MockStore) UpsertProfile(ctx context.Context, p *Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.down {
		return ErrUnavailable
	}

	pc := *p
	if pc.UpdatedAt.IsZero() {
		pc.UpdatedAt = m.Now()
	}
	m.profiles[p.ActorID] = &pc
	return nil
}

// Close is a no-op for MockStore.
func (m *MockStore) Close() error {
	return nil
}

// Compile-time interface checks
var (
	_ Store = (*MockStore)(nil)
	_ Store = (*SQLiteStore)(nil)
)
