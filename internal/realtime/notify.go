// ABOUTME: Store decorator that publishes realtime insert events after successful writes
// ABOUTME: Mirrors a database change feed: every committed insert is echoed to subscribers

package realtime

import (
	"context"
	"time"

	"github.com/2389/bazaar-gateway/internal/store"
)

// Publisher is what NotifyingStore needs from a feed.
type Publisher interface {
	Publish(event Event)
}

// NotifyingStore wraps a store.Store and publishes an insert event for every
// conversation and message it persists.
type NotifyingStore struct {
	store.Store
	feed Publisher
}

// NewNotifyingStore decorates s so inserts are published to feed.
func NewNotifyingStore(s store.Store, feed Publisher) *NotifyingStore {
	return &NotifyingStore{Store: s, feed: feed}
}

// CreateConversation persists the conversation and publishes it.
func (n *NotifyingStore) CreateConversation(ctx context.Context, conv *store.Conversation) error {
	if err := n.Store.CreateConversation(ctx, conv); err != nil {
		return err
	}
	c := *conv
	n.feed.Publish(Event{
		ID:           c.ID,
		Type:         EventInsert,
		Table:        store.TableConversations,
		Participants: c.Participants(),
		Conversation: &c,
		At:           time.Now(),
	})
	return nil
}

// InsertMessage persists the message and publishes it with the conversation's
// participants attached, so participant-scoped subscribers can match it.
func (n *NotifyingStore) InsertMessage(ctx context.Context, in *store.NewMessage) (*store.Message, error) {
	msg, err := n.Store.InsertMessage(ctx, in)
	if err != nil {
		return nil, err
	}

	var participants [2]string
	if conv, err := n.Store.GetConversation(ctx, msg.ConversationID); err == nil {
		participants = conv.Participants()
	}

	m := *msg
	n.feed.Publish(Event{
		ID:           m.ID,
		Type:         EventInsert,
		Table:        store.TableMessages,
		Participants: participants,
		Message:      &m,
		At:           time.Now(),
	})
	return msg, nil
}
