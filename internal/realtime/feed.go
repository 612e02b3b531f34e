// ABOUTME: In-memory realtime change feed for conversation and message inserts
// ABOUTME: Subscribers register a table filter and receive matching insert events

package realtime

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/bazaar-gateway/internal/store"
)

const (
	// DefaultBufferSize is the channel buffer for each subscriber.
	DefaultBufferSize = 64

	// EventInsert reports an inserted row.
	EventInsert = "INSERT"

	// EventResync carries no row. It tells one subscriber that events may
	// have been missed and that it should reload what it shows.
	EventResync = "RESYNC"
)

// Event is a row-insert notification. ID is the inserted row's ID, so
// consumers of an at-least-once transport can dedupe on it.
type Event struct {
	ID           string              `json:"id"`
	Type         string              `json:"type"`
	Table        string              `json:"table"`
	Participants [2]string           `json:"participants"`
	Conversation *store.Conversation `json:"conversation,omitempty"`
	Message      *store.Message      `json:"message,omitempty"`
	At           time.Time           `json:"at"`
}

// ConversationID returns the conversation the inserted row belongs to.
func (e Event) ConversationID() string {
	if e.Message != nil {
		return e.Message.ConversationID
	}
	if e.Conversation != nil {
		return e.Conversation.ID
	}
	return ""
}

// Filter selects events for a subscription. Empty fields match anything.
type Filter struct {
	Table          string `json:"table"`
	ConversationID string `json:"conversation_id,omitempty"`
	ParticipantID  string `json:"participant_id,omitempty"`
}

// Matches reports whether the event passes the filter.
// A resync event has no row, so only its table is checked.
func (f Filter) Matches(e Event) bool {
	if e.Type == EventResync {
		return f.Table == "" || e.Table == "" || f.Table == e.Table
	}
	if f.Table != "" && f.Table != e.Table {
		return false
	}
	if f.ConversationID != "" && f.ConversationID != e.ConversationID() {
		return false
	}
	if f.ParticipantID != "" && e.Participants[0] != f.ParticipantID && e.Participants[1] != f.ParticipantID {
		return false
	}
	return true
}

type subscription struct {
	filter Filter
	ch     chan Event
}

// Feed provides in-memory pub/sub for insert events. Publishing never blocks:
// events are dropped for subscribers whose buffers are full.
type Feed struct {
	mu         sync.RWMutex
	subs       map[string]*subscription // subID -> subscription
	bufferSize int
	closed     bool
	logger     *slog.Logger
}

// NewFeed creates a feed. Pass nil logger for default and 0 for DefaultBufferSize.
func NewFeed(logger *slog.Logger, bufferSize int) *Feed {
	if logger == nil {
		logger = slog.Default()
	}
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Feed{
		subs:       make(map[string]*subscription),
		bufferSize: bufferSize,
		logger:     logger.With("component", "realtime"),
	}
}

// Subscribe registers a subscriber for events matching filter. The returned
// channel is closed on Unsubscribe, on Close, or when ctx is cancelled.
func (f *Feed) Subscribe(ctx context.Context, filter Filter) (<-chan Event, string) {
	subID := uuid.New().String()
	ch := make(chan Event, f.bufferSize)

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		close(ch)
		return ch, subID
	}
	f.subs[subID] = &subscription{filter: filter, ch: ch}
	f.mu.Unlock()

	f.logger.Debug("subscriber added",
		"sub_id", subID,
		"table", filter.Table,
		"conversation_id", filter.ConversationID,
		"participant_id", filter.ParticipantID)

	// Auto-cleanup on context cancellation
	go func() {
		<-ctx.Done()
		f.Unsubscribe(subID)
	}()

	return ch, subID
}

// Publish delivers an event to every matching subscriber, including the
// client whose write produced it.
func (f *Feed) Publish(event Event) {
	if event.Type == "" {
		event.Type = EventInsert
	}

	// Sends are non-blocking, so holding the read lock keeps Unsubscribe from
	// closing a channel mid-send without stalling the publisher.
	f.mu.RLock()
	defer f.mu.RUnlock()

	for subID, sub := range f.subs {
		if !sub.filter.Matches(event) {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			f.logger.Warn("dropped event for slow subscriber",
				"sub_id", subID,
				"table", event.Table,
				"event_id", event.ID)
		}
	}
}

// Unsubscribe removes a subscription and closes its channel. Unknown IDs are ignored.
func (f *Feed) Unsubscribe(subID string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	sub, ok := f.subs[subID]
	if !ok {
		return
	}
	delete(f.subs, subID)
	close(sub.ch)

	f.logger.Debug("subscriber removed", "sub_id", subID)
}

// SubscriberCount returns the number of live subscriptions.
func (f *Feed) SubscriberCount() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subs)
}

// Close shuts down the feed and closes all subscriber channels.
func (f *Feed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()

	for subID, sub := range f.subs {
		close(sub.ch)
		delete(f.subs, subID)
	}
	f.closed = true

	f.logger.Debug("feed closed")
}
