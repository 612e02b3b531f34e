// ABOUTME: Conversation list view model: every conversation of an actor with counterpart and last message
// ABOUTME: Fully reloads on conversation or message insert events for the actor; opens or creates by counterpart

package inbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/2389/bazaar-gateway/internal/dedupe"
	"github.com/2389/bazaar-gateway/internal/dm"
	"github.com/2389/bazaar-gateway/internal/realtime"
	"github.com/2389/bazaar-gateway/internal/store"
)

// Store defines what the view model reads
type Store interface {
	ListConversations(ctx context.Context, actorID string) ([]*store.Conversation, error)
	LatestMessage(ctx context.Context, conversationID string) (*store.Message, error)
	GetProfile(ctx context.Context, actorID string) (*store.Profile, error)
}

// Resolver finds or creates the conversation for a pair.
type Resolver interface {
	Resolve(ctx context.Context, actorID, counterpartID string) (*store.Conversation, error)
}

// Feed is the realtime change feed the view model listens to.
type Feed interface {
	Subscribe(ctx context.Context, filter realtime.Filter) (<-chan realtime.Event, string)
	Unsubscribe(subID string)
}

// Entry is one row of the conversation list.
type Entry struct {
	Conversation  *store.Conversation
	CounterpartID string
	Counterpart   *store.Profile // nil when the counterpart has no profile yet
	LastMessage   *store.Message // nil for a conversation without messages
}

// LastActivity is the last message time, or the creation time if there is none.
func (e Entry) LastActivity() time.Time {
	if e.LastMessage != nil {
		return e.LastMessage.SentAt
	}
	return e.Conversation.CreatedAt
}

// DisplayName returns the counterpart's name, falling back to their id.
func (e Entry) DisplayName() string {
	if e.Counterpart != nil && e.Counterpart.DisplayName != "" {
		return e.Counterpart.DisplayName
	}
	return e.CounterpartID
}

// Config holds the view model's collaborators. Feed and Window are optional.
type Config struct {
	Store    Store
	Resolver Resolver
	Feed     Feed
	Window   *dedupe.Window
	Logger   *slog.Logger
}

// ViewModel keeps the current actor's conversation list.
type ViewModel struct {
	store    Store
	resolver Resolver
	feed     Feed
	window   *dedupe.Window
	logger   *slog.Logger

	mu      sync.RWMutex
	entries []Entry
	changes chan struct{}
}

// New creates a view model.
func New(cfg Config) *ViewModel {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &ViewModel{
		store:    cfg.Store,
		resolver: cfg.Resolver,
		feed:     cfg.Feed,
		window:   cfg.Window,
		logger:   logger.With("component", "inbox"),
		changes:  make(chan struct{}, 1),
	}
}

// Load fetches all conversations of actorID with counterpart profile and last
// message, most recent activity first, and stores them as the current list.
func (v *ViewModel) Load(ctx context.Context, actorID string) ([]Entry, error) {
	convs, err := v.store.ListConversations(ctx, actorID)
	if err != nil {
		return nil, dm.Classify(fmt.Errorf("listing conversations: %w", err))
	}

	entries := make([]Entry, 0, len(convs))
	for _, conv := range convs {
		entry := Entry{
			Conversation:  conv,
			CounterpartID: conv.Counterpart(actorID),
		}

		profile, err := v.store.GetProfile(ctx, entry.CounterpartID)
		switch {
		case err == nil:
			entry.Counterpart = profile
		case !errors.Is(err, store.ErrNotFound):
			return nil, dm.Classify(fmt.Errorf("loading profile: %w", err))
		}

		last, err := v.store.LatestMessage(ctx, conv.ID)
		switch {
		case err == nil:
			entry.LastMessage = last
		case !errors.Is(err, store.ErrNotFound):
			return nil, dm.Classify(fmt.Errorf("loading last message: %w", err))
		}

		entries = append(entries, entry)
	}

	slices.SortStableFunc(entries, func(a, b Entry) int {
		return b.LastActivity().Compare(a.LastActivity())
	})

	v.mu.Lock()
	v.entries = entries
	select {
	case v.changes <- struct{}{}:
	default:
	}
	v.mu.Unlock()

	v.logger.Debug("conversations loaded", "actor_id", actorID, "count", len(entries))
	return slices.Clone(entries), nil
}

// Entries returns the last loaded list.
func (v *ViewModel) Entries() []Entry {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return slices.Clone(v.entries)
}

// Changes is signalled (coalesced) after every successful load.
func (v *ViewModel) Changes() <-chan struct{} {
	return v.changes
}

// Watch reloads the list whenever a conversation or message involving actorID
// is inserted, or the feed reports a resync. It blocks until ctx is cancelled
// and returns nil then. Reload failures are logged; the previous list stays
// in place.
func (v *ViewModel) Watch(ctx context.Context, actorID string) error {
	if v.feed == nil {
		return fmt.Errorf("%w: no realtime feed configured", dm.ErrInvalidOperation)
	}

	convEvents, convSub := v.feed.Subscribe(ctx, realtime.Filter{Table: store.TableConversations, ParticipantID: actorID})
	defer v.feed.Unsubscribe(convSub)
	msgEvents, msgSub := v.feed.Subscribe(ctx, realtime.Filter{Table: store.TableMessages, ParticipantID: actorID})
	defer v.feed.Unsubscribe(msgSub)

	for {
		var ev realtime.Event
		var ok bool
		select {
		case <-ctx.Done():
			return nil
		case ev, ok = <-convEvents:
		case ev, ok = <-msgEvents:
		}
		if !ok {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("%w: feed closed", dm.ErrTransient)
		}
		if ev.Type != realtime.EventResync && v.window != nil && v.window.Duplicate(dedupe.Key(ev.Table, ev.ID)) {
			continue
		}
		if _, err := v.Load(ctx, actorID); err != nil && ctx.Err() == nil {
			v.logger.Warn("reload failed", "actor_id", actorID, "table", ev.Table, "error", err)
		}
	}
}

// OpenOrCreateByCounterpart returns the conversation id to navigate to: the
// listed conversation with counterpartID if there is one, otherwise the one
// the Resolver finds or creates.
func (v *ViewModel) OpenOrCreateByCounterpart(ctx context.Context, actorID, counterpartID string) (string, error) {
	v.mu.RLock()
	for _, e := range v.entries {
		if e.CounterpartID == counterpartID && e.Conversation.HasParticipant(actorID) {
			v.mu.RUnlock()
			return e.Conversation.ID, nil
		}
	}
	v.mu.RUnlock()

	conv, err := v.resolver.Resolve(ctx, actorID, counterpartID)
	if err != nil {
		return "", dm.Classify(err)
	}
	return conv.ID, nil
}
