// ABOUTME: Session controls one open conversation: load, subscribe, optimistic send, teardown
// ABOUTME: All state changes go through Reduce; anything arriving after Close is ignored

package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/bazaar-gateway/internal/dm"
	"github.com/2389/bazaar-gateway/internal/realtime"
	"github.com/2389/bazaar-gateway/internal/store"
)

// MessageStore defines what a session needs from storage
type MessageStore interface {
	GetConversation(ctx context.Context, id string) (*store.Conversation, error)
	ListMessages(ctx context.Context, conversationID string) ([]*store.Message, error)
	InsertMessage(ctx context.Context, msg *store.NewMessage) (*store.Message, error)
}

// ProfileResolver looks up display info. A missing profile is store.ErrNotFound.
type ProfileResolver interface {
	GetProfile(ctx context.Context, actorID string) (*store.Profile, error)
}

// Feed is the realtime change feed a session subscribes to.
type Feed interface {
	Subscribe(ctx context.Context, filter realtime.Filter) (<-chan realtime.Event, string)
	Unsubscribe(subID string)
}

// Identity reports the signed-in actor.
type Identity interface {
	CurrentActor() (string, bool)
}

// Config holds a session's collaborators.
type Config struct {
	ConversationID string
	Store          MessageStore
	Profiles       ProfileResolver
	Feed           Feed
	Identity       Identity
	Logger         *slog.Logger
}

// SendError is returned by Send when the store rejected the message. Entry
// is the removed entry in StateFailed; its content was restored to the draft.
type SendError struct {
	Entry Entry
	Err   error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("message not sent: %v", e.Err)
}

func (e *SendError) Unwrap() error {
	return e.Err
}

// Session is the controller for one open conversation. Create it with Open
// and release it with Close.
type Session struct {
	store  MessageStore
	feed   Feed
	logger *slog.Logger
	now    func() time.Time

	actorID     string
	conv        *store.Conversation
	counterpart *store.Profile
	profiles    map[string]*store.Profile

	mu     sync.Mutex
	log    Log
	draft  string
	closed bool

	subID   string
	feedCtx context.Context // cancelled by teardown
	cancel  context.CancelFunc
	changes chan struct{}
	done    chan struct{}
}

// Open loads the conversation and its history and subscribes to new
// messages. The actor must be a participant, otherwise dm.ErrForbidden.
func Open(ctx context.Context, cfg Config) (*Session, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "chat", "conversation_id", cfg.ConversationID)

	actorID, ok := cfg.Identity.CurrentActor()
	if !ok {
		return nil, fmt.Errorf("%w: not signed in", dm.ErrForbidden)
	}

	conv, err := cfg.Store.GetConversation(ctx, cfg.ConversationID)
	if err != nil {
		return nil, dm.Classify(fmt.Errorf("loading conversation: %w", err))
	}
	if !conv.HasParticipant(actorID) {
		logger.Warn("actor is not a participant", "actor_id", actorID)
		return nil, fmt.Errorf("%w: not a participant of conversation %s", dm.ErrForbidden, conv.ID)
	}

	s := &Session{
		store:    cfg.Store,
		feed:     cfg.Feed,
		logger:   logger,
		now:      time.Now,
		actorID:  actorID,
		conv:     conv,
		profiles: make(map[string]*store.Profile, 2),
		changes:  make(chan struct{}, 1),
		done:     make(chan struct{}),
	}

	for _, id := range conv.Participants() {
		p, err := cfg.Profiles.GetProfile(ctx, id)
		switch {
		case err == nil:
			s.profiles[id] = p
		case errors.Is(err, store.ErrNotFound):
			// no profile yet
		default:
			return nil, dm.Classify(fmt.Errorf("loading profile: %w", err))
		}
	}
	s.counterpart = s.profiles[conv.Counterpart(actorID)]

	// Subscribe before reading history so nothing inserted in between is
	// missed; overlap is merged away by id.
	feedCtx, cancel := context.WithCancel(context.Background())
	events, subID := cfg.Feed.Subscribe(feedCtx, realtime.Filter{
		Table:          store.TableMessages,
		ConversationID: conv.ID,
	})
	s.subID = subID
	s.feedCtx = feedCtx
	s.cancel = cancel

	history, err := cfg.Store.ListMessages(ctx, conv.ID)
	if err != nil {
		s.teardown()
		close(s.done)
		return nil, dm.Classify(fmt.Errorf("loading messages: %w", err))
	}
	s.log = Reduce(nil, Merged{Messages: history})

	go s.consume(events)

	logger.Debug("session opened", "actor_id", actorID, "messages", len(history))
	return s, nil
}

func (s *Session) consume(events <-chan realtime.Event) {
	defer close(s.done)
	for ev := range events {
		if ev.Type == realtime.EventResync {
			if !s.resync() {
				return
			}
			continue
		}
		if ev.Message == nil || ev.Message.ConversationID != s.conv.ID {
			continue
		}
		if !s.apply(Arrived{Message: ev.Message}) {
			return
		}
	}
}

// resync re-lists the history after the feed reported a gap and merges it.
// A failed reload is logged and the current log kept. Returns false once
// the session is closed.
func (s *Session) resync() bool {
	history, err := s.store.ListMessages(s.feedCtx, s.conv.ID)
	if err != nil {
		if s.feedCtx.Err() != nil {
			return false
		}
		s.logger.Warn("resync failed", "error", err)
		return true
	}
	s.logger.Debug("resynced", "messages", len(history))
	return s.apply(Merged{Messages: history})
}

// apply reduces ev into the log. Returns false once the session is closed.
func (s *Session) apply(ev Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.log = Reduce(s.log, ev)
	s.notify()
	return true
}

// notify signals Changes without blocking. Callers hold s.mu.
func (s *Session) notify() {
	select {
	case s.changes <- struct{}{}:
	default:
	}
}

// Send posts text optimistically: a pending entry appears at once and the
// draft is cleared, then the entry is confirmed or removed when the store
// answers. Whitespace-only text is rejected without touching state.
func (s *Session) Send(ctx context.Context, text string) error {
	content := strings.TrimSpace(text)
	if content == "" {
		return fmt.Errorf("%w: message is empty", dm.ErrInvalidOperation)
	}

	tempID := "temp-" + uuid.New().String()
	pending := Entry{
		State:          StatePending,
		TempID:         tempID,
		ConversationID: s.conv.ID,
		SenderID:       s.actorID,
		Content:        content,
		SentAt:         s.now(),
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("%w: session closed", dm.ErrInvalidOperation)
	}
	s.log = Reduce(s.log, Appended{Entry: pending})
	s.draft = ""
	s.notify()
	s.mu.Unlock()

	msg, err := s.store.InsertMessage(ctx, &store.NewMessage{
		ConversationID: s.conv.ID,
		SenderID:       s.actorID,
		Content:        content,
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.logger.Warn("send failed", "temp_id", tempID, "error", err)
		if !s.closed {
			s.log = Reduce(s.log, Rejected{TempID: tempID})
			s.draft = text
			s.notify()
		}
		failed := pending
		failed.State = StateFailed
		return &SendError{Entry: failed, Err: dm.Classify(err)}
	}
	if !s.closed {
		s.log = Reduce(s.log, Confirmed{TempID: tempID, Message: msg})
		s.notify()
	}
	s.logger.Debug("message confirmed", "temp_id", tempID, "message_id", msg.ID)
	return nil
}

// Messages returns a copy of the log with sender profiles attached.
func (s *Session) Messages() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, len(s.log))
	for i, e := range s.log {
		if p, ok := s.profiles[e.SenderID]; ok {
			e.Sender = p
		}
		out[i] = e
	}
	return out
}

// Draft returns the text currently in the input.
func (s *Session) Draft() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draft
}

// SetDraft replaces the input text.
func (s *Session) SetDraft(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.draft = text
}

// Conversation returns the open conversation.
func (s *Session) Conversation() *store.Conversation {
	return s.conv
}

// ActorID returns the signed-in participant.
func (s *Session) ActorID() string {
	return s.actorID
}

// Counterpart returns the other participant's profile, or nil if they have none.
func (s *Session) Counterpart() *store.Profile {
	return s.counterpart
}

// Changes is signalled (coalesced) whenever Messages or Draft changed.
func (s *Session) Changes() <-chan struct{} {
	return s.changes
}

// Close unsubscribes from the feed. Results and events arriving later are
// ignored. Safe to call more than once.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.teardown()
	<-s.done
	s.logger.Debug("session closed")
}

func (s *Session) teardown() {
	s.feed.Unsubscribe(s.subID)
	s.cancel()
}
