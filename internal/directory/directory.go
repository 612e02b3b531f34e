// ABOUTME: Conversation Directory maps an unordered actor pair to exactly one conversation
// ABOUTME: Lookup both orders, insert, and re-lookup when a concurrent insert won the race

package directory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/2389/bazaar-gateway/internal/dm"
	"github.com/2389/bazaar-gateway/internal/store"
)

// ConversationStore defines what the directory needs from storage
type ConversationStore interface {
	ActorExists(ctx context.Context, actorID string) (bool, error)
	CreateConversation(ctx context.Context, conv *store.Conversation) error
	FindConversation(ctx context.Context, participantA, participantB string) (*store.Conversation, error)
}

// Directory resolves and lazily creates conversations.
type Directory struct {
	store  ConversationStore
	logger *slog.Logger
	now    func() time.Time
}

// New creates a Directory over the given store.
func New(s ConversationStore, logger *slog.Logger) *Directory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Directory{
		store:  s,
		logger: logger.With("component", "directory"),
		now:    time.Now,
	}
}

// Resolve returns the conversation between actor and counterpart, creating it
// if it does not exist yet. Concurrent calls for the same pair, in either
// order, all return the same conversation.
func (d *Directory) Resolve(ctx context.Context, actorID, counterpartID string) (*store.Conversation, error) {
	actorID = strings.TrimSpace(actorID)
	counterpartID = strings.TrimSpace(counterpartID)

	if actorID == "" || counterpartID == "" {
		return nil, fmt.Errorf("%w: actor and counterpart are required", dm.ErrInvalidOperation)
	}
	if actorID == counterpartID {
		return nil, fmt.Errorf("%w: cannot start a conversation with yourself", dm.ErrInvalidOperation)
	}

	conv, err := d.lookup(ctx, actorID, counterpartID)
	if err == nil {
		d.logger.Debug("found existing conversation",
			"conversation_id", conv.ID,
			"actor_id", actorID)
		return conv, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, dm.Classify(err)
	}

	exists, err := d.store.ActorExists(ctx, counterpartID)
	if err != nil {
		return nil, dm.Classify(fmt.Errorf("checking counterpart: %w", err))
	}
	if !exists {
		return nil, fmt.Errorf("%w: actor %q", dm.ErrNotFound, counterpartID)
	}

	conv = &store.Conversation{
		ID:           uuid.New().String(),
		ParticipantA: actorID,
		ParticipantB: counterpartID,
		CreatedAt:    d.now().UTC(),
	}
	err = d.store.CreateConversation(ctx, conv)
	if err == nil {
		d.logger.Info("conversation created",
			"conversation_id", conv.ID,
			"participant_a", actorID,
			"participant_b", counterpartID)
		return conv, nil
	}
	if !errors.Is(err, store.ErrDuplicateConversation) {
		return nil, dm.Classify(fmt.Errorf("creating conversation: %w", err))
	}

	// Another caller created the pair between our lookup and insert
	winner, lookupErr := d.lookup(ctx, actorID, counterpartID)
	if lookupErr == nil {
		d.logger.Debug("found existing conversation after race", "conversation_id", winner.ID)
		return winner, nil
	}
	d.logger.Error("retry lookup failed after duplicate error",
		"actor_id", actorID,
		"counterpart_id", counterpartID,
		"lookup_error", lookupErr)
	return nil, fmt.Errorf("%w: conversation exists but could not be read: %v", dm.ErrTransient, lookupErr)
}

// lookup checks (actor, counterpart) and then (counterpart, actor), since
// rows keep the order their creator used.
func (d *Directory) lookup(ctx context.Context, actorID, counterpartID string) (*store.Conversation, error) {
	conv, err := d.store.FindConversation(ctx, actorID, counterpartID)
	if err == nil || !errors.Is(err, store.ErrNotFound) {
		return conv, err
	}
	return d.store.FindConversation(ctx, counterpartID, actorID)
}
