// ABOUTME: Store interface and data types for bazaar-gateway persistence
// ABOUTME: Defines Conversation, Message, Profile structs and the Store interface

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicateConversation is returned when a conversation already exists for the
// unordered participant pair
var ErrDuplicateConversation = errors.New("conversation already exists")

// Table names used by the realtime feed and the PostgREST backend
const (
	TableConversations = "conversations"
	TableMessages      = "messages"
	TableProfiles      = "profiles"
)

// Conversation is a two-party direct message conversation.
// ParticipantA/ParticipantB are stored in creation order; the pair is unordered
// for uniqueness and lookup purposes.
type Conversation struct {
	ID           string    `json:"id"`
	ParticipantA string    `json:"participant_a"`
	ParticipantB string    `json:"participant_b"`
	CreatedAt    time.Time `json:"created_at"`
}

// HasParticipant reports whether actorID is one of the two participants.
func (c *Conversation) HasParticipant(actorID string) bool {
	return c.ParticipantA == actorID || c.ParticipantB == actorID
}

// Counterpart returns the participant that is not actorID.
// Returns "" if actorID is not a participant.
func (c *Conversation) Counterpart(actorID string) string {
	switch actorID {
	case c.ParticipantA:
		return c.ParticipantB
	case c.ParticipantB:
		return c.ParticipantA
	default:
		return ""
	}
}

// Participants returns both participant IDs.
func (c *Conversation) Participants() [2]string {
	return [2]string{c.ParticipantA, c.ParticipantB}
}

// Message is a confirmed message row. ID, SentAt and Seq are assigned by the store.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	SenderID       string    `json:"sender_id"`
	Content        string    `json:"content"`
	SentAt         time.Time `json:"sent_at"`
	Seq            int64     `json:"seq"` // store insertion order, breaks SentAt ties
}

// Before reports whether m sorts before other (sent time, then insertion order).
func (m *Message) Before(other *Message) bool {
	if !m.SentAt.Equal(other.SentAt) {
		return m.SentAt.Before(other.SentAt)
	}
	return m.Seq < other.Seq
}

// NewMessage is the input to InsertMessage
type NewMessage struct {
	ConversationID string `json:"conversation_id"`
	SenderID       string `json:"sender_id"`
	Content        string `json:"content"`
}

// Profile holds the public display info of an actor. A profile may legitimately
// not exist yet for a registered actor.
type Profile struct {
	ActorID     string    `json:"id"`
	DisplayName string    `json:"display_name"`
	AvatarURL   string    `json:"avatar_url"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Store defines the interface for conversation, message and profile persistence
type Store interface {
	// Actors mirror the identities known to the identity provider
	RegisterActor(ctx context.Context, actorID string) error
	ActorExists(ctx context.Context, actorID string) (bool, error)

	// Conversations
	CreateConversation(ctx context.Context, conv *Conversation) error
	GetConversation(ctx context.Context, id string) (*Conversation, error)
	FindConversation(ctx context.Context, participantA, participantB string) (*Conversation, error)
	ListConversations(ctx context.Context, actorID string) ([]*Conversation, error)

	// Messages
	InsertMessage(ctx context.Context, msg *NewMessage) (*Message, error)
	ListMessages(ctx context.Context, conversationID string) ([]*Message, error)
	LatestMessage(ctx context.Context, conversationID string) (*Message, error)

	// Profiles
	GetProfile(ctx context.Context, actorID string) (*Profile, error)
	UpsertProfile(ctx context.Context, profile *Profile) error

	// Close releases any resources held by the store
	Close() error
}
