// ABOUTME: JSON handlers for conversations, messages and profiles
// ABOUTME: Only participants may read or write a conversation; errors map onto HTTP status codes

package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/2389/bazaar-gateway/internal/auth"
	"github.com/2389/bazaar-gateway/internal/dm"
	"github.com/2389/bazaar-gateway/internal/inbox"
	"github.com/2389/bazaar-gateway/internal/render"
	"github.com/2389/bazaar-gateway/internal/store"
)

// previewRunes bounds the last-message preview in the conversation list.
const previewRunes = 80

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 64 * 1024

// ResolveConversationRequest is the JSON request body for POST /api/conversations.
type ResolveConversationRequest struct {
	CounterpartID string `json:"counterpart_id"`
}

// SendMessageRequest is the JSON request body for POST /api/conversations/{id}/messages.
type SendMessageRequest struct {
	Content string `json:"content"`
}

// UpdateProfileRequest is the JSON request body for PUT /api/profiles/me.
type UpdateProfileRequest struct {
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url"`
}

// MessageResponse is a message with its rendered HTML.
type MessageResponse struct {
	*store.Message
	ContentHTML string `json:"content_html,omitempty"`
}

// ConversationEntryResponse is one row of GET /api/conversations.
type ConversationEntryResponse struct {
	Conversation  *store.Conversation `json:"conversation"`
	CounterpartID string              `json:"counterpart_id"`
	Counterpart   *store.Profile      `json:"counterpart,omitempty"`
	DisplayName   string              `json:"display_name"`
	LastMessage   *store.Message      `json:"last_message,omitempty"`
	Preview       string              `json:"preview"`
	LastActivity  time.Time           `json:"last_activity"`
	RelativeTime  string              `json:"relative_time"`
}

// ListConversationsResponse is the JSON response for GET /api/conversations.
type ListConversationsResponse struct {
	Conversations []ConversationEntryResponse `json:"conversations"`
}

// ListMessagesResponse is the JSON response for GET /api/conversations/{id}/messages.
type ListMessagesResponse struct {
	ConversationID string            `json:"conversation_id"`
	Messages       []MessageResponse `json:"messages"`
}

// ErrorResponse is the body of every failed API call.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// Error kinds reported in ErrorResponse.Kind
const (
	KindNotFound         = "not_found"
	KindForbidden        = "forbidden"
	KindInvalidOperation = "invalid_operation"
	KindTransient        = "transient"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError classifies err and writes the matching status and body.
func (g *Gateway) writeError(w http.ResponseWriter, r *http.Request, err error) {
	err = dm.Classify(err)

	status, kind := http.StatusServiceUnavailable, KindTransient
	switch {
	case errors.Is(err, dm.ErrInvalidOperation):
		status, kind = http.StatusBadRequest, KindInvalidOperation
	case errors.Is(err, dm.ErrForbidden):
		status, kind = http.StatusForbidden, KindForbidden
	case errors.Is(err, dm.ErrNotFound):
		status, kind = http.StatusNotFound, KindNotFound
	default:
		g.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, ErrorResponse{Error: err.Error(), Kind: kind})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: invalid JSON body: %v", dm.ErrInvalidOperation, err)
	}
	return nil
}

// participantConversation loads the {id} conversation and checks membership.
func (g *Gateway) participantConversation(r *http.Request) (*store.Conversation, string, error) {
	actorID := auth.MustFromContext(r.Context()).ActorID
	conv, err := g.store.GetConversation(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		return nil, actorID, err
	}
	if !conv.HasParticipant(actorID) {
		return nil, actorID, fmt.Errorf("%w: not a participant of conversation %s", dm.ErrForbidden, conv.ID)
	}
	return conv, actorID, nil
}

func (g *Gateway) messageResponse(msg *store.Message) MessageResponse {
	html, err := render.Message(msg.Content)
	if err != nil {
		g.logger.Warn("rendering message failed", "message_id", msg.ID, "error", err)
	}
	return MessageResponse{Message: msg, ContentHTML: html}
}

// handleListConversations handles GET /api/conversations.
func (g *Gateway) handleListConversations(w http.ResponseWriter, r *http.Request) {
	actorID := auth.MustFromContext(r.Context()).ActorID

	vm := inbox.New(inbox.Config{Store: g.store, Resolver: g.directory, Logger: g.logger})
	entries, err := vm.Load(r.Context(), actorID)
	if err != nil {
		g.writeError(w, r, err)
		return
	}

	now := g.now()
	resp := ListConversationsResponse{Conversations: make([]ConversationEntryResponse, 0, len(entries))}
	for _, e := range entries {
		row := ConversationEntryResponse{
			Conversation:  e.Conversation,
			CounterpartID: e.CounterpartID,
			Counterpart:   e.Counterpart,
			DisplayName:   e.DisplayName(),
			LastMessage:   e.LastMessage,
			LastActivity:  e.LastActivity(),
			RelativeTime:  inbox.RelativeLabel(now, e.LastActivity()),
		}
		if e.LastMessage != nil {
			row.Preview = render.Preview(e.LastMessage.Content, previewRunes)
		}
		resp.Conversations = append(resp.Conversations, row)
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleResolveConversation handles POST /api/conversations.
// It returns the existing conversation with the counterpart or creates one.
func (g *Gateway) handleResolveConversation(w http.ResponseWriter, r *http.Request) {
	actorID := auth.MustFromContext(r.Context()).ActorID

	var req ResolveConversationRequest
	if err := decodeBody(w, r, &req); err != nil {
		g.writeError(w, r, err)
		return
	}

	conv, err := g.directory.Resolve(r.Context(), actorID, req.CounterpartID)
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

// handleGetConversation handles GET /api/conversations/{id}.
func (g *Gateway) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	conv, _, err := g.participantConversation(r)
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

// handleListMessages handles GET /api/conversations/{id}/messages.
func (g *Gateway) handleListMessages(w http.ResponseWriter, r *http.Request) {
	conv, _, err := g.participantConversation(r)
	if err != nil {
		g.writeError(w, r, err)
		return
	}

	msgs, err := g.store.ListMessages(r.Context(), conv.ID)
	if err != nil {
		g.writeError(w, r, err)
		return
	}

	resp := ListMessagesResponse{ConversationID: conv.ID, Messages: make([]MessageResponse, 0, len(msgs))}
	for _, m := range msgs {
		resp.Messages = append(resp.Messages, g.messageResponse(m))
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleLatestMessage handles GET /api/conversations/{id}/messages/latest.
func (g *Gateway) handleLatestMessage(w http.ResponseWriter, r *http.Request) {
	conv, _, err := g.participantConversation(r)
	if err != nil {
		g.writeError(w, r, err)
		return
	}

	msg, err := g.store.LatestMessage(r.Context(), conv.ID)
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, g.messageResponse(msg))
}

// handleSendMessage handles POST /api/conversations/{id}/messages.
// The sender is always the authenticated actor.
func (g *Gateway) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	conv, actorID, err := g.participantConversation(r)
	if err != nil {
		g.writeError(w, r, err)
		return
	}

	var req SendMessageRequest
	if err := decodeBody(w, r, &req); err != nil {
		g.writeError(w, r, err)
		return
	}
	content := strings.TrimSpace(req.Content)
	if content == "" {
		g.writeError(w, r, fmt.Errorf("%w: empty message", dm.ErrInvalidOperation))
		return
	}

	msg, err := g.store.InsertMessage(r.Context(), &store.NewMessage{
		ConversationID: conv.ID,
		SenderID:       actorID,
		Content:        content,
	})
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, g.messageResponse(msg))
}

// handleGetProfile handles GET /api/profiles/{id}.
func (g *Gateway) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := g.store.GetProfile(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// handleUpdateProfile handles PUT /api/profiles/me.
func (g *Gateway) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	actorID := auth.MustFromContext(r.Context()).ActorID

	var req UpdateProfileRequest
	if err := decodeBody(w, r, &req); err != nil {
		g.writeError(w, r, err)
		return
	}
	name := strings.TrimSpace(req.DisplayName)
	if name == "" {
		g.writeError(w, r, fmt.Errorf("%w: display_name is required", dm.ErrInvalidOperation))
		return
	}

	profile := &store.Profile{
		ActorID:     actorID,
		DisplayName: name,
		AvatarURL:   strings.TrimSpace(req.AvatarURL),
		UpdatedAt:   g.now().UTC(),
	}
	if err := g.store.UpsertProfile(r.Context(), profile); err != nil {
		g.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}
