// ABOUTME: HTTP client for the bazaar-gateway JSON API
// ABOUTME: Satisfies the store, profile and resolver interfaces used by chat sessions and the inbox

package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/2389/bazaar-gateway/internal/dm"
	"github.com/2389/bazaar-gateway/internal/store"
)

// ErrUnauthorized is returned when the gateway rejects the token. It also
// matches dm.ErrForbidden.
var ErrUnauthorized = errors.New("unauthorized")

// Client talks to a bazaar-gateway as one signed-in actor.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
}

// errorBody is the JSON error body returned by the gateway.
type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// New creates a client for the gateway at baseURL authenticating with token.
func New(baseURL, token string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		logger: logger.With("component", "client"),
	}
}

// do sends a JSON request to path and decodes a JSON response into out.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return c.handleErrorResponse(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}
	return nil
}

// handleErrorResponse maps a failed response back onto the error taxonomy.
// not_found wraps store.ErrNotFound so callers that tolerate missing rows
// keep working against a remote gateway.
func (c *Client) handleErrorResponse(resp *http.Response) error {
	raw, _ := io.ReadAll(resp.Body)

	var body errorBody
	if json.Unmarshal(raw, &body) != nil || body.Error == "" {
		body.Error = strings.TrimSpace(string(raw))
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("gateway returned status 401: %w: %w: %s", ErrUnauthorized, dm.ErrForbidden, body.Error)
	}

	var kind error
	switch {
	case body.Kind == "not_found" || resp.StatusCode == http.StatusNotFound:
		kind = store.ErrNotFound
	case body.Kind == "forbidden" || resp.StatusCode == http.StatusForbidden:
		kind = dm.ErrForbidden
	case body.Kind == "invalid_operation" || resp.StatusCode == http.StatusBadRequest:
		kind = dm.ErrInvalidOperation
	default:
		kind = dm.ErrTransient
	}
	return fmt.Errorf("gateway returned status %d: %w: %s", resp.StatusCode, kind, body.Error)
}

// GetConversation fetches a conversation the actor participates in.
func (c *Client) GetConversation(ctx context.Context, id string) (*store.Conversation, error) {
	var conv store.Conversation
	if err := c.do(ctx, http.MethodGet, "/api/conversations/"+url.PathEscape(id), nil, &conv); err != nil {
		return nil, fmt.Errorf("getting conversation: %w", err)
	}
	return &conv, nil
}

// ListConversations lists the signed-in actor's conversations. The gateway
// always answers for the token's actor, so actorID is only checked for sense.
func (c *Client) ListConversations(ctx context.Context, actorID string) ([]*store.Conversation, error) {
	var resp struct {
		Conversations []struct {
			Conversation *store.Conversation `json:"conversation"`
		} `json:"conversations"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/conversations", nil, &resp); err != nil {
		return nil, fmt.Errorf("listing conversations: %w", err)
	}
	convs := make([]*store.Conversation, 0, len(resp.Conversations))
	for _, row := range resp.Conversations {
		if row.Conversation == nil || !row.Conversation.HasParticipant(actorID) {
			continue
		}
		convs = append(convs, row.Conversation)
	}
	return convs, nil
}

// Resolve finds or creates the conversation between actorID and counterpartID.
func (c *Client) Resolve(ctx context.Context, actorID, counterpartID string) (*store.Conversation, error) {
	var conv store.Conversation
	body := map[string]string{"counterpart_id": counterpartID}
	if err := c.do(ctx, http.MethodPost, "/api/conversations", body, &conv); err != nil {
		return nil, fmt.Errorf("resolving conversation: %w", err)
	}
	if !conv.HasParticipant(actorID) {
		return nil, fmt.Errorf("%w: resolved conversation %s does not include %s", dm.ErrForbidden, conv.ID, actorID)
	}
	return &conv, nil
}

// ListMessages fetches a conversation's history, oldest first.
func (c *Client) ListMessages(ctx context.Context, conversationID string) ([]*store.Message, error) {
	var resp struct {
		Messages []*store.Message `json:"messages"`
	}
	path := "/api/conversations/" + url.PathEscape(conversationID) + "/messages"
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}
	return resp.Messages, nil
}

// LatestMessage fetches the most recent message, or store.ErrNotFound.
func (c *Client) LatestMessage(ctx context.Context, conversationID string) (*store.Message, error) {
	var msg store.Message
	path := "/api/conversations/" + url.PathEscape(conversationID) + "/messages/latest"
	if err := c.do(ctx, http.MethodGet, path, nil, &msg); err != nil {
		return nil, fmt.Errorf("getting latest message: %w", err)
	}
	return &msg, nil
}

// InsertMessage sends a message. The gateway sends as the token's actor.
func (c *Client) InsertMessage(ctx context.Context, in *store.NewMessage) (*store.Message, error) {
	var msg store.Message
	path := "/api/conversations/" + url.PathEscape(in.ConversationID) + "/messages"
	if err := c.do(ctx, http.MethodPost, path, map[string]string{"content": in.Content}, &msg); err != nil {
		return nil, fmt.Errorf("sending message: %w", err)
	}
	c.logger.Debug("message sent", "message_id", msg.ID, "conversation_id", msg.ConversationID)
	return &msg, nil
}

// GetProfile fetches an actor's profile, or store.ErrNotFound.
func (c *Client) GetProfile(ctx context.Context, actorID string) (*store.Profile, error) {
	var p store.Profile
	if err := c.do(ctx, http.MethodGet, "/api/profiles/"+url.PathEscape(actorID), nil, &p); err != nil {
		return nil, fmt.Errorf("getting profile: %w", err)
	}
	return &p, nil
}

// UpdateProfile sets the signed-in actor's display name and avatar.
func (c *Client) UpdateProfile(ctx context.Context, displayName, avatarURL string) (*store.Profile, error) {
	var p store.Profile
	body := map[string]string{"display_name": displayName, "avatar_url": avatarURL}
	if err := c.do(ctx, http.MethodPut, "/api/profiles/me", body, &p); err != nil {
		return nil, fmt.Errorf("updating profile: %w", err)
	}
	return &p, nil
}

// Health checks that the gateway is reachable.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", dm.ErrTransient, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: health returned status %d", dm.ErrTransient, resp.StatusCode)
	}
	return nil
}

