// ABOUTME: Store implementation backed by a managed PostgREST/Supabase-style REST API
// ABOUTME: Maps uniqueness (23505) and foreign key (23503) violations onto store sentinels

package store

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
)

// Postgres SQLSTATE codes surfaced in PostgREST error bodies
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// PostgRESTStore implements Store against a PostgREST endpoint (e.g. Supabase).
// Row-level access policies live in the database; the store authenticates
// with a service key.
type PostgRESTStore struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

// postgrestError is the JSON error body returned by PostgREST.
type postgrestError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
}

// NewPostgRESTStore creates a store that talks to baseURL (without /rest/v1).
func NewPostgRESTStore(baseURL, apiKey string, logger *slog.Logger) *PostgRESTStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgRESTStore{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger.With("component", "store", "backend", "postgrest"),
	}
}

// do executes a request against /rest/v1/<path> and decodes a JSON response into out.
func (s *PostgRESTStore) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		reqBody = bytes.NewReader(jsonBody)
	}

	endpoint := s.baseURL + "/rest/v1/" + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("apikey", s.apiKey)
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "return=representation")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		var pgErr postgrestError
		_ = json.Unmarshal(respBody, &pgErr)
		switch {
		case pgErr.Code == pgUniqueViolation || resp.StatusCode == http.StatusConflict && pgErr.Code == "":
			return errDuplicate
		case pgErr.Code == pgForeignKeyViolation:
			return ErrNotFound
		}
		return fmt.Errorf("postgrest error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}
	return nil
}

// errDuplicate is translated to the table-specific sentinel by callers.
var errDuplicate = errors.New("duplicate row")

// RegisterActor is a no-op: actors are owned by the auth provider.
func (s *PostgRESTStore) RegisterActor(ctx context.Context, actorID string) error {
	return nil
}

// ActorExists calls the actor_exists RPC, which checks the auth provider's user table.
func (s *PostgRESTStore) ActorExists(ctx context.Context, actorID string) (bool, error) {
	var exists bool
	err := s.do(ctx, http.MethodPost, "rpc/actor_exists", nil, map[string]string{"actor_id": actorID}, &exists)
	if err != nil {
		return false, fmt.Errorf("checking actor: %w", err)
	}
	return exists, nil
}

// CreateConversation inserts a conversation row.
// The database's unordered-pair unique index reports a duplicate as 23505.
func (s *PostgRESTStore) CreateConversation(ctx context.Context, conv *Conversation) error {
	var rows []Conversation
	err := s.do(ctx, http.MethodPost, TableConversations, nil, conv, &rows)
	if errors.Is(err, errDuplicate) {
		return ErrDuplicateConversation
	}
	if err != nil {
		return fmt.Errorf("inserting conversation: %w", err)
	}
	if len(rows) > 0 {
		conv.CreatedAt = rows[0].CreatedAt
	}
	s.logger.Debug("created conversation", "id", conv.ID)
	return nil
}

func (s *PostgRESTStore) selectConversation(ctx context.Context, query url.Values) (*Conversation, error) {
	query.Set("select", "*")
	query.Set("limit", "1")
	var rows []Conversation
	if err := s.do(ctx, http.MethodGet, TableConversations, query, nil, &rows); err != nil {
		return nil, fmt.Errorf("querying conversation: %w", err)
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return &rows[0], nil
}

// GetConversation retrieves a conversation by ID.
func (s *PostgRESTStore) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	return s.selectConversation(ctx, url.Values{"id": {"eq." + id}})
}

// FindConversation retrieves a conversation by its exact stored participant order.
func (s *PostgRESTStore) FindConversation(ctx context.Context, participantA, participantB string) (*Conversation, error) {
	return s.selectConversation(ctx, url.Values{
		"participant_a": {"eq." + participantA},
		"participant_b": {"eq." + participantB},
	})
}

// ListConversations returns the actor's conversations, newest first.
func (s *PostgRESTStore) ListConversations(ctx context.Context, actorID string) ([]*Conversation, error) {
	query := url.Values{
		"select": {"*"},
		"or":     {fmt.Sprintf("(participant_a.eq.%s,participant_b.eq.%s)", quoteFilterValue(actorID), quoteFilterValue(actorID))},
		"order":  {"created_at.desc"},
	}
	var rows []*Conversation
	if err := s.do(ctx, http.MethodGet, TableConversations, query, nil, &rows); err != nil {
		return nil, fmt.Errorf("querying conversations: %w", err)
	}
	return rows, nil
}

// quoteFilterValue double-quotes v for use inside a PostgREST logic tree
// such as or=(...), where commas, dots and parentheses are syntax.
func quoteFilterValue(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `"`, `\"`)
	return `"` + v + `"`
}

// InsertMessage inserts a message; the database assigns id, sent_at and seq.
func (s *PostgRESTStore) InsertMessage(ctx context.Context, msg *NewMessage) (*Message, error) {
	var rows []*Message
	err := s.do(ctx, http.MethodPost, TableMessages, nil, msg, &rows)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("inserting message: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("inserting message: empty representation")
	}
	s.logger.Debug("saved message", "id", rows[0].ID, "conversation_id", rows[0].ConversationID)
	return rows[0], nil
}

// ListMessages returns a conversation's messages in chronological order.
func (s *PostgRESTStore) ListMessages(ctx context.Context, conversationID string) ([]*Message, error) {
	query := url.Values{
		"select":          {"*"},
		"conversation_id": {"eq." + conversationID},
		"order":           {"sent_at.asc,seq.asc"},
	}
	var rows []*Message
	if err := s.do(ctx, http.MethodGet, TableMessages, query, nil, &rows); err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	return rows, nil
}

// LatestMessage returns the most recent message of a conversation.
func (s *PostgRESTStore) LatestMessage(ctx context.Context, conversationID string) (*Message, error) {
	query := url.Values{
		"select":          {"*"},
		"conversation_id": {"eq." + conversationID},
		"order":           {"sent_at.desc,seq.desc"},
		"limit":           {"1"},
	}
	var rows []*Message
	if err := s.do(ctx, http.MethodGet, TableMessages, query, nil, &rows); err != nil {
		return nil, fmt.Errorf("querying latest message: %w", err)
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return rows[0], nil
}

// GetProfile retrieves an actor's profile.
func (s *PostgRESTStore) GetProfile(ctx context.Context, actorID string) (*Profile, error) {
	query := url.Values{
		"select": {"*"},
		"id":     {"eq." + actorID},
		"limit":  {"1"},
	}
	var rows []*Profile
	if err := s.do(ctx, http.MethodGet, TableProfiles, query, nil, &rows); err != nil {
		return nil, fmt.Errorf("querying profile: %w", err)
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return rows[0], nil
}

// UpsertProfile creates or replaces an actor's profile.
func (s *PostgRESTStore) UpsertProfile(ctx context.Context, p *Profile) error {
	pc := *p
	if pc.UpdatedAt.IsZero() {
		pc.UpdatedAt = time.Now().UTC()
	}
	query := url.Values{"on_conflict": {"id"}}
	// merge-duplicates turns the insert into an upsert
	err := s.doUpsert(ctx, TableProfiles, query, &pc)
	if err != nil {
		return fmt.Errorf("upserting profile: %w", err)
	}
	return nil
}

func (s *PostgRESTStore) doUpsert(ctx context.Context, path string, query url.Values, body any) error {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshaling request body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.baseURL+"/rest/v1/"+path+"?"+query.Encode(), bytes.NewReader(jsonBody))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("apikey", s.apiKey)
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "resolution=merge-duplicates,return=minimal")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("postgrest error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	return nil
}

// Close releases idle HTTP connections.
func (s *PostgRESTStore) Close() error {
	s.httpClient.CloseIdleConnections()
	return nil
}

var _ Store = (*PostgRESTStore)(nil)
