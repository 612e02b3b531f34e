// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides conversation/message/profile persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// timeLayout is fixed-width so that stored timestamps sort lexically
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	// Pragmas go in the DSN so every pooled connection gets them
	dsn := "file:" + path +
		"?_pragma=journal_mode(WAL)" +
		"&_pragma=foreign_keys(1)" +
		"&_pragma=busy_timeout(5000)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// A single writer connection serializes inserts so concurrent conversation
	// creation surfaces as a UNIQUE violation instead of SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{
		db:     db,
		logger: logger,
		now:    time.Now,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS actors (
			id         TEXT PRIMARY KEY,
			created_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS conversations (
			id            TEXT PRIMARY KEY,
			participant_a TEXT NOT NULL,
			participant_b TEXT NOT NULL,
			created_at    TEXT NOT NULL,

			CHECK (participant_a <> participant_b)
		);

		-- One conversation per unordered pair, whichever order it was created in
		CREATE UNIQUE INDEX IF NOT EXISTS idx_conversations_pair
			ON conversations(min(participant_a, participant_b), max(participant_a, participant_b));

		CREATE INDEX IF NOT EXISTS idx_conversations_a ON conversations(participant_a);
		CREATE INDEX IF NOT EXISTS idx_conversations_b ON conversations(participant_b);

		CREATE TABLE IF NOT EXISTS messages (
			seq             INTEGER PRIMARY KEY AUTOINCREMENT,
			id              TEXT NOT NULL UNIQUE,
			conversation_id TEXT NOT NULL REFERENCES conversations(id),
			sender_id       TEXT NOT NULL,
			content         TEXT NOT NULL,
			sent_at         TEXT NOT NULL,

			CHECK (length(trim(content)) > 0)
		);

		CREATE INDEX IF NOT EXISTS idx_messages_conversation_sent
			ON messages(conversation_id, sent_at, seq);

		CREATE TABLE IF NOT EXISTS profiles (
			actor_id     TEXT PRIMARY KEY,
			display_name TEXT NOT NULL,
			avatar_url   TEXT,
			updated_at   TEXT NOT NULL
		);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// isUniqueViolation checks if the error is a SQLite UNIQUE constraint violation
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// isForeignKeyViolation checks if the error is a SQLite FOREIGN KEY violation
func isForeignKeyViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

// RegisterActor records an identity known to the identity provider.
// Registering an existing actor is a no-op.
func (s *SQLiteStore) RegisterActor(ctx context.Context, actorID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO actors (id, created_at) VALUES (?, ?)`,
		actorID, formatTime(s.now()))
	if err != nil {
		return fmt.Errorf("registering actor: %w", err)
	}
	return nil
}

// ActorExists reports whether the actor has been registered.
func (s *SQLiteStore) ActorExists(ctx context.Context, actorID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM actors WHERE id = ?`, actorID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("querying actor: %w", err)
	}
	return true, nil
}

// CreateConversation creates a new conversation.
// If a conversation already exists for the unordered participant pair,
// it returns ErrDuplicateConversation.
func (s *SQLiteStore) CreateConversation(ctx context.Context, conv *Conversation) error {
	query := `
		INSERT INTO conversations (id, participant_a, participant_b, created_at)
		VALUES (?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		conv.ID,
		conv.ParticipantA,
		conv.ParticipantB,
		formatTime(conv.CreatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateConversation
		}
		return fmt.Errorf("inserting conversation: %w", err)
	}

	s.logger.Debug("created conversation",
		"id", conv.ID,
		"participant_a", conv.ParticipantA,
		"participant_b", conv.ParticipantB)
	return nil
}

const conversationColumns = `id, participant_a, participant_b, created_at`

func scanConversation(row interface{ Scan(...any) error }) (*Conversation, error) {
	var conv Conversation
	var createdAtStr string
	if err := row.Scan(&conv.ID, &conv.ParticipantA, &conv.ParticipantB, &createdAtStr); err != nil {
		return nil, err
	}
	createdAt, err := parseTime(createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	conv.CreatedAt = createdAt
	return &conv, nil
}

// GetConversation retrieves a conversation by ID.
// Returns ErrNotFound if the conversation doesn't exist.
func (s *SQLiteStore) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+conversationColumns+` FROM conversations WHERE id = ?`, id)
	conv, err := scanConversation(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying conversation: %w", err)
	}
	return conv, nil
}

// FindConversation looks up the conversation stored with exactly this
// (participant_a, participant_b) ordering. Callers check both orderings.
// Returns ErrNotFound if none exists.
func (s *SQLiteStore) FindConversation(ctx context.Context, participantA, participantB string) (*Conversation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+conversationColumns+` FROM conversations WHERE participant_a = ? AND participant_b = ?`,
		participantA, participantB)
	conv, err := scanConversation(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying conversation by participants: %w", err)
	}
	return conv, nil
}

// ListConversations returns every conversation the actor participates in,
// newest first.
func (s *SQLiteStore) ListConversations(ctx context.Context, actorID string) ([]*Conversation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+conversationColumns+` FROM conversations
		 WHERE participant_a = ? OR participant_b = ?
		 ORDER BY created_at DESC`,
		actorID, actorID)
	if err != nil {
		return nil, fmt.Errorf("querying conversations: %w", err)
	}
	defer rows.Close()

	var convs []*Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning conversation row: %w", err)
		}
		convs = append(convs, conv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating conversation rows: %w", err)
	}
	return convs, nil
}

// InsertMessage stores a message, assigning its ID, sent time and sequence.
// Returns ErrNotFound if the conversation doesn't exist.
func (s *SQLiteStore) InsertMessage(ctx context.Context, in *NewMessage) (*Message, error) {
	msg := &Message{
		ID:             uuid.New().String(),
		ConversationID: in.ConversationID,
		SenderID:       in.SenderID,
		Content:        in.Content,
		SentAt:         s.now().UTC(),
	}

	query := `
		INSERT INTO messages (id, conversation_id, sender_id, content, sent_at)
		VALUES (?, ?, ?, ?, ?)
		RETURNING seq
	`
	err := s.db.QueryRowContext(ctx, query,
		msg.ID,
		msg.ConversationID,
		msg.SenderID,
		msg.Content,
		formatTime(msg.SentAt),
	).Scan(&msg.Seq)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("inserting message: %w", err)
	}

	s.logger.Debug("saved message", "id", msg.ID, "conversation_id", msg.ConversationID, "seq", msg.Seq)
	return msg, nil
}

const messageColumns = `seq, id, conversation_id, sender_id, content, sent_at`

func scanMessage(row interface{ Scan(...any) error }) (*Message, error) {
	var msg Message
	var sentAtStr string
	if err := row.Scan(&msg.Seq, &msg.ID, &msg.ConversationID, &msg.SenderID, &msg.Content, &sentAtStr); err != nil {
		return nil, err
	}
	sentAt, err := parseTime(sentAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing sent_at: %w", err)
	}
	msg.SentAt = sentAt
	return &msg, nil
}

// ListMessages returns the full history of a conversation in chronological order.
func (s *SQLiteStore) ListMessages(ctx context.Context, conversationID string) ([]*Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+messageColumns+` FROM messages
		 WHERE conversation_id = ?
		 ORDER BY sent_at ASC, seq ASC`,
		conversationID)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning message row: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating message rows: %w", err)
	}
	return messages, nil
}

// LatestMessage returns the most recent message of a conversation.
// Returns ErrNotFound if the conversation has no messages.
func (s *SQLiteStore) LatestMessage(ctx context.Context, conversationID string) (*Message, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+messageColumns+` FROM messages
		 WHERE conversation_id = ?
		 ORDER BY sent_at DESC, seq DESC
		 LIMIT 1`,
		conversationID)
	msg, err := scanMessage(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying latest message: %w", err)
	}
	return msg, nil
}

// GetProfile retrieves an actor's profile.
// Returns ErrNotFound if the actor has no profile yet.
func (s *SQLiteStore) GetProfile(ctx context.Context, actorID string) (*Profile, error) {
	var p Profile
	var avatar sql.NullString
	var updatedAtStr string

	err := s.db.QueryRowContext(ctx,
		`SELECT actor_id, display_name, avatar_url, updated_at FROM profiles WHERE actor_id = ?`,
		actorID,
	).Scan(&p.ActorID, &p.DisplayName, &avatar, &updatedAtStr)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying profile: %w", err)
	}

	p.AvatarURL = avatar.String
	p.UpdatedAt, err = parseTime(updatedAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &p, nil
}

// UpsertProfile creates or replaces an actor's profile.
func (s *SQLiteStore) UpsertProfile(ctx context.Context, p *Profile) error {
	query := `
		INSERT INTO profiles (actor_id, display_name, avatar_url, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(actor_id) DO UPDATE SET
			display_name = excluded.display_name,
			avatar_url   = excluded.avatar_url,
			updated_at   = excluded.updated_at
	`
	updatedAt := p.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = s.now()
	}

	_, err := s.db.ExecContext(ctx, query,
		p.ActorID,
		p.DisplayName,
		nullString(p.AvatarURL),
		formatTime(updatedAt),
	)
	if err != nil {
		return fmt.Errorf("upserting profile: %w", err)
	}

	s.logger.Debug("saved profile", "actor_id", p.ActorID)
	return nil
}

// nullString returns nil for empty strings, otherwise the string
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
