// Package store provides persistence for conversations, messages and profiles.
//
// # Backends
//
//   - SQLiteStore: embedded database (modernc.org/sqlite, no cgo)
//   - PostgRESTStore: a managed Postgres exposed over PostgREST, such as Supabase
//   - MockStore: in-memory store for tests, same uniqueness rules as SQLite
//
// # Data Models
//
//   - Conversation: two participants, stored in creation order
//   - Message: immutable once inserted; ID, SentAt and Seq are store-assigned
//   - Profile: display name and avatar, optional per actor
//
// # Uniqueness
//
// At most one Conversation exists per unordered participant pair. SQLite
// enforces this with an expression index on (min(a,b), max(a,b)); the
// PostgREST backend expects an equivalent unique index in the database.
// A clash is reported as ErrDuplicateConversation so callers can re-read
// the winning row.
package store
