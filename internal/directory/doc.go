// Package directory resolves the single two-party conversation between an
// actor and a counterpart, creating it on first contact.
//
// # Resolution
//
// Resolve looks the pair up in both stored orders, inserts a new row when
// neither exists, and on a uniqueness clash re-reads the row the concurrent
// winner created. The clash is not reported to callers. Only when the
// re-read also comes up empty is dm.ErrTransient returned.
//
// # Errors
//
//   - dm.ErrInvalidOperation: actor and counterpart are the same identity
//   - dm.ErrNotFound: the counterpart is not a known actor
//   - dm.ErrTransient: the store failed, or the race could not be resolved
package directory
