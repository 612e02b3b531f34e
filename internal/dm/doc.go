// Package dm holds the error taxonomy shared by the direct messaging
// components (directory, chat session, inbox) and the gateway.
//
// Store errors are classified close to where they happen:
//
//   - store.ErrNotFound           -> ErrNotFound
//   - membership check failure    -> ErrForbidden
//   - self-conversation, blank    -> ErrInvalidOperation
//   - anything else               -> ErrTransient
//
// The duplicate-then-re-lookup path of conversation creation is resolved
// silently and never surfaces as an error.
package dm
