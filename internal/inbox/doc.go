// Package inbox is the view model behind the conversation list.
//
// Load reads every conversation of the actor, resolves the counterpart's
// profile and the latest message of each, and orders the rows by latest
// activity (last message, or creation time for an empty conversation).
// Watch keeps the list fresh with a full reload on every conversation or
// message insert involving the actor.
package inbox
