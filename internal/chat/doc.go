// Package chat implements the controller behind one open conversation.
//
// A Session loads the conversation, checks that the signed-in actor is a
// participant, reads the history and subscribes to message inserts for the
// conversation. Every change to the visible log goes through Reduce, a pure
// function over Log:
//
//	Appended  -> pending entry added (optimistic send)
//	Confirmed -> pending entry replaced by the stored message
//	Rejected  -> pending entry removed, text returned to the draft
//	Arrived   -> message merged by id, ignored if already present
//
// The log is always sorted by sent time (store sequence, then local order,
// breaks ties) and holds each confirmed message id at most once, even though
// the store response and the feed echo both deliver a sent message.
//
// After Close, store results and feed events are ignored.
package chat
