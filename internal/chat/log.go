// ABOUTME: Message log entries as a tagged state (pending, confirmed, failed) and the pure reducer
// ABOUTME: Reduce merges sends, confirmations, rejections and feed arrivals by final id, kept sorted

package chat

import (
	"slices"
	"time"

	"github.com/2389/bazaar-gateway/internal/store"
)

// State tags a log entry.
type State int

const (
	// StatePending: created locally, the store has not answered yet.
	StatePending State = iota
	// StateConfirmed: the store assigned ID and SentAt.
	StateConfirmed
	// StateFailed: the store rejected the insert. Failed entries never stay in
	// a Log; they are handed back to the caller in a SendError.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateConfirmed:
		return "confirmed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Entry is one message as shown in an open conversation.
type Entry struct {
	State State
	// TempID is set while pending; ID once confirmed.
	TempID string
	ID     string

	ConversationID string
	SenderID       string
	Content        string
	SentAt         time.Time
	Seq            int64 // store order, confirmed entries only

	// Sender is resolved at read time and may be nil.
	Sender *store.Profile

	local int64 // position in which the entry entered the log
}

// Key returns the final id for confirmed entries and the temporary id otherwise.
func (e Entry) Key() string {
	if e.State == StateConfirmed {
		return e.ID
	}
	return e.TempID
}

func confirmedEntry(m *store.Message) Entry {
	return Entry{
		State:          StateConfirmed,
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		Content:        m.Content,
		SentAt:         m.SentAt,
		Seq:            m.Seq,
	}
}

// Log is an ordered set of entries: ascending by SentAt, no two confirmed
// entries with the same ID.
type Log []Entry

// Event is an input to Reduce.
type Event interface{ isEvent() }

// Appended adds a pending entry for a message being sent.
type Appended struct{ Entry Entry }

// Confirmed replaces the pending entry TempID with the stored message.
type Confirmed struct {
	TempID  string
	Message *store.Message
}

// Rejected removes the pending entry TempID.
type Rejected struct{ TempID string }

// Arrived merges a message delivered by the change feed.
type Arrived struct{ Message *store.Message }

// Merged merges a batch of stored messages, such as a history load, and
// sorts once.
type Merged struct{ Messages []*store.Message }

func (Appended) isEvent()  {}
func (Confirmed) isEvent() {}
func (Rejected) isEvent()  {}
func (Arrived) isEvent()   {}
func (Merged) isEvent()    {}

// Reduce returns the log that results from applying ev. The input is not modified.
func Reduce(log Log, ev Event) Log {
	next := slices.Clone(log)
	nextLocal := int64(len(log))
	for _, e := range log {
		nextLocal = max(nextLocal, e.local+1)
	}

	switch ev := ev.(type) {
	case Appended:
		e := ev.Entry
		e.State = StatePending
		e.local = nextLocal
		next = append(next, e)

	case Confirmed:
		pending := next.indexTemp(ev.TempID)
		switch {
		case next.indexID(ev.Message.ID) >= 0:
			// The feed delivered it first
			if pending >= 0 {
				next = slices.Delete(next, pending, pending+1)
			}
			return next
		case pending >= 0:
			e := confirmedEntry(ev.Message)
			e.Sender = next[pending].Sender
			e.local = next[pending].local
			next[pending] = e
		default:
			e := confirmedEntry(ev.Message)
			e.local = nextLocal
			next = append(next, e)
		}

	case Rejected:
		if i := next.indexTemp(ev.TempID); i >= 0 {
			next = slices.Delete(next, i, i+1)
		}
		return next

	case Arrived:
		if next.indexID(ev.Message.ID) >= 0 {
			return next
		}
		next = next.merge([]*store.Message{ev.Message}, nextLocal)

	case Merged:
		next = next.merge(ev.Messages, nextLocal)
	}

	next.sort()
	return next
}

// merge appends the messages not yet confirmed in l, unsorted. A copy of
// our own send can beat the store's response; it settles the oldest
// matching pending entry instead of being appended.
func (l Log) merge(msgs []*store.Message, nextLocal int64) Log {
	known := make(map[string]bool, len(l)+len(msgs))
	pending := false
	for _, e := range l {
		switch e.State {
		case StateConfirmed:
			known[e.ID] = true
		case StatePending:
			pending = true
		}
	}

	for _, m := range msgs {
		if known[m.ID] {
			continue
		}
		known[m.ID] = true
		if pending {
			if i := l.indexEcho(m); i >= 0 {
				e := confirmedEntry(m)
				e.Sender = l[i].Sender
				e.local = l[i].local
				l[i] = e
				continue
			}
		}
		e := confirmedEntry(m)
		e.local = nextLocal
		nextLocal++
		l = append(l, e)
	}
	return l
}

func (l Log) indexTemp(tempID string) int {
	return slices.IndexFunc(l, func(e Entry) bool {
		return e.State == StatePending && e.TempID == tempID
	})
}

func (l Log) indexID(id string) int {
	return slices.IndexFunc(l, func(e Entry) bool {
		return e.State == StateConfirmed && e.ID == id
	})
}

func (l Log) indexEcho(m *store.Message) int {
	best := -1
	for i, e := range l {
		if e.State != StatePending || e.SenderID != m.SenderID || e.Content != m.Content {
			continue
		}
		if best < 0 || e.local < l[best].local {
			best = i
		}
	}
	return best
}

func (l Log) sort() {
	slices.SortStableFunc(l, func(a, b Entry) int {
		if c := a.SentAt.Compare(b.SentAt); c != 0 {
			return c
		}
		if a.State == StateConfirmed && b.State == StateConfirmed && a.Seq != b.Seq {
			if a.Seq < b.Seq {
				return -1
			}
			return 1
		}
		switch {
		case a.local < b.local:
			return -1
		case a.local > b.local:
			return 1
		}
		return 0
	})
}
