// Package realtime implements the change feed that pushes row inserts to
// connected clients.
//
// # Feed
//
// Subscribers register a Filter (table, conversation, participant) and get a
// buffered channel of Events:
//
//	events, subID := feed.Subscribe(ctx, realtime.Filter{
//	    Table:          store.TableMessages,
//	    ConversationID: convID,
//	})
//	defer feed.Unsubscribe(subID)
//
// Delivery includes the client that performed the insert (echo). Consumers
// must treat delivery as at-least-once and dedupe on Event.ID.
//
// # NotifyingStore
//
// NotifyingStore decorates a store.Store so every successful
// CreateConversation and InsertMessage is published to the feed.
package realtime
