// Package client talks to a bazaar-gateway over HTTP and websocket.
//
// Client implements the storage side of chat sessions and the inbox
// (GetConversation, ListMessages, InsertMessage, LatestMessage,
// ListConversations, GetProfile) plus Resolve, so chat.Session and
// inbox.ViewModel run unchanged against a remote gateway. FeedClient
// implements their Feed interface on top of GET /api/feed.
//
// Gateway errors come back on the same taxonomy the local code uses:
// not_found wraps store.ErrNotFound, forbidden wraps dm.ErrForbidden,
// invalid_operation wraps dm.ErrInvalidOperation and anything else, network
// failures included, classifies as dm.ErrTransient.
//
// Each FeedClient subscription owns one socket. A dropped socket is redialed
// with exponential backoff; events seen before the drop are filtered by a
// per-subscription dedupe window. The gateway keeps no backlog, so every
// connect is announced with a realtime.EventResync event and consumers reload
// from the API: chat.Session re-lists history, inbox.ViewModel reloads. A subscription rejected by the gateway
// (401, 403 or 400) is not retried and its channel closes.
package client
