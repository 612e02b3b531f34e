// Package gateway serves the bazaar direct-messaging API.
//
// # Overview
//
// Gateway owns the store (wrapped so every insert is published to the
// realtime feed), the conversation directory, the token verifier and the
// HTTP server. It listens on server.http_addr, or on :80 inside a tailnet
// when tailscale.enabled is set.
//
// # HTTP API
//
// All /api routes require "Authorization: Bearer <jwt>" for a registered actor.
//
//	GET  /health                                  liveness
//	GET  /api/conversations                       the actor's conversations, latest activity first
//	POST /api/conversations                       {"counterpart_id"} find or create the pair's conversation
//	GET  /api/conversations/{id}                  one conversation (participants only)
//	GET  /api/conversations/{id}/messages         history, oldest first, with content_html
//	POST /api/conversations/{id}/messages         {"content"} send as the actor
//	GET  /api/conversations/{id}/messages/latest  most recent message
//	GET  /api/profiles/{id}                       public profile
//	PUT  /api/profiles/me                         {"display_name","avatar_url"}
//	GET  /api/feed?table=&conversation_id=        websocket of insert events
//
// The feed accepts the token as an access_token query parameter because
// browsers cannot set headers on a websocket handshake.
//
// # Errors
//
// Failures carry {"error": "...", "kind": "..."} with kind one of
// not_found (404), forbidden (403), invalid_operation (400) or
// transient (503).
package gateway
