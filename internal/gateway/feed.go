// ABOUTME: Websocket endpoint streaming realtime insert events to a signed-in actor
// ABOUTME: Subscriptions are always scoped to conversations the actor participates in

package gateway

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/2389/bazaar-gateway/internal/auth"
	"github.com/2389/bazaar-gateway/internal/dm"
	"github.com/2389/bazaar-gateway/internal/realtime"
	"github.com/2389/bazaar-gateway/internal/store"
)

const (
	// Time allowed to write a frame to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong from the peer
	pongWait = 60 * time.Second

	// Send pings with this period, must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Peers only send control frames
	maxMessageSize = 512
)

// CORS is enforced by the router middleware.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// feedFilter builds the subscription filter from the table and
// conversation_id query parameters.
func (g *Gateway) feedFilter(r *http.Request, actorID string) (realtime.Filter, error) {
	q := r.URL.Query()
	filter := realtime.Filter{
		Table:         q.Get("table"),
		ParticipantID: actorID,
	}
	switch filter.Table {
	case "", store.TableConversations, store.TableMessages:
	default:
		return filter, fmt.Errorf("%w: unknown table %q", dm.ErrInvalidOperation, filter.Table)
	}

	if id := q.Get("conversation_id"); id != "" {
		conv, err := g.store.GetConversation(r.Context(), id)
		if err != nil {
			return filter, err
		}
		if !conv.HasParticipant(actorID) {
			return filter, fmt.Errorf("%w: not a participant of conversation %s", dm.ErrForbidden, id)
		}
		filter.ConversationID = id
	}
	return filter, nil
}

// handleFeed handles GET /api/feed. It blocks for the life of the socket.
func (g *Gateway) handleFeed(w http.ResponseWriter, r *http.Request) {
	actorID := auth.MustFromContext(r.Context()).ActorID

	filter, err := g.feedFilter(r, actorID)
	if err != nil {
		g.writeError(w, r, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Warn("websocket upgrade failed", "actor_id", actorID, "error", err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, subID := g.feed.Subscribe(ctx, filter)
	g.logger.Debug("feed subscriber connected", "actor_id", actorID, "sub_id", subID,
		"table", filter.Table, "conversation_id", filter.ConversationID)

	go readPump(conn, cancel)
	g.writePump(ctx, conn, events)

	g.feed.Unsubscribe(subID)
	g.logger.Debug("feed subscriber disconnected", "actor_id", actorID, "sub_id", subID)
}

// readPump consumes control frames until the peer goes away.
func readPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump sends each event as one JSON text frame and pings the peer.
func (g *Gateway) writePump(ctx context.Context, conn *websocket.Conn, events <-chan realtime.Event) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// feed closed, gateway is shutting down
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
