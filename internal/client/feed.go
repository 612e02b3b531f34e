// ABOUTME: Websocket subscriber for the gateway's realtime feed with reconnect and dedupe
// ABOUTME: Each connect emits a resync event; replayed events are dropped by a per-subscription window

package client

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/2389/bazaar-gateway/internal/dedupe"
	"github.com/2389/bazaar-gateway/internal/realtime"
)

const (
	defaultMinBackoff = 500 * time.Millisecond
	defaultMaxBackoff = 30 * time.Second
	eventBuffer       = 64
)

// FeedOptions tunes a FeedClient. Zero values select defaults.
type FeedOptions struct {
	DedupeTTL  time.Duration
	DedupeSize int
	MinBackoff time.Duration
	MaxBackoff time.Duration
	Logger     *slog.Logger
}

// FeedClient subscribes to /api/feed. It satisfies the Feed interfaces of
// the chat and inbox packages.
type FeedClient struct {
	url    string
	token  string
	dialer *websocket.Dialer
	opts   FeedOptions
	logger *slog.Logger

	mu   sync.Mutex
	subs map[string]*feedSub
}

type feedSub struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// NewFeedClient creates a feed client for the gateway at baseURL (http or https).
func NewFeedClient(baseURL, token string, opts FeedOptions) *FeedClient {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MinBackoff <= 0 {
		opts.MinBackoff = defaultMinBackoff
	}
	if opts.MaxBackoff < opts.MinBackoff {
		opts.MaxBackoff = max(defaultMaxBackoff, opts.MinBackoff)
	}

	wsURL := strings.TrimSuffix(baseURL, "/")
	switch {
	case strings.HasPrefix(wsURL, "https://"):
		wsURL = "wss://" + strings.TrimPrefix(wsURL, "https://")
	case strings.HasPrefix(wsURL, "http://"):
		wsURL = "ws://" + strings.TrimPrefix(wsURL, "http://")
	}

	return &FeedClient{
		url:    wsURL + "/api/feed",
		token:  token,
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		opts:   opts,
		logger: logger.With("component", "feed_client"),
		subs:   make(map[string]*feedSub),
	}
}

// Subscribe opens a socket for filter and keeps it open, reconnecting with
// backoff, until Unsubscribe or ctx cancellation. The channel is closed then.
// Every successful connect, the first included, is announced with an
// realtime.EventResync event ahead of the socket's own events.
// ParticipantID is ignored: the gateway scopes every socket to the token's actor.
func (f *FeedClient) Subscribe(ctx context.Context, filter realtime.Filter) (<-chan realtime.Event, string) {
	subID := uuid.New().String()
	ch := make(chan realtime.Event, eventBuffer)

	subCtx, cancel := context.WithCancel(ctx)
	sub := &feedSub{cancel: cancel, done: make(chan struct{})}

	f.mu.Lock()
	f.subs[subID] = sub
	f.mu.Unlock()

	go func() {
		defer close(sub.done)
		defer close(ch)
		defer f.forget(subID)
		f.run(subCtx, subID, filter, ch)
	}()
	return ch, subID
}

// Unsubscribe stops a subscription and waits for its channel to close.
// Unknown IDs are ignored.
func (f *FeedClient) Unsubscribe(subID string) {
	f.mu.Lock()
	sub, ok := f.subs[subID]
	f.mu.Unlock()
	if !ok {
		return
	}
	sub.cancel()
	<-sub.done
}

// Close stops every subscription.
func (f *FeedClient) Close() {
	f.mu.Lock()
	subs := make([]*feedSub, 0, len(f.subs))
	for _, sub := range f.subs {
		subs = append(subs, sub)
	}
	f.mu.Unlock()

	for _, sub := range subs {
		sub.cancel()
		<-sub.done
	}
}

func (f *FeedClient) forget(subID string) {
	f.mu.Lock()
	delete(f.subs, subID)
	f.mu.Unlock()
}

func (f *FeedClient) endpoint(filter realtime.Filter) string {
	q := url.Values{}
	if filter.Table != "" {
		q.Set("table", filter.Table)
	}
	if filter.ConversationID != "" {
		q.Set("conversation_id", filter.ConversationID)
	}
	if len(q) == 0 {
		return f.url
	}
	return f.url + "?" + q.Encode()
}

// run dials, reads and redials until ctx is done.
func (f *FeedClient) run(ctx context.Context, subID string, filter realtime.Filter, ch chan<- realtime.Event) {
	window := dedupe.NewWindow(f.opts.DedupeTTL, f.opts.DedupeSize)
	defer window.Close()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+f.token)
	endpoint := f.endpoint(filter)
	backoff := f.opts.MinBackoff

	for ctx.Err() == nil {
		conn, resp, err := f.dialer.DialContext(ctx, endpoint, header)
		if err != nil {
			status := 0
			if resp != nil {
				status = resp.StatusCode
			}
			if status == http.StatusUnauthorized || status == http.StatusForbidden || status == http.StatusBadRequest {
				f.logger.Error("feed subscription rejected", "sub_id", subID, "status", status)
				return
			}
			f.logger.Warn("feed dial failed", "sub_id", subID, "error", err, "retry_in", backoff)
			if !sleep(ctx, backoff) {
				return
			}
			backoff = min(backoff*2, f.opts.MaxBackoff)
			continue
		}

		f.logger.Debug("feed connected", "sub_id", subID, "table", filter.Table, "conversation_id", filter.ConversationID)
		backoff = f.opts.MinBackoff

		// The gateway does not replay, so whatever was inserted before this
		// socket opened has to be reloaded by the consumer.
		select {
		case ch <- realtime.Event{Type: realtime.EventResync, Table: filter.Table, At: time.Now()}:
		case <-ctx.Done():
			_ = conn.Close()
			return
		}

		err = f.read(ctx, conn, filter, window, ch)
		if ctx.Err() != nil {
			return
		}
		f.logger.Warn("feed disconnected", "sub_id", subID, "error", err)
	}
}

// read forwards events from one connection until it fails or ctx is done.
func (f *FeedClient) read(ctx context.Context, conn *websocket.Conn, filter realtime.Filter, window *dedupe.Window, ch chan<- realtime.Event) error {
	connDone := make(chan struct{})
	defer close(connDone)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			_ = conn.Close()
		case <-connDone:
			_ = conn.Close()
		}
	}()

	for {
		var ev realtime.Event
		if err := conn.ReadJSON(&ev); err != nil {
			return err
		}
		if !filter.Matches(ev) {
			continue
		}
		if window.Duplicate(dedupe.Key(ev.Table, ev.ID)) {
			continue
		}
		select {
		case ch <- ev:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// sleep waits d or until ctx is done. Returns false if ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
