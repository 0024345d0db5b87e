// Package client speaks the websocket subscription protocol of the chat server.
package client

import (
	"chat-core/domain/event"
	"chat-core/errors"
	"chat-core/protocol"
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	feedBuffer = 256
)

var ErrClientClosed = stderrors.New("client closed")

// Client holds one websocket session. A single goroutine reads frames and
// routes them: answers to the pending request with the same ref, deltas to
// the feed of their subscription.
type Client struct {
	log  *slog.Logger
	conn *websocket.Conn

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan answer
	feeds   map[string]*Feed
	err     error
	done    chan struct{}
}

type answer struct {
	feed *Feed
	err  error
}

// Feed is the client side of one subscription.
type Feed struct {
	ID       string
	Topic    string
	Snapshot event.Snapshot

	deltas chan event.Delta
	mu     sync.Mutex
	err    error
	closed bool
}

// Deltas is closed when the subscription ends; Err then tells why.
func (f *Feed) Deltas() <-chan event.Delta { return f.deltas }

func (f *Feed) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

func (f *Feed) close(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	f.err = err
	close(f.deltas)
}

func (f *Feed) push(d event.Delta) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return true
	}
	select {
	case f.deltas <- d:
		return true
	default:
		return false
	}
}

// Dial opens a session on url (ws://host/ws) authenticated with token.
func Dial(ctx context.Context, url, token string, log *slog.Logger) (*Client, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %s: %w", url, resp.Status, err)
		}
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	c := &Client{
		log:     log,
		conn:    conn,
		pending: make(map[string]chan answer),
		feeds:   make(map[string]*Feed),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// Subscribe opens a feed on topic ("channels", "conversations" or a scope)
// and waits for its snapshot.
func (c *Client) Subscribe(ctx context.Context, topic string, limit int) (*Feed, error) {
	ref := uuid.NewString()
	answered := make(chan answer, 1)
	c.mu.Lock()
	if c.err != nil {
		c.mu.Unlock()
		return nil, c.err
	}
	c.pending[ref] = answered
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, ref)
		c.mu.Unlock()
	}()

	if err := c.write(protocol.SubscribeFrame(ref, topic, limit)); err != nil {
		return nil, err
	}
	select {
	case a := <-answered:
		if a.err != nil {
			return nil, fmt.Errorf("subscribe %s: %w", topic, a.err)
		}
		a.feed.Topic = topic
		return a.feed, nil
	case <-c.done:
		return nil, c.Err()
	case <-ctx.Done():
		return nil, errors.FromContext(ctx.Err())
	}
}

// Unsubscribe ends a feed. Deltas already in flight are dropped.
func (c *Client) Unsubscribe(feed *Feed) error {
	c.mu.Lock()
	delete(c.feeds, feed.ID)
	c.mu.Unlock()
	feed.close(errors.ErrSubscriptionClosed)
	return c.write(protocol.UnsubscribeFrame(feed.ID))
}

// Done is closed when the session ends.
func (c *Client) Done() <-chan struct{} { return c.done }

func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *Client) Close() error {
	c.writeMu.Lock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()
	return c.conn.Close()
}

func (c *Client) write(frame protocol.Frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(frame)
}

func (c *Client) readLoop() {
	var err error
	for {
		var frame protocol.Frame
		if err = c.conn.ReadJSON(&frame); err != nil {
			break
		}
		c.route(frame)
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		err = ErrClientClosed
	}
	c.shutdown(err)
}

func (c *Client) route(frame protocol.Frame) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch frame.Type {
	case protocol.FrameSubscribed:
		// The feed is registered here, before any of its deltas can be read.
		feed := &Feed{ID: frame.Subscription, deltas: make(chan event.Delta, feedBuffer)}
		if frame.Snapshot != nil {
			feed.Snapshot = protocol.ToSnapshot(*frame.Snapshot)
		}
		c.feeds[feed.ID] = feed
		if answered, ok := c.pending[frame.Ref]; ok {
			answered <- answer{feed: feed}
		}
	case protocol.FrameError:
		if answered, ok := c.pending[frame.Ref]; ok {
			answered <- answer{err: fmt.Errorf("%s (status %d)", frame.Error, frame.Status)}
			return
		}
		c.log.Warn("Server error", "ref", frame.Ref, "status", frame.Status, "error", frame.Error)
	case protocol.FrameDelta:
		feed, ok := c.feeds[frame.Subscription]
		if !ok || frame.Delta == nil {
			return
		}
		if !feed.push(protocol.ToDelta(*frame.Delta)) {
			delete(c.feeds, feed.ID)
			feed.close(errors.ErrSubscriberLagging)
		}
	case protocol.FrameClosed:
		if feed, ok := c.feeds[frame.Subscription]; ok {
			delete(c.feeds, feed.ID)
			feed.close(closeReason(frame.Error))
		}
	}
}

// closeReason maps the server's message back to a sentinel when it names one.
func closeReason(message string) error {
	for _, known := range []error{errors.ErrSubscriberLagging, errors.ErrForbidden, errors.ErrSubscriptionClosed} {
		if message == known.Error() {
			return known
		}
	}
	return fmt.Errorf("%w: %s", errors.ErrSubscriptionClosed, message)
}

func (c *Client) shutdown(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return
	}
	if err == nil {
		err = ErrClientClosed
	}
	c.err = err
	for id, feed := range c.feeds {
		feed.close(err)
		delete(c.feeds, id)
	}
	close(c.done)
}
