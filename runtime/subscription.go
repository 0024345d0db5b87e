package runtime

import (
	"chat-core/domain/chat"
	"chat-core/domain/event"
	"chat-core/errors"
	"context"
	"fmt"
	"iter"
	"sync"

	"github.com/google/uuid"
)

type TopicKind string

const (
	TopicScope         TopicKind = "scope"
	TopicChannels      TopicKind = "channels"
	TopicConversations TopicKind = "conversations"
)

// Topic is what a client subscribes to: one message scope, or one of its own lists.
type Topic struct {
	Kind  TopicKind
	Scope chat.Scope
}

func ScopeTopic(scope chat.Scope) Topic { return Topic{Kind: TopicScope, Scope: scope} }

func (t Topic) String() string {
	if t.Kind == TopicScope {
		return t.Scope.String()
	}
	return string(t.Kind)
}

// ParseTopic accepts "channels", "conversations" or a scope such as "channel:42".
func ParseTopic(raw string) (Topic, error) {
	switch TopicKind(raw) {
	case TopicChannels, TopicConversations:
		return Topic{Kind: TopicKind(raw)}, nil
	}
	scope, err := chat.ParseScope(raw)
	if err != nil {
		return Topic{}, fmt.Errorf("%w: %v", errors.ErrInvalidPayload, err)
	}
	return ScopeTopic(scope), nil
}

type State int

const (
	Registering State = iota
	Live
	Closed
)

func (s State) String() string {
	switch s {
	case Registering:
		return "registering"
	case Live:
		return "live"
	default:
		return "closed"
	}
}

// operator turns a delta published on one of the subscription's streams into
// the delta the subscriber sees. Returning false drops it.
type operator interface {
	apply(stream string, d event.Delta) (event.Delta, bool)
}

type passthrough struct{}

func (passthrough) apply(_ string, d event.Delta) (event.Delta, bool) { return d, true }

// Subscription is one live feed: the snapshot it was registered with,
// followed by deltas in commit order, each delivered at most once.
// Its queue is bounded: a subscriber that falls behind is closed with
// ErrSubscriberLagging and has to resubscribe.
type Subscription struct {
	ID       string
	UserID   chat.UserID
	Topic    Topic
	Snapshot event.Snapshot
	// Limit is the snapshot size asked for, reused on Resubscribe.
	Limit int

	mu       sync.Mutex
	state    State
	last     uint64
	err      error
	queue    chan event.Delta
	done     chan struct{}
	operator operator
	streams  []string
	onClose  func(*Subscription)
}

func newSubscription(userID chat.UserID, topic Topic, limit, bufferSize int, op operator) *Subscription {
	return &Subscription{
		ID:       uuid.NewString(),
		UserID:   userID,
		Topic:    topic,
		Limit:    limit,
		state:    Registering,
		queue:    make(chan event.Delta, bufferSize),
		done:     make(chan struct{}),
		operator: op,
	}
}

// live starts the delta stream right after the snapshot position.
func (s *Subscription) live(snapshot event.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Snapshot = snapshot
	s.last = snapshot.Seq
	if s.state == Registering {
		s.state = Live
	}
}

// deliver never blocks: it is called while the topic's commit lock is held.
func (s *Subscription) deliver(stream string, d event.Delta) {
	s.mu.Lock()
	if s.state == Closed || d.Seq <= s.last {
		s.mu.Unlock()
		return
	}
	s.last = d.Seq
	out, ok := s.operator.apply(stream, d)
	if !ok {
		s.mu.Unlock()
		return
	}
	select {
	case s.queue <- out:
		s.mu.Unlock()
	default:
		s.mu.Unlock()
		s.closeWith(errors.ErrSubscriberLagging)
	}
}

// Next blocks until the next delta, the subscription closing, or ctx ending.
func (s *Subscription) Next(ctx context.Context) (event.Delta, error) {
	select {
	case <-s.done:
		return event.Delta{}, s.Err()
	default:
	}
	select {
	case d := <-s.queue:
		select {
		case <-s.done:
			return event.Delta{}, s.Err()
		default:
			return d, nil
		}
	case <-s.done:
		return event.Delta{}, s.Err()
	case <-ctx.Done():
		return event.Delta{}, ctx.Err()
	}
}

// Deltas iterates until the subscription closes; the closing error is yielded last.
func (s *Subscription) Deltas(ctx context.Context) iter.Seq2[event.Delta, error] {
	return func(yield func(event.Delta, error) bool) {
		for {
			d, err := s.Next(ctx)
			if !yield(d, err) || err != nil {
				return
			}
		}
	}
}

// Done is closed once the subscription is closed.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Err is nil while the subscription is open.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Subscription) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Close is idempotent. Pending deltas are discarded.
func (s *Subscription) Close() {
	s.closeWith(errors.ErrSubscriptionClosed)
}

func (s *Subscription) closeWith(err error) {
	s.mu.Lock()
	if s.state == Closed {
		s.mu.Unlock()
		return
	}
	s.state = Closed
	s.err = err
	close(s.done)
	onClose := s.onClose
	s.mu.Unlock()

drain:
	for {
		select {
		case <-s.queue:
		default:
			break drain
		}
	}
	if onClose != nil {
		onClose(s)
	}
}
