package runtime

import (
	"chat-core/domain/chat"
	"chat-core/domain/event"
	"chat-core/observability"
	"sync"
)

type Set map[string]struct{}

const publicChannelsStream = "channels/public"

func scopeStream(scope chat.Scope) string { return scope.String() }

func privateChannelsStream(userID chat.UserID) string { return "channels/user/" + string(userID) }

func conversationsStream(userID chat.UserID) string { return "conversations/user/" + string(userID) }

// Registry is the subscription hub: it maps streams to the live subscriptions
// listening on them. It does not order anything itself; callers publish to a
// stream while holding the lock that serializes that stream's commits.
type Registry struct {
	mu            sync.RWMutex
	subscriptions map[string]*Subscription // map subscription id -> subscription
	streams       map[string]Set           // map stream to subscription ids
}

func NewRegistry() *Registry {
	return &Registry{
		subscriptions: make(map[string]*Subscription),
		streams:       make(map[string]Set),
	}
}

// Register attaches a subscription to every stream it listens on.
// Once closed, the subscription removes itself.
func (r *Registry) Register(sub *Subscription, streams ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.subscriptions[sub.ID] = sub
	for _, stream := range streams {
		if _, ok := r.streams[stream]; !ok {
			r.streams[stream] = make(Set)
		}
		r.streams[stream][sub.ID] = struct{}{}
	}

	sub.mu.Lock()
	sub.streams = streams
	sub.onClose = r.unregister
	sub.mu.Unlock()
}

func (r *Registry) unregister(sub *Subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.subscriptions, sub.ID)
	for _, stream := range sub.streams {
		if members, ok := r.streams[stream]; ok {
			delete(members, sub.ID)

			// No empty sets are left behind
			if len(members) == 0 {
				delete(r.streams, stream)
			}
		}
	}
}

// Publish hands a delta to every subscription of the stream.
// Delivery never blocks, so the caller's commit lock is held only briefly.
func (r *Registry) Publish(stream string, d event.Delta) {
	for _, sub := range r.subscribersOf(stream) {
		sub.deliver(stream, d)
	}
}

func (r *Registry) subscribersOf(stream string) []*Subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members, ok := r.streams[stream]
	if !ok {
		return nil
	}
	subs := make([]*Subscription, 0, len(members))
	for id := range members {
		if sub, exists := r.subscriptions[id]; exists {
			subs = append(subs, sub)
		}
	}
	return subs
}

func (r *Registry) Get(id string) (*Subscription, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sub, ok := r.subscriptions[id]
	return sub, ok
}

// CloseFor closes the subscriptions userID holds on a stream.
func (r *Registry) CloseFor(userID chat.UserID, stream string, err error) int {
	var closing []*Subscription
	for _, sub := range r.subscribersOf(stream) {
		if sub.UserID == userID {
			closing = append(closing, sub)
		}
	}
	for _, sub := range closing {
		sub.closeWith(err)
	}
	return len(closing)
}

func (r *Registry) Stats() observability.HubStats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return observability.HubStats{Streams: len(r.streams), Subscriptions: len(r.subscriptions)}
}
