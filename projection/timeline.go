// Package projection builds local views from a subscription feed.
// Handles ordering and deduplication of deltas on top of a snapshot.
// Does not talk to the server or render anything.
package projection

import (
	"chat-core/domain/chat"
	"chat-core/domain/event"
	"slices"
)

// Timeline holds the latest messages of one scope, oldest first.
type Timeline struct {
	Scope    chat.Scope
	Messages []chat.Message
	window   int
	last     uint64
}

// NewTimeline keeps at most window messages; 0 keeps everything.
func NewTimeline(scope chat.Scope, window int) *Timeline {
	return &Timeline{Scope: scope, window: window}
}

// Reset replaces the timeline with a snapshot, e.g. after a resubscribe.
func (t *Timeline) Reset(snapshot event.Snapshot) {
	t.Messages = slices.Clone(snapshot.Messages)
	t.last = snapshot.Seq
	t.trim()
}

// Apply adds the message of a delta. Positions already seen are ignored, so
// a delta replayed after a reconnection is harmless. It reports whether the
// timeline changed.
func (t *Timeline) Apply(d event.Delta) bool {
	if d.Kind != event.DeltaMessage || d.Message == nil || d.Message.Scope != t.Scope {
		return false
	}
	if d.Seq <= t.last {
		return false
	}
	t.last = d.Seq
	t.Messages = append(t.Messages, *d.Message)
	t.trim()
	return true
}

// Last is the position of the latest message seen.
func (t *Timeline) Last() uint64 { return t.last }

func (t *Timeline) trim() {
	if t.window > 0 && len(t.Messages) > t.window {
		t.Messages = slices.Clone(t.Messages[len(t.Messages)-t.window:])
	}
}
