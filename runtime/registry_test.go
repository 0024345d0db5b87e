package runtime

import (
	"chat-core/domain/chat"
	"chat-core/domain/event"
	"chat-core/errors"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func messageDelta(seq uint64) event.Delta {
	return event.Delta{Seq: seq, Kind: event.DeltaMessage, Message: &chat.Message{Seq: seq}}
}

func TestRegistry_Register_And_Publish(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	scope := chat.ChannelScope("general")

	// Given two subscriptions on the same scope
	alice := newSubscription("alice", ScopeTopic(scope), 10, 4, passthrough{})
	bob := newSubscription("bob", ScopeTopic(scope), 10, 4, passthrough{})
	registry.Register(alice, scopeStream(scope))
	registry.Register(bob, scopeStream(scope))
	alice.live(event.Snapshot{})
	bob.live(event.Snapshot{})
	req.Equal(1, registry.Stats().Streams)
	req.Equal(2, registry.Stats().Subscriptions)

	// When a delta is published
	registry.Publish(scopeStream(scope), messageDelta(1))

	// Then both receive it
	ctx := context.Background()
	for _, sub := range []*Subscription{alice, bob} {
		d, err := sub.Next(ctx)
		req.NoError(err)
		req.Equal(uint64(1), d.Seq)
	}
}

func TestRegistry_Close_Unregisters(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	scope := chat.ChannelScope("general")
	sub := newSubscription("alice", ScopeTopic(scope), 10, 4, passthrough{})
	registry.Register(sub, scopeStream(scope))
	sub.live(event.Snapshot{})

	// When the subscription is closed twice
	sub.Close()
	sub.Close()

	// Then nothing is left behind
	_, ok := registry.Get(sub.ID)
	req.False(ok)
	req.Equal(0, registry.Stats().Streams)
	req.Equal(Closed, sub.State())
	req.ErrorIs(sub.Err(), errors.ErrSubscriptionClosed)

	_, err := sub.Next(context.Background())
	req.ErrorIs(err, errors.ErrSubscriptionClosed)
}

func TestRegistry_CloseFor_Only_Targets_User(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	scope := chat.ChannelScope("ops")
	alice := newSubscription("alice", ScopeTopic(scope), 10, 4, passthrough{})
	bob := newSubscription("bob", ScopeTopic(scope), 10, 4, passthrough{})
	registry.Register(alice, scopeStream(scope))
	registry.Register(bob, scopeStream(scope))

	// When bob's subscriptions on the scope are closed
	closed := registry.CloseFor("bob", scopeStream(scope), errors.ErrForbidden)

	// Then only bob lost its feed
	req.Equal(1, closed)
	req.ErrorIs(bob.Err(), errors.ErrForbidden)
	req.NoError(alice.Err())
	req.Equal(1, registry.Stats().Subscriptions)
}

func TestSubscription_Drops_Already_Delivered_Positions(t *testing.T) {
	req := require.New(t)
	sub := newSubscription("alice", ScopeTopic(chat.ChannelScope("general")), 10, 8, passthrough{})

	// Given a snapshot ending at position 2
	sub.live(event.Snapshot{Seq: 2})

	// When positions 2, 3, 3 and 4 are delivered
	for _, seq := range []uint64{2, 3, 3, 4} {
		sub.deliver("general", messageDelta(seq))
	}

	// Then 3 and 4 are seen once each
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	var seqs []uint64
	for d, err := range sub.Deltas(ctx) {
		if err != nil {
			req.ErrorIs(err, context.DeadlineExceeded)
			break
		}
		seqs = append(seqs, d.Seq)
	}
	req.Equal([]uint64{3, 4}, seqs)
}

func TestSubscription_Overflow_Closes_With_Lagging(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	scope := chat.ChannelScope("general")
	sub := newSubscription("alice", ScopeTopic(scope), 10, 2, passthrough{})
	registry.Register(sub, scopeStream(scope))
	sub.live(event.Snapshot{})

	// When more deltas than the queue holds are published
	for seq := uint64(1); seq <= 3; seq++ {
		registry.Publish(scopeStream(scope), messageDelta(seq))
	}

	// Then the subscription is closed and removed
	<-sub.Done()
	req.ErrorIs(sub.Err(), errors.ErrSubscriberLagging)
	req.Equal(0, registry.Stats().Subscriptions)
}

func TestParseTopic(t *testing.T) {
	req := require.New(t)

	topic, err := ParseTopic("channels")
	req.NoError(err)
	req.Equal(TopicChannels, topic.Kind)

	topic, err = ParseTopic("conversation:c1")
	req.NoError(err)
	req.Equal(ScopeTopic(chat.ConversationScope("c1")), topic)
	req.Equal("conversation:c1", topic.String())

	_, err = ParseTopic("rooms")
	req.ErrorIs(err, errors.ErrInvalidPayload)
}

func TestChannelMerge_Rejects_Private_On_Public_Stream(t *testing.T) {
	req := require.New(t)
	general := chat.Channel{ID: "1", Name: "general", Visibility: chat.Public}
	merge := newChannelMerge("bob", []chat.Channel{general})

	// When a private channel shows up on the public stream
	private := chat.Channel{ID: "2", Name: "ops", Visibility: chat.Private, Members: []chat.UserID{"bob"}}
	_, ok := merge.apply(publicChannelsStream, event.Delta{Seq: 1, Kind: event.DeltaChannelAdded, Channel: &private})

	// Then it is ignored
	req.False(ok)

	// When it arrives on bob's stream
	d, ok := merge.apply(privateChannelsStream("bob"), event.Delta{Seq: 2, Kind: event.DeltaChannelAdded, Channel: &private})

	// Then the merged list holds both, by name
	req.True(ok)
	req.Equal([]chat.Channel{general, private}, d.Channels)

	// When it is removed
	d, ok = merge.apply(privateChannelsStream("bob"), event.Delta{Seq: 3, Kind: event.DeltaChannelRemoved, Channel: &private})
	req.True(ok)
	req.Equal([]chat.Channel{general}, d.Channels)
}
