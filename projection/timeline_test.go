package projection

import (
	"chat-core/domain/chat"
	"chat-core/domain/event"
	"fmt"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

var general = chat.ChannelScope("general")

func message(seq uint64) chat.Message {
	return chat.Message{
		Scope:     general,
		Seq:       seq,
		AuthorID:  "alice",
		Text:      fmt.Sprintf("message %d", seq),
		CreatedAt: time.Unix(int64(seq), 0),
	}
}

func messageDelta(seq uint64) event.Delta {
	m := message(seq)
	return event.Delta{Seq: seq, Kind: event.DeltaMessage, Message: &m}
}

func seqs(t *Timeline) []uint64 {
	return lo.Map(t.Messages, func(m chat.Message, _ int) uint64 { return m.Seq })
}

func TestTimeline_Snapshot_Then_Deltas(t *testing.T) {
	req := require.New(t)
	timeline := NewTimeline(general, 0)

	// Given a snapshot of messages 1 and 2
	timeline.Reset(event.Snapshot{Seq: 2, Messages: []chat.Message{message(1), message(2)}})

	// When 2 is replayed then 3 and 4 arrive
	req.False(timeline.Apply(messageDelta(2)))
	req.True(timeline.Apply(messageDelta(3)))
	req.True(timeline.Apply(messageDelta(4)))

	// Then every message is there once, in order
	req.Equal([]uint64{1, 2, 3, 4}, seqs(timeline))
	req.Equal(uint64(4), timeline.Last())
}

func TestTimeline_Window(t *testing.T) {
	req := require.New(t)
	timeline := NewTimeline(general, 2)
	timeline.Reset(event.Snapshot{})

	for seq := uint64(1); seq <= 5; seq++ {
		timeline.Apply(messageDelta(seq))
	}

	req.Equal([]uint64{4, 5}, seqs(timeline))
}

func TestTimeline_Ignores_Other_Scopes(t *testing.T) {
	req := require.New(t)
	timeline := NewTimeline(chat.ChannelScope("ops"), 0)

	req.False(timeline.Apply(messageDelta(1)))
	req.Empty(timeline.Messages)
}

func TestLists_Replace_On_Newer_Delta(t *testing.T) {
	req := require.New(t)
	lists := NewLists()
	lists.ResetChannels(event.Snapshot{Seq: 3, Channels: []chat.Channel{{ID: "1", Name: "general"}}})

	// An old delta is ignored
	req.False(lists.Apply(event.Delta{Seq: 3, Kind: event.DeltaChannelAdded}))

	// A newer one replaces the list
	merged := []chat.Channel{{ID: "1", Name: "general"}, {ID: "2", Name: "ops"}}
	req.True(lists.Apply(event.Delta{Seq: 4, Kind: event.DeltaChannelAdded, Channels: merged}))
	req.Equal(merged, lists.Channels)

	// Conversation positions are tracked apart
	conversations := []chat.Conversation{{ID: "c1"}}
	req.True(lists.Apply(event.Delta{Seq: 1, Kind: event.DeltaConversationUpdated, Conversations: conversations}))
	req.Equal(conversations, lists.Conversations)
}

func TestLists_Track_Peer_Presence(t *testing.T) {
	req := require.New(t)
	lists := NewLists()
	lists.ResetConversations(event.Snapshot{Seq: 2, Conversations: []chat.Conversation{{ID: "c1"}}})

	// When a peer comes online
	bob := chat.User{ID: "bob", DisplayName: "Bob", Online: true}
	req.True(lists.Apply(event.Delta{Seq: 3, Kind: event.DeltaPresenceChanged, User: &bob}))

	// Then it is known online and the conversation list is kept
	req.True(lists.Peers["bob"].Online)
	req.Equal([]chat.Conversation{{ID: "c1"}}, lists.Conversations)

	// And an older presence change is ignored
	offline := bob
	offline.Online = false
	req.False(lists.Apply(event.Delta{Seq: 3, Kind: event.DeltaPresenceChanged, User: &offline}))
	req.True(lists.Peers["bob"].Online)
}
