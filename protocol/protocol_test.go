package protocol

import (
	"chat-core/domain/chat"
	"chat-core/domain/event"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestDelta_Survives_The_Wire(t *testing.T) {
	req := require.New(t)
	at := time.Date(2026, 1, 2, 3, 4, 5, 6, time.UTC)

	// Given a channel delta carrying the merged list
	ops := chat.Channel{ID: "c2", Name: "ops", Visibility: chat.Private, Members: []chat.UserID{"alice", "bob"}, CreatorID: "alice", CreatedAt: at}
	general := chat.Channel{ID: "c1", Name: "general", Visibility: chat.Public, CreatorID: "alice", CreatedAt: at}
	delta := event.Delta{Seq: 7, Kind: event.DeltaChannelAdded, Channel: &ops, Channels: []chat.Channel{general, ops}}

	// When it is sent as a frame and read back
	raw, err := json.Marshal(DeltaFrame("sub-1", FromDelta(delta)))
	req.NoError(err)
	var frame Frame
	req.NoError(json.Unmarshal(raw, &frame))

	// Then the client sees the same change
	req.Equal(FrameDelta, frame.Type)
	req.Equal("sub-1", frame.Subscription)
	req.Equal(delta, ToDelta(*frame.Delta))
}

func TestSnapshot_Messages_Keep_Scope_And_Order(t *testing.T) {
	req := require.New(t)
	scope := chat.ConversationScope("c1")
	messages := []chat.Message{
		{ID: uuid.New(), Scope: scope, Seq: 1, AuthorID: "alice", AuthorName: "Alice", Text: "hey", CreatedAt: time.Unix(1, 0).UTC()},
		{ID: uuid.New(), Scope: scope, Seq: 2, AuthorID: "bob", AuthorName: "Bob", Text: "hi", Lang: "en", CreatedAt: time.Unix(2, 0).UTC()},
	}

	snapshot := ToSnapshot(FromSnapshot(event.Snapshot{Seq: 2, Messages: messages}))

	req.Equal(uint64(2), snapshot.Seq)
	req.Equal(messages, snapshot.Messages)
	req.Empty(snapshot.Channels)
}

func TestConversation_Without_Last_Message(t *testing.T) {
	req := require.New(t)
	conversation := chat.Conversation{ID: "c1", Participants: chat.Pair("bob", "alice"), CreatedAt: time.Unix(3, 0).UTC()}

	dto := FromConversation(conversation)

	req.Nil(dto.LastMessage)
	req.Equal([]string{"alice", "bob"}, dto.Participants)
	req.Equal(conversation, ToConversation(dto))
}
