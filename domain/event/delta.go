package event

import "chat-core/domain/chat"

type DeltaKind string

const (
	DeltaMessage             DeltaKind = "message"
	DeltaChannelAdded        DeltaKind = "channel_added"
	DeltaChannelRemoved      DeltaKind = "channel_removed"
	DeltaConversationUpdated DeltaKind = "conversation_updated"
	// DeltaPresenceChanged reaches the conversation lists of the user's peers.
	DeltaPresenceChanged DeltaKind = "presence_changed"
)

// Snapshot is the consistent state handed to a subscriber at registration.
// Seq is the position of the last change it includes.
type Snapshot struct {
	Seq           uint64
	Messages      []chat.Message
	Channels      []chat.Channel
	Conversations []chat.Conversation
}

// Delta is one change delivered to a live subscriber after its snapshot.
// For list topics, Channels / Conversations carry the whole list after the change.
type Delta struct {
	Seq           uint64
	Kind          DeltaKind
	Message       *chat.Message
	Channel       *chat.Channel
	Conversation  *chat.Conversation
	User          *chat.User
	Channels      []chat.Channel
	Conversations []chat.Conversation
}
