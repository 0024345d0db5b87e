package projection

import (
	"chat-core/domain/chat"
	"chat-core/domain/event"
)

// Lists follows the channel and conversation lists of one user. List deltas
// carry the whole list after the change, so applying one is a replacement.
type Lists struct {
	Channels      []chat.Channel
	Conversations []chat.Conversation
	// Peers holds the last known presence of conversation peers.
	Peers map[chat.UserID]chat.User

	channelSeq      uint64
	conversationSeq uint64
}

func NewLists() *Lists {
	return &Lists{Peers: make(map[chat.UserID]chat.User)}
}

func (l *Lists) ResetChannels(snapshot event.Snapshot) {
	l.Channels = snapshot.Channels
	l.channelSeq = snapshot.Seq
}

func (l *Lists) ResetConversations(snapshot event.Snapshot) {
	l.Conversations = snapshot.Conversations
	l.conversationSeq = snapshot.Seq
}

// Apply reports whether the delta changed one of the lists.
func (l *Lists) Apply(d event.Delta) bool {
	switch d.Kind {
	case event.DeltaChannelAdded, event.DeltaChannelRemoved:
		if d.Seq <= l.channelSeq {
			return false
		}
		l.channelSeq = d.Seq
		l.Channels = d.Channels
	case event.DeltaConversationUpdated:
		if d.Seq <= l.conversationSeq {
			return false
		}
		l.conversationSeq = d.Seq
		l.Conversations = d.Conversations
	case event.DeltaPresenceChanged:
		if d.Seq <= l.conversationSeq || d.User == nil {
			return false
		}
		l.conversationSeq = d.Seq
		l.Peers[d.User.ID] = *d.User
	default:
		return false
	}
	return true
}
