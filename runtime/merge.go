package runtime

import (
	"chat-core/domain/chat"
	"chat-core/domain/event"
	"maps"
	"slices"
)

// channelMerge combines the public channel stream with one user's private
// stream. Both halves are kept apart so that a private channel can only enter
// the list through the private stream, and every emitted delta carries the
// whole merged list.
type channelMerge struct {
	userID  chat.UserID
	public  map[chat.ChannelID]chat.Channel
	private map[chat.ChannelID]chat.Channel
}

func newChannelMerge(userID chat.UserID, snapshot []chat.Channel) *channelMerge {
	m := &channelMerge{
		userID:  userID,
		public:  make(map[chat.ChannelID]chat.Channel),
		private: make(map[chat.ChannelID]chat.Channel),
	}
	for _, c := range snapshot {
		if c.IsPublic() {
			m.public[c.ID] = c
		} else if c.HasMember(userID) {
			m.private[c.ID] = c
		}
	}
	return m
}

func (m *channelMerge) apply(stream string, d event.Delta) (event.Delta, bool) {
	if d.Channel == nil {
		return event.Delta{}, false
	}
	channel := *d.Channel
	switch stream {
	case publicChannelsStream:
		if !channel.IsPublic() {
			return event.Delta{}, false
		}
		if d.Kind != event.DeltaChannelAdded {
			return event.Delta{}, false
		}
		m.public[channel.ID] = channel
	case privateChannelsStream(m.userID):
		if channel.IsPublic() {
			return event.Delta{}, false
		}
		switch d.Kind {
		case event.DeltaChannelAdded:
			if !channel.HasMember(m.userID) {
				return event.Delta{}, false
			}
			m.private[channel.ID] = channel
		case event.DeltaChannelRemoved:
			if _, ok := m.private[channel.ID]; !ok {
				return event.Delta{}, false
			}
			delete(m.private, channel.ID)
		default:
			return event.Delta{}, false
		}
	default:
		return event.Delta{}, false
	}
	d.Channels = m.merged()
	return d, true
}

func (m *channelMerge) merged() []chat.Channel {
	channels := slices.Collect(maps.Values(m.public))
	channels = append(channels, slices.Collect(maps.Values(m.private))...)
	slices.SortFunc(channels, chat.CompareChannels)
	return channels
}

// conversationView keeps one user's conversation list ordered by recency.
type conversationView struct {
	conversations map[chat.ConversationID]chat.Conversation
}

func newConversationView(snapshot []chat.Conversation) *conversationView {
	v := &conversationView{conversations: make(map[chat.ConversationID]chat.Conversation)}
	for _, c := range snapshot {
		v.conversations[c.ID] = c
	}
	return v
}

func (v *conversationView) apply(_ string, d event.Delta) (event.Delta, bool) {
	switch {
	case d.Kind == event.DeltaConversationUpdated && d.Conversation != nil:
		v.conversations[d.Conversation.ID] = *d.Conversation
	case d.Kind == event.DeltaPresenceChanged && d.User != nil:
	default:
		return event.Delta{}, false
	}
	conversations := slices.Collect(maps.Values(v.conversations))
	slices.SortFunc(conversations, chat.CompareConversations)
	d.Conversations = conversations
	return d, true
}
