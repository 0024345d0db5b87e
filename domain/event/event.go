package event

import (
	"chat-core/domain/chat"
	"time"
)

// DomainEvent is a committed change. Topic names the stream it was committed to.
type DomainEvent interface {
	Topic() string
}

type MessagePosted struct {
	Message chat.Message
}

func (m MessagePosted) Topic() string { return m.Message.Scope.String() }

type ChannelCreated struct {
	Channel chat.Channel
}

func (c ChannelCreated) Topic() string { return "channel-directory" }

type MemberAdded struct {
	Channel chat.Channel
	UserID  chat.UserID
}

func (m MemberAdded) Topic() string { return "channel-directory" }

type MemberRemoved struct {
	Channel chat.Channel
	UserID  chat.UserID
}

func (m MemberRemoved) Topic() string { return "channel-directory" }

type ConversationUpdated struct {
	Conversation chat.Conversation
}

func (c ConversationUpdated) Topic() string { return "conversation-directory" }

type PresenceChanged struct {
	UserID chat.UserID
	Online bool
	At     time.Time
}

func (p PresenceChanged) Topic() string { return "presence" }
