// Package protocol holds the JSON shapes exchanged with clients, over REST
// and over the websocket subscription session.
package protocol

import (
	"chat-core/domain/chat"
	"chat-core/domain/event"
	"chat-core/domain/search"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

type User struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"displayName"`
	Verified    bool      `json:"verified"`
	Online      bool      `json:"online"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type Channel struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Visibility  string    `json:"visibility"`
	Members     []string  `json:"members,omitempty"`
	CreatorID   string    `json:"creatorId"`
	CreatedAt   time.Time `json:"createdAt"`
}

type LastMessage struct {
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

type Conversation struct {
	ID           string       `json:"id"`
	Participants []string     `json:"participants"`
	CreatedAt    time.Time    `json:"createdAt"`
	LastMessage  *LastMessage `json:"lastMessage,omitempty"`
}

type Message struct {
	ID         string    `json:"id"`
	Scope      string    `json:"scope"`
	Seq        uint64    `json:"seq"`
	AuthorID   string    `json:"authorId"`
	AuthorName string    `json:"authorName"`
	Text       string    `json:"text"`
	Lang       string    `json:"lang,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

type Hit struct {
	Field     string    `json:"field"`
	Scope     string    `json:"scope"`
	ChannelID string    `json:"channelId,omitempty"`
	MessageID string    `json:"messageId,omitempty"`
	Text      string    `json:"text"`
	At        time.Time `json:"at"`
}

type Snapshot struct {
	Seq           uint64         `json:"seq"`
	Messages      []Message      `json:"messages,omitempty"`
	Channels      []Channel      `json:"channels,omitempty"`
	Conversations []Conversation `json:"conversations,omitempty"`
}

type Delta struct {
	Seq           uint64         `json:"seq"`
	Kind          string         `json:"kind"`
	Message       *Message       `json:"message,omitempty"`
	Channel       *Channel       `json:"channel,omitempty"`
	Conversation  *Conversation  `json:"conversation,omitempty"`
	User          *User          `json:"user,omitempty"`
	Channels      []Channel      `json:"channels,omitempty"`
	Conversations []Conversation `json:"conversations,omitempty"`
}

// Request bodies.

type CreateChannelRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Visibility  string `json:"visibility"`
}

type AddMemberRequest struct {
	UserID string `json:"userId"`
}

type CreateConversationRequest struct {
	PeerID string `json:"peerId"`
}

type PostMessageRequest struct {
	Text string `json:"text"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func FromUser(u chat.User) User {
	return User{ID: string(u.ID), DisplayName: u.DisplayName, Verified: u.Verified, Online: u.Online, UpdatedAt: u.UpdatedAt}
}

func ToUser(u User) chat.User {
	return chat.User{ID: chat.UserID(u.ID), DisplayName: u.DisplayName, Verified: u.Verified, Online: u.Online, UpdatedAt: u.UpdatedAt}
}

func FromChannel(c chat.Channel) Channel {
	return Channel{
		ID:          string(c.ID),
		Name:        c.Name,
		Description: c.Description,
		Visibility:  string(c.Visibility),
		Members:     mapSlice(c.Members, func(id chat.UserID) string { return string(id) }),
		CreatorID:   string(c.CreatorID),
		CreatedAt:   c.CreatedAt,
	}
}

func ToChannel(c Channel) chat.Channel {
	channel := chat.Channel{
		ID:          chat.ChannelID(c.ID),
		Name:        c.Name,
		Description: c.Description,
		Visibility:  chat.Visibility(c.Visibility),
		CreatorID:   chat.UserID(c.CreatorID),
		CreatedAt:   c.CreatedAt,
	}
	channel.Members = mapSlice(c.Members, func(id string) chat.UserID { return chat.UserID(id) })
	return channel
}

func FromConversation(c chat.Conversation) Conversation {
	conversation := Conversation{
		ID:           string(c.ID),
		Participants: []string{string(c.Participants[0]), string(c.Participants[1])},
		CreatedAt:    c.CreatedAt,
	}
	if c.LastMessage != nil {
		conversation.LastMessage = &LastMessage{Text: c.LastMessage.Text, At: c.LastMessage.At}
	}
	return conversation
}

func ToConversation(c Conversation) chat.Conversation {
	conversation := chat.Conversation{ID: chat.ConversationID(c.ID), CreatedAt: c.CreatedAt}
	if len(c.Participants) == 2 {
		conversation.Participants = chat.Pair(chat.UserID(c.Participants[0]), chat.UserID(c.Participants[1]))
	}
	if c.LastMessage != nil {
		conversation.LastMessage = &chat.LastMessage{Text: c.LastMessage.Text, At: c.LastMessage.At}
	}
	return conversation
}

func FromMessage(m chat.Message) Message {
	return Message{
		ID:         m.ID.String(),
		Scope:      m.Scope.String(),
		Seq:        m.Seq,
		AuthorID:   string(m.AuthorID),
		AuthorName: m.AuthorName,
		Text:       m.Text,
		Lang:       m.Lang,
		CreatedAt:  m.CreatedAt,
	}
}

// ToMessage is lenient: a malformed id or scope is left zero.
func ToMessage(m Message) chat.Message {
	id, _ := uuid.Parse(m.ID)
	scope, _ := chat.ParseScope(m.Scope)
	return chat.Message{
		ID:         id,
		Scope:      scope,
		Seq:        m.Seq,
		AuthorID:   chat.UserID(m.AuthorID),
		AuthorName: m.AuthorName,
		Text:       m.Text,
		Lang:       m.Lang,
		CreatedAt:  m.CreatedAt,
	}
}

func FromHit(h search.Hit) Hit {
	return Hit{
		Field:     string(h.Field),
		Scope:     h.Scope.String(),
		ChannelID: string(h.ChannelID),
		MessageID: h.MessageID,
		Text:      h.Text,
		At:        h.At,
	}
}

// mapSlice keeps empty lists nil so that they read back the way they were sent.
func mapSlice[T, R any](in []T, f func(T) R) []R {
	if len(in) == 0 {
		return nil
	}
	return lo.Map(in, func(item T, _ int) R { return f(item) })
}

func FromChannels(channels []chat.Channel) []Channel { return mapSlice(channels, FromChannel) }

func FromConversations(conversations []chat.Conversation) []Conversation {
	return mapSlice(conversations, FromConversation)
}

func FromMessages(messages []chat.Message) []Message { return mapSlice(messages, FromMessage) }

// FromHits never returns nil: an empty search answers [].
func FromHits(hits []search.Hit) []Hit {
	return lo.Map(hits, func(h search.Hit, _ int) Hit { return FromHit(h) })
}

func FromSnapshot(s event.Snapshot) Snapshot {
	return Snapshot{
		Seq:           s.Seq,
		Messages:      FromMessages(s.Messages),
		Channels:      FromChannels(s.Channels),
		Conversations: FromConversations(s.Conversations),
	}
}

func ToSnapshot(s Snapshot) event.Snapshot {
	return event.Snapshot{
		Seq:           s.Seq,
		Messages:      mapSlice(s.Messages, ToMessage),
		Channels:      mapSlice(s.Channels, ToChannel),
		Conversations: mapSlice(s.Conversations, ToConversation),
	}
}

func FromDelta(d event.Delta) Delta {
	delta := Delta{
		Seq:           d.Seq,
		Kind:          string(d.Kind),
		Channels:      FromChannels(d.Channels),
		Conversations: FromConversations(d.Conversations),
	}
	if d.Message != nil {
		delta.Message = lo.ToPtr(FromMessage(*d.Message))
	}
	if d.Channel != nil {
		delta.Channel = lo.ToPtr(FromChannel(*d.Channel))
	}
	if d.Conversation != nil {
		delta.Conversation = lo.ToPtr(FromConversation(*d.Conversation))
	}
	if d.User != nil {
		delta.User = lo.ToPtr(FromUser(*d.User))
	}
	return delta
}

func ToDelta(d Delta) event.Delta {
	delta := event.Delta{
		Seq:           d.Seq,
		Kind:          event.DeltaKind(d.Kind),
		Channels:      mapSlice(d.Channels, ToChannel),
		Conversations: mapSlice(d.Conversations, ToConversation),
	}
	if d.Message != nil {
		delta.Message = lo.ToPtr(ToMessage(*d.Message))
	}
	if d.Channel != nil {
		delta.Channel = lo.ToPtr(ToChannel(*d.Channel))
	}
	if d.Conversation != nil {
		delta.Conversation = lo.ToPtr(ToConversation(*d.Conversation))
	}
	if d.User != nil {
		delta.User = lo.ToPtr(ToUser(*d.User))
	}
	return delta
}
