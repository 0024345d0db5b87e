package services

import (
	"chat-core/domain/chat"
	"chat-core/domain/search"
	"chat-core/errors"
	"chat-core/observability"
	"chat-core/runtime"
	"context"
	"fmt"
	"sync"
)

// IChatService is what transports consume. Raw wire values (scopes, topics,
// search fields) are parsed here so every transport rejects them the same way.
type IChatService interface {
	OpenSession(userID chat.UserID) (func(), error)
	GetUser(ctx context.Context, id chat.UserID) (chat.User, error)
	ListChannels(ctx context.Context, userID chat.UserID) ([]chat.Channel, error)
	CreateChannel(ctx context.Context, cmd chat.CreateChannelCommand) (chat.Channel, error)
	AddMember(ctx context.Context, cmd chat.MembershipCommand) (chat.Channel, error)
	RemoveMember(ctx context.Context, cmd chat.MembershipCommand) (chat.Channel, error)
	ListConversations(ctx context.Context, userID chat.UserID) ([]chat.Conversation, error)
	CreateConversation(ctx context.Context, cmd chat.CreateConversationCommand) (chat.Conversation, error)
	PostMessage(ctx context.Context, userID chat.UserID, rawScope, text string) (chat.Message, error)
	GetMessages(ctx context.Context, userID chat.UserID, rawScope string, before uint64, limit int) ([]chat.Message, error)
	Search(ctx context.Context, userID chat.UserID, rawField, prefix string, limit int) ([]search.Hit, error)
	Subscribe(ctx context.Context, userID chat.UserID, rawTopic string, limit int) (*runtime.Subscription, error)
	Resubscribe(ctx context.Context, sub *runtime.Subscription) (*runtime.Subscription, error)
	Unsubscribe(userID chat.UserID, subscriptionID string) error
	Stats() observability.HubStats
}

type ChatService struct {
	orchestrator *runtime.Orchestrator
}

func NewChatService(o *runtime.Orchestrator) *ChatService {
	return &ChatService{orchestrator: o}
}

// OpenSession marks the user connected until the returned function is called.
// Calling it more than once has no further effect.
func (s *ChatService) OpenSession(userID chat.UserID) (func(), error) {
	if err := s.orchestrator.Connect(userID); err != nil {
		return nil, err
	}
	var once sync.Once
	return func() {
		once.Do(func() { _ = s.orchestrator.Disconnect(userID) })
	}, nil
}

// GetUser returns the user's profile and presence. Any authenticated user may read it.
func (s *ChatService) GetUser(ctx context.Context, id chat.UserID) (chat.User, error) {
	if err := ctx.Err(); err != nil {
		return chat.User{}, errors.FromContext(err)
	}
	return s.orchestrator.User(id)
}

func (s *ChatService) ListChannels(ctx context.Context, userID chat.UserID) ([]chat.Channel, error) {
	return s.orchestrator.ListVisibleChannels(ctx, userID)
}

func (s *ChatService) CreateChannel(ctx context.Context, cmd chat.CreateChannelCommand) (chat.Channel, error) {
	return s.orchestrator.CreateChannel(ctx, cmd)
}

func (s *ChatService) AddMember(ctx context.Context, cmd chat.MembershipCommand) (chat.Channel, error) {
	return s.orchestrator.AddMember(ctx, cmd)
}

func (s *ChatService) RemoveMember(ctx context.Context, cmd chat.MembershipCommand) (chat.Channel, error) {
	return s.orchestrator.RemoveMember(ctx, cmd)
}

func (s *ChatService) ListConversations(ctx context.Context, userID chat.UserID) ([]chat.Conversation, error) {
	return s.orchestrator.ListConversations(ctx, userID)
}

func (s *ChatService) CreateConversation(ctx context.Context, cmd chat.CreateConversationCommand) (chat.Conversation, error) {
	return s.orchestrator.CreateConversation(ctx, cmd)
}

func (s *ChatService) PostMessage(ctx context.Context, userID chat.UserID, rawScope, text string) (chat.Message, error) {
	scope, err := parseScope(rawScope)
	if err != nil {
		return chat.Message{}, err
	}
	return s.orchestrator.PostMessage(ctx, chat.PostMessageCommand{Scope: scope, AuthorID: userID, Text: text})
}

// GetMessages reads the latest page when before is 0, older pages otherwise.
func (s *ChatService) GetMessages(ctx context.Context, userID chat.UserID, rawScope string, before uint64, limit int) ([]chat.Message, error) {
	scope, err := parseScope(rawScope)
	if err != nil {
		return nil, err
	}
	if before == 0 {
		return s.orchestrator.ReadRecent(ctx, userID, scope, limit)
	}
	return s.orchestrator.History(ctx, userID, scope, before, limit)
}

func (s *ChatService) Search(ctx context.Context, userID chat.UserID, rawField, prefix string, limit int) ([]search.Hit, error) {
	field, err := search.ParseField(rawField)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrInvalidPayload, err)
	}
	return s.orchestrator.Search(ctx, userID, search.Query{Field: field, Prefix: prefix, Limit: limit})
}

func (s *ChatService) Subscribe(ctx context.Context, userID chat.UserID, rawTopic string, limit int) (*runtime.Subscription, error) {
	topic, err := runtime.ParseTopic(rawTopic)
	if err != nil {
		return nil, err
	}
	return s.orchestrator.Subscribe(ctx, userID, topic, limit)
}

func (s *ChatService) Resubscribe(ctx context.Context, sub *runtime.Subscription) (*runtime.Subscription, error) {
	return s.orchestrator.Resubscribe(ctx, sub)
}

func (s *ChatService) Unsubscribe(userID chat.UserID, subscriptionID string) error {
	return s.orchestrator.Unsubscribe(userID, subscriptionID)
}

func (s *ChatService) Stats() observability.HubStats {
	return s.orchestrator.Stats()
}

func parseScope(raw string) (chat.Scope, error) {
	scope, err := chat.ParseScope(raw)
	if err != nil {
		return chat.Scope{}, fmt.Errorf("%w: %v", errors.ErrInvalidPayload, err)
	}
	return scope, nil
}
