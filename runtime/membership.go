package runtime

import (
	"chat-core/domain/chat"
	"chat-core/domain/event"
	"chat-core/errors"
	"chat-core/repositories"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// Membership owns users, channels, conversations and who may see what.
// Every mutation is persisted first, then applied in memory, then published,
// all under one lock: a failed write leaves no trace, and a list subscriber
// registered under the same lock never misses or repeats a change.
type Membership struct {
	mu  sync.RWMutex
	log *slog.Logger

	users         map[chat.UserID]chat.User
	channels      map[chat.ChannelID]chat.Channel
	publicNames   map[string]chat.ChannelID
	conversations map[chat.ConversationID]chat.Conversation
	pairs         map[[2]chat.UserID]chat.ConversationID
	sessions      map[chat.UserID]int

	// Positions of the channel directory and conversation directory streams.
	directorySeq    uint64
	conversationSeq uint64

	userRepository         repositories.IUserRepository
	channelRepository      repositories.IChannelRepository
	conversationRepository repositories.IConversationRepository
	registry               *Registry
	emit                   func(event.DomainEvent)
	now                    func() time.Time
}

func NewMembership(log *slog.Logger,
	userRepository repositories.IUserRepository,
	channelRepository repositories.IChannelRepository,
	conversationRepository repositories.IConversationRepository,
	registry *Registry,
	emit func(event.DomainEvent)) *Membership {
	return &Membership{
		log:                    log,
		users:                  make(map[chat.UserID]chat.User),
		channels:               make(map[chat.ChannelID]chat.Channel),
		publicNames:            make(map[string]chat.ChannelID),
		conversations:          make(map[chat.ConversationID]chat.Conversation),
		pairs:                  make(map[[2]chat.UserID]chat.ConversationID),
		sessions:               make(map[chat.UserID]int),
		userRepository:         userRepository,
		channelRepository:      channelRepository,
		conversationRepository: conversationRepository,
		registry:               registry,
		emit:                   emit,
		now:                    func() time.Time { return time.Now().UTC() },
	}
}

// Load reads the persisted directory into memory.
// Users left online by an unclean shutdown are set offline.
func (m *Membership) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	users, err := m.userRepository.ListUsers()
	if err != nil {
		return err
	}
	for _, user := range users {
		if user.Online {
			user.Online = false
			if err := m.userRepository.SaveUser(user); err != nil {
				return err
			}
		}
		m.users[user.ID] = user
	}

	channels, err := m.channelRepository.ListChannels()
	if err != nil {
		return err
	}
	for _, channel := range channels {
		m.channels[channel.ID] = channel
		if channel.IsPublic() {
			m.publicNames[channel.Name] = channel.ID
		}
	}

	conversations, err := m.conversationRepository.ListConversations()
	if err != nil {
		return err
	}
	for _, conversation := range conversations {
		m.conversations[conversation.ID] = conversation
		m.pairs[conversation.Participants] = conversation.ID
	}

	m.log.Info("Membership loaded",
		"users", len(m.users),
		"channels", len(m.channels),
		"conversations", len(m.conversations))
	return nil
}

// UpsertUser records the identity vouched for by the identity provider.
// The assistant id is reserved: only SeedAssistant writes it.
func (m *Membership) UpsertUser(identity chat.Identity) (chat.User, error) {
	if strings.TrimSpace(string(identity.UserID)) == "" {
		return chat.User{}, fmt.Errorf("%w: missing user id", errors.ErrInvalidPayload)
	}
	if identity.UserID == chat.AssistantID {
		return chat.User{}, fmt.Errorf("%w: user id %s is reserved", errors.ErrForbidden, identity.UserID)
	}
	return m.upsertUser(identity)
}

// SeedAssistant creates or renames the reserved assistant user.
func (m *Membership) SeedAssistant(displayName string) (chat.User, error) {
	return m.upsertUser(chat.Identity{UserID: chat.AssistantID, DisplayName: displayName, Verified: true})
}

func (m *Membership) upsertUser(identity chat.Identity) (chat.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	user, exists := m.users[identity.UserID]
	if exists && user.DisplayName == identity.DisplayName && user.Verified == identity.Verified {
		return user, nil
	}
	user.ID = identity.UserID
	user.DisplayName = identity.DisplayName
	user.Verified = identity.Verified
	user.UpdatedAt = m.now()
	if err := m.userRepository.SaveUser(user); err != nil {
		return chat.User{}, err
	}
	m.users[user.ID] = user
	return user, nil
}

func (m *Membership) User(id chat.UserID) (chat.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	user, ok := m.users[id]
	if !ok {
		return chat.User{}, fmt.Errorf("%w: user %s", errors.ErrNotFound, id)
	}
	return user, nil
}

// Connect counts a new session; the first one sets the user online.
func (m *Membership) Connect(id chat.UserID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return fmt.Errorf("%w: user %s", errors.ErrNotFound, id)
	}
	m.sessions[id]++
	if m.sessions[id] > 1 {
		return nil
	}
	if err := m.setOnline(id, true); err != nil {
		delete(m.sessions, id)
		return err
	}
	return nil
}

// Disconnect releases a session; the last one sets the user offline.
func (m *Membership) Disconnect(id chat.UserID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sessions[id] == 0 {
		return nil
	}
	m.sessions[id]--
	if m.sessions[id] > 0 {
		return nil
	}
	delete(m.sessions, id)
	if err := m.setOnline(id, false); err != nil {
		m.sessions[id] = 1
		return err
	}
	return nil
}

func (m *Membership) setOnline(id chat.UserID, online bool) error {
	user := m.users[id]
	user.Online = online
	user.UpdatedAt = m.now()
	if err := m.userRepository.SaveUser(user); err != nil {
		return err
	}
	m.users[id] = user
	m.publishPresence(user)
	m.emit(event.PresenceChanged{UserID: id, Online: online, At: user.UpdatedAt})
	return nil
}

// publishPresence tells every peer the user shares a conversation with.
func (m *Membership) publishPresence(user chat.User) {
	peers := lo.FilterMap(m.userConversations(user.ID), func(c chat.Conversation, _ int) (chat.UserID, bool) {
		peer := c.Participants[0]
		if peer == user.ID {
			peer = c.Participants[1]
		}
		return peer, peer != chat.AssistantID
	})
	if len(peers) == 0 {
		return
	}
	m.conversationSeq++
	for _, peer := range peers {
		m.registry.Publish(conversationsStream(peer), event.Delta{
			Seq:  m.conversationSeq,
			Kind: event.DeltaPresenceChanged,
			User: &user,
		})
	}
}

// ScopeExists reports whether the channel or conversation behind scope exists.
func (m *Membership) ScopeExists(scope chat.Scope) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	switch scope.Kind {
	case chat.ScopeChannel:
		_, ok := m.channels[chat.ChannelID(scope.ID)]
		return ok
	case chat.ScopeConversation:
		_, ok := m.conversations[chat.ConversationID(scope.ID)]
		return ok
	}
	return false
}

func (m *Membership) Conversation(id chat.ConversationID) (chat.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	conversation, ok := m.conversations[id]
	if !ok {
		return chat.Conversation{}, fmt.Errorf("%w: conversation %s", errors.ErrNotFound, id)
	}
	return conversation, nil
}

// IsVisible is true for a public channel, a private channel the user is a
// member of, or a conversation the user takes part in.
func (m *Membership) IsVisible(userID chat.UserID, scope chat.Scope) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.isVisible(userID, scope)
}

func (m *Membership) isVisible(userID chat.UserID, scope chat.Scope) bool {
	switch scope.Kind {
	case chat.ScopeChannel:
		channel, ok := m.channels[chat.ChannelID(scope.ID)]
		return ok && (channel.IsPublic() || channel.HasMember(userID))
	case chat.ScopeConversation:
		conversation, ok := m.conversations[chat.ConversationID(scope.ID)]
		return ok && conversation.HasParticipant(userID)
	}
	return false
}

// ListVisibleChannels returns public channels and the user's private ones, by name then id.
func (m *Membership) ListVisibleChannels(userID chat.UserID) []chat.Channel {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.visibleChannels(userID)
}

func (m *Membership) visibleChannels(userID chat.UserID) []chat.Channel {
	channels := lo.Filter(lo.Values(m.channels), func(c chat.Channel, _ int) bool {
		return c.IsPublic() || c.HasMember(userID)
	})
	slices.SortFunc(channels, chat.CompareChannels)
	return channels
}

// ListConversations returns the user's conversations, most recent activity first.
func (m *Membership) ListConversations(userID chat.UserID) []chat.Conversation {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.userConversations(userID)
}

func (m *Membership) userConversations(userID chat.UserID) []chat.Conversation {
	conversations := lo.Filter(lo.Values(m.conversations), func(c chat.Conversation, _ int) bool {
		return c.HasParticipant(userID)
	})
	slices.SortFunc(conversations, chat.CompareConversations)
	return conversations
}

func (m *Membership) CreateChannel(cmd chat.CreateChannelCommand) (chat.Channel, error) {
	cmd.Name = strings.TrimSpace(cmd.Name)
	if err := chat.Validate(cmd); err != nil {
		return chat.Channel{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[cmd.CreatorID]; !ok {
		return chat.Channel{}, fmt.Errorf("%w: user %s", errors.ErrNotFound, cmd.CreatorID)
	}
	visibility := cmd.Visibility
	if _, taken := m.publicNames[cmd.Name]; taken && visibility == chat.Public {
		return chat.Channel{}, fmt.Errorf("%w: %s", errors.ErrDuplicateName, cmd.Name)
	}

	channel := chat.Channel{
		ID:          chat.ChannelID(uuid.NewString()),
		Name:        cmd.Name,
		Description: cmd.Description,
		Visibility:  visibility,
		CreatorID:   cmd.CreatorID,
		CreatedAt:   m.now(),
	}
	if !channel.IsPublic() {
		channel.Members = []chat.UserID{cmd.CreatorID}
	}
	if err := m.channelRepository.CreateChannel(channel); err != nil {
		return chat.Channel{}, err
	}

	m.channels[channel.ID] = channel
	stream := privateChannelsStream(cmd.CreatorID)
	if channel.IsPublic() {
		m.publicNames[channel.Name] = channel.ID
		stream = publicChannelsStream
	}
	m.directorySeq++
	m.registry.Publish(stream, channelDelta(m.directorySeq, event.DeltaChannelAdded, channel))
	m.emit(event.ChannelCreated{Channel: channel})
	return channel, nil
}

// AddMember lets a member of a private channel add another user to it.
func (m *Membership) AddMember(cmd chat.MembershipCommand) (chat.Channel, error) {
	if err := chat.Validate(cmd); err != nil {
		return chat.Channel{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	channel, err := m.privateChannelOf(cmd.ChannelID, cmd.ActorID)
	if err != nil {
		return chat.Channel{}, err
	}
	if _, ok := m.users[cmd.MemberID]; !ok {
		return chat.Channel{}, fmt.Errorf("%w: user %s", errors.ErrNotFound, cmd.MemberID)
	}
	if channel.HasMember(cmd.MemberID) {
		return channel, nil
	}

	updated := channel.WithMember(cmd.MemberID)
	if err := m.channelRepository.SaveChannel(updated); err != nil {
		return chat.Channel{}, err
	}
	m.channels[updated.ID] = updated
	m.directorySeq++
	for _, member := range updated.Members {
		m.registry.Publish(privateChannelsStream(member), channelDelta(m.directorySeq, event.DeltaChannelAdded, updated))
	}
	m.emit(event.MemberAdded{Channel: updated, UserID: cmd.MemberID})
	return updated, nil
}

// RemoveMember revokes a member of a private channel. The revoked user sees
// the channel leave its list and loses its live subscriptions on the channel
// before the call returns.
func (m *Membership) RemoveMember(cmd chat.MembershipCommand) (chat.Channel, error) {
	if err := chat.Validate(cmd); err != nil {
		return chat.Channel{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	channel, err := m.privateChannelOf(cmd.ChannelID, cmd.ActorID)
	if err != nil {
		return chat.Channel{}, err
	}
	if !channel.HasMember(cmd.MemberID) {
		return channel, nil
	}

	updated := channel.WithoutMember(cmd.MemberID)
	if err := m.channelRepository.SaveChannel(updated); err != nil {
		return chat.Channel{}, err
	}
	m.channels[updated.ID] = updated
	m.directorySeq++
	for _, member := range updated.Members {
		m.registry.Publish(privateChannelsStream(member), channelDelta(m.directorySeq, event.DeltaChannelAdded, updated))
	}
	m.registry.Publish(privateChannelsStream(cmd.MemberID), channelDelta(m.directorySeq, event.DeltaChannelRemoved, updated))
	closed := m.registry.CloseFor(cmd.MemberID, scopeStream(chat.ChannelScope(updated.ID)), errors.ErrForbidden)
	if closed > 0 {
		m.log.Debug("Revoked member subscriptions closed", "channel", updated.ID, "user", cmd.MemberID, "count", closed)
	}
	m.emit(event.MemberRemoved{Channel: updated, UserID: cmd.MemberID})
	return updated, nil
}

func (m *Membership) privateChannelOf(id chat.ChannelID, actorID chat.UserID) (chat.Channel, error) {
	channel, ok := m.channels[id]
	if !ok {
		return chat.Channel{}, fmt.Errorf("%w: channel %s", errors.ErrNotFound, id)
	}
	if channel.IsPublic() {
		return chat.Channel{}, fmt.Errorf("%w: channel %s is public", errors.ErrForbidden, id)
	}
	if !channel.HasMember(actorID) {
		return chat.Channel{}, fmt.Errorf("%w: %s is not a member of %s", errors.ErrForbidden, actorID, id)
	}
	return channel, nil
}

// CreateConversation opens the conversation between two distinct users.
// A pair has at most one conversation: asking again returns the existing one.
func (m *Membership) CreateConversation(cmd chat.CreateConversationCommand) (chat.Conversation, error) {
	if err := chat.Validate(cmd); err != nil {
		return chat.Conversation{}, err
	}
	if cmd.UserID == cmd.PeerID {
		return chat.Conversation{}, fmt.Errorf("%w: %s cannot talk to itself", errors.ErrInvalidParticipants, cmd.UserID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, id := range []chat.UserID{cmd.UserID, cmd.PeerID} {
		if _, ok := m.users[id]; !ok {
			return chat.Conversation{}, fmt.Errorf("%w: user %s", errors.ErrNotFound, id)
		}
	}
	pair := chat.Pair(cmd.UserID, cmd.PeerID)
	if id, ok := m.pairs[pair]; ok {
		return m.conversations[id], nil
	}

	conversation, created, err := m.conversationRepository.CreateConversation(chat.Conversation{
		ID:           chat.ConversationID(uuid.NewString()),
		Participants: pair,
		CreatedAt:    m.now(),
	})
	if err != nil {
		return chat.Conversation{}, err
	}
	m.conversations[conversation.ID] = conversation
	m.pairs[pair] = conversation.ID
	if created {
		m.publishConversation(conversation)
	}
	return conversation, nil
}

// RecordLastMessage moves the in-memory last-message pointer to message and
// publishes it. The pointer was persisted together with the message, so this
// runs after the append and cannot fail on storage.
func (m *Membership) RecordLastMessage(message chat.Message) error {
	if !message.Scope.IsConversation() {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	conversation, ok := m.conversations[chat.ConversationID(message.Scope.ID)]
	if !ok {
		return fmt.Errorf("%w: conversation %s", errors.ErrNotFound, message.Scope.ID)
	}
	conversation.LastMessage = chat.LastMessageOf(message)
	m.conversations[conversation.ID] = conversation
	m.publishConversation(conversation)
	return nil
}

func (m *Membership) publishConversation(conversation chat.Conversation) {
	m.conversationSeq++
	for _, participant := range conversation.Participants {
		m.registry.Publish(conversationsStream(participant), event.Delta{
			Seq:          m.conversationSeq,
			Kind:         event.DeltaConversationUpdated,
			Conversation: &conversation,
		})
	}
	m.emit(event.ConversationUpdated{Conversation: conversation})
}

// SubscribeChannels registers a live view of the user's merged channel list.
func (m *Membership) SubscribeChannels(userID chat.UserID, bufferSize int) *Subscription {
	m.mu.RLock()
	defer m.mu.RUnlock()

	channels := m.visibleChannels(userID)
	sub := newSubscription(userID, Topic{Kind: TopicChannels}, 0, bufferSize, newChannelMerge(userID, channels))
	m.registry.Register(sub, publicChannelsStream, privateChannelsStream(userID))
	sub.live(event.Snapshot{Seq: m.directorySeq, Channels: channels})
	return sub
}

// SubscribeConversations registers a live view of the user's conversation list.
func (m *Membership) SubscribeConversations(userID chat.UserID, bufferSize int) *Subscription {
	m.mu.RLock()
	defer m.mu.RUnlock()

	conversations := m.userConversations(userID)
	sub := newSubscription(userID, Topic{Kind: TopicConversations}, 0, bufferSize, newConversationView(conversations))
	m.registry.Register(sub, conversationsStream(userID))
	sub.live(event.Snapshot{Seq: m.conversationSeq, Conversations: conversations})
	return sub
}

func channelDelta(seq uint64, kind event.DeltaKind, channel chat.Channel) event.Delta {
	return event.Delta{Seq: seq, Kind: kind, Channel: &channel}
}
