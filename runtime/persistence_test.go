package runtime

import (
	"chat-core/domain/chat"
	"chat-core/domain/event"
	"chat-core/errors"
	"chat-core/mocks"
	"chat-core/observability"
	"chat-core/runtime/workers"
	"context"
	stderrors "errors"
	"log/slog"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

var errDiskFull = stderrors.New("disk full")

type mockedStore struct {
	users         *mocks.MockIUserRepository
	channels      *mocks.MockIChannelRepository
	conversations *mocks.MockIConversationRepository
	messages      *mocks.MockIMessageRepository
	search        *mocks.MockISearchRepository
}

// newMockedOrchestrator loads alice, bob and carol, the public general
// channel, the private ops channel of alice and bob, and their conversation d1.
func newMockedOrchestrator(t *testing.T) (*Orchestrator, mockedStore) {
	t.Helper()
	ctrl := gomock.NewController(t)
	store := mockedStore{
		users:         mocks.NewMockIUserRepository(ctrl),
		channels:      mocks.NewMockIChannelRepository(ctrl),
		conversations: mocks.NewMockIConversationRepository(ctrl),
		messages:      mocks.NewMockIMessageRepository(ctrl),
		search:        mocks.NewMockISearchRepository(ctrl),
	}
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	store.users.EXPECT().ListUsers().Return([]chat.User{
		{ID: "alice", DisplayName: "Alice", Verified: true, UpdatedAt: at},
		{ID: "bob", DisplayName: "Bob", Verified: true, UpdatedAt: at},
		{ID: "carol", DisplayName: "Carol", Verified: true, UpdatedAt: at},
	}, nil)
	store.channels.EXPECT().ListChannels().Return([]chat.Channel{
		{ID: "general", Name: "general", Visibility: chat.Public, CreatorID: "alice", CreatedAt: at},
		{ID: "ops", Name: "ops", Visibility: chat.Private, Members: []chat.UserID{"alice", "bob"}, CreatorID: "alice", CreatedAt: at},
	}, nil)
	store.conversations.EXPECT().ListConversations().Return([]chat.Conversation{
		{ID: "d1", Participants: chat.Pair("alice", "bob"), CreatedAt: at},
	}, nil)
	// The assistant is seeded on load
	store.users.EXPECT().SaveUser(gomock.Any()).Return(nil)
	store.messages.EXPECT().LastMessage(gomock.Any()).Return(nil, nil).AnyTimes()
	store.messages.EXPECT().GetMessages(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, nil).AnyTimes()

	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	orchestrator := NewOrchestrator(log, workers.NewSupervisor(log), NewRegistry(), Repositories{
		Users:         store.users,
		Channels:      store.channels,
		Conversations: store.conversations,
		Messages:      store.messages,
		Search:        store.search,
	}, observability.NewMonitoringManager(log), defaultOptions())
	require.NoError(t, orchestrator.Load())
	return orchestrator, store
}

func TestOrchestrator_Failed_Message_Store_Leaves_No_Trace(t *testing.T) {
	req := require.New(t)
	o, store := newMockedOrchestrator(t)
	ctx := context.Background()
	scope := chat.ChannelScope("general")
	sub, err := o.Subscribe(ctx, "bob", ScopeTopic(scope), 10)
	req.NoError(err)

	// Given the store refuses the first write only
	store.messages.EXPECT().StoreMessage(gomock.Any()).Return(errDiskFull)
	store.messages.EXPECT().StoreMessage(gomock.Any()).Return(nil)
	store.search.EXPECT().IndexMessage(gomock.Any()).Return(nil)

	// When alice posts
	_, err = post(o, scope, "alice", "lost")

	// Then the head did not move and nothing was published
	req.ErrorIs(err, errDiskFull)
	head, err := o.messageLog.Head(ctx, scope)
	req.NoError(err)
	req.Zero(head)
	req.Empty(sub.queue)
	req.Empty(o.DomainEvents())

	// And the next post takes the first position
	message, err := post(o, scope, "alice", "kept")
	req.NoError(err)
	req.Equal(uint64(1), message.Seq)
	d := next(t, sub)
	req.Equal(uint64(1), d.Seq)
	req.Equal("kept", d.Message.Text)
}

func TestOrchestrator_Failed_Conversation_Message_Keeps_Last_Message(t *testing.T) {
	req := require.New(t)
	o, store := newMockedOrchestrator(t)
	ctx := context.Background()
	scope := chat.ConversationScope("d1")
	sub, err := o.Subscribe(ctx, "bob", Topic{Kind: TopicConversations}, 0)
	req.NoError(err)

	// Given the store refuses the message and its conversation pointer
	var written chat.Conversation
	store.messages.EXPECT().StoreConversationMessage(gomock.Any(), gomock.Any()).
		DoAndReturn(func(message chat.Message, conversation chat.Conversation) error {
			written = conversation
			return errDiskFull
		})

	// When alice writes to bob
	_, err = post(o, scope, "alice", "hey")

	// Then the pointer was part of the refused write
	req.ErrorIs(err, errDiskFull)
	req.NotNil(written.LastMessage)
	req.Equal("hey", written.LastMessage.Text)

	// And neither the log nor the conversation list moved
	head, err := o.messageLog.Head(ctx, scope)
	req.NoError(err)
	req.Zero(head)
	conversations, err := o.ListConversations(ctx, "bob")
	req.NoError(err)
	req.Len(conversations, 1)
	req.Nil(conversations[0].LastMessage)
	req.Zero(o.membership.conversationSeq)
	req.Empty(sub.queue)
	req.Empty(o.DomainEvents())
}

func TestOrchestrator_Failed_Channel_Creation_Leaves_No_Trace(t *testing.T) {
	req := require.New(t)
	o, store := newMockedOrchestrator(t)
	ctx := context.Background()
	sub, err := o.Subscribe(ctx, "bob", Topic{Kind: TopicChannels}, 0)
	req.NoError(err)
	cmd := chat.CreateChannelCommand{Name: "random", Visibility: chat.Public, CreatorID: "alice"}

	// Given the store refuses the first channel
	store.channels.EXPECT().CreateChannel(gomock.Any()).Return(errDiskFull)

	// When alice creates random
	_, err = o.CreateChannel(ctx, cmd)

	// Then the name is still free and nobody heard of it
	req.ErrorIs(err, errDiskFull)
	req.NotContains(o.membership.publicNames, "random")
	channels, err := o.ListVisibleChannels(ctx, "bob")
	req.NoError(err)
	req.Len(channels, 2)
	req.Zero(o.membership.directorySeq)
	req.Empty(sub.queue)
	req.Empty(o.DomainEvents())

	// And a retry succeeds under the same name
	store.channels.EXPECT().CreateChannel(gomock.Any()).Return(nil)
	store.search.EXPECT().IndexChannel(gomock.Any()).Return(nil)
	channel, err := o.CreateChannel(ctx, cmd)
	req.NoError(err)
	req.Equal("random", channel.Name)
	d := next(t, sub)
	req.Equal(event.DeltaChannelAdded, d.Kind)
	req.Len(d.Channels, 3)
}

func TestOrchestrator_Failed_Membership_Change_Leaves_No_Trace(t *testing.T) {
	req := require.New(t)
	o, store := newMockedOrchestrator(t)
	ctx := context.Background()
	ops := chat.ChannelScope("ops")
	lists, err := o.Subscribe(ctx, "alice", Topic{Kind: TopicChannels}, 0)
	req.NoError(err)
	feed, err := o.Subscribe(ctx, "bob", ScopeTopic(ops), 10)
	req.NoError(err)

	// Given the store refuses every channel update
	store.channels.EXPECT().SaveChannel(gomock.Any()).Return(errDiskFull).Times(2)

	// When alice adds carol and removes bob
	_, err = o.AddMember(ctx, chat.MembershipCommand{ChannelID: "ops", ActorID: "alice", MemberID: "carol"})
	req.ErrorIs(err, errDiskFull)
	_, err = o.RemoveMember(ctx, chat.MembershipCommand{ChannelID: "ops", ActorID: "alice", MemberID: "bob"})
	req.ErrorIs(err, errDiskFull)

	// Then the members are unchanged and bob keeps his feed
	req.False(o.IsVisible("carol", ops))
	req.True(o.IsVisible("bob", ops))
	req.Equal([]chat.UserID{"alice", "bob"}, o.membership.channels["ops"].Members)
	req.Equal(Live, feed.State())
	req.Zero(o.membership.directorySeq)
	req.Empty(lists.queue)
	req.Empty(o.DomainEvents())
}

func TestOrchestrator_Failed_User_Write_Leaves_No_Trace(t *testing.T) {
	req := require.New(t)
	o, store := newMockedOrchestrator(t)
	ctx := context.Background()
	sub, err := o.Subscribe(ctx, "bob", Topic{Kind: TopicConversations}, 0)
	req.NoError(err)

	// Given the store refuses the next two user writes
	store.users.EXPECT().SaveUser(gomock.Any()).Return(errDiskFull).Times(2)

	// Then an unknown user is not registered
	_, err = o.UpsertUser(ctx, chat.Identity{UserID: "dave", DisplayName: "Dave"})
	req.ErrorIs(err, errDiskFull)
	_, err = o.User("dave")
	req.ErrorIs(err, errors.ErrNotFound)

	// And alice does not come online
	req.ErrorIs(o.Connect("alice"), errDiskFull)
	alice, err := o.User("alice")
	req.NoError(err)
	req.False(alice.Online)
	req.Empty(sub.queue)
	req.Empty(o.DomainEvents())

	// When the store recovers her next session counts as the first
	store.users.EXPECT().SaveUser(gomock.Any()).Return(nil)
	req.NoError(o.Connect("alice"))
	alice, err = o.User("alice")
	req.NoError(err)
	req.True(alice.Online)
	d := next(t, sub)
	req.Equal(event.DeltaPresenceChanged, d.Kind)
	req.Equal(chat.UserID("alice"), d.User.ID)
}
