package repositories

import (
	"chat-core/domain/chat"
	"chat-core/errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

func openDB(t *testing.T) *badger.DB {
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func Test_User_Save_And_Get(t *testing.T) {
	req := require.New(t)
	repository := NewUserRepository(openDB(t))

	// Given a user seen for the first time
	user := chat.User{ID: "u1", DisplayName: "Alice", Verified: true, UpdatedAt: time.Now().UTC()}

	// When it is saved then set online
	req.NoError(repository.SaveUser(user))
	user.Online = true
	req.NoError(repository.SaveUser(user))

	// Then the latest version is read back
	fetched, err := repository.GetUser("u1")
	req.NoError(err)
	req.Equal(user, fetched)

	users, err := repository.ListUsers()
	req.NoError(err)
	req.Len(users, 1)

	_, err = repository.GetUser("unknown")
	req.ErrorIs(err, errors.ErrNotFound)
}

func Test_Channel_Public_Name_Is_Unique(t *testing.T) {
	req := require.New(t)
	repository := NewChannelRepository(openDB(t))
	now := time.Now().UTC()

	// Given a public channel named general
	general := chat.Channel{ID: "c1", Name: "general", Visibility: chat.Public, CreatorID: "u1", CreatedAt: now}
	req.NoError(repository.CreateChannel(general))

	// When another public channel takes the same name
	err := repository.CreateChannel(chat.Channel{ID: "c2", Name: "general", Visibility: chat.Public, CreatorID: "u2", CreatedAt: now})

	// Then it is refused and nothing is stored
	req.ErrorIs(err, errors.ErrDuplicateName)

	// And private channels may still share the name
	private := chat.Channel{ID: "c3", Name: "general", Visibility: chat.Private, Members: []chat.UserID{"u1"}, CreatorID: "u1", CreatedAt: now}
	req.NoError(repository.CreateChannel(private))
	req.NoError(repository.CreateChannel(chat.Channel{ID: "c4", Name: "general", Visibility: chat.Private, Members: []chat.UserID{"u2"}, CreatorID: "u2", CreatedAt: now}))

	channels, err := repository.ListChannels()
	req.NoError(err)
	req.Len(channels, 3)
	req.Equal(general, channels[0])
	req.Equal(private, channels[1])
}

func Test_Channel_Save_Members(t *testing.T) {
	req := require.New(t)
	repository := NewChannelRepository(openDB(t))

	// Given a private channel
	ops := chat.Channel{ID: "c1", Name: "ops", Visibility: chat.Private, Members: []chat.UserID{"u1"}, CreatorID: "u1", CreatedAt: time.Now().UTC()}
	req.NoError(repository.CreateChannel(ops))

	// When a member is added
	ops = ops.WithMember("u2")
	req.NoError(repository.SaveChannel(ops))

	// Then the stored channel lists both members
	channels, err := repository.ListChannels()
	req.NoError(err)
	req.Equal([]chat.UserID{"u1", "u2"}, channels[0].Members)

	req.ErrorIs(repository.SaveChannel(chat.Channel{ID: "missing"}), errors.ErrNotFound)
}

func Test_Conversation_Pair_Is_Unique(t *testing.T) {
	req := require.New(t)
	repository := NewConversationRepository(openDB(t))
	now := time.Now().UTC()

	// Given a conversation between u1 and u2
	first := chat.Conversation{ID: "d1", Participants: chat.Pair("u2", "u1"), CreatedAt: now}
	stored, created, err := repository.CreateConversation(first)
	req.NoError(err)
	req.True(created)
	req.Equal(first, stored)

	// When the same pair is created again
	stored, created, err = repository.CreateConversation(chat.Conversation{ID: "d2", Participants: chat.Pair("u1", "u2"), CreatedAt: now.Add(time.Second)})

	// Then the existing conversation is returned
	req.NoError(err)
	req.False(created)
	req.Equal(first, stored)

	// And only one is listed
	conversations, err := repository.ListConversations()
	req.NoError(err)
	req.Equal([]chat.Conversation{first}, conversations)
}

func Test_Record_Multiple_Message(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openDB(t), slog.Default(), nil)
	scope := chat.ChannelScope("general")
	other := chat.ChannelScope("general-2")
	at := time.Now().UTC()

	// Given three messages in a scope and one in a scope sharing its prefix
	messages := lo.Map([]string{"Alice", "Bob", "Clara"}, func(author string, i int) chat.Message {
		return chat.Message{
			ID:         uuid.New(),
			Scope:      scope,
			Seq:        uint64(i + 1),
			AuthorID:   chat.UserID(author),
			AuthorName: author,
			Text:       fmt.Sprintf("message %d", i+1),
			Lang:       "en",
			CreatedAt:  at.Add(time.Duration(i) * time.Minute),
		}
	})
	for _, m := range messages {
		req.NoError(repository.StoreMessage(m))
	}
	req.NoError(repository.StoreMessage(chat.Message{ID: uuid.New(), Scope: other, Seq: 1, Text: "elsewhere", CreatedAt: at}))

	// When reading the scope
	fetched, err := repository.GetMessages(scope, 0, 10)

	// Then messages come back oldest first, without the other scope
	req.NoError(err)
	req.Equal(messages, fetched)

	last, err := repository.LastMessage(scope)
	req.NoError(err)
	req.Equal(messages[2], *last)

	none, err := repository.LastMessage(chat.ChannelScope("empty"))
	req.NoError(err)
	req.Nil(none)

	// And a position is never overwritten
	req.Error(repository.StoreMessage(messages[0]))
}

func Test_Record_Multiple_Message_And_Limit(t *testing.T) {
	req := require.New(t)
	limit := 2
	repository := NewMessageRepository(openDB(t), slog.Default(), &limit)
	scope := chat.ConversationScope("d1")
	at := time.Now().UTC()

	for i := 1; i <= 5; i++ {
		req.NoError(repository.StoreMessage(chat.Message{
			ID: uuid.New(), Scope: scope, Seq: uint64(i), AuthorID: "u1", Text: fmt.Sprintf("m%d", i), CreatedAt: at.Add(time.Duration(i)),
		}))
	}

	// When more than the configured maximum is requested
	fetched, err := repository.GetMessages(scope, 0, 10)
	req.NoError(err)
	req.Equal([]string{"m4", "m5"}, lo.Map(fetched, func(m chat.Message, _ int) string { return m.Text }))

	// Then paging before a position continues backwards
	page, err := repository.GetMessages(scope, 4, 2)
	req.NoError(err)
	req.Equal([]uint64{2, 3}, lo.Map(page, func(m chat.Message, _ int) uint64 { return m.Seq }))

	page, err = repository.GetMessages(scope, 1, 2)
	req.NoError(err)
	req.Empty(page)
}

func Test_Conversation_Message_Stored_With_Last_Message(t *testing.T) {
	req := require.New(t)
	db := openDB(t)
	conversations := NewConversationRepository(db)
	messages := NewMessageRepository(db, slog.Default(), nil)
	now := time.Now().UTC()

	// Given a conversation
	conversation := chat.Conversation{ID: "d1", Participants: chat.Pair("u1", "u2"), CreatedAt: now}
	_, _, err := conversations.CreateConversation(conversation)
	req.NoError(err)

	// When a message is stored with the moved pointer
	message := chat.Message{ID: uuid.New(), Scope: chat.ConversationScope("d1"), Seq: 1, AuthorID: "u1", Text: "hey", CreatedAt: now.Add(time.Second)}
	conversation.LastMessage = &chat.LastMessage{Text: "hey", At: message.CreatedAt}
	req.NoError(messages.StoreConversationMessage(message, conversation))

	// Then both are on disk
	stored, err := messages.GetMessages(message.Scope, 0, 10)
	req.NoError(err)
	req.Equal([]chat.Message{message}, stored)
	listed, err := conversations.ListConversations()
	req.NoError(err)
	req.Equal([]chat.Conversation{conversation}, listed)

	// When the position is already taken
	again := message
	again.ID = uuid.New()
	moved := conversation
	moved.LastMessage = &chat.LastMessage{Text: "again", At: now.Add(time.Minute)}
	req.Error(messages.StoreConversationMessage(again, moved))

	// Then the pointer did not move either
	listed, err = conversations.ListConversations()
	req.NoError(err)
	req.Equal([]chat.Conversation{conversation}, listed)

	// And an unknown conversation stores nothing
	ghost := chat.Message{ID: uuid.New(), Scope: chat.ConversationScope("d9"), Seq: 1, AuthorID: "u1", Text: "lost", CreatedAt: now}
	err = messages.StoreConversationMessage(ghost, chat.Conversation{ID: "d9", Participants: chat.Pair("u1", "u3"), CreatedAt: now})
	req.ErrorIs(err, errors.ErrNotFound)
	last, err := messages.LastMessage(ghost.Scope)
	req.NoError(err)
	req.Nil(last)
}
