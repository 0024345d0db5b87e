package chat

import (
	"chat-core/errors"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestValidate_CreateChannelCommand(t *testing.T) {
	tests := []struct {
		name    string
		cmd     CreateChannelCommand
		wantErr bool
	}{
		{"Valid public channel", CreateChannelCommand{"general", "", Public, "alice"}, false},
		{"Valid private channel", CreateChannelCommand{"ops", "on call", Private, "alice"}, false},
		{"Missing name", CreateChannelCommand{"", "", Public, "alice"}, true},
		{"Name too long", CreateChannelCommand{strings.Repeat("a", 81), "", Public, "alice"}, true},
		{"Unknown visibility", CreateChannelCommand{"general", "", "secret", "alice"}, true},
		{"Missing creator", CreateChannelCommand{"general", "", Public, ""}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			err := Validate(tt.cmd)
			if tt.wantErr {
				req.ErrorIs(err, errors.ErrInvalidPayload)
			} else {
				req.NoError(err)
			}
		})
	}
}

func TestParseScope(t *testing.T) {
	req := require.New(t)

	scope, err := ParseScope("channel:general")
	req.NoError(err)
	req.Equal(ChannelScope("general"), scope)
	req.Equal("channel:general", scope.String())

	scope, err = ParseScope("conversation:abc")
	req.NoError(err)
	req.True(scope.IsConversation())

	_, err = ParseScope("room:1")
	req.Error(err)
	_, err = ParseScope("channel:")
	req.Error(err)
}

func TestChannel_Members_Stay_Sorted(t *testing.T) {
	req := require.New(t)
	channel := Channel{ID: "ops", Visibility: Private, Members: []UserID{"bob"}}

	// When members are added out of order
	channel = channel.WithMember("carol").WithMember("alice").WithMember("bob")

	// Then the set is sorted without duplicates
	req.Equal([]UserID{"alice", "bob", "carol"}, channel.Members)
	req.True(channel.HasMember("alice"))

	channel = channel.WithoutMember("bob")
	req.Equal([]UserID{"alice", "carol"}, channel.Members)
	req.False(channel.HasMember("bob"))
}

func TestCompareConversations_Without_Message_Sort_Last(t *testing.T) {
	req := require.New(t)
	now := time.Now()
	quiet := Conversation{ID: "c1", CreatedAt: now.Add(time.Hour)}
	older := Conversation{ID: "c2", CreatedAt: now, LastMessage: &LastMessage{Text: "hi", At: now}}
	newer := Conversation{ID: "c3", CreatedAt: now, LastMessage: &LastMessage{Text: "hey", At: now.Add(time.Minute)}}

	list := []Conversation{quiet, older, newer}
	slices.SortFunc(list, CompareConversations)

	req.Equal([]ConversationID{"c3", "c2", "c1"}, []ConversationID{list[0].ID, list[1].ID, list[2].ID})
}
