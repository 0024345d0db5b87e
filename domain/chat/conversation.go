package chat

import "time"

type ConversationID string

type LastMessage struct {
	Text string
	At   time.Time
}

func LastMessageOf(message Message) *LastMessage {
	return &LastMessage{Text: message.Text, At: message.CreatedAt}
}

// Conversation is a direct message thread between exactly two distinct users.
// Participants are stored in ascending order.
type Conversation struct {
	ID           ConversationID
	Participants [2]UserID
	CreatedAt    time.Time
	LastMessage  *LastMessage
}

// Pair returns the participants of a conversation between a and b in storage order.
func Pair(a, b UserID) [2]UserID {
	if b < a {
		return [2]UserID{b, a}
	}
	return [2]UserID{a, b}
}

func (c Conversation) HasParticipant(userID UserID) bool {
	return c.Participants[0] == userID || c.Participants[1] == userID
}

// Other returns the participant that is not userID.
func (c Conversation) Other(userID UserID) UserID {
	if c.Participants[0] == userID {
		return c.Participants[1]
	}
	return c.Participants[0]
}

// CompareConversations orders by most recent message first; conversations
// without messages come last, newest first, then by id.
func CompareConversations(a, b Conversation) int {
	switch {
	case a.LastMessage != nil && b.LastMessage == nil:
		return -1
	case a.LastMessage == nil && b.LastMessage != nil:
		return 1
	case a.LastMessage != nil && b.LastMessage != nil && !a.LastMessage.At.Equal(b.LastMessage.At):
		if a.LastMessage.At.After(b.LastMessage.At) {
			return -1
		}
		return 1
	case !a.CreatedAt.Equal(b.CreatedAt):
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	case a.ID < b.ID:
		return -1
	case a.ID > b.ID:
		return 1
	}
	return 0
}
