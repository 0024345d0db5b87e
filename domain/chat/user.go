package chat

import "time"

type UserID string

// AssistantID is the reserved author of every assistant reply.
const AssistantID UserID = "assistant"

// User is created on first authenticated contact and never deleted.
type User struct {
	ID          UserID
	DisplayName string
	Verified    bool
	Online      bool
	UpdatedAt   time.Time
}

// Identity is what the identity provider vouches for. It is trusted as is.
type Identity struct {
	UserID      UserID
	DisplayName string
	Verified    bool
}
