package chat

import (
	"chat-core/errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

type PostMessageCommand struct {
	Scope    Scope
	AuthorID UserID `validate:"required"`
	Text     string
}

type CreateChannelCommand struct {
	Name        string     `validate:"required,max=80"`
	Description string     `validate:"max=500"`
	Visibility  Visibility `validate:"required,oneof=public private"`
	CreatorID   UserID     `validate:"required"`
}

type CreateConversationCommand struct {
	UserID UserID `validate:"required"`
	PeerID UserID `validate:"required"`
}

// MembershipCommand adds or removes Member from a private channel on behalf of Actor.
type MembershipCommand struct {
	ChannelID ChannelID `validate:"required"`
	ActorID   UserID    `validate:"required"`
	MemberID  UserID    `validate:"required"`
}

// Validate checks the struct tags of a command and reports failures as ErrInvalidPayload.
func Validate(cmd any) error {
	if err := validate.Struct(cmd); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrInvalidPayload, err)
	}
	return nil
}
