package auth

import (
	"chat-core/domain/chat"
	"chat-core/errors"
	"fmt"
	"unicode"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

type identityClaims struct {
	Subject string `validate:"required,max=128"`
	Name    string `validate:"max=100"`
}

func validateClaims(claims *Claims) error {
	identity := identityClaims{Subject: claims.Subject, Name: claims.Name}
	if err := validate.Struct(identity); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrInvalidToken, err)
	}
	if chat.UserID(identity.Subject) == chat.AssistantID {
		return fmt.Errorf("%w: subject %s is reserved", errors.ErrInvalidToken, identity.Subject)
	}
	if !isPrintable(identity.Subject) || !isPrintable(identity.Name) {
		return fmt.Errorf("%w: control characters in claims", errors.ErrInvalidToken)
	}
	return nil
}

func isPrintable(s string) bool {
	for _, char := range s {
		if unicode.IsControl(char) {
			return false
		}
	}
	return true
}
