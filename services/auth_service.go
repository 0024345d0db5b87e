package services

import (
	"chat-core/auth"
	"chat-core/contract"
	"chat-core/domain/chat"
	"context"
)

type IAuthService interface {
	Authenticate(ctx context.Context, token string) (chat.User, error)
}

// AuthService trusts the identity provider: a valid token is enough, and the
// user behind it is created or refreshed on every authenticated contact.
type AuthService struct {
	verifier *auth.Verifier
	store    contract.IdentityStore
}

func NewAuthService(verifier *auth.Verifier, store contract.IdentityStore) IAuthService {
	return &AuthService{verifier: verifier, store: store}
}

func (s *AuthService) Authenticate(ctx context.Context, token string) (chat.User, error) {
	identity, err := s.verifier.ValidateToken(token)
	if err != nil {
		return chat.User{}, err
	}
	return s.store.UpsertUser(ctx, identity)
}
