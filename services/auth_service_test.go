package services

import (
	"chat-core/auth"
	"chat-core/domain/chat"
	"chat-core/errors"
	"chat-core/mocks"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestAuthService_Authenticate(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	store := mocks.NewMockIdentityStore(ctrl)
	verifier := auth.NewVerifier([]byte("a-long-enough-test-secret"), "")
	svc := NewAuthService(verifier, store)
	alice := chat.Identity{UserID: "alice", DisplayName: "Alice", Verified: true}

	t.Run("should upsert the user behind a valid token", func(t *testing.T) {
		req := require.New(t)
		token, err := verifier.GenerateToken(alice, time.Minute)
		req.NoError(err)

		store.EXPECT().
			UpsertUser(gomock.Any(), alice).
			Return(chat.User{ID: "alice", DisplayName: "Alice", Verified: true}, nil).
			Times(1)

		user, err := svc.Authenticate(context.Background(), token)

		req.NoError(err)
		req.Equal(chat.UserID("alice"), user.ID)
	})

	t.Run("should not touch the store when the token is invalid", func(t *testing.T) {
		req := require.New(t)

		store.EXPECT().UpsertUser(gomock.Any(), gomock.Any()).Times(0)

		_, err := svc.Authenticate(context.Background(), "forged")

		req.ErrorIs(err, errors.ErrInvalidToken)
	})
}
