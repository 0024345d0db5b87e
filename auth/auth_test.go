package auth

import (
	"chat-core/domain/chat"
	"chat-core/errors"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

var alice = chat.Identity{UserID: "alice", DisplayName: "Alice", Verified: true}

func TestValidateToken(t *testing.T) {
	req := require.New(t)
	verifier := NewVerifier([]byte("a-long-enough-test-secret"), "identity")

	// Given a token issued for alice
	token, err := verifier.GenerateToken(alice, time.Minute)
	req.NoError(err)

	// When it is validated
	identity, err := verifier.ValidateToken(token)

	// Then alice is recognized
	req.NoError(err)
	req.Equal(alice, identity)
}

func TestValidateToken_Rejections(t *testing.T) {
	verifier := NewVerifier([]byte("a-long-enough-test-secret"), "identity")
	other := NewVerifier([]byte("another-secret"), "identity")
	foreign := NewVerifier([]byte("a-long-enough-test-secret"), "somebody-else")

	expired, err := verifier.GenerateToken(alice, -time.Minute)
	require.NoError(t, err)
	wrongKey, err := other.GenerateToken(alice, time.Minute)
	require.NoError(t, err)
	wrongIssuer, err := foreign.GenerateToken(alice, time.Minute)
	require.NoError(t, err)
	noSubject, err := verifier.GenerateToken(chat.Identity{DisplayName: "nobody"}, time.Minute)
	require.NoError(t, err)
	controlName, err := verifier.GenerateToken(chat.Identity{UserID: "bob", DisplayName: "bo\x00b"}, time.Minute)
	require.NoError(t, err)
	reserved, err := verifier.GenerateToken(chat.Identity{UserID: chat.AssistantID, DisplayName: "Impostor"}, time.Minute)
	require.NoError(t, err)
	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "alice"}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"expired", expired},
		{"wrong key", wrongKey},
		{"wrong issuer", wrongIssuer},
		{"missing subject", noSubject},
		{"control characters", controlName},
		{"reserved assistant subject", reserved},
		{"unsigned", none},
		{"garbage", "not-a-token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := verifier.ValidateToken(tt.token)
			require.ErrorIs(t, err, errors.ErrInvalidToken)
		})
	}
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	verifier := NewVerifier([]byte("a-long-enough-test-secret"), "")
	token, err := verifier.GenerateToken(alice, time.Minute)
	require.NoError(t, err)

	authenticator := AuthenticatorFunc(func(_ context.Context, token string) (chat.User, error) {
		identity, err := verifier.ValidateToken(token)
		return chat.User{ID: identity.UserID, DisplayName: identity.DisplayName}, err
	})

	router := gin.New()
	router.GET("/me", Middleware(authenticator), func(c *gin.Context) {
		user, ok := UserFrom(c)
		require.True(t, ok)
		c.String(http.StatusOK, string(user.ID))
	})

	tests := []struct {
		name   string
		target string
		header string
		status int
	}{
		{"bearer header", "/me", "Bearer " + token, http.StatusOK},
		{"query parameter", "/me?access_token=" + token, "", http.StatusOK},
		{"missing", "/me", "", http.StatusUnauthorized},
		{"invalid", "/me", "Bearer nope", http.StatusUnauthorized},
		{"other scheme", "/me", "Basic " + token, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			request := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.header != "" {
				request.Header.Set("Authorization", tt.header)
			}
			recorder := httptest.NewRecorder()

			router.ServeHTTP(recorder, request)

			req.Equal(tt.status, recorder.Code)
			if tt.status == http.StatusOK {
				req.True(strings.Contains(recorder.Body.String(), "alice"))
			}
		})
	}
}
