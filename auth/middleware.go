package auth

import (
	"chat-core/domain/chat"
	"chat-core/errors"
	"chat-core/protocol"
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const userKey = "user"

// Authenticator turns a bearer token into the user it belongs to.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (chat.User, error)
}

type AuthenticatorFunc func(ctx context.Context, token string) (chat.User, error)

func (f AuthenticatorFunc) Authenticate(ctx context.Context, token string) (chat.User, error) {
	return f(ctx, token)
}

// Middleware rejects requests without a valid bearer token and stores the
// user for the handlers. Websocket clients that cannot set headers may
// pass the token as the access_token query parameter.
func Middleware(authenticator Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearer(c.GetHeader("Authorization"))
		if token == "" {
			token = c.Query("access_token")
		}
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, protocol.ErrorResponse{Error: "authorization token missing"})
			return
		}
		user, err := authenticator.Authenticate(c.Request.Context(), token)
		if err != nil {
			c.AbortWithStatusJSON(errors.MapToHTTPStatus(err), protocol.ErrorResponse{Error: err.Error()})
			return
		}
		c.Set(userKey, user)
		c.Next()
	}
}

// UserFrom returns the user stored by Middleware.
func UserFrom(c *gin.Context) (chat.User, bool) {
	value, ok := c.Get(userKey)
	if !ok {
		return chat.User{}, false
	}
	user, ok := value.(chat.User)
	return user, ok
}

func bearer(header string) string {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
