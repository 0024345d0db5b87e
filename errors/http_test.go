package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMapToHTTPStatus(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{nil, http.StatusOK},
		{fmt.Errorf("%w: channel:x", ErrNotFound), http.StatusNotFound},
		{ErrForbidden, http.StatusForbidden},
		{ErrDuplicateName, http.StatusConflict},
		{ErrInvalidParticipants, http.StatusBadRequest},
		{ErrEmptyText, http.StatusBadRequest},
		{ErrInvalidToken, http.StatusUnauthorized},
		{FromContext(context.DeadlineExceeded), http.StatusGatewayTimeout},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		require.Equal(t, tt.status, MapToHTTPStatus(tt.err), "%v", tt.err)
	}
}

func TestFromContext_Keeps_Other_Errors(t *testing.T) {
	req := require.New(t)
	other := errors.New("boom")
	req.Equal(other, FromContext(other))
	req.ErrorIs(FromContext(context.Canceled), ErrTimeout)
	req.ErrorIs(FromContext(context.Canceled), context.Canceled)
}
