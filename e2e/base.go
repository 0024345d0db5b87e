package e2e

import (
	"bytes"
	"chat-core/auth"
	"chat-core/client"
	"chat-core/domain/chat"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gookit/color"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/suite"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
)

type BaseSuite struct {
	suite.Suite
	Config   Config
	verifier *auth.Verifier
}

// SetupSuite loads the environment configuration before running tests
func (s *BaseSuite) SetupSuite() {
	var err error
	s.Config, err = LoadConfig()
	s.Require().NoError(err)
	if s.Config.ChatURL == "" {
		s.T().Skip("CHAT_URL not set, no chat to test against")
	}
	s.verifier = auth.NewVerifier([]byte(s.Config.JwtSecret), s.Config.JwtIssuer)
}

// step prints a colorized header for a test step in logs
func (s *BaseSuite) step(t *testing.T, name string) {
	header := fmt.Sprintf("  ====== %s ======", name)
	if s.Config.Colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	t.Log(header)
}

func (s *BaseSuite) Token(id chat.UserID, name string) string {
	token, err := s.verifier.GenerateToken(chat.Identity{UserID: id, DisplayName: name, Verified: true}, time.Hour)
	s.Require().NoError(err)
	return token
}

// Call runs one REST request and decodes a successful answer into out.
func (s *BaseSuite) Call(method, path, token string, body, out any) int {
	t := s.T()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		s.Require().NoError(err)
	}
	request, err := http.NewRequest(method, s.Config.ChatURL+path, bytes.NewReader(payload))
	s.Require().NoError(err)
	request.Header.Set("Authorization", "Bearer "+token)
	request.Header.Set("Content-Type", "application/json")

	start := time.Now()
	response, err := http.DefaultClient.Do(request)
	s.Require().NoError(err)
	defer func() { _ = response.Body.Close() }()
	answer, err := io.ReadAll(response.Body)
	s.Require().NoError(err)

	logBuilder := strings.Builder{}
	fmt.Fprintf(&logBuilder, "HTTP %s %s [%d] in %v", method, path, response.StatusCode, time.Since(start))
	if s.Config.DebugJSON {
		fmt.Fprintf(&logBuilder, "\nREQUEST: %s\nRESPONSE: %s", payload, answer)
	}
	t.Log(logBuilder.String())

	if out != nil && response.StatusCode < 300 {
		s.Require().NoError(json.Unmarshal(answer, out))
	}
	return response.StatusCode
}

// WithSession provides a websocket session within a contextual test step
func (s *BaseSuite) WithSession(name, token string, fn func(ctx context.Context, c *client.Client)) {
	s.step(s.T(), name)
	url := "ws" + strings.TrimPrefix(s.Config.ChatURL, "http") + "/ws"
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	c, err := client.Dial(ctx, url, token, logs.GetLoggerFromLevel(slog.LevelWarn))
	s.Require().NoError(err, "Failed to open a session on "+url)
	defer func() { _ = c.Close() }()
	fn(ctx, c)
}

// GrpcConn opens a connection to the health endpoint, logging every call
func (s *BaseSuite) GrpcConn(name string) *grpc.ClientConn {
	t := s.T()
	s.step(t, name)
	conn, err := grpc.NewClient(s.Config.GrpcAddr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
			start := time.Now()
			err := invoker(ctx, method, req, reply, cc, opts...)
			t.Logf("GRPC %s [%s] in %v", method, status.Code(err), time.Since(start))
			return err
		}),
	)
	s.Require().NoError(err, "Failed to connect to gRPC server at "+s.Config.GrpcAddr)
	return conn
}
