package test

import (
	"chat-core/ai"
	"chat-core/domain/chat"
	"chat-core/domain/event"
	"chat-core/mocks"
	"chat-core/observability"
	"chat-core/runtime"
	"chat-core/runtime/workers"
	"chat-core/sink"
	"chat-core/storage"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func Test_Scenario_Assistant_Replies(t *testing.T) {
	ctx := context.Background()
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)

	disk, err := storage.Open(log, t.TempDir(), t.TempDir())
	req.NoError(err)

	monitoring := observability.NewMonitoringManager(log)
	orchestrator := runtime.NewOrchestrator(log, workers.NewSupervisor(log), runtime.NewRegistry(),
		disk.Repositories(lo.ToPtr(100)), monitoring, runtime.Options{
			SubscriptionBufferSize: 16,
			EventBufferSize:        64,
			RecentLimit:            50,
			SearchLimit:            5,
			MaxContentLength:       500,
			OperationTimeout:       time.Second,
			SinkTimeout:            500 * time.Millisecond,
			AssistantName:          "Jonathan",
		})
	req.NoError(orchestrator.Load())

	// 1. Every committed message reaches the extra sink
	posted := make(chan chat.Message, 4)
	ctrl := gomock.NewController(t)
	mockSink := mocks.NewMockEventSink(ctrl)
	mockSink.EXPECT().Consume(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, e event.DomainEvent) error {
			if evt, ok := e.(event.MessagePosted); ok {
				posted <- evt.Message
			}
			return nil
		}).AnyTimes()

	assistant := workers.NewAssistantWorker(log, orchestrator, ai.NewStaticResponder("I'm Jonathan, how can I help?"), 8, 20, time.Second)
	orchestrator.Add(assistant, sink.NewTelemetrySink(monitoring, log), mockSink)
	orchestrator.AddWorkers(assistant)

	runCtx, cancel := context.WithCancel(ctx)
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		_ = orchestrator.Start(runCtx)
	}()

	// Clean everything at the end of the test
	t.Cleanup(func() {
		cancel()
		<-stopped
		_ = disk.Close()
	})

	// Given a user talking to the assistant
	_, err = orchestrator.UpsertUser(ctx, chat.Identity{UserID: "alice", DisplayName: "Alice", Verified: true})
	req.NoError(err)
	conversation, err := orchestrator.CreateConversation(ctx, chat.CreateConversationCommand{UserID: "alice", PeerID: chat.AssistantID})
	req.NoError(err)
	scope := chat.ConversationScope(conversation.ID)

	feed, err := orchestrator.Subscribe(ctx, "alice", runtime.ScopeTopic(scope), 10)
	req.NoError(err)

	// When she asks something
	_, err = orchestrator.PostMessage(ctx, chat.PostMessageCommand{Scope: scope, AuthorID: "alice", Text: "Can you help me retire early?"})
	req.NoError(err)

	// Then her question and the reply arrive in order
	waitCtx, waitCancel := context.WithTimeout(ctx, 3*time.Second)
	defer waitCancel()
	first, err := feed.Next(waitCtx)
	req.NoError(err)
	req.Equal(chat.UserID("alice"), first.Message.AuthorID)
	second, err := feed.Next(waitCtx)
	req.NoError(err)
	req.Equal(chat.AssistantID, second.Message.AuthorID)
	req.Equal("Jonathan", second.Message.AuthorName)
	req.Equal(uint64(2), second.Seq)

	// And the sinks saw both commits
	for range 2 {
		select {
		case <-posted:
		case <-time.After(2 * time.Second):
			req.Fail("Timeout: message has never reached the sink")
		}
	}

	// And the conversation summary points to the reply
	conversations, err := orchestrator.ListConversations(ctx, "alice")
	req.NoError(err)
	req.Len(conversations, 1)
	req.NotNil(conversations[0].LastMessage)
	req.Equal("I'm Jonathan, how can I help?", conversations[0].LastMessage.Text)
	req.Eventually(func() bool { return monitoring.GetLatest().MessagesPosted == 2 },
		time.Second, 10*time.Millisecond)
}
