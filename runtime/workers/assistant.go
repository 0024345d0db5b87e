package workers

import (
	"chat-core/contract"
	"chat-core/domain/chat"
	"chat-core/domain/event"
	"chat-core/errors"
	"context"
	"log/slog"
	"strings"
	"time"
)

// AssistantWorker answers messages sent to the assistant.
// As a sink it picks, among committed messages, those written by a user in a
// conversation the assistant takes part in; as a worker it asks the responder
// for a reply and posts it in the same conversation as the assistant.
// Replies are asynchronous: the user's append never waits on the responder.
type AssistantWorker struct {
	log          *slog.Logger
	poster       contract.MessagePoster
	responder    contract.Responder
	pending      chan chat.Message
	historyLimit int
	timeout      time.Duration
}

func NewAssistantWorker(log *slog.Logger, poster contract.MessagePoster, responder contract.Responder,
	bufferSize, historyLimit int, timeout time.Duration) *AssistantWorker {
	return &AssistantWorker{
		log:          log,
		poster:       poster,
		responder:    responder,
		pending:      make(chan chat.Message, bufferSize),
		historyLimit: historyLimit,
		timeout:      timeout,
	}
}

// Pending exposes the queue of messages waiting for a reply.
func (w *AssistantWorker) Pending() chan chat.Message { return w.pending }

func (w *AssistantWorker) Consume(_ context.Context, e event.DomainEvent) error {
	evt, ok := e.(event.MessagePosted)
	if !ok {
		return nil
	}
	message := evt.Message
	if message.AuthorID == chat.AssistantID || !message.Scope.IsConversation() {
		return nil
	}
	if !w.poster.IsVisible(chat.AssistantID, message.Scope) {
		return nil
	}
	select {
	case w.pending <- message:
	default:
		w.log.Warn("Assistant queue full, message left unanswered", "scope", message.Scope, "seq", message.Seq)
	}
	return nil
}

func (w *AssistantWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping assistant")
			return nil
		case message := <-w.pending:
			if err := w.reply(ctx, message); err != nil {
				w.log.Warn("Assistant could not reply", "scope", message.Scope, "error", err)
			}
		}
	}
}

func (w *AssistantWorker) reply(ctx context.Context, message chat.Message) error {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	history, err := w.poster.ReadRecent(ctx, chat.AssistantID, message.Scope, w.historyLimit)
	if err != nil {
		return err
	}
	// The log may have moved on; answer up to the message that triggered us.
	for i, m := range history {
		if m.Seq == message.Seq {
			history = history[:i+1]
			break
		}
	}
	if len(history) == 0 {
		history = []chat.Message{message}
	}

	text, err := w.responder.Respond(ctx, history)
	if err != nil {
		return errors.FromContext(err)
	}
	if strings.TrimSpace(text) == "" {
		w.log.Debug("Assistant has nothing to say", "scope", message.Scope)
		return nil
	}
	posted, err := w.poster.PostMessage(ctx, chat.PostMessageCommand{
		Scope:    message.Scope,
		AuthorID: chat.AssistantID,
		Text:     text,
	})
	if err != nil {
		return err
	}
	w.log.Debug("Assistant replied", "scope", posted.Scope, "seq", posted.Seq)
	return nil
}
