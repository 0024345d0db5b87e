//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"chat-core/domain/chat"
	"chat-core/domain/event"
	"context"
	"reflect"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

type WorkerName string

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker,
// for logging during supervision.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// EventSink consumes committed domain events for side effects.
type EventSink interface {
	Consume(ctx context.Context, e event.DomainEvent) error
}

// Responder produces the assistant's reply to a conversation.
// history is oldest first and ends with the message to answer.
type Responder interface {
	Respond(ctx context.Context, history []chat.Message) (string, error)
}

// MessagePoster is the write path background workers speak through.
type MessagePoster interface {
	PostMessage(ctx context.Context, cmd chat.PostMessageCommand) (chat.Message, error)
	ReadRecent(ctx context.Context, userID chat.UserID, scope chat.Scope, limit int) ([]chat.Message, error)
	IsVisible(userID chat.UserID, scope chat.Scope) bool
}

// IdentityStore records the users the identity provider vouches for.
type IdentityStore interface {
	UpsertUser(ctx context.Context, identity chat.Identity) (chat.User, error)
}
