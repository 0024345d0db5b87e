package runtime

import (
	"chat-core/domain/chat"
	"chat-core/errors"
	"chat-core/repositories"
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/abadojack/whatlanggo"
	"github.com/google/uuid"
)

// Directory answers the membership questions an append depends on.
type Directory interface {
	ScopeExists(scope chat.Scope) bool
	IsVisible(userID chat.UserID, scope chat.Scope) bool
	User(id chat.UserID) (chat.User, error)
	Conversation(id chat.ConversationID) (chat.Conversation, error)
}

// scopeLog is the in-memory head of one scope. lock admits a single writer;
// it is a channel so that waiting for it can be abandoned with the context.
type scopeLog struct {
	lock   chan struct{}
	loaded atomic.Bool
	head   atomic.Uint64
	lastAt time.Time
}

// MessageLog is the append-only, per-scope ordered message store.
// Appends to one scope are serialized; scopes never wait on each other.
type MessageLog struct {
	mu         sync.Mutex
	scopes     map[chat.Scope]*scopeLog
	repository repositories.IMessageRepository
	directory  Directory
	now        func() time.Time
}

func NewMessageLog(repository repositories.IMessageRepository, directory Directory) *MessageLog {
	return &MessageLog{
		scopes:     make(map[chat.Scope]*scopeLog),
		repository: repository,
		directory:  directory,
		now:        time.Now,
	}
}

func (l *MessageLog) scope(scope chat.Scope) *scopeLog {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.scopes[scope]
	if !ok {
		s = &scopeLog{lock: make(chan struct{}, 1)}
		l.scopes[scope] = s
	}
	return s
}

// Lock waits for the scope's writer slot. The returned function releases it.
// A context ending while waiting reports ErrTimeout.
func (l *MessageLog) Lock(ctx context.Context, scope chat.Scope) (func(), error) {
	s := l.scope(scope)
	select {
	case s.lock <- struct{}{}:
	case <-ctx.Done():
		return nil, errors.FromContext(ctx.Err())
	}
	release := func() { <-s.lock }
	if err := l.loadHead(scope, s); err != nil {
		release()
		return nil, err
	}
	return release, nil
}

// loadHead reads the last committed position the first time a scope is written.
func (l *MessageLog) loadHead(scope chat.Scope, s *scopeLog) error {
	if s.loaded.Load() {
		return nil
	}
	last, err := l.repository.LastMessage(scope)
	if err != nil {
		return err
	}
	if last != nil {
		s.head.Store(last.Seq)
		s.lastAt = last.CreatedAt
	}
	s.loaded.Store(true)
	return nil
}

// Append commits text to scope as authorID and returns the committed message.
// The caller holds the scope lock. Blank text fails with ErrEmptyText, an
// unknown scope or author with ErrNotFound, an invisible scope with ErrForbidden.
// Position and timestamp are assigned here: positions are contiguous from 1 and
// timestamps strictly increase within the scope.
func (l *MessageLog) Append(scope chat.Scope, authorID chat.UserID, text string) (chat.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return chat.Message{}, errors.ErrEmptyText
	}
	if !l.directory.ScopeExists(scope) {
		return chat.Message{}, fmt.Errorf("%w: scope %s", errors.ErrNotFound, scope)
	}
	author, err := l.directory.User(authorID)
	if err != nil {
		return chat.Message{}, err
	}
	if !l.directory.IsVisible(authorID, scope) {
		return chat.Message{}, fmt.Errorf("%w: %s cannot write to %s", errors.ErrForbidden, authorID, scope)
	}

	s := l.scope(scope)
	createdAt := l.now().UTC()
	if !createdAt.After(s.lastAt) {
		createdAt = s.lastAt.Add(time.Nanosecond)
	}
	message := chat.Message{
		ID:         uuid.New(),
		Scope:      scope,
		Seq:        s.head.Load() + 1,
		AuthorID:   authorID,
		AuthorName: author.DisplayName,
		Text:       text,
		Lang:       detectLang(text),
		CreatedAt:  createdAt,
	}
	if err := l.store(message); err != nil {
		return chat.Message{}, err
	}
	s.lastAt = createdAt
	s.head.Store(message.Seq)
	return message, nil
}

// store writes a conversation message together with the conversation's
// moved last-message pointer, so neither exists on disk without the other.
func (l *MessageLog) store(message chat.Message) error {
	if !message.Scope.IsConversation() {
		return l.repository.StoreMessage(message)
	}
	conversation, err := l.directory.Conversation(chat.ConversationID(message.Scope.ID))
	if err != nil {
		return err
	}
	conversation.LastMessage = chat.LastMessageOf(message)
	return l.repository.StoreConversationMessage(message, conversation)
}

// Head is the position of the last committed message of the scope.
func (l *MessageLog) Head(ctx context.Context, scope chat.Scope) (uint64, error) {
	s := l.scope(scope)
	if !s.loaded.Load() {
		release, err := l.Lock(ctx, scope)
		if err != nil {
			return 0, err
		}
		release()
	}
	return s.head.Load(), nil
}

// ReadRecent returns at most limit of the latest messages, oldest first, and
// the head they end at. The head is read once, so appends racing with the
// read are not included. Safe to call while holding the scope lock.
func (l *MessageLog) ReadRecent(ctx context.Context, scope chat.Scope, limit int) ([]chat.Message, uint64, error) {
	head, err := l.Head(ctx, scope)
	if err != nil {
		return nil, 0, err
	}
	messages, err := l.History(scope, head+1, limit)
	return messages, head, err
}

// History returns at most limit messages strictly before position before, oldest first.
func (l *MessageLog) History(scope chat.Scope, before uint64, limit int) ([]chat.Message, error) {
	if limit <= 0 {
		return []chat.Message{}, nil
	}
	messages, err := l.repository.GetMessages(scope, before, limit)
	if err != nil {
		return nil, err
	}
	if messages == nil {
		messages = []chat.Message{}
	}
	return messages, nil
}

func detectLang(text string) string {
	info := whatlanggo.Detect(text)
	if !info.IsReliable() {
		return ""
	}
	return info.Lang.Iso6391()
}
