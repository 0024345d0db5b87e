//go:generate go run go.uber.org/mock/mockgen -source=message.go -destination=../mocks/mock_message_repository.go -package=mocks
package repositories

import (
	"chat-core/domain/chat"
	"chat-core/errors"
	stderrors "errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

type IMessageRepository interface {
	StoreMessage(message chat.Message) error
	StoreConversationMessage(message chat.Message, conversation chat.Conversation) error
	LastMessage(scope chat.Scope) (*chat.Message, error)
	GetMessages(scope chat.Scope, before uint64, limit int) ([]chat.Message, error)
}

type MessageRepository struct {
	db            *badger.DB
	log           *slog.Logger
	limitMessages *int
}

func NewMessageRepository(db *badger.DB, log *slog.Logger, limitMessages *int) *MessageRepository {
	return &MessageRepository{db: db, log: log, limitMessages: limitMessages}
}

func messagePrefix(scope chat.Scope) []byte {
	return []byte(fmt.Sprintf("msg:%s:", scope))
}

// messageKey is formatted as "msg:{scope}:{seq_padded}". The 20-digit zero
// padding covers the whole uint64 range, so lexicographical order is commit order.
func messageKey(scope chat.Scope, seq uint64) []byte {
	return []byte(fmt.Sprintf("msg:%s:%020d", scope, seq))
}

// StoreMessage persists a message at its commit position.
// A position is written once; storing over it is refused.
func (m MessageRepository) StoreMessage(message chat.Message) error {
	data, err := marshalRecord(fromMessage(message))
	if err != nil {
		return err
	}
	key := messageKey(message.Scope, message.Seq)
	return m.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		if err == nil {
			return fmt.Errorf("message %s:%d already stored", message.Scope, message.Seq)
		}
		if !stderrors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.Set(key, data)
	})
}

// StoreConversationMessage persists a conversation message and the conversation
// carrying its last-message pointer in the same transaction.
func (m MessageRepository) StoreConversationMessage(message chat.Message, conversation chat.Conversation) error {
	data, err := marshalRecord(fromMessage(message))
	if err != nil {
		return err
	}
	conversationData, err := marshalRecord(fromConversation(conversation))
	if err != nil {
		return err
	}
	key := messageKey(message.Scope, message.Seq)
	return m.db.Update(func(txn *badger.Txn) error {
		if _, err := getConversation(txn, conversation.ID); err != nil {
			return err
		}
		_, err := txn.Get(key)
		if err == nil {
			return fmt.Errorf("message %s:%d already stored", message.Scope, message.Seq)
		}
		if !stderrors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err := txn.Set(key, data); err != nil {
			return err
		}
		return txn.Set(conversationKey(conversation.ID), conversationData)
	})
}

// LastMessage returns the head of the scope, nil when nothing was ever appended.
func (m MessageRepository) LastMessage(scope chat.Scope) (*chat.Message, error) {
	messages, err := m.scan(scope, 0, 1)
	if err != nil || len(messages) == 0 {
		return nil, err
	}
	return &messages[0], nil
}

// GetMessages returns at most limit messages with a position strictly below
// before (0 means from the head), oldest first.
// The reverse scan stops once limit, or the configured limitMessages, is reached.
func (m MessageRepository) GetMessages(scope chat.Scope, before uint64, limit int) ([]chat.Message, error) {
	if m.limitMessages != nil && (limit <= 0 || limit > *m.limitMessages) {
		m.log.Debug(fmt.Sprintf("Maximum of %d message reached", *m.limitMessages))
		limit = *m.limitMessages
	}
	messages, err := m.scan(scope, before, limit)
	if err != nil {
		return nil, err
	}
	slices.Reverse(messages)
	return messages, nil
}

// scan walks the scope backwards from before, newest first.
func (m MessageRepository) scan(scope chat.Scope, before uint64, limit int) ([]chat.Message, error) {
	var messages []chat.Message
	err := m.db.View(func(txn *badger.Txn) error {
		prefix := messagePrefix(scope)
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		options.Prefix = prefix
		it := txn.NewIterator(options)
		defer it.Close()

		var seekKey []byte
		switch before {
		case 0:
			// Past the last possible position, msg:{scope}:99999999999999999999
			seekKey = append(slices.Clone(prefix), []byte("99999999999999999999")...)
		default:
			seekKey = messageKey(scope, before-1)
		}

		for it.Seek(seekKey); it.ValidForPrefix(prefix); it.Next() {
			if limit > 0 && len(messages) == limit {
				break
			}
			err := it.Item().Value(func(val []byte) error {
				r, err := unmarshalRecord(val)
				if err != nil {
					return err
				}
				message, err := toMessage(r)
				if err != nil {
					return err
				}
				messages = append(messages, message)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return messages, err
}

func fromMessage(message chat.Message) record {
	return record{
		"id":          message.ID.String(),
		"scope":       message.Scope.String(),
		"seq":         uintValue(message.Seq),
		"author_id":   string(message.AuthorID),
		"author_name": message.AuthorName,
		"text":        message.Text,
		"lang":        message.Lang,
		"created_at":  timeValue(message.CreatedAt),
	}
}

func toMessage(r record) (chat.Message, error) {
	id, err := uuid.Parse(r.str("id"))
	if err != nil {
		return chat.Message{}, err
	}
	scope, err := chat.ParseScope(r.str("scope"))
	if err != nil {
		return chat.Message{}, fmt.Errorf("%w: %v", errors.ErrInvalidPayload, err)
	}
	seq, err := r.uint("seq")
	if err != nil {
		return chat.Message{}, err
	}
	createdAt, err := r.time("created_at")
	if err != nil {
		return chat.Message{}, err
	}
	return chat.Message{
		ID:         id,
		Scope:      scope,
		Seq:        seq,
		AuthorID:   chat.UserID(r.str("author_id")),
		AuthorName: r.str("author_name"),
		Text:       r.str("text"),
		Lang:       r.str("lang"),
		CreatedAt:  createdAt,
	}, nil
}
