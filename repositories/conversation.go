//go:generate go run go.uber.org/mock/mockgen -source=conversation.go -destination=../mocks/mock_conversation_repository.go -package=mocks
package repositories

import (
	"chat-core/domain/chat"
	"chat-core/errors"
	stderrors "errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

type IConversationRepository interface {
	CreateConversation(conversation chat.Conversation) (chat.Conversation, bool, error)
	ListConversations() ([]chat.Conversation, error)
}

type ConversationRepository struct {
	db *badger.DB
}

func NewConversationRepository(db *badger.DB) *ConversationRepository {
	return &ConversationRepository{db: db}
}

const conversationPrefix = "conversation:"

func conversationKey(id chat.ConversationID) []byte {
	return []byte(conversationPrefix + string(id))
}

// The length prefix keeps ids containing ':' from colliding.
func conversationPairKey(pair [2]chat.UserID) []byte {
	return []byte(fmt.Sprintf("conversation-pair:%d:%s:%s", len(pair[0]), pair[0], pair[1]))
}

// CreateConversation stores the conversation unless its participant pair already
// has one, in which case the existing conversation is returned with created=false.
func (c ConversationRepository) CreateConversation(conversation chat.Conversation) (chat.Conversation, bool, error) {
	data, err := marshalRecord(fromConversation(conversation))
	if err != nil {
		return chat.Conversation{}, false, err
	}
	existing := conversation
	created := false
	err = c.db.Update(func(txn *badger.Txn) error {
		pairKey := conversationPairKey(conversation.Participants)
		item, err := txn.Get(pairKey)
		switch {
		case err == nil:
			id, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			existing, err = getConversation(txn, chat.ConversationID(id))
			return err
		case !stderrors.Is(err, badger.ErrKeyNotFound):
			return err
		}
		if err = txn.Set(pairKey, []byte(conversation.ID)); err != nil {
			return err
		}
		created = true
		return txn.Set(conversationKey(conversation.ID), data)
	})
	if err != nil {
		return chat.Conversation{}, false, err
	}
	return existing, created, nil
}

func (c ConversationRepository) ListConversations() ([]chat.Conversation, error) {
	var conversations []chat.Conversation
	err := c.db.View(func(txn *badger.Txn) error {
		prefix := []byte(conversationPrefix)
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				r, err := unmarshalRecord(val)
				if err != nil {
					return err
				}
				conversation, err := toConversation(r)
				if err != nil {
					return err
				}
				conversations = append(conversations, conversation)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return conversations, err
}

func getConversation(txn *badger.Txn, id chat.ConversationID) (chat.Conversation, error) {
	item, err := txn.Get(conversationKey(id))
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return chat.Conversation{}, fmt.Errorf("%w: conversation %s", errors.ErrNotFound, id)
	}
	if err != nil {
		return chat.Conversation{}, err
	}
	var conversation chat.Conversation
	err = item.Value(func(val []byte) error {
		r, err := unmarshalRecord(val)
		if err != nil {
			return err
		}
		conversation, err = toConversation(r)
		return err
	})
	return conversation, err
}

func fromConversation(conversation chat.Conversation) record {
	r := record{
		"id":           string(conversation.ID),
		"participants": listValue(conversation.Participants[:]),
		"created_at":   timeValue(conversation.CreatedAt),
	}
	if last := conversation.LastMessage; last != nil {
		r["last_message"] = last.Text
		r["last_message_at"] = timeValue(last.At)
	}
	return r
}

func toConversation(r record) (chat.Conversation, error) {
	createdAt, err := r.time("created_at")
	if err != nil {
		return chat.Conversation{}, err
	}
	participants := r.strings("participants")
	if len(participants) != 2 {
		return chat.Conversation{}, fmt.Errorf("conversation %s has %d participants", r.str("id"), len(participants))
	}
	conversation := chat.Conversation{
		ID:           chat.ConversationID(r.str("id")),
		Participants: [2]chat.UserID{chat.UserID(participants[0]), chat.UserID(participants[1])},
		CreatedAt:    createdAt,
	}
	if _, ok := r["last_message_at"]; ok {
		at, err := r.time("last_message_at")
		if err != nil {
			return chat.Conversation{}, err
		}
		conversation.LastMessage = &chat.LastMessage{Text: r.str("last_message"), At: at}
	}
	return conversation, nil
}
