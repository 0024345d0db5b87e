//go:generate go run go.uber.org/mock/mockgen -source=user.go -destination=../mocks/mock_user_repository.go -package=mocks
package repositories

import (
	"chat-core/domain/chat"
	"chat-core/errors"
	stderrors "errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

type IUserRepository interface {
	SaveUser(user chat.User) error
	GetUser(id chat.UserID) (chat.User, error)
	ListUsers() ([]chat.User, error)
}

type UserRepository struct {
	db *badger.DB
}

func NewUserRepository(db *badger.DB) *UserRepository {
	return &UserRepository{db: db}
}

const userPrefix = "user:"

func userKey(id chat.UserID) []byte {
	return []byte(userPrefix + string(id))
}

// SaveUser creates or replaces the user record.
func (u UserRepository) SaveUser(user chat.User) error {
	data, err := marshalRecord(fromUser(user))
	if err != nil {
		return err
	}
	return u.db.Update(func(txn *badger.Txn) error {
		return txn.Set(userKey(user.ID), data)
	})
}

// GetUser returns ErrNotFound when the user never made contact.
func (u UserRepository) GetUser(id chat.UserID) (chat.User, error) {
	var r record
	err := u.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(userKey(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			r, err = unmarshalRecord(val)
			return err
		})
	})
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return chat.User{}, fmt.Errorf("%w: user %s", errors.ErrNotFound, id)
	}
	if err != nil {
		return chat.User{}, err
	}
	return toUser(r)
}

func (u UserRepository) ListUsers() ([]chat.User, error) {
	var users []chat.User
	err := u.db.View(func(txn *badger.Txn) error {
		prefix := []byte(userPrefix)
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				r, err := unmarshalRecord(val)
				if err != nil {
					return err
				}
				user, err := toUser(r)
				if err != nil {
					return err
				}
				users = append(users, user)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return users, err
}

func fromUser(user chat.User) record {
	return record{
		"id":           string(user.ID),
		"display_name": user.DisplayName,
		"verified":     user.Verified,
		"online":       user.Online,
		"updated_at":   timeValue(user.UpdatedAt),
	}
}

func toUser(r record) (chat.User, error) {
	updatedAt, err := r.time("updated_at")
	if err != nil {
		return chat.User{}, err
	}
	return chat.User{
		ID:          chat.UserID(r.str("id")),
		DisplayName: r.str("display_name"),
		Verified:    r.boolean("verified"),
		Online:      r.boolean("online"),
		UpdatedAt:   updatedAt,
	}, nil
}
