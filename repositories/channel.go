//go:generate go run go.uber.org/mock/mockgen -source=channel.go -destination=../mocks/mock_channel_repository.go -package=mocks
package repositories

import (
	"chat-core/domain/chat"
	"chat-core/errors"
	stderrors "errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/samber/lo"
)

type IChannelRepository interface {
	CreateChannel(channel chat.Channel) error
	SaveChannel(channel chat.Channel) error
	ListChannels() ([]chat.Channel, error)
}

type ChannelRepository struct {
	db *badger.DB
}

func NewChannelRepository(db *badger.DB) *ChannelRepository {
	return &ChannelRepository{db: db}
}

const channelPrefix = "channel:"

func channelKey(id chat.ChannelID) []byte {
	return []byte(channelPrefix + string(id))
}

// Only public channels reserve their name.
func channelNameKey(name string) []byte {
	return []byte("channel-name:" + name)
}

// CreateChannel persists a new channel. The public name reservation and the
// channel record are written in one transaction, so a collision leaves nothing behind.
func (c ChannelRepository) CreateChannel(channel chat.Channel) error {
	data, err := marshalRecord(fromChannel(channel))
	if err != nil {
		return err
	}
	return c.db.Update(func(txn *badger.Txn) error {
		if channel.IsPublic() {
			_, err := txn.Get(channelNameKey(channel.Name))
			if err == nil {
				return fmt.Errorf("%w: %s", errors.ErrDuplicateName, channel.Name)
			}
			if !stderrors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
			if err = txn.Set(channelNameKey(channel.Name), []byte(channel.ID)); err != nil {
				return err
			}
		}
		return txn.Set(channelKey(channel.ID), data)
	})
}

// SaveChannel rewrites an existing channel, typically after a membership change.
func (c ChannelRepository) SaveChannel(channel chat.Channel) error {
	data, err := marshalRecord(fromChannel(channel))
	if err != nil {
		return err
	}
	return c.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(channelKey(channel.ID)); err != nil {
			if stderrors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("%w: channel %s", errors.ErrNotFound, channel.ID)
			}
			return err
		}
		return txn.Set(channelKey(channel.ID), data)
	})
}

// ListChannels loads every channel, in key order.
func (c ChannelRepository) ListChannels() ([]chat.Channel, error) {
	var channels []chat.Channel
	err := c.db.View(func(txn *badger.Txn) error {
		prefix := []byte(channelPrefix)
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				r, err := unmarshalRecord(val)
				if err != nil {
					return err
				}
				channel, err := toChannel(r)
				if err != nil {
					return err
				}
				channels = append(channels, channel)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return channels, err
}

func fromChannel(channel chat.Channel) record {
	return record{
		"id":          string(channel.ID),
		"name":        channel.Name,
		"description": channel.Description,
		"visibility":  string(channel.Visibility),
		"members":     listValue(channel.Members),
		"creator_id":  string(channel.CreatorID),
		"created_at":  timeValue(channel.CreatedAt),
	}
}

func toChannel(r record) (chat.Channel, error) {
	createdAt, err := r.time("created_at")
	if err != nil {
		return chat.Channel{}, err
	}
	var members []chat.UserID
	if ids := r.strings("members"); len(ids) > 0 {
		members = lo.Map(ids, func(id string, _ int) chat.UserID { return chat.UserID(id) })
	}
	return chat.Channel{
		ID:          chat.ChannelID(r.str("id")),
		Name:        r.str("name"),
		Description: r.str("description"),
		Visibility:  chat.Visibility(r.str("visibility")),
		Members:     members,
		CreatorID:   chat.UserID(r.str("creator_id")),
		CreatedAt:   createdAt,
	}, nil
}
