package chat

import (
	"slices"
	"time"
)

type ChannelID string

type Visibility string

const (
	Public  Visibility = "public"
	Private Visibility = "private"
)

// Channel visibility never changes after creation.
// Members is kept sorted and is empty for public channels.
type Channel struct {
	ID          ChannelID
	Name        string
	Description string
	Visibility  Visibility
	Members     []UserID
	CreatorID   UserID
	CreatedAt   time.Time
}

func (c Channel) IsPublic() bool { return c.Visibility == Public }

func (c Channel) HasMember(userID UserID) bool {
	_, found := slices.BinarySearch(c.Members, userID)
	return found
}

// WithMember returns a copy of the channel including userID.
func (c Channel) WithMember(userID UserID) Channel {
	i, found := slices.BinarySearch(c.Members, userID)
	if found {
		return c
	}
	c.Members = slices.Insert(slices.Clone(c.Members), i, userID)
	return c
}

// WithoutMember returns a copy of the channel excluding userID.
func (c Channel) WithoutMember(userID UserID) Channel {
	i, found := slices.BinarySearch(c.Members, userID)
	if !found {
		return c
	}
	c.Members = slices.Delete(slices.Clone(c.Members), i, i+1)
	return c
}

// CompareChannels orders channels by name (byte-wise) then by id.
func CompareChannels(a, b Channel) int {
	switch {
	case a.Name < b.Name:
		return -1
	case a.Name > b.Name:
		return 1
	case a.ID < b.ID:
		return -1
	case a.ID > b.ID:
		return 1
	}
	return 0
}
