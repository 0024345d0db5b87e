//go:generate go run go.uber.org/mock/mockgen -source=search.go -destination=../mocks/mock_search_repository.go -package=mocks
package repositories

import (
	"chat-core/domain/chat"
	"chat-core/domain/search"
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/blugelabs/bluge"
	blugesearch "github.com/blugelabs/bluge/search"
)

type ISearchRepository interface {
	IndexChannel(channel chat.Channel) error
	IndexMessage(message chat.Message) error
	Search(ctx context.Context, query search.Query, accept func(search.Hit) bool) ([]search.Hit, error)
}

const (
	kindField    = "kind"
	nameField    = "name"
	textField    = "text"
	atField      = "at"
	scopeField   = "scope"
	channelField = "channel_id"
	idField      = "_id"

	channelKind = "channel"
	messageKind = "message"
)

// SearchRepository keeps a bluge index of channel names and message texts.
// Both are indexed as keyword fields so prefix matching stays case-sensitive
// and exact on the raw value.
type SearchRepository struct {
	writer *bluge.Writer
	log    *slog.Logger
	// Candidates fetched per requested hit, so that visibility filtering
	// still leaves enough results.
	overFetch int
}

func NewSearchRepository(writer *bluge.Writer, log *slog.Logger) *SearchRepository {
	return &SearchRepository{writer: writer, log: log, overFetch: 20}
}

func (s SearchRepository) IndexChannel(channel chat.Channel) error {
	doc := bluge.NewDocument("channel:" + string(channel.ID)).
		AddField(bluge.NewKeywordField(kindField, channelKind)).
		AddField(bluge.NewKeywordField(nameField, channel.Name).StoreValue().Sortable()).
		AddField(bluge.NewKeywordField(channelField, string(channel.ID)).StoreValue()).
		AddField(bluge.NewKeywordField(atField, paddedTime(channel.CreatedAt)).StoreValue().Sortable())
	return s.writer.Update(doc.ID(), doc)
}

func (s SearchRepository) IndexMessage(message chat.Message) error {
	doc := bluge.NewDocument("message:" + message.ID.String()).
		AddField(bluge.NewKeywordField(kindField, messageKind)).
		AddField(bluge.NewKeywordField(textField, message.Text).StoreValue().Sortable()).
		AddField(bluge.NewKeywordField(scopeField, message.Scope.String()).StoreValue()).
		AddField(bluge.NewKeywordField(atField, paddedTime(message.CreatedAt)).StoreValue().Sortable())
	return s.writer.Update(doc.ID(), doc)
}

// Search runs a prefix lookup on the field named by the query.
// Channels are ordered by name then id, messages by text then most recent first.
// accept filters candidates (visibility) before the limit is applied.
func (s SearchRepository) Search(ctx context.Context, query search.Query, accept func(search.Hit) bool) ([]search.Hit, error) {
	if query.Blank() {
		return []search.Hit{}, nil
	}
	limit := query.Limit
	if limit <= 0 {
		limit = search.DefaultLimit
	}

	var kind, field string
	var sortBy []string
	switch query.Field {
	case search.FieldChannelName:
		kind, field, sortBy = channelKind, nameField, []string{nameField, idField}
	case search.FieldMessageText:
		kind, field, sortBy = messageKind, textField, []string{textField, "-" + atField, idField}
	default:
		return nil, fmt.Errorf("unknown search field %q", query.Field)
	}

	q := bluge.NewBooleanQuery().
		AddMust(bluge.NewTermQuery(kind).SetField(kindField)).
		AddMust(bluge.NewPrefixQuery(query.Prefix).SetField(field))

	reader, err := s.writer.Reader()
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := reader.Close(); err != nil {
			s.log.Warn("Unable to close search reader", "error", err)
		}
	}()

	// Hidden matches may sort ahead of visible ones: page through the
	// matches until enough are accepted or none are left.
	pageSize := limit * s.overFetch
	hits := []search.Hit{}
	var after [][]byte
	for {
		request := bluge.NewTopNSearch(pageSize, q).SortBy(sortBy)
		if after != nil {
			request = request.After(after)
		}
		seen, last, err := s.collect(ctx, reader, request, query.Field, limit, accept, &hits)
		if err != nil {
			return nil, err
		}
		if len(hits) >= limit || seen < pageSize {
			return hits, nil
		}
		after = last
	}
}

// collect appends the accepted matches of one page to hits. It returns how
// many matches the page held and the sort key of the last one.
func (s SearchRepository) collect(ctx context.Context, reader *bluge.Reader, request bluge.SearchRequest,
	field search.Field, limit int, accept func(search.Hit) bool, hits *[]search.Hit) (int, [][]byte, error) {
	matches, err := reader.Search(ctx, request)
	if err != nil {
		return 0, nil, err
	}
	seen := 0
	var last [][]byte
	match, err := matches.Next()
	for err == nil && match != nil {
		seen++
		last = copySortValue(match.SortValue)
		if len(*hits) < limit {
			hit, err := toHit(match, field)
			if err != nil {
				return 0, nil, err
			}
			if accept == nil || accept(hit) {
				*hits = append(*hits, hit)
			}
		}
		match, err = matches.Next()
	}
	return seen, last, err
}

func toHit(match *blugesearch.DocumentMatch, field search.Field) (search.Hit, error) {
	hit := search.Hit{Field: field}
	var visitErr error
	err := match.VisitStoredFields(func(name string, value []byte) bool {
		switch name {
		case idField:
			if field == search.FieldMessageText {
				hit.MessageID = string(value)[len(messageKind)+1:]
			}
		case nameField, textField:
			hit.Text = string(value)
		case channelField:
			hit.ChannelID = chat.ChannelID(value)
			hit.Scope = chat.ChannelScope(hit.ChannelID)
		case scopeField:
			hit.Scope, visitErr = chat.ParseScope(string(value))
			if hit.Scope.IsChannel() {
				hit.ChannelID = chat.ChannelID(hit.Scope.ID)
			}
		case atField:
			hit.At, visitErr = parsePaddedTime(value)
		}
		return visitErr == nil
	})
	if err == nil {
		err = visitErr
	}
	return hit, err
}

// copySortValue detaches the key from the match, which bluge recycles.
func copySortValue(values [][]byte) [][]byte {
	out := make([][]byte, len(values))
	for i, v := range values {
		out[i] = append([]byte(nil), v...)
	}
	return out
}

// paddedTime renders nanoseconds on 20 digits so keyword order is time order.
func paddedTime(t time.Time) string {
	return fmt.Sprintf("%020d", t.UnixNano())
}

func parsePaddedTime(value []byte) (time.Time, error) {
	nanos, err := strconv.ParseInt(string(value), 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(0, nanos).UTC(), nil
}
