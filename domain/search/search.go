package search

import (
	"chat-core/domain/chat"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DefaultLimit bounds every prefix lookup.
const DefaultLimit = 5

type Field string

const (
	FieldChannelName Field = "channelName"
	FieldMessageText Field = "messageText"
)

func ParseField(raw string) (Field, error) {
	switch Field(raw) {
	case FieldChannelName, FieldMessageText:
		return Field(raw), nil
	default:
		return "", fmt.Errorf("unknown search field %q", raw)
	}
}

// Query is a case-sensitive prefix lookup over one indexed field.
type Query struct {
	Field  Field
	Prefix string
	Limit  int
}

// Blank queries match nothing.
func (q Query) Blank() bool {
	return strings.TrimSpace(q.Prefix) == ""
}

// Hit is one search result. Text holds the matched field value.
type Hit struct {
	Field     Field
	ChannelID chat.ChannelID
	MessageID string
	Scope     chat.Scope
	Text      string
	At        time.Time
}

// NewSearchQuery parses a raw command-line style input.
// Example: /find --field channelName --limit 3 gen
// Everything that is not a flag is kept verbatim as the prefix.
func NewSearchQuery(input string) Query {
	query := Query{Field: FieldMessageText, Limit: DefaultLimit}

	parts := strings.Split(strings.TrimPrefix(input, "/find "), " ")
	var terms []string

	for i := 0; i < len(parts); i++ {
		part := parts[i]
		if strings.HasPrefix(part, "--") && i+1 < len(parts) {
			key := strings.TrimPrefix(part, "--")
			val := parts[i+1]
			switch key {
			case "field":
				if field, err := ParseField(val); err == nil {
					query.Field = field
				}
			case "limit":
				if n, err := strconv.Atoi(val); err == nil && n > 0 {
					query.Limit = n
				}
			}
			i++ // Skip the value part in next iteration
			continue
		}
		terms = append(terms, part)
	}

	query.Prefix = strings.Join(terms, " ")
	return query
}
