package chat

import (
	"fmt"
	"strings"
)

type ScopeKind string

const (
	ScopeChannel      ScopeKind = "channel"
	ScopeConversation ScopeKind = "conversation"
)

// Scope identifies one ordered message stream: exactly one channel or one conversation.
type Scope struct {
	Kind ScopeKind
	ID   string
}

func ChannelScope(id ChannelID) Scope {
	return Scope{Kind: ScopeChannel, ID: string(id)}
}

func ConversationScope(id ConversationID) Scope {
	return Scope{Kind: ScopeConversation, ID: string(id)}
}

func (s Scope) String() string {
	return string(s.Kind) + ":" + s.ID
}

func (s Scope) IsChannel() bool { return s.Kind == ScopeChannel }

func (s Scope) IsConversation() bool { return s.Kind == ScopeConversation }

// ParseScope reads the "kind:id" form used on the wire and as storage key prefix.
func ParseScope(raw string) (Scope, error) {
	kind, id, ok := strings.Cut(raw, ":")
	if !ok || id == "" {
		return Scope{}, fmt.Errorf("malformed scope %q", raw)
	}
	switch ScopeKind(kind) {
	case ScopeChannel, ScopeConversation:
		return Scope{Kind: ScopeKind(kind), ID: id}, nil
	default:
		return Scope{}, fmt.Errorf("unknown scope kind %q", kind)
	}
}
