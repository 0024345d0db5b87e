// Package chat contains the core concepts of the chat system.
// Messages are immutable once committed by the log.
package chat

import (
	"time"

	"github.com/google/uuid"
)

// Message is one committed entry of a scope's log.
// Seq is the commit position within the scope, starting at 1 with no gaps.
type Message struct {
	ID         uuid.UUID
	Scope      Scope
	Seq        uint64
	AuthorID   UserID
	AuthorName string // display name at send time
	Text       string
	Lang       string
	CreatedAt  time.Time
}
