package errors

import "fmt"

var (
	ErrNotFound            = fmt.Errorf("not found")
	ErrForbidden           = fmt.Errorf("forbidden")
	ErrDuplicateName       = fmt.Errorf("duplicate channel name")
	ErrInvalidParticipants = fmt.Errorf("invalid participants")
	ErrEmptyText           = fmt.Errorf("empty text")
	ErrTimeout             = fmt.Errorf("timeout")
	ErrInvalidPayload      = fmt.Errorf("invalid payload")
	ErrTextTooLong         = fmt.Errorf("text too long")
	ErrSubscriberLagging   = fmt.Errorf("subscriber lagging behind")
	ErrSubscriptionClosed  = fmt.Errorf("subscription closed")
	ErrWorkerPanic         = fmt.Errorf("worker panic")
	ErrEmptyWords          = fmt.Errorf("no words have been found")
	ErrOnlyCensoredFiles   = fmt.Errorf("censored directory contains directories")
	ErrInvalidToken        = fmt.Errorf("invalid or expired token")
)
