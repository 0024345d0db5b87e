package protocol

type FrameType string

const (
	// client -> server
	FrameSubscribe   FrameType = "subscribe"
	FrameUnsubscribe FrameType = "unsubscribe"

	// server -> client
	FrameSubscribed FrameType = "subscribed"
	FrameDelta      FrameType = "delta"
	FrameClosed     FrameType = "closed"
	FrameError      FrameType = "error"
)

// Frame is one websocket message. Ref correlates a request with its answer;
// Subscription names the feed a delta or closed frame belongs to.
type Frame struct {
	Type         FrameType `json:"type"`
	Ref          string    `json:"ref,omitempty"`
	Topic        string    `json:"topic,omitempty"`
	Limit        int       `json:"limit,omitempty"`
	Subscription string    `json:"subscription,omitempty"`
	Snapshot     *Snapshot `json:"snapshot,omitempty"`
	Delta        *Delta    `json:"delta,omitempty"`
	Error        string    `json:"error,omitempty"`
	Status       int       `json:"status,omitempty"`
}

func SubscribeFrame(ref, topic string, limit int) Frame {
	return Frame{Type: FrameSubscribe, Ref: ref, Topic: topic, Limit: limit}
}

func UnsubscribeFrame(subscription string) Frame {
	return Frame{Type: FrameUnsubscribe, Subscription: subscription}
}

func SubscribedFrame(ref, subscription string, snapshot Snapshot) Frame {
	return Frame{Type: FrameSubscribed, Ref: ref, Subscription: subscription, Snapshot: &snapshot}
}

func DeltaFrame(subscription string, delta Delta) Frame {
	return Frame{Type: FrameDelta, Subscription: subscription, Delta: &delta}
}

func ClosedFrame(subscription string, err string) Frame {
	return Frame{Type: FrameClosed, Subscription: subscription, Error: err}
}

func ErrorFrame(ref string, status int, err string) Frame {
	return Frame{Type: FrameError, Ref: ref, Status: status, Error: err}
}
