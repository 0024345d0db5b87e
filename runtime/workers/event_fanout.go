package workers

import (
	"chat-core/contract"
	"chat-core/domain/event"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// EventFanout hands every committed domain event to the permanent sinks.
//
// It is best-effort, with no guarantees regarding delivery, durability or
// retries: subscribers are served by the hub at commit time, this path only
// drives side effects (assistant replies, telemetry).
//
// Sinks are consumed concurrently for one event, each bounded by sinkTimeout,
// and the next event waits for all of them, so a sink sees events in commit order.
type EventFanout struct {
	log         *slog.Logger
	Name        contract.WorkerName
	events      <-chan event.DomainEvent
	sinks       []contract.EventSink
	sinkTimeout time.Duration
	onFailure   func(sink contract.EventSink, err error)
}

func NewEventFanout(log *slog.Logger, events <-chan event.DomainEvent, sinkTimeout time.Duration) *EventFanout {
	return &EventFanout{log: log, events: events, sinkTimeout: sinkTimeout}
}

func (w *EventFanout) Add(sinks ...contract.EventSink) *EventFanout {
	w.sinks = append(w.sinks, sinks...)
	return w
}

// OnFailure is called for every sink that failed or timed out.
func (w *EventFanout) OnFailure(f func(sink contract.EventSink, err error)) *EventFanout {
	w.onFailure = f
	return w
}

func (w *EventFanout) WithName(name string) contract.Worker {
	w.Name = contract.WorkerName(name)
	return w
}

func (w *EventFanout) Run(ctx context.Context) error {
	for {
		select {
		case evt := <-w.events:
			w.Fanout(ctx, evt)
		case <-ctx.Done():
			w.log.Debug("Context done, stopping domain event fanout")
			return nil
		}
	}
}

// Fanout delivers one event to every sink and waits for all of them.
func (w *EventFanout) Fanout(ctx context.Context, evt event.DomainEvent) {
	var wg sync.WaitGroup
	for _, sink := range w.sinks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sinkCtx, cancel := context.WithTimeout(ctx, w.sinkTimeout)
			defer cancel()
			if err := sink.Consume(sinkCtx, evt); err != nil {
				w.log.Warn("Sink failed to consume event",
					"sink", fmt.Sprintf("%T", sink), "topic", evt.Topic(), "error", err)
				if w.onFailure != nil {
					w.onFailure(sink, err)
				}
			}
		}()
	}
	wg.Wait()
}
