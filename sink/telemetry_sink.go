package sink

import (
	"chat-core/domain/event"
	"chat-core/observability"
	"context"
	"log/slog"
)

// TelemetrySink counts committed domain events by type.
type TelemetrySink struct {
	monitoring *observability.MonitoringManager
	log        *slog.Logger
}

func NewTelemetrySink(monitoring *observability.MonitoringManager, log *slog.Logger) *TelemetrySink {
	return &TelemetrySink{monitoring: monitoring, log: log}
}

func (s *TelemetrySink) Consume(_ context.Context, e event.DomainEvent) error {
	switch evt := e.(type) {
	case event.MessagePosted:
		s.monitoring.IncrMessagesPosted()
	case event.ChannelCreated:
		s.monitoring.IncrChannelsCreated()
	case event.MemberAdded, event.MemberRemoved:
		s.monitoring.IncrMembershipChanges()
	case event.ConversationUpdated:
		s.monitoring.IncrConversationsUpdated()
	case event.PresenceChanged:
		s.monitoring.IncrPresenceChanges()
		s.log.Debug("Presence changed", "user", evt.UserID, "online", evt.Online)
	default:
		s.log.Debug("Event not counted", "topic", e.Topic())
	}
	return nil
}
