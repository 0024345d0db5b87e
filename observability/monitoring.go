// Package observability keeps the live counters served on /debug/stats.
package observability

import (
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// HubStats describes the subscription hub at one instant.
type HubStats struct {
	Streams       int `json:"streams"`
	Subscriptions int `json:"subscriptions"`
}

// ProcessStats is sampled from the OS for the server process.
type ProcessStats struct {
	RSSBytes   uint64  `json:"rss_bytes"`
	CPUPercent float64 `json:"cpu_percent"`
	Status     string  `json:"status"`
}

// MonitoringStats aggregates every metric exposed to operators.
type MonitoringStats struct {
	MessagesPosted       uint64       `json:"messages_posted"`
	ChannelsCreated      uint64       `json:"channels_created"`
	MembershipChanges    uint64       `json:"membership_changes"`
	ConversationsUpdated uint64       `json:"conversations_updated"`
	PresenceChanges      uint64       `json:"presence_changes"`
	SinkFailures         uint64       `json:"sink_failures"`
	DroppedEvents        uint64       `json:"dropped_events"`
	Hub                  HubStats     `json:"hub"`
	Process              ProcessStats `json:"process"`
	AllocMemMb           uint64       `json:"alloc_mem_mb"`
	NumGC                uint32       `json:"num_gc"`
	SampledAt            time.Time    `json:"sampled_at"`
}

// MonitoringManager holds atomic counters fed by the telemetry sink
// and the latest sample taken by the telemetry worker.
type MonitoringManager struct {
	log *slog.Logger
	mu  sync.RWMutex

	messagesPosted       atomic.Uint64
	channelsCreated      atomic.Uint64
	membershipChanges    atomic.Uint64
	conversationsUpdated atomic.Uint64
	presenceChanges      atomic.Uint64
	sinkFailures         atomic.Uint64
	droppedEvents        atomic.Uint64

	hub       HubStats
	process   ProcessStats
	sampledAt time.Time
}

func NewMonitoringManager(log *slog.Logger) *MonitoringManager {
	return &MonitoringManager{log: log}
}

func (mm *MonitoringManager) IncrMessagesPosted()       { mm.messagesPosted.Add(1) }
func (mm *MonitoringManager) IncrChannelsCreated()      { mm.channelsCreated.Add(1) }
func (mm *MonitoringManager) IncrMembershipChanges()    { mm.membershipChanges.Add(1) }
func (mm *MonitoringManager) IncrConversationsUpdated() { mm.conversationsUpdated.Add(1) }
func (mm *MonitoringManager) IncrPresenceChanges()      { mm.presenceChanges.Add(1) }
func (mm *MonitoringManager) IncrSinkFailures()         { mm.sinkFailures.Add(1) }
func (mm *MonitoringManager) IncrDroppedEvents()        { mm.droppedEvents.Add(1) }

// Sample records the periodic measurements.
func (mm *MonitoringManager) Sample(hub HubStats, process ProcessStats) {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	mm.hub = hub
	mm.process = process
	mm.sampledAt = time.Now().UTC()
	mm.log.Debug("Stats sampled",
		"subscriptions", hub.Subscriptions,
		"streams", hub.Streams,
		"rss_bytes", process.RSSBytes,
		"cpu_percent", process.CPUPercent,
	)
}

func (mm *MonitoringManager) GetLatest() MonitoringStats {
	mm.mu.RLock()
	defer mm.mu.RUnlock()

	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return MonitoringStats{
		MessagesPosted:       mm.messagesPosted.Load(),
		ChannelsCreated:      mm.channelsCreated.Load(),
		MembershipChanges:    mm.membershipChanges.Load(),
		ConversationsUpdated: mm.conversationsUpdated.Load(),
		PresenceChanges:      mm.presenceChanges.Load(),
		SinkFailures:         mm.sinkFailures.Load(),
		DroppedEvents:        mm.droppedEvents.Load(),
		Hub:                  mm.hub,
		Process:              mm.process,
		AllocMemMb:           m.Alloc / 1024 / 1024,
		NumGC:                m.NumGC,
		SampledAt:            mm.sampledAt,
	}
}
