package workers

import (
	"context"
	"log/slog"
	"reflect"
	"time"
)

type NamedChannel struct {
	Name    string
	Channel any
}

// ChannelCapacityWorker periodically checks how full the internal queues are.
// Reading len(channel) and cap(channel) is non-blocking, so this never
// interferes with producers or consumers.
type ChannelCapacityWorker struct {
	log            *slog.Logger
	channels       []NamedChannel
	metricInterval time.Duration
	highWaterMark  int
}

// NewChannelCapacityWorker reports queues filled to at least highWaterMark percent.
func NewChannelCapacityWorker(log *slog.Logger, metricInterval time.Duration, highWaterMark int, channels ...NamedChannel) *ChannelCapacityWorker {
	return &ChannelCapacityWorker{log: log, channels: channels, metricInterval: metricInterval, highWaterMark: highWaterMark}
}

func (w *ChannelCapacityWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.metricInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping channel capacity checks")
			return nil
		case <-ticker.C:
			w.Check()
		}
	}
}

// Check returns the names of the queues above the high-water mark.
func (w *ChannelCapacityWorker) Check() []string {
	var saturated []string
	for _, nc := range w.channels {
		v := reflect.ValueOf(nc.Channel)
		if v.Kind() != reflect.Chan {
			w.log.Error("Provided object is not a channel", "name", nc.Name)
			continue
		}
		capacity, length := v.Cap(), v.Len()
		if capacity == 0 {
			continue
		}
		if length*100 >= w.highWaterMark*capacity {
			w.log.Warn("Queue close to saturation", "name", nc.Name, "length", length, "capacity", capacity)
			saturated = append(saturated, nc.Name)
		}
	}
	return saturated
}
