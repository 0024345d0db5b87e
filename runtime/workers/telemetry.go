package workers

import (
	"chat-core/observability"
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/shirou/gopsutil/process"
)

// HubStatsProvider reports the current size of the subscription hub.
type HubStatsProvider interface {
	Stats() observability.HubStats
}

// TelemetryWorker samples the process and the hub every metricInterval
// and records the result in the monitoring manager.
type TelemetryWorker struct {
	log            *slog.Logger
	metricInterval time.Duration
	hub            HubStatsProvider
	monitoring     *observability.MonitoringManager
}

func NewTelemetryWorker(log *slog.Logger, metricInterval time.Duration,
	hub HubStatsProvider, monitoring *observability.MonitoringManager) *TelemetryWorker {
	return &TelemetryWorker{
		log:            log,
		metricInterval: metricInterval,
		hub:            hub,
		monitoring:     monitoring,
	}
}

func (w *TelemetryWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.metricInterval)
	defer ticker.Stop()

	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			stats, err := getSelfStats(p)
			if err != nil {
				w.log.Warn("Failed to collect self stats", "error", err)
			}
			w.monitoring.Sample(w.hub.Stats(), stats)
		}
	}
}

// getSelfStats reads memory, CPU and OS status of the given process.
func getSelfStats(p *process.Process) (observability.ProcessStats, error) {
	memInfo, err := p.MemoryInfo()
	if err != nil {
		return observability.ProcessStats{}, err
	}
	cpuPercent, err := p.CPUPercent()
	if err != nil {
		return observability.ProcessStats{}, err
	}
	status, err := p.Status()
	if err != nil {
		return observability.ProcessStats{}, err
	}
	return observability.ProcessStats{RSSBytes: memInfo.RSS, CPUPercent: cpuPercent, Status: status}, nil
}
