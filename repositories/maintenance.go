package repositories

import (
	stderrors "errors"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/go-co-op/gocron/v2"
)

const valueLogDiscardRatio = 0.5

// Maintenance periodically reclaims badger value-log space.
type Maintenance struct {
	db        *badger.DB
	log       *slog.Logger
	scheduler gocron.Scheduler
}

func NewMaintenance(db *badger.DB, log *slog.Logger, interval time.Duration) (*Maintenance, error) {
	scheduler, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, err
	}
	m := &Maintenance{db: db, log: log, scheduler: scheduler}
	_, err = scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(m.CollectGarbage),
		gocron.WithName("badger-value-log-gc"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Maintenance) Start() {
	m.log.Debug("Starting storage maintenance")
	m.scheduler.Start()
}

func (m *Maintenance) Stop() error {
	return m.scheduler.Shutdown()
}

// CollectGarbage rewrites value-log files until badger reports nothing left to reclaim.
// It returns the number of rewritten files.
func (m *Maintenance) CollectGarbage() int {
	rewritten := 0
	err := m.db.RunValueLogGC(valueLogDiscardRatio)
	for err == nil {
		rewritten++
		err = m.db.RunValueLogGC(valueLogDiscardRatio)
	}
	if !stderrors.Is(err, badger.ErrNoRewrite) && !stderrors.Is(err, badger.ErrRejected) {
		m.log.Warn("Value log garbage collection failed", "error", err)
	}
	if rewritten > 0 {
		m.log.Info("Value log garbage collected", "files", rewritten)
	}
	return rewritten
}
