package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v4"
	"go.uber.org/zap"

	"github.com/fentz26/leaddesk/internal/audit"
	"github.com/fentz26/leaddesk/internal/metrics"
	"github.com/fentz26/leaddesk/internal/models"
)

// CallbackSource supplies pending callbacks that are due.
type CallbackSource interface {
	DueCallbacks(ctx context.Context, before time.Time, limit int) ([]models.Callback, error)
}

// Scheduler periodically looks for due callbacks and raises one reminder per
// callback for the lifetime of the process.
type Scheduler struct {
	source   CallbackSource
	recorder *audit.Recorder
	config   *Config
	now      func() time.Time

	reminded *xsync.Map[string, struct{}]

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a scheduler. A nil cfg uses DefaultConfig.
func New(src CallbackSource, rec *audit.Recorder, cfg *Config) *Scheduler {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		source:   src,
		recorder: rec,
		config:   cfg,
		now:      time.Now,
		reminded: xsync.NewMap[string, struct{}](),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start begins the sweep loop.
func (sch *Scheduler) Start() {
	sch.wg.Add(1)
	go sch.loop()
	zap.L().Info("callback scheduler started", zap.Duration("interval", sch.config.Interval))
}

// Stop ends the loop and waits for an in-flight sweep.
func (sch *Scheduler) Stop() {
	sch.cancel()
	sch.wg.Wait()
	zap.L().Info("callback scheduler stopped")
}

func (sch *Scheduler) loop() {
	defer sch.wg.Done()

	ticker := time.NewTicker(sch.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-sch.ctx.Done():
			return
		case <-ticker.C:
			if _, err := sch.Sweep(sch.ctx); err != nil {
				zap.L().Warn("callback sweep failed", zap.Error(err))
			}
		}
	}
}

// Sweep raises reminders for due callbacks not yet reminded and returns
// them.
func (sch *Scheduler) Sweep(ctx context.Context) ([]models.Callback, error) {
	due, err := sch.source.DueCallbacks(ctx, sch.now(), sch.config.BatchSize)
	if err != nil {
		return nil, err
	}
	metrics.CallbacksDue.Set(float64(len(due)))

	dueIDs := make(map[string]struct{}, len(due))
	var fresh []models.Callback
	for _, cb := range due {
		dueIDs[cb.ID] = struct{}{}
		if _, loaded := sch.reminded.LoadOrStore(cb.ID, struct{}{}); !loaded {
			fresh = append(fresh, cb)
		}
	}
	// Completed, canceled and rescheduled callbacks leave the due set.
	sch.reminded.Range(func(id string, _ struct{}) bool {
		if _, ok := dueIDs[id]; !ok {
			sch.reminded.Delete(id)
		}
		return true
	})

	for _, cb := range fresh {
		zap.L().Info("callback due",
			zap.String("callback_id", cb.ID),
			zap.String("lead_id", cb.LeadID),
			zap.String("agent_id", cb.AgentID),
			zap.Time("due_at", cb.DueAt),
		)
		metrics.CallbackRemindersTotal.Inc()
		if sch.recorder != nil {
			sch.recorder.Record(ctx, "callback.due", "", cb, audit.OutcomeSuccess, cb.LeadID, "reminder for agent "+cb.AgentID)
		}
	}
	return fresh, nil
}

// Reminded reports how many callbacks have been reminded so far.
func (sch *Scheduler) Reminded() int {
	return sch.reminded.Size()
}
