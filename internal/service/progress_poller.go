package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/donor-reports-dashboard/internal/models"
)

// ErrNoTasks is returned when a poller is started without task handles.
var ErrNoTasks = errors.New("no task handles to poll")

type taskStatusFetcher interface {
	TaskStatus(ctx context.Context, taskID string) (*models.TaskStatus, error)
}

type pollRecorder interface {
	RecordPollTick(outcome string)
	PollerStarted()
	PollerStopped()
}

// ProgressPollerConfig tunes the poll cadence.
type ProgressPollerConfig struct {
	Interval time.Duration
}

// ProgressPoller aggregates the status of a set of report generation tasks.
//
// One activation runs one loop goroutine. A tick fans out one status request
// per task and waits for all of them before the next tick is scheduled, so at
// most one tick is in flight. Restarting bumps the generation and cancels the
// previous loop; results carrying an old generation are dropped.
type ProgressPoller struct {
	fetcher taskStatusFetcher
	metrics pollRecorder
	logger  *zap.Logger
	cfg     ProgressPollerConfig
	now     func() time.Time

	mu         sync.Mutex
	generation uint64
	cancel     context.CancelFunc
	done       chan struct{}
	snapshot   models.PollSnapshot
}

// NewProgressPoller constructs an idle poller.
func NewProgressPoller(fetcher taskStatusFetcher, metrics pollRecorder, logger *zap.Logger, cfg ProgressPollerConfig) *ProgressPoller {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Second
	}
	closed := make(chan struct{})
	close(closed)
	return &ProgressPoller{
		fetcher:  fetcher,
		metrics:  metrics,
		logger:   logger,
		cfg:      cfg,
		now:      time.Now,
		done:     closed,
		snapshot: models.PollSnapshot{TaskIDs: []string{}, State: models.PollerStateIdle},
	}
}

// Start polls taskIDs until every task is terminal, then calls onComplete once.
// Any previous activation is cancelled first. The loop lives until ctx is done.
func (p *ProgressPoller) Start(ctx context.Context, taskIDs []string, onComplete func(models.PollSnapshot)) error {
	if len(taskIDs) == 0 {
		return ErrNoTasks
	}
	ids := append([]string(nil), taskIDs...)

	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
	}
	p.generation++
	gen := p.generation
	loopCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	done := make(chan struct{})
	p.done = done
	p.snapshot = models.PollSnapshot{
		TaskIDs: ids,
		State:   models.PollerStateRunning,
		Total:   len(ids),
		Running: len(ids),
	}
	p.mu.Unlock()

	if p.metrics != nil {
		p.metrics.PollerStarted()
	}
	go p.run(loopCtx, gen, ids, onComplete, done)
	return nil
}

// Stop cancels the current activation without waiting for it to exit.
// The snapshot is kept as last observed.
func (p *ProgressPoller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	p.generation++
}

// Done is closed once the loop of the latest activation has exited.
func (p *ProgressPoller) Done() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done
}

// Snapshot returns the state as of the last applied tick.
func (p *ProgressPoller) Snapshot() models.PollSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	snap := p.snapshot
	snap.TaskIDs = append([]string{}, p.snapshot.TaskIDs...)
	if p.snapshot.LastTickAt != nil {
		at := *p.snapshot.LastTickAt
		snap.LastTickAt = &at
	}
	return snap
}

func (p *ProgressPoller) run(ctx context.Context, gen uint64, ids []string, onComplete func(models.PollSnapshot), done chan struct{}) {
	defer close(done)
	if p.metrics != nil {
		defer p.metrics.PollerStopped()
	}

	timer := time.NewTimer(p.cfg.Interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		statuses, err := p.fetchAll(ctx, ids)
		if err != nil {
			if ctx.Err() != nil {
				p.record(TickStale)
				return
			}
			p.record(TickSkipped)
			p.logger.Sugar().Warnw("progress poll tick skipped", "tasks", len(ids), "error", err)
			timer.Reset(p.cfg.Interval)
			continue
		}

		snap, applied := p.apply(gen, statuses)
		if !applied {
			p.record(TickStale)
			return
		}
		p.record(TickApplied)

		if snap.State == models.PollerStateCompleted {
			p.logger.Sugar().Infow("report generation completed", "tasks", snap.Total, "succeeded", snap.Succeeded, "failed", snap.Failed)
			if onComplete != nil {
				onComplete(snap)
			}
			return
		}
		timer.Reset(p.cfg.Interval)
	}
}

// fetchAll joins every status request; the first failure fails the tick.
func (p *ProgressPoller) fetchAll(ctx context.Context, ids []string) ([]models.TaskStatus, error) {
	g, gctx := errgroup.WithContext(ctx)
	statuses := make([]models.TaskStatus, len(ids))
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			status, err := p.fetcher.TaskStatus(gctx, id)
			if err != nil {
				return fmt.Errorf("task %s: %w", id, err)
			}
			statuses[i] = *status
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return statuses, nil
}

func (p *ProgressPoller) apply(gen uint64, statuses []models.TaskStatus) (models.PollSnapshot, bool) {
	agg := Aggregate(statuses)
	now := p.now()

	p.mu.Lock()
	defer p.mu.Unlock()
	if gen != p.generation {
		return models.PollSnapshot{}, false
	}
	p.snapshot.Progress = agg.Progress
	p.snapshot.Done = agg.Done
	p.snapshot.Succeeded = agg.Succeeded
	p.snapshot.Failed = agg.Failed
	p.snapshot.Running = agg.Running
	p.snapshot.Ticks++
	p.snapshot.LastTickAt = &now
	if agg.Done == p.snapshot.Total {
		p.snapshot.State = models.PollerStateCompleted
		if p.cancel != nil {
			p.cancel()
			p.cancel = nil
		}
	}
	snap := p.snapshot
	snap.TaskIDs = append([]string{}, p.snapshot.TaskIDs...)
	return snap, true
}

func (p *ProgressPoller) record(outcome string) {
	if p.metrics != nil {
		p.metrics.RecordPollTick(outcome)
	}
}

// TickAggregate summarises one joined set of status readings.
type TickAggregate struct {
	Progress  int
	Done      int
	Succeeded int
	Failed    int
	Running   int
}

// Aggregate averages progress rounding half up and counts terminal tasks.
func Aggregate(statuses []models.TaskStatus) TickAggregate {
	var agg TickAggregate
	if len(statuses) == 0 {
		return agg
	}
	sum := 0
	for _, st := range statuses {
		sum += st.Progress
		switch st.Status {
		case models.TaskStateSuccess:
			agg.Succeeded++
		case models.TaskStateFailed:
			agg.Failed++
		default:
			agg.Running++
		}
	}
	agg.Done = agg.Succeeded + agg.Failed
	progress := int(math.Floor(float64(sum)/float64(len(statuses)) + 0.5))
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	agg.Progress = progress
	return agg
}
