// Package reconcile runs the checkout reconciler on a cron schedule.
package reconcile

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/mrsbeantempeh/mrsbean-sub000/internal/app/metrics"
	"github.com/mrsbeantempeh/mrsbean-sub000/internal/app/services/checkout"
	"github.com/mrsbeantempeh/mrsbean-sub000/internal/app/system"
	"github.com/mrsbeantempeh/mrsbean-sub000/internal/logging"
)

var _ system.Service = (*Scheduler)(nil)

// DefaultSchedule runs every five minutes.
const DefaultSchedule = "*/5 * * * *"

// Reconciler is satisfied by *checkout.Service.
type Reconciler interface {
	ReconcilePending(ctx context.Context) (checkout.ReconcileReport, error)
}

// Scheduler triggers reconciliation passes. Overlapping passes are skipped.
type Scheduler struct {
	reconciler Reconciler
	schedule   cron.Schedule
	spec       string
	timeout    time.Duration
	log        *logging.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	cancel  context.CancelFunc
	running bool
}

// NewScheduler parses spec (standard five-field cron, or descriptors such as
// "@every 2m") and builds a scheduler.
func NewScheduler(r Reconciler, spec string, log *logging.Logger) (*Scheduler, error) {
	if r == nil {
		return nil, fmt.Errorf("reconcile: reconciler is required")
	}
	if spec == "" {
		spec = DefaultSchedule
	}
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("reconcile: invalid schedule %q: %w", spec, err)
	}
	if log == nil {
		log = logging.NewNop()
	}
	return &Scheduler{
		reconciler: r,
		schedule:   schedule,
		spec:       spec,
		timeout:    2 * time.Minute,
		log:        log,
	}, nil
}

func (s *Scheduler) Name() string { return "payment-reconciler" }

func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	c.Schedule(s.schedule, cron.FuncJob(func() { s.RunOnce(runCtx) }))
	c.Start()

	s.cron = c
	s.cancel = cancel
	s.running = true
	s.log.WithContext(ctx).WithField("schedule", s.spec).Info("payment reconciler started")
	return nil
}

func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	c, cancel := s.cron, s.cancel
	s.running = false
	s.cron, s.cancel = nil, nil
	s.mu.Unlock()

	cancel()
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	s.log.WithContext(ctx).Info("payment reconciler stopped")
	return nil
}

// RunOnce performs a single pass and records its metrics.
func (s *Scheduler) RunOnce(ctx context.Context) checkout.ReconcileReport {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	ctx = logging.WithTraceID(ctx, logging.NewTraceID())

	start := time.Now()
	report, err := s.reconciler.ReconcilePending(ctx)
	metrics.RecordReconcileRun(time.Since(start), report.Recovered, err == nil)
	if err != nil {
		s.log.WithContext(ctx).WithError(err).WithField("checked", report.Checked).Warn("reconciliation pass had errors")
	}
	return report
}
