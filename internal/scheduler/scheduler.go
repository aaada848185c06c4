package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/robfig/cron/v3"
	"github.com/smallbiznis/clinicbilling/internal/clock"
	ierr "github.com/smallbiznis/clinicbilling/internal/errors"
	obsmetrics "github.com/smallbiznis/clinicbilling/internal/observability/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	JobAutoRenewals           = "auto_renewals"
	JobScheduledCancellations = "scheduled_cancellations"
	JobExpirations            = "expirations"
	JobActivateFuture         = "activate_future"
	JobOverdueInvoices        = "overdue_invoices"
)

var (
	ErrInvalidConfig = errors.New("invalid_scheduler_config")
	ErrUnknownJob    = ierr.Sentinel("unknown_job", ierr.ErrValidation)
	ErrJobDisabled   = ierr.Sentinel("job_disabled", ierr.ErrValidation)
	ErrJobBusy       = ierr.Sentinel("job_running_elsewhere", ierr.ErrConflict)
)

// SubscriptionJobs is the subscription lifecycle batch surface.
type SubscriptionJobs interface {
	ProcessAutoRenewals(ctx context.Context, now time.Time) (int, error)
	ProcessScheduledCancellations(ctx context.Context, now time.Time) (int, error)
	ProcessExpirations(ctx context.Context, now time.Time) (int, error)
	ActivateFutureSubscriptions(ctx context.Context, now time.Time) (int, error)
}

// InvoiceJobs is the invoice batch surface.
type InvoiceJobs interface {
	ProcessOverdueInvoices(ctx context.Context, now time.Time) (int, error)
}

type Params struct {
	fx.In

	Log           *zap.Logger
	GenID         *snowflake.Node
	Clock         clock.Clock
	Subscriptions SubscriptionJobs
	Invoices      InvoiceJobs
	Lease         Lease  `optional:"true"`
	Config        Config `optional:"true"`
}

type job struct {
	name     string
	resource string
	run      func(ctx context.Context, now time.Time) (int, error)
}

type Scheduler struct {
	log   *zap.Logger
	cfg   Config
	genID *snowflake.Node
	clock clock.Clock
	lease Lease
	jobs  []job
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.GenID == nil || p.Clock == nil || p.Subscriptions == nil || p.Invoices == nil {
		return nil, ErrInvalidConfig
	}
	lease := p.Lease
	if lease == nil {
		lease = noopLease{}
	}
	return &Scheduler{
		log:   p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:   p.Config.withDefaults(),
		genID: p.GenID,
		clock: p.Clock,
		lease: lease,
		// Renewals run before activation so a successor created this tick
		// can start in the same pass.
		jobs: []job{
			{JobAutoRenewals, "subscription", p.Subscriptions.ProcessAutoRenewals},
			{JobActivateFuture, "subscription", p.Subscriptions.ActivateFutureSubscriptions},
			{JobScheduledCancellations, "subscription", p.Subscriptions.ProcessScheduledCancellations},
			{JobExpirations, "subscription", p.Subscriptions.ProcessExpirations},
			{JobOverdueInvoices, "invoice", p.Invoices.ProcessOverdueInvoices},
		},
	}, nil
}

// Jobs lists job names in run order.
func (s *Scheduler) Jobs() []string {
	names := make([]string, 0, len(s.jobs))
	for _, j := range s.jobs {
		names = append(names, j.name)
	}
	return names
}

func (s *Scheduler) runJob(parent context.Context, j job) (int, error) {
	schedMetrics := obsmetrics.Scheduler()

	release, ok, err := s.lease.Acquire(parent, j.name, s.cfg.LeaseTTL)
	if err != nil {
		return 0, fmt.Errorf("%s: acquire lease: %w", j.name, err)
	}
	if !ok {
		schedMetrics.IncJobSkipped(j.name)
		s.logger(parent).Debug("scheduler.job.skipped", zap.String("job", j.name))
		return 0, ErrJobBusy
	}
	defer func() {
		if err := release(context.WithoutCancel(parent)); err != nil {
			s.logger(parent).Warn("scheduler lease release failed", zap.String("job", j.name), zap.Error(err))
		}
	}()

	ctx, cancel := context.WithTimeout(parent, s.cfg.JobTimeout)
	defer cancel()

	ctx, span := otel.Tracer("clinicbilling/scheduler").Start(ctx, "scheduler."+j.name)
	defer span.End()

	ctx, run, owner := s.ensureJobRun(ctx, j.name)
	if owner {
		s.logJobStart(ctx, run)
	}
	schedMetrics.IncJobRun(j.name)

	processed, err := j.run(ctx, s.clock.Now())
	span.SetAttributes(
		attribute.String("scheduler.job", j.name),
		attribute.Int("scheduler.processed", processed),
	)
	run.AddProcessed(processed)
	schedMetrics.AddBatchProcessed(j.name, j.resource, processed)
	schedMetrics.ObserveJobDuration(j.name, time.Since(run.startedAt))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "job error")
		run.IncError()
		s.logJobError(ctx, run, err)
	}
	if owner {
		s.logJobFinish(ctx, run)
	}
	if err == nil {
		return processed, nil
	}

	// A deadline is a soft timeout: the next tick picks up the remainder.
	isTimeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	if isTimeout {
		schedMetrics.IncJobTimeout(j.name)
	}
	schedMetrics.IncJobError(j.name, err)
	if isTimeout {
		s.logger(ctx).Warn("job timed out",
			zap.String("job", j.name),
			zap.Duration("timeout", s.cfg.JobTimeout),
			zap.Error(err),
		)
		return processed, nil
	}
	return processed, fmt.Errorf("%s: %w", j.name, err)
}

// RunJob runs one job by name and returns the number of records it
// transitioned.
func (s *Scheduler) RunJob(ctx context.Context, name string) (int, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, j := range s.jobs {
		if j.name != name {
			continue
		}
		if !s.isJobEnabled(name) {
			return 0, ErrJobDisabled
		}
		return s.runJob(ctx, j)
	}
	return 0, ierr.WithError(ErrUnknownJob).
		WithHintf("unknown job %q", name).
		WithReportableDetails(map[string]any{"jobs": s.Jobs()}).
		Mark(ierr.ErrValidation)
}

// RunOnce runs every enabled job in order. Jobs held by another instance are
// skipped; failures are joined and do not stop later jobs.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	var err error
	for _, j := range s.jobs {
		if !s.isJobEnabled(j.name) {
			continue
		}
		if _, jobErr := s.runJob(ctx, j); jobErr != nil && !errors.Is(jobErr, ErrJobBusy) {
			err = errors.Join(err, jobErr)
		}
	}
	return err
}

// Start schedules RunOnce on the configured cron spec. The returned func
// stops the cron and waits for a running pass to finish.
func (s *Scheduler) Start(ctx context.Context) (func(), error) {
	cronLog := cron.PrintfLogger(zap.NewStdLog(s.log.Named("cron")))
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
	)
	if _, err := c.AddFunc(s.cfg.Schedule, func() {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}
	}); err != nil {
		return nil, fmt.Errorf("schedule %q: %w", s.cfg.Schedule, err)
	}
	c.Start()
	s.log.Info("scheduler started",
		zap.String("schedule", s.cfg.Schedule),
		zap.Strings("jobs", s.Jobs()),
	)
	return func() { <-c.Stop().Done() }, nil
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	// An empty list enables every job.
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}
