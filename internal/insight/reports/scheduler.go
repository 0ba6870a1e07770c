package reports

import (
	"context"
	"sync"
	"time"

	domainevent "github.com/ataiva-software/vertex-sub003/internal/domain/event"
	domain "github.com/ataiva-software/vertex-sub003/internal/domain/report"
	"github.com/ataiva-software/vertex-sub003/internal/errors"
	"github.com/ataiva-software/vertex-sub003/internal/storage"
	"github.com/ataiva-software/vertex-sub003/pkg/logger"
	"github.com/ataiva-software/vertex-sub003/pkg/metrics"
)

// Notifier dispatches a notification after a report execution completes.
type Notifier interface {
	ReportGenerated(ctx context.Context, rep domain.Report, ex domain.Execution)
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, rep domain.Report, ex domain.Execution)

func (f NotifierFunc) ReportGenerated(ctx context.Context, rep domain.Report, ex domain.Execution) {
	if f != nil {
		f(ctx, rep, ex)
	}
}

// EventPublisher publishes report lifecycle events.
type EventPublisher interface {
	Publish(ctx context.Context, ev domainevent.Event) (domainevent.Event, error)
}

// SchedulerConfig tunes the report scheduler.
type SchedulerConfig struct {
	TickInterval time.Duration
	Workers      int
	// Grace bounds how long Stop waits for in-flight executions before
	// marking them cancelled and interrupting the workers.
	Grace time.Duration
}

// Scheduler drives scheduled report generation. A single-threaded ticker
// scans for due reports; executions run on a bounded worker pool with
// at-most-one in-flight execution per report id.
type Scheduler struct {
	service   *Service
	store     storage.ReportStore
	generator *Generator
	notifier  Notifier
	publisher EventPublisher
	log       *logger.Logger
	cfg       SchedulerConfig

	// now is replaceable for tests.
	now func() time.Time

	mu       sync.Mutex
	inflight map[string]string // report id → execution id
	cancels  map[string]context.CancelFunc

	sem    chan struct{}
	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewScheduler creates the report scheduler.
func NewScheduler(service *Service, store storage.ReportStore, generator *Generator, notifier Notifier, publisher EventPublisher, cfg SchedulerConfig, log *logger.Logger) *Scheduler {
	if log == nil {
		log = logger.NewDefault("report-scheduler")
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Minute
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.Grace <= 0 {
		cfg.Grace = 30 * time.Second
	}
	return &Scheduler{
		service:   service,
		store:     store,
		generator: generator,
		notifier:  notifier,
		publisher: publisher,
		log:       log,
		cfg:       cfg,
		now:       time.Now,
		inflight:  make(map[string]string),
		cancels:   make(map[string]context.CancelFunc),
		sem:       make(chan struct{}, cfg.Workers),
	}
}

// Start launches the tick loop.
func (s *Scheduler) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.cfg.TickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				s.tick(runCtx)
			}
		}
	}()

	s.log.WithField("tick_interval", s.cfg.TickInterval.String()).Info("report scheduler started")
}

// Stop halts the ticker, waits out the grace period, then cancels whatever
// is still running. Interrupted executions are marked cancelled.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.wg.Wait()
	}()

	select {
	case <-done:
	case <-time.After(s.cfg.Grace):
		s.mu.Lock()
		for reportID, cancel := range s.cancels {
			s.log.WithField("report_id", reportID).Warn("interrupting in-flight execution")
			cancel()
		}
		s.mu.Unlock()
		<-done
	}
	s.log.Info("report scheduler stopped")
}

// tick scans active scheduled reports and launches due executions.
func (s *Scheduler) tick(ctx context.Context) {
	due, err := s.store.ListScheduledReports(ctx)
	if err != nil {
		s.log.WithError(err).Warn("scan scheduled reports failed")
		return
	}

	now := s.now().UTC()
	for _, rep := range due {
		if rep.NextExecution.IsZero() || rep.NextExecution.After(now) {
			continue
		}
		if _, err := s.launch(ctx, rep, true); err != nil {
			if !errors.IsConflict(err) {
				s.log.WithError(err).WithField("report_id", rep.ID).Warn("launch execution failed")
			}
		}
	}
}

// RunNow launches a one-off execution, subject to the same per-report guard.
func (s *Scheduler) RunNow(ctx context.Context, rep domain.Report) (domain.Execution, error) {
	return s.launch(ctx, rep, false)
}

// launch starts one execution unless the report already has one in flight.
// Attempts while an execution is running are skipped, not queued.
func (s *Scheduler) launch(ctx context.Context, rep domain.Report, scheduled bool) (domain.Execution, error) {
	s.mu.Lock()
	if execID, busy := s.inflight[rep.ID]; busy {
		s.mu.Unlock()
		s.log.WithField("report_id", rep.ID).
			WithField("running_execution", execID).
			Info("execution skipped: previous run still in flight")
		return domain.Execution{}, errors.Conflict("report execution already running")
	}
	// Reserve the slot before the store round-trip so a concurrent launch
	// cannot slip in.
	s.inflight[rep.ID] = ""
	s.mu.Unlock()

	ex, err := s.store.CreateExecution(ctx, domain.Execution{
		ReportID:  rep.ID,
		StartedAt: s.now().UTC(),
		Status:    domain.StatusRunning,
	})
	if err != nil {
		s.mu.Lock()
		delete(s.inflight, rep.ID)
		s.mu.Unlock()
		return domain.Execution{}, err
	}

	execCtx, cancelExec := context.WithCancel(context.WithoutCancel(ctx))
	s.mu.Lock()
	s.inflight[rep.ID] = ex.ID
	s.cancels[rep.ID] = cancelExec
	s.mu.Unlock()

	// Advance the schedule immediately so the next tick does not refire the
	// same nominal time while this run is in flight.
	if scheduled && rep.Scheduled() {
		if next, err := NextExecution(rep.Schedule, rep.Timezone, s.now()); err == nil {
			rep.NextExecution = next.UTC()
			if _, err := s.store.UpdateReport(ctx, rep); err != nil {
				s.log.WithError(err).WithField("report_id", rep.ID).Warn("advance schedule failed")
			}
		}
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			delete(s.inflight, rep.ID)
			delete(s.cancels, rep.ID)
			s.mu.Unlock()
			cancelExec()
		}()

		s.sem <- struct{}{}
		defer func() { <-s.sem }()

		s.execute(execCtx, rep, ex)
	}()

	return ex, nil
}

// execute runs the generation pipeline and finalizes the execution record.
func (s *Scheduler) execute(ctx context.Context, rep domain.Report, ex domain.Execution) {
	entry := s.log.WithField("report_id", rep.ID).WithField("execution_id", ex.ID)

	tmpl, err := s.store.GetReportTemplate(ctx, rep.TemplateID)
	if err != nil {
		s.finalize(ctx, rep, ex, err)
		return
	}

	started := s.now()
	artifact, err := s.generator.Generate(tmpl, rep, ex.ID, started)
	elapsed := s.now().Sub(started)

	if ctx.Err() != nil {
		ex.Status = domain.StatusCancelled
		ex.EndedAt = s.now().UTC()
		if _, uerr := s.store.UpdateExecution(context.WithoutCancel(ctx), ex); uerr != nil {
			entry.WithError(uerr).Warn("record cancelled execution failed")
		}
		metrics.RecordReportRun("cancelled", elapsed)
		entry.Warn("report execution cancelled")
		return
	}
	if err != nil {
		s.finalize(ctx, rep, ex, err)
		return
	}

	ex.Status = domain.StatusCompleted
	ex.EndedAt = s.now().UTC()
	ex.OutputPath = artifact.Path
	ex.Bytes = artifact.Bytes
	final, uerr := s.store.UpdateExecution(ctx, ex)
	if uerr != nil {
		entry.WithError(uerr).Warn("record completed execution failed")
		final = ex
	}

	rep.LastGenerated = final.EndedAt
	if _, uerr := s.store.UpdateReport(ctx, rep); uerr != nil {
		entry.WithError(uerr).Warn("update last generated failed")
	}

	metrics.RecordReportRun("completed", elapsed)
	entry.WithField("bytes", final.Bytes).WithField("artifact", final.OutputPath).Info("report generated")

	if s.notifier != nil && len(rep.Recipients) > 0 {
		s.notifier.ReportGenerated(ctx, rep, final)
	}
	if s.publisher != nil {
		_, _ = s.publisher.Publish(ctx, domainevent.Event{
			Type:   "report.completed",
			Source: "insight.scheduler",
			Payload: map[string]any{
				"report_id":    rep.ID,
				"execution_id": final.ID,
				"artifact":     final.OutputPath,
				"bytes":        final.Bytes,
			},
		})
	}
}

// finalize records a failed execution and emits report.failed.
func (s *Scheduler) finalize(ctx context.Context, rep domain.Report, ex domain.Execution, cause error) {
	ex.Status = domain.StatusFailed
	ex.EndedAt = s.now().UTC()
	ex.Error = cause.Error()
	// ServiceError.Error omits details; keep the reason in the record.
	if svcErr := errors.GetServiceError(cause); svcErr != nil {
		if reason, ok := svcErr.Details["reason"].(string); ok && reason != "" {
			ex.Error += ": " + reason
		}
	}
	if _, err := s.store.UpdateExecution(ctx, ex); err != nil {
		s.log.WithError(err).WithField("execution_id", ex.ID).Warn("record failed execution")
	}

	metrics.RecordReportRun("failed", ex.EndedAt.Sub(ex.StartedAt))
	s.log.WithError(cause).
		WithField("report_id", rep.ID).
		WithField("execution_id", ex.ID).
		Warn("report execution failed")

	if s.publisher != nil {
		_, _ = s.publisher.Publish(ctx, domainevent.Event{
			Type:   "report.failed",
			Source: "insight.scheduler",
			Payload: map[string]any{
				"report_id":    rep.ID,
				"execution_id": ex.ID,
				"error":        ex.Error,
			},
		})
	}
}

// CancelExecution cancels a running execution by report id.
func (s *Scheduler) CancelExecution(reportID string) bool {
	s.mu.Lock()
	cancel, ok := s.cancels[reportID]
	s.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// InFlight reports whether the report has a running execution.
func (s *Scheduler) InFlight(reportID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.inflight[reportID]
	return ok
}
