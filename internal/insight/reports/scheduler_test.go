package reports

import (
	"context"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ataiva-software/vertex-sub003/internal/auth"
	domainevent "github.com/ataiva-software/vertex-sub003/internal/domain/event"
	domain "github.com/ataiva-software/vertex-sub003/internal/domain/report"
	"github.com/ataiva-software/vertex-sub003/internal/errors"
	"github.com/ataiva-software/vertex-sub003/internal/storage/memory"
)

var actor = auth.Context{UserID: "u1"}

type capturedNotification struct {
	report    domain.Report
	execution domain.Execution
}

type fakeNotifier struct {
	mu    sync.Mutex
	calls []capturedNotification
}

func (f *fakeNotifier) ReportGenerated(_ context.Context, rep domain.Report, ex domain.Execution) {
	f.mu.Lock()
	f.calls = append(f.calls, capturedNotification{report: rep, execution: ex})
	f.mu.Unlock()
}

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakePublisher struct {
	mu     sync.Mutex
	events []domainevent.Event
}

func (f *fakePublisher) Publish(_ context.Context, ev domainevent.Event) (domainevent.Event, error) {
	f.mu.Lock()
	f.events = append(f.events, ev)
	f.mu.Unlock()
	return ev, nil
}

func (f *fakePublisher) typesSeen() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.events))
	for i, ev := range f.events {
		out[i] = ev.Type
	}
	return out
}

type fixture struct {
	store     *memory.Store
	service   *Service
	scheduler *Scheduler
	notifier  *fakeNotifier
	publisher *fakePublisher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.New()
	svc := NewService(store, nil)
	notifier := &fakeNotifier{}
	publisher := &fakePublisher{}
	sched := NewScheduler(svc, store, NewGenerator(t.TempDir()), notifier, publisher, SchedulerConfig{
		TickInterval: time.Hour, // ticks are driven manually in tests
		Workers:      2,
		Grace:        time.Second,
	}, nil)
	return &fixture{store: store, service: svc, scheduler: sched, notifier: notifier, publisher: publisher}
}

func (f *fixture) createReport(t *testing.T, schedule string, recipients []string) domain.Report {
	t.Helper()
	tmpl, err := f.service.CreateTemplate(context.Background(), actor, TemplateInput{
		Name:           "usage",
		Content:        "Usage for {{period}}",
		RequiredParams: []string{"period"},
	})
	if err != nil {
		t.Fatalf("create template: %v", err)
	}
	rep, err := f.service.Create(context.Background(), actor, CreateInput{
		Name:       "usage-report",
		TemplateID: tmpl.ID,
		Params:     map[string]string{"period": "weekly"},
		Schedule:   schedule,
		Recipients: recipients,
	})
	if err != nil {
		t.Fatalf("create report: %v", err)
	}
	return rep
}

func waitExecutions(t *testing.T, f *fixture, reportID string, want int) []domain.Execution {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		exs, err := f.store.ListExecutions(context.Background(), reportID, 0)
		if err == nil && len(exs) >= want {
			terminal := true
			for _, ex := range exs {
				if !ex.Status.Terminal() {
					terminal = false
				}
			}
			if terminal {
				return exs
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("report %s never reached %d terminal executions", reportID, want)
	return nil
}

func TestTickFiresDueReportOnce(t *testing.T) {
	f := newFixture(t)
	rep := f.createReport(t, "*/5 * * * *", []string{"ops@example.com"})

	// Force the report due.
	rep.NextExecution = time.Now().UTC().Add(-time.Second)
	if _, err := f.store.UpdateReport(context.Background(), rep); err != nil {
		t.Fatalf("prime: %v", err)
	}

	f.scheduler.tick(context.Background())
	exs := waitExecutions(t, f, rep.ID, 1)
	if len(exs) != 1 {
		t.Fatalf("executions = %d", len(exs))
	}
	ex := exs[0]
	if ex.Status != domain.StatusCompleted {
		t.Fatalf("status = %s (%s)", ex.Status, ex.Error)
	}
	if ex.OutputPath == "" || ex.Bytes == 0 {
		t.Fatalf("artifact not recorded: %+v", ex)
	}
	if _, err := os.Stat(ex.OutputPath); err != nil {
		t.Fatalf("artifact missing on disk: %v", err)
	}

	// The schedule advanced, so an immediate second tick must not refire.
	f.scheduler.tick(context.Background())
	time.Sleep(50 * time.Millisecond)
	exs, _ = f.store.ListExecutions(context.Background(), rep.ID, 0)
	if len(exs) != 1 {
		t.Fatalf("second tick refired: %d executions", len(exs))
	}

	if f.notifier.count() != 1 {
		t.Fatalf("notifications = %d", f.notifier.count())
	}
	types := f.publisher.typesSeen()
	if len(types) != 1 || types[0] != "report.completed" {
		t.Fatalf("events = %v", types)
	}

	got, _ := f.store.GetReport(context.Background(), rep.ID)
	if got.LastGenerated.IsZero() {
		t.Fatal("lastGenerated not updated")
	}
	if !got.NextExecution.After(time.Now().UTC().Add(-time.Minute)) {
		t.Fatalf("nextExecution not advanced: %v", got.NextExecution)
	}
}

func TestAtMostOneInFlightPerReport(t *testing.T) {
	f := newFixture(t)
	rep := f.createReport(t, "", nil)

	// Hold the worker semaphore indirectly: mark the report in flight.
	f.scheduler.mu.Lock()
	f.scheduler.inflight[rep.ID] = "busy"
	f.scheduler.mu.Unlock()

	_, err := f.scheduler.RunNow(context.Background(), rep)
	if !errors.IsConflict(err) {
		t.Fatalf("expected conflict, got %v", err)
	}

	f.scheduler.mu.Lock()
	delete(f.scheduler.inflight, rep.ID)
	f.scheduler.mu.Unlock()

	if _, err := f.scheduler.RunNow(context.Background(), rep); err != nil {
		t.Fatalf("run now: %v", err)
	}
	waitExecutions(t, f, rep.ID, 1)
}

func TestFailedGenerationRecordsErrorAndEvent(t *testing.T) {
	f := newFixture(t)
	rep := f.createReport(t, "", nil)

	// Break the report: remove the required parameter.
	rep.Params = map[string]string{}
	if _, err := f.store.UpdateReport(context.Background(), rep); err != nil {
		t.Fatalf("update: %v", err)
	}

	if _, err := f.scheduler.RunNow(context.Background(), rep); err != nil {
		t.Fatalf("run now: %v", err)
	}
	exs := waitExecutions(t, f, rep.ID, 1)
	ex := exs[0]
	if ex.Status != domain.StatusFailed {
		t.Fatalf("status = %s", ex.Status)
	}
	if !strings.Contains(ex.Error, "period") {
		t.Fatalf("error = %q", ex.Error)
	}
	if ex.OutputPath != "" {
		t.Fatal("failed execution must not carry an artifact path")
	}

	types := f.publisher.typesSeen()
	if len(types) != 1 || types[0] != "report.failed" {
		t.Fatalf("events = %v", types)
	}
	if f.notifier.count() != 0 {
		t.Fatal("failed run must not notify recipients")
	}
}

func TestCreateRejectsBadSchedule(t *testing.T) {
	f := newFixture(t)
	tmpl, err := f.service.CreateTemplate(context.Background(), actor, TemplateInput{
		Name: "t", Content: "static",
	})
	if err != nil {
		t.Fatalf("create template: %v", err)
	}
	_, err = f.service.Create(context.Background(), actor, CreateInput{
		Name: "r", TemplateID: tmpl.ID, Schedule: "every 5 minutes",
	})
	if errors.GetHTTPStatus(err) != 400 {
		t.Fatalf("expected 400, got %v", err)
	}
}

func TestOwnershipOnReports(t *testing.T) {
	f := newFixture(t)
	rep := f.createReport(t, "", nil)

	other := auth.Context{UserID: "intruder"}
	if _, err := f.service.Get(context.Background(), other, rep.ID); errors.GetHTTPStatus(err) != 403 {
		t.Fatalf("expected 403, got %v", err)
	}
	if _, err := f.service.Executions(context.Background(), other, rep.ID, 10); errors.GetHTTPStatus(err) != 403 {
		t.Fatalf("expected 403, got %v", err)
	}
}
