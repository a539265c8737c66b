package printqueue_test

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/meridianhq/visitdesk/internal/domain"
	"github.com/meridianhq/visitdesk/internal/printer"
	"github.com/meridianhq/visitdesk/internal/printqueue"
	"github.com/meridianhq/visitdesk/pkg/config"
)

// memStore is an in-memory JobStore with the same claim semantics as the
// Postgres repo: pending jobs only, priority descending, oldest first.
type memStore struct {
	mu   sync.Mutex
	jobs []*domain.PrintJob
}

func (s *memStore) add(priority, copies int, visitID *int64, payload interface{}) *domain.PrintJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, _ := json.Marshal(payload)
	j := &domain.PrintJob{
		ID:        int64(len(s.jobs) + 1),
		Type:      domain.JobTypeBadge,
		Status:    domain.JobPending,
		Payload:   raw,
		Copies:    copies,
		Priority:  priority,
		VisitID:   visitID,
		CreatedAt: time.Now().Add(time.Duration(len(s.jobs)) * time.Millisecond),
	}
	s.jobs = append(s.jobs, j)
	return j
}

func (s *memStore) addRaw(priority int, payload json.RawMessage) *domain.PrintJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	j := &domain.PrintJob{
		ID:        int64(len(s.jobs) + 1),
		Type:      domain.JobTypeBadge,
		Status:    domain.JobPending,
		Payload:   payload,
		Copies:    1,
		Priority:  priority,
		CreatedAt: time.Now(),
	}
	s.jobs = append(s.jobs, j)
	return j
}

func (s *memStore) ClaimPending(_ context.Context, limit int) ([]domain.PrintJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var pending []*domain.PrintJob
	for _, j := range s.jobs {
		if j.Status == domain.JobPending {
			pending = append(pending, j)
		}
	}
	sort.SliceStable(pending, func(a, b int) bool {
		if pending[a].Priority != pending[b].Priority {
			return pending[a].Priority > pending[b].Priority
		}
		return pending[a].CreatedAt.Before(pending[b].CreatedAt)
	})
	if len(pending) > limit {
		pending = pending[:limit]
	}

	out := make([]domain.PrintJob, 0, len(pending))
	for _, j := range pending {
		j.Status = domain.JobPrinting
		out = append(out, *j)
	}
	return out, nil
}

func (s *memStore) MarkCompleted(_ context.Context, id int64, printedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, j := range s.jobs {
		if j.ID == id && j.Status == domain.JobPrinting {
			j.Status = domain.JobCompleted
			j.PrintedAt = &printedAt
		}
	}
	return nil
}

func (s *memStore) MarkFailed(_ context.Context, id int64, lastError string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, j := range s.jobs {
		if j.ID == id && j.Status == domain.JobPrinting {
			j.Status = domain.JobFailed
			j.LastError = &lastError
		}
	}
	return nil
}

func (s *memStore) DeleteCompletedBefore(_ context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

func (s *memStore) get(id int64) *domain.PrintJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, j := range s.jobs {
		if j.ID == id {
			return j
		}
	}
	return nil
}

// fakePrinter records badge numbers in the order they were printed.
type fakePrinter struct {
	mu      sync.Mutex
	printed []string
	failOn  string
	block   chan struct{}
}

func (p *fakePrinter) PrintBadge(ctx context.Context, payload *domain.BadgePayload) error {
	if p.block != nil {
		<-p.block
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failOn != "" && payload.BadgeNumber == p.failOn {
		return errors.New("printer jam")
	}
	p.printed = append(p.printed, payload.BadgeNumber)
	return nil
}

func (p *fakePrinter) IsConnected() bool            { return true }
func (p *fakePrinter) Test(ctx context.Context) error { return nil }

func (p *fakePrinter) order() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.printed...)
}

// hungPrinter never answers; only the print timeout gets a job off it.
type hungPrinter struct{}

func (hungPrinter) PrintBadge(ctx context.Context, _ *domain.BadgePayload) error {
	<-ctx.Done()
	return ctx.Err()
}

func (hungPrinter) IsConnected() bool              { return true }
func (hungPrinter) Test(ctx context.Context) error { return nil }

type fakeMarker struct {
	mu     sync.Mutex
	issued map[int64]bool
}

func (m *fakeMarker) MarkBadgeIssued(_ context.Context, id int64, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.issued == nil {
		m.issued = make(map[int64]bool)
	}
	m.issued[id] = true
	return nil
}

func newWorker(store *memStore, p *fakePrinter, m *fakeMarker, batch int) *printqueue.Worker {
	var drv printer.Driver
	if p != nil {
		drv = p
	}
	return printqueue.NewWorker(store, m, drv, nil, config.QueueConfig{
		PollInterval: time.Second,
		BatchSize:    batch,
		Retention:    7 * 24 * time.Hour,
	}, time.Second)
}

func badgePayload(number string) domain.BadgePayload {
	return domain.BadgePayload{VisitorName: "Ada Lovelace", BadgeNumber: number}
}

func TestTickDrainsByPriorityThenAge(t *testing.T) {
	store := &memStore{}
	store.add(domain.PriorityNormal, 1, nil, badgePayload("VB-AAAAAA"))
	store.add(domain.PriorityNormal, 1, nil, badgePayload("VB-BBBBBB"))
	store.add(domain.PriorityKiosk, 1, nil, badgePayload("VB-CCCCCC"))

	p := &fakePrinter{}
	w := newWorker(store, p, &fakeMarker{}, 10)
	w.Tick(context.Background())

	want := []string{"VB-CCCCCC", "VB-AAAAAA", "VB-BBBBBB"}
	got := p.order()
	if len(got) != len(want) {
		t.Fatalf("printed %d badges, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("print order = %v, want %v", got, want)
		}
	}
	for _, j := range store.jobs {
		if j.Status != domain.JobCompleted {
			t.Errorf("job %d status = %q, want completed", j.ID, j.Status)
		}
	}
}

func TestTickMarksBadgeIssued(t *testing.T) {
	store := &memStore{}
	visitID := int64(42)
	store.add(domain.PriorityNormal, 1, &visitID, badgePayload("VB-AAAAAA"))

	marker := &fakeMarker{}
	w := newWorker(store, &fakePrinter{}, marker, 10)
	w.Tick(context.Background())

	if !marker.issued[42] {
		t.Error("completed badge job did not flag the visit")
	}
}

func TestFailedJobRecordsErrorAndStaysFailed(t *testing.T) {
	store := &memStore{}
	visitID := int64(7)
	job := store.add(domain.PriorityNormal, 1, &visitID, badgePayload("VB-BADBAD"))

	p := &fakePrinter{failOn: "VB-BADBAD"}
	marker := &fakeMarker{}
	w := newWorker(store, p, marker, 10)
	w.Tick(context.Background())

	got := store.get(job.ID)
	if got.Status != domain.JobFailed {
		t.Fatalf("job status = %q, want failed", got.Status)
	}
	if got.LastError == nil || *got.LastError == "" {
		t.Error("failed job has no last_error")
	}
	if marker.issued[7] {
		t.Error("failed job must not flag badge issued")
	}

	// No automatic retry: the next tick must not reprint it.
	w.Tick(context.Background())
	if len(p.order()) != 0 {
		t.Errorf("failed job was re-claimed: printed %v", p.order())
	}
	if store.get(job.ID).Status != domain.JobFailed {
		t.Error("failed job changed status without an operator retry")
	}
}

func TestPrinterTimeoutFailsJob(t *testing.T) {
	store := &memStore{}
	visitID := int64(9)
	job := store.add(domain.PriorityNormal, 1, &visitID, badgePayload("VB-AAAAAA"))

	marker := &fakeMarker{}
	w := printqueue.NewWorker(store, marker, hungPrinter{}, nil, config.QueueConfig{
		PollInterval: time.Second,
		BatchSize:    10,
		Retention:    7 * 24 * time.Hour,
	}, 20*time.Millisecond)

	start := time.Now()
	w.Tick(context.Background())
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("tick took %v, hung printer stalled the queue", elapsed)
	}

	got := store.get(job.ID)
	if got.Status != domain.JobFailed {
		t.Fatalf("job status = %q, want failed after printer timeout", got.Status)
	}
	if got.LastError == nil || *got.LastError == "" {
		t.Error("timed-out job has no last_error")
	}
	if marker.issued[9] {
		t.Error("timed-out job must not flag badge issued")
	}
}

func TestCopiesPrintIndividually(t *testing.T) {
	store := &memStore{}
	store.add(domain.PriorityNormal, 3, nil, badgePayload("VB-AAAAAA"))

	p := &fakePrinter{}
	w := newWorker(store, p, &fakeMarker{}, 10)
	w.Tick(context.Background())

	if n := len(p.order()); n != 3 {
		t.Errorf("printed %d copies, want 3", n)
	}
}

func TestMalformedPayloadFailsJob(t *testing.T) {
	store := &memStore{}
	job := store.addRaw(domain.PriorityNormal, json.RawMessage(`{not json`))

	w := newWorker(store, &fakePrinter{}, &fakeMarker{}, 10)
	w.Tick(context.Background())

	got := store.get(job.ID)
	if got.Status != domain.JobFailed {
		t.Fatalf("job status = %q, want failed", got.Status)
	}
	if got.LastError == nil {
		t.Error("malformed job has no last_error")
	}
}

func TestOverlappingTickIsNoOp(t *testing.T) {
	store := &memStore{}
	store.add(domain.PriorityNormal, 1, nil, badgePayload("VB-AAAAAA"))
	store.add(domain.PriorityNormal, 1, nil, badgePayload("VB-BBBBBB"))

	p := &fakePrinter{block: make(chan struct{})}
	w := newWorker(store, p, &fakeMarker{}, 1)

	done := make(chan struct{})
	go func() {
		w.Tick(context.Background())
		close(done)
	}()

	// Wait until the first tick has claimed its job and is blocked printing.
	deadline := time.After(2 * time.Second)
	for store.get(1).Status != domain.JobPrinting {
		select {
		case <-deadline:
			t.Fatal("first tick never claimed a job")
		case <-time.After(5 * time.Millisecond):
		}
	}

	// A second tick while the first is draining must not claim anything.
	w.Tick(context.Background())
	if store.get(2).Status != domain.JobPending {
		t.Error("overlapping tick claimed a job")
	}

	close(p.block)
	<-done
}

func TestNilPrinterLeavesJobsPending(t *testing.T) {
	store := &memStore{}
	job := store.add(domain.PriorityNormal, 1, nil, badgePayload("VB-AAAAAA"))

	w := newWorker(store, nil, &fakeMarker{}, 10)
	w.Tick(context.Background())

	if got := store.get(job.ID); got.Status != domain.JobPending {
		t.Errorf("job status = %q, want pending with no printer", got.Status)
	}
}
