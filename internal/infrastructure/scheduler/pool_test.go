package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type runnerFake struct {
	mu      sync.Mutex
	started chan string
	release chan struct{}
	runs    []string
	panicOn string
	err     error
}

func newRunnerFake() *runnerFake {
	return &runnerFake{started: make(chan string, 16), release: make(chan struct{})}
}

func (r *runnerFake) Run(ctx context.Context, documentID string) error {
	r.mu.Lock()
	r.runs = append(r.runs, documentID)
	r.mu.Unlock()
	r.started <- documentID
	if documentID == r.panicOn {
		panic("boom")
	}
	select {
	case <-r.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	return r.err
}

type recorderFake struct {
	mu       sync.Mutex
	started  int
	finished []error
	deferred int
}

func (r *recorderFake) StartDocument() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started++
}

func (r *recorderFake) FinishDocument(_ time.Duration, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished = append(r.finished, err)
}

func (r *recorderFake) RecordDeferred() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deferred++
}

func (r *recorderFake) snapshot() (int, int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.started, len(r.finished), r.deferred
}

func waitStarted(t *testing.T, runner *runnerFake) string {
	t.Helper()
	select {
	case id := <-runner.started:
		return id
	case <-time.After(2 * time.Second):
		t.Fatalf("run did not start")
		return ""
	}
}

func TestPoolDefersSubmissionsOverCapacity(t *testing.T) {
	runner := newRunnerFake()
	recorder := &recorderFake{}
	pool := NewPool(runner, Options{Concurrency: 1, DeferDelay: 10 * time.Millisecond, Recorder: recorder})

	if err := pool.Schedule(context.Background(), "doc-1"); err != nil {
		t.Fatalf("Schedule() error = %v", err)
	}
	if got := waitStarted(t, runner); got != "doc-1" {
		t.Fatalf("unexpected first run %q", got)
	}
	if err := pool.Schedule(context.Background(), "doc-2"); err != nil {
		t.Fatalf("Schedule() error = %v", err)
	}

	select {
	case id := <-runner.started:
		t.Fatalf("run %s started above the concurrency cap", id)
	case <-time.After(50 * time.Millisecond):
	}
	if _, _, deferred := recorder.snapshot(); deferred == 0 {
		t.Fatalf("expected deferred submission to be recorded")
	}

	runner.release <- struct{}{}
	if got := waitStarted(t, runner); got != "doc-2" {
		t.Fatalf("unexpected second run %q", got)
	}
	runner.release <- struct{}{}

	if err := pool.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if started, finished, _ := recorder.snapshot(); started != 2 || finished != 2 {
		t.Fatalf("expected 2 recorded runs, got started=%d finished=%d", started, finished)
	}
}

func TestPoolRecoversPanickingRun(t *testing.T) {
	runner := newRunnerFake()
	runner.panicOn = "doc-bad"
	recorder := &recorderFake{}
	pool := NewPool(runner, Options{Concurrency: 1, Recorder: recorder})

	if err := pool.Schedule(context.Background(), "doc-bad"); err != nil {
		t.Fatalf("Schedule() error = %v", err)
	}
	waitStarted(t, runner)
	if err := pool.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}

	recorder.mu.Lock()
	defer recorder.mu.Unlock()
	if len(recorder.finished) != 1 || recorder.finished[0] == nil {
		t.Fatalf("expected panic recorded as error, got %v", recorder.finished)
	}
}

func TestPoolRunSurvivesCallerCancellation(t *testing.T) {
	runner := newRunnerFake()
	runner.err = errors.New("step failed")
	recorder := &recorderFake{}
	pool := NewPool(runner, Options{Concurrency: 1, Recorder: recorder})

	ctx, cancel := context.WithCancel(context.Background())
	if err := pool.Schedule(ctx, "doc-1"); err != nil {
		t.Fatalf("Schedule() error = %v", err)
	}
	waitStarted(t, runner)
	cancel()
	runner.release <- struct{}{}

	if err := pool.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	recorder.mu.Lock()
	defer recorder.mu.Unlock()
	if len(recorder.finished) != 1 || recorder.finished[0] == nil || recorder.finished[0].Error() != "step failed" {
		t.Fatalf("expected the runner's own error, got %v", recorder.finished)
	}
}

func TestPoolShutdownCancelsRunsAfterDeadline(t *testing.T) {
	runner := newRunnerFake()
	pool := NewPool(runner, Options{Concurrency: 1})

	if err := pool.Schedule(context.Background(), "doc-1"); err != nil {
		t.Fatalf("Schedule() error = %v", err)
	}
	waitStarted(t, runner)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := pool.Shutdown(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if err := pool.Schedule(context.Background(), "doc-2"); !errors.Is(err, ErrPoolClosed) {
		t.Fatalf("expected ErrPoolClosed, got %v", err)
	}
}

func TestPoolShutdownDropsDeferredSubmissions(t *testing.T) {
	runner := newRunnerFake()
	pool := NewPool(runner, Options{Concurrency: 1, DeferDelay: time.Hour})

	if err := pool.Schedule(context.Background(), "doc-1"); err != nil {
		t.Fatalf("Schedule() error = %v", err)
	}
	waitStarted(t, runner)
	if err := pool.Schedule(context.Background(), "doc-2"); err != nil {
		t.Fatalf("Schedule() error = %v", err)
	}

	go func() { runner.release <- struct{}{} }()
	if err := pool.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	runner.mu.Lock()
	defer runner.mu.Unlock()
	if len(runner.runs) != 1 {
		t.Fatalf("deferred run must not start after shutdown, runs=%v", runner.runs)
	}
}
