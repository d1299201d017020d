package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

var ErrPoolClosed = errors.New("pipeline pool is shut down")

// Runner executes one pipeline run for a document.
type Runner interface {
	Run(ctx context.Context, documentID string) error
}

// Recorder receives pool activity; metrics.WorkerMetrics implements it.
type Recorder interface {
	StartDocument()
	FinishDocument(duration time.Duration, err error)
	RecordDeferred()
}

type Options struct {
	Concurrency int64
	DeferDelay  time.Duration
	Recorder    Recorder
	Logger      *slog.Logger
}

// Pool runs at most Concurrency pipelines at a time. Submissions over the
// cap are retried after DeferDelay instead of blocking the caller.
type Pool struct {
	runner   Runner
	sem      *semaphore.Weighted
	delay    time.Duration
	recorder Recorder
	logger   *slog.Logger

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu     sync.Mutex
	closed bool
	timers map[*time.Timer]string
}

func NewPool(runner Runner, opts Options) *Pool {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 2
	}
	if opts.DeferDelay <= 0 {
		opts.DeferDelay = 2 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	baseCtx, cancel := context.WithCancel(context.Background())
	return &Pool{
		runner:   runner,
		sem:      semaphore.NewWeighted(opts.Concurrency),
		delay:    opts.DeferDelay,
		recorder: opts.Recorder,
		logger:   opts.Logger,
		baseCtx:  baseCtx,
		cancel:   cancel,
		timers:   make(map[*time.Timer]string),
	}
}

// Schedule starts a run in the background and returns immediately. The run
// keeps ctx values (trace context) but not its cancellation.
func (p *Pool) Schedule(ctx context.Context, documentID string) error {
	if documentID == "" {
		return fmt.Errorf("schedule: document id is empty")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPoolClosed
	}
	p.submitLocked(context.WithoutCancel(ctx), documentID)
	return nil
}

func (p *Pool) submitLocked(ctx context.Context, documentID string) {
	if !p.sem.TryAcquire(1) {
		p.deferLocked(ctx, documentID)
		return
	}
	p.wg.Add(1)
	go p.run(ctx, documentID)
}

func (p *Pool) deferLocked(ctx context.Context, documentID string) {
	if p.recorder != nil {
		p.recorder.RecordDeferred()
	}
	p.logger.Debug("pipeline_run_deferred", "document_id", documentID, "delay", p.delay.String())

	var timer *time.Timer
	timer = time.AfterFunc(p.delay, func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.timers, timer)
		if p.closed {
			return
		}
		p.submitLocked(ctx, documentID)
	})
	p.timers[timer] = documentID
}

func (p *Pool) run(ctx context.Context, documentID string) {
	defer p.wg.Done()
	defer p.sem.Release(1)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(p.baseCtx, cancel)
	defer stop()

	if p.recorder != nil {
		p.recorder.StartDocument()
	}
	started := time.Now()
	err := p.safeRun(runCtx, documentID)
	if p.recorder != nil {
		p.recorder.FinishDocument(time.Since(started), err)
	}
	if err != nil {
		p.logger.Error("pipeline_run_failed", "document_id", documentID, "error", err)
	}
}

func (p *Pool) safeRun(ctx context.Context, documentID string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pipeline run panicked: %v", r)
		}
	}()
	return p.runner.Run(ctx, documentID)
}

// Shutdown stops accepting work, drops deferred submissions and waits for
// in-flight runs. When ctx expires first the runs are cancelled.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	for timer, documentID := range p.timers {
		if timer.Stop() {
			p.logger.Warn("pipeline_deferred_dropped", "document_id", documentID)
		}
		delete(p.timers, timer)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.cancel()
		<-done
		return ctx.Err()
	}
}
