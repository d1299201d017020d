package nats

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/docintel/internal/core/ports"
	"github.com/kirillkom/docintel/internal/infrastructure/resilience"
)

const workerQueueGroup = "pipeline-workers"

// Queue hands pipeline jobs from the API to workers over a NATS subject.
type Queue struct {
	conn     *nats.Conn
	subject  string
	executor *resilience.Executor
	logger   *slog.Logger
}

type Options struct {
	// ClientName identifies the process in NATS monitoring, e.g. "docintel-api".
	ClientName     string
	ConnectTimeout time.Duration
	ReconnectWait  time.Duration
	// MaxReconnects < 0 reconnects forever.
	MaxReconnects int
	// FailFast makes New return an error when the first connect fails
	// instead of retrying in the background.
	FailFast bool
	Executor *resilience.Executor
	Logger   *slog.Logger
}

func (o Options) connOptions() []nats.Option {
	name := o.ClientName
	if name == "" {
		name = "docintel"
	}
	timeout := cmp.Or(o.ConnectTimeout, 2*time.Second)
	wait := cmp.Or(o.ReconnectWait, 2*time.Second)
	reconnects := o.MaxReconnects
	if reconnects == 0 {
		reconnects = 60
	}
	logger := o.Logger
	return []nats.Option{
		nats.Name(name),
		nats.Timeout(timeout),
		nats.ReconnectWait(wait),
		nats.MaxReconnects(reconnects),
		nats.RetryOnFailedConnect(!o.FailFast),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			subject := ""
			if sub != nil {
				subject = sub.Subject
			}
			logger.Error("nats_async_error", "subject", subject, "error", err)
		}),
	}
}

func New(url, subject string, options Options) (*Queue, error) {
	if subject == "" {
		return nil, fmt.Errorf("nats: subject is required")
	}
	if options.Logger == nil {
		options.Logger = slog.Default()
	}
	conn, err := nats.Connect(url, options.connOptions()...)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Queue{
		conn:     conn,
		subject:  subject,
		executor: options.Executor,
		logger:   options.Logger,
	}, nil
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

// Schedule publishes a job for documentID; it does not wait for processing.
func (q *Queue) Schedule(ctx context.Context, documentID string) error {
	msg, err := encodeJob(ctx, q.subject, documentID)
	if err != nil {
		return err
	}
	call := func(_ context.Context) error {
		if err := q.conn.PublishMsg(msg); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		return nil
	}

	if q.executor != nil {
		err = q.executor.Execute(ctx, "nats.publish", call, classifyNATSError)
	} else {
		err = call(ctx)
	}
	return wrapTemporaryIfNeeded(err)
}

// Consume queue-subscribes and submits every job to pool until ctx is done,
// then drains the subscription.
func (q *Queue) Consume(ctx context.Context, pool ports.PipelineScheduler) error {
	sub, err := q.conn.QueueSubscribe(q.subject, workerQueueGroup, func(msg *nats.Msg) {
		if ctx.Err() != nil {
			return
		}
		q.dispatch(ctx, pool, msg)
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}
	if err := q.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := q.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}

// dispatch drops malformed jobs; the document stays pending for reprocess.
func (q *Queue) dispatch(ctx context.Context, pool ports.PipelineScheduler, msg *nats.Msg) {
	jobCtx, job, err := decodeJob(ctx, msg)
	if err != nil {
		q.logger.Warn("pipeline_job_dropped", "subject", msg.Subject, "error", err)
		return
	}
	if err := pool.Schedule(jobCtx, job.DocumentID); err != nil {
		q.logger.Error("pipeline_job_submit_failed", "document_id", job.DocumentID, "error", err)
	}
}
