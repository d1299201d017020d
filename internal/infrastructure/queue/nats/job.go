package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
)

// pipelineJob is the message body published for each document to process.
type pipelineJob struct {
	DocumentID string `json:"document_id"`
}

// headerCarrier exposes nats.Msg headers as an OpenTelemetry TextMapCarrier.
type headerCarrier nats.Msg

func (c *headerCarrier) Get(key string) string {
	if c.Header == nil {
		return ""
	}
	return c.Header.Get(key)
}

func (c *headerCarrier) Set(key, val string) {
	if c.Header == nil {
		c.Header = make(nats.Header)
	}
	c.Header.Set(key, val)
}

func (c *headerCarrier) Keys() []string {
	keys := make([]string, 0, len(c.Header))
	for k := range c.Header {
		keys = append(keys, k)
	}
	return keys
}

func encodeJob(ctx context.Context, subject, documentID string) (*nats.Msg, error) {
	data, err := json.Marshal(pipelineJob{DocumentID: documentID})
	if err != nil {
		return nil, fmt.Errorf("encode pipeline job: %w", err)
	}
	msg := &nats.Msg{Subject: subject, Data: data}
	otel.GetTextMapPropagator().Inject(ctx, (*headerCarrier)(msg))
	return msg, nil
}

// decodeJob returns the job and a context carrying the publisher's trace.
func decodeJob(base context.Context, msg *nats.Msg) (context.Context, pipelineJob, error) {
	var job pipelineJob
	if err := json.Unmarshal(msg.Data, &job); err != nil {
		return base, job, fmt.Errorf("decode pipeline job: %w", err)
	}
	job.DocumentID = strings.TrimSpace(job.DocumentID)
	if job.DocumentID == "" {
		return base, job, fmt.Errorf("decode pipeline job: document_id is empty")
	}
	return otel.GetTextMapPropagator().Extract(base, (*headerCarrier)(msg)), job, nil
}
