package graph

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/kirillkom/docintel/internal/core/domain"
)

type recordedRun struct {
	cypher string
	params map[string]any
}

type fakeSession struct {
	runs   *[]recordedRun
	runErr error
	closed *int
}

func (s *fakeSession) ExecuteWrite(ctx context.Context, work func(tx cypherRunner) error) error {
	return work(s)
}

func (s *fakeSession) Run(_ context.Context, cypher string, params map[string]any) error {
	*s.runs = append(*s.runs, recordedRun{cypher: cypher, params: params})
	return s.runErr
}

func (s *fakeSession) Close(context.Context) error {
	*s.closed++
	return nil
}

type fakeOpener struct {
	runs   []recordedRun
	runErr error
	closed int
}

func (o *fakeOpener) OpenSession(context.Context) cypherSession {
	return &fakeSession{runs: &o.runs, runErr: o.runErr, closed: &o.closed}
}

func TestIndexDocumentMergesCategoryAndTags(t *testing.T) {
	opener := &fakeOpener{}
	indexer := &Indexer{opener: opener}

	err := indexer.IndexDocument(context.Background(), domain.SearchDocument{
		ID: "doc-1", TenantID: "org-1", Title: "contract.pdf", Category: "legal",
	})
	if err != nil {
		t.Fatalf("IndexDocument() error = %v", err)
	}
	if len(opener.runs) != 1 || opener.closed != 1 {
		t.Fatalf("expected one run in one closed session, got runs=%d closed=%d", len(opener.runs), opener.closed)
	}
	run := opener.runs[0]
	if !strings.Contains(run.cypher, "MERGE (d:Document {id: $id})") {
		t.Fatalf("unexpected cypher: %s", run.cypher)
	}
	if tags, ok := run.params["tags"].([]string); !ok || tags == nil {
		t.Fatalf("tags must be a non-nil list, got %#v", run.params["tags"])
	}
	if run.params["category"] != "legal" || run.params["tenant_id"] != "org-1" {
		t.Fatalf("unexpected params: %+v", run.params)
	}
}

func TestRemoveDocumentWrapsErrors(t *testing.T) {
	opener := &fakeOpener{runErr: errors.New("connection refused")}
	indexer := &Indexer{opener: opener}

	err := indexer.RemoveDocument(context.Background(), "doc-1")
	if err == nil || !strings.Contains(err.Error(), "remove document doc-1") {
		t.Fatalf("expected wrapped error, got %v", err)
	}
	if !strings.Contains(opener.runs[0].cypher, "DETACH DELETE") {
		t.Fatalf("unexpected cypher: %s", opener.runs[0].cypher)
	}
}
