// Package graph mirrors document metadata into Neo4j as
// (:Document)-[:IN_CATEGORY]->(:Category) and (:Document)-[:TAGGED]->(:Tag).
package graph

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/kirillkom/docintel/internal/core/domain"
)

type cypherRunner interface {
	Run(ctx context.Context, cypher string, params map[string]any) error
}

type cypherSession interface {
	ExecuteWrite(ctx context.Context, work func(tx cypherRunner) error) error
	Close(ctx context.Context) error
}

type sessionOpener interface {
	OpenSession(ctx context.Context) cypherSession
}

type Indexer struct {
	opener sessionOpener
}

func New(driver neo4j.DriverWithContext, database string) *Indexer {
	return &Indexer{opener: &driverOpener{driver: driver, database: database}}
}

// Connect opens a driver and verifies connectivity.
func Connect(ctx context.Context, uri, user, password string) (neo4j.DriverWithContext, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, fmt.Errorf("neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("neo4j connectivity: %w", err)
	}
	return driver, nil
}

const indexDocumentCypher = `
MERGE (d:Document {id: $id})
SET d.tenant_id = $tenant_id, d.title = $title, d.mime_type = $mime_type, d.summary = $summary
WITH d
OPTIONAL MATCH (d)-[old:IN_CATEGORY|TAGGED]->()
DELETE old
WITH DISTINCT d
FOREACH (_ IN CASE WHEN $category = '' THEN [] ELSE [1] END |
	MERGE (c:Category {name: $category})
	MERGE (d)-[:IN_CATEGORY]->(c))
FOREACH (tag IN $tags |
	MERGE (t:Tag {name: tag})
	MERGE (d)-[:TAGGED]->(t))
`

func (i *Indexer) IndexDocument(ctx context.Context, doc domain.SearchDocument) error {
	tags := doc.Tags
	if tags == nil {
		tags = []string{}
	}
	params := map[string]any{
		"id":        doc.ID,
		"tenant_id": doc.TenantID,
		"title":     doc.Title,
		"mime_type": doc.MimeType,
		"summary":   doc.Summary,
		"category":  doc.Category,
		"tags":      tags,
	}
	return i.write(ctx, "index document "+doc.ID, indexDocumentCypher, params)
}

func (i *Indexer) RemoveDocument(ctx context.Context, id string) error {
	return i.write(ctx, "remove document "+id, `MATCH (d:Document {id: $id}) DETACH DELETE d`, map[string]any{"id": id})
}

func (i *Indexer) write(ctx context.Context, op, cypher string, params map[string]any) error {
	sess := i.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	err := sess.ExecuteWrite(ctx, func(tx cypherRunner) error {
		return tx.Run(ctx, cypher, params)
	})
	if err != nil {
		return fmt.Errorf("graph: %s: %w", op, err)
	}
	return nil
}

type driverOpener struct {
	driver   neo4j.DriverWithContext
	database string
}

func (o *driverOpener) OpenSession(ctx context.Context) cypherSession {
	return &driverSession{sess: o.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: o.database,
	})}
}

type driverSession struct {
	sess neo4j.SessionWithContext
}

func (s *driverSession) ExecuteWrite(ctx context.Context, work func(tx cypherRunner) error) error {
	_, err := s.sess.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return nil, work(txRunner{tx: tx})
	})
	return err
}

func (s *driverSession) Close(ctx context.Context) error {
	return s.sess.Close(ctx)
}

type txRunner struct {
	tx neo4j.ManagedTransaction
}

func (r txRunner) Run(ctx context.Context, cypher string, params map[string]any) error {
	result, err := r.tx.Run(ctx, cypher, params)
	if err != nil {
		return err
	}
	_, err = result.Consume(ctx)
	return err
}
