// Package noop provides a search indexer that discards everything.
package noop

import (
	"context"

	"github.com/kirillkom/docintel/internal/core/domain"
)

type Indexer struct{}

func (Indexer) IndexDocument(context.Context, domain.SearchDocument) error { return nil }

func (Indexer) RemoveDocument(context.Context, string) error { return nil }
