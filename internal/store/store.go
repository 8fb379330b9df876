// Package store defines the durable home of Filing records and their quick-read documents.
package store

import (
	"context"

	"github.com/feichai0017/ipo-quickread/internal/models"
)

// Kind names a storage backend for diagnostics.
type Kind string

const (
	KindMemory   Kind = "memory"
	KindSQLite   Kind = "sqlite"
	KindPostgres Kind = "postgres"
)

// FilingStore is the single shared mutable resource of the catalog.
// Implementations enforce accession uniqueness and compare-and-swap status updates.
// Nothing is ever deleted through this interface.
type FilingStore interface {
	// Create persists f with status new and a store-assigned created_at and sequence.
	// Returns models.ErrAlreadyExists when the accession is taken.
	Create(ctx context.Context, f models.Filing) (*models.Filing, error)

	// Get returns models.ErrNotFound for an unknown accession.
	Get(ctx context.Context, accession string) (*models.Filing, error)

	// UpdateStatus moves a filing from → to. It fails with models.ErrInvalidTransition when the
	// edge is not in the lifecycle graph or the stored status no longer equals from.
	UpdateStatus(ctx context.Context, accession string, from, to models.Status) (*models.Filing, error)

	// List returns filings matching q, newest first, at most q.Limit of them.
	List(ctx context.Context, q models.FilingQuery) ([]models.Filing, error)

	// AttachDocument stores the quick-read of a processing or ready filing. A processing filing
	// becomes ready atomically. A second attach fails with models.ErrAlreadyExists.
	AttachDocument(ctx context.Context, accession string, doc *models.QuickRead) (*models.Filing, error)

	// GetDocument returns models.ErrNotFound when no document is attached.
	GetDocument(ctx context.Context, accession string) (*models.QuickRead, error)

	Kind() Kind
	Close() error
}

// AttachableFrom reports whether a document may be attached to a filing in status s.
func AttachableFrom(s models.Status) bool {
	return s == models.StatusProcessing || s == models.StatusReady
}
