package execution

import "context"

// Store persists execution documents. Implementations upsert a single
// document per execution ID; writes happen inside the execution's critical
// section so per-execution serialization is guaranteed by the caller.
type Store interface {
	// Upsert stores the document, replacing any previous version.
	Upsert(ctx context.Context, doc Document) error

	// FindByID returns the document for the given execution ID or ErrNotFound.
	FindByID(ctx context.Context, id string) (Document, error)

	// ListByStatus returns all documents currently in the given status. Used by
	// boot recovery to reload paused executions.
	ListByStatus(ctx context.Context, status Status) ([]Document, error)
}
