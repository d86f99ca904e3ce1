// Package version owns the lifecycle of assignment version documents:
// creation and numbering, replay from a prior version, generation and edit
// application with append-only history, finalization exclusivity, rating
// merges, and migration of legacy payload shapes.
package version

import (
	"context"

	"github.com/cowelltechlab/ipse-student-dashboard-backend-sub000/types"
)

// Store is the document-store surface the lifecycle manager needs. Replace
// must be conditional on the document's revision token and report
// CONCURRENCY_CONFLICT when the stored revision no longer matches, which is
// what makes the optimistic finalize loop safe.
type Store interface {
	Insert(ctx context.Context, doc *types.VersionDocument) error
	Get(ctx context.Context, id string) (*types.VersionDocument, error)
	ListByAssignment(ctx context.Context, assignmentID string) ([]*types.VersionDocument, error)
	Replace(ctx context.Context, doc *types.VersionDocument) error
	Delete(ctx context.Context, id string) error
	ListLegacy(ctx context.Context) ([]*types.VersionDocument, error)
}
