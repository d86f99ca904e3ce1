package documents

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"

	"github.com/cowelltechlab/ipse-student-dashboard-backend-sub000/types"
)

// VersionStore persists version documents.
type VersionStore struct {
	coll    *mongo.Collection
	timeout time.Duration
	logger  *zap.Logger
}

// EnsureIndexes creates the indexes the lifecycle manager relies on. The
// unique (assignment_id, version_number) index backs numbering contiguity
// under concurrent creates.
func (s *VersionStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "assignment_id", Value: 1},
				{Key: "version_number", Value: 1},
			},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "assignment_id", Value: 1}, {Key: "finalized", Value: 1}},
		},
	})
	if err != nil {
		return types.NewError(types.ErrUpstream, "create version indexes").WithCause(err)
	}
	return nil
}

func (s *VersionStore) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

// Insert persists a new version document with revision 1.
func (s *VersionStore) Insert(ctx context.Context, doc *types.VersionDocument) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	doc.Revision = 1
	if _, err := s.coll.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return types.Errorf(types.ErrConcurrencyConflict,
				"version %d for assignment %s already taken", doc.VersionNumber, doc.AssignmentID).
				WithCause(err)
		}
		return types.NewError(types.ErrUpstream, "insert version").WithCause(err).WithRetryable(true)
	}
	return nil
}

// Get returns one version document by id.
func (s *VersionStore) Get(ctx context.Context, id string) (*types.VersionDocument, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	var doc types.VersionDocument
	err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, types.Errorf(types.ErrNotFound, "version %s not found", id)
		}
		return nil, types.NewError(types.ErrUpstream, "get version").WithCause(err).WithRetryable(true)
	}
	return &doc, nil
}

// ListByAssignment returns all versions of one assignment ordered by
// version number.
func (s *VersionStore) ListByAssignment(ctx context.Context, assignmentID string) ([]*types.VersionDocument, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	cursor, err := s.coll.Find(ctx,
		bson.M{"assignment_id": assignmentID},
		options.Find().SetSort(bson.D{{Key: "version_number", Value: 1}}),
	)
	if err != nil {
		return nil, types.NewError(types.ErrUpstream, "list versions").WithCause(err).WithRetryable(true)
	}

	var docs []*types.VersionDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, types.NewError(types.ErrUpstream, "decode versions").WithCause(err).WithRetryable(true)
	}
	return docs, nil
}

// Replace overwrites a version document if and only if its stored revision
// still matches doc.Revision. On success the in-memory revision is advanced
// to the stored value.
func (s *VersionStore) Replace(ctx context.Context, doc *types.VersionDocument) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	next := doc.Clone()
	next.Revision = doc.Revision + 1

	res, err := s.coll.ReplaceOne(ctx,
		bson.M{"_id": doc.ID, "revision": doc.Revision},
		next,
	)
	if err != nil {
		return types.NewError(types.ErrUpstream, "replace version").WithCause(err).WithRetryable(true)
	}
	if res.MatchedCount == 0 {
		// Distinguish a missing document from a lost race
		count, err := s.coll.CountDocuments(ctx, bson.M{"_id": doc.ID})
		if err == nil && count == 0 {
			return types.Errorf(types.ErrNotFound, "version %s not found", doc.ID)
		}
		return types.Errorf(types.ErrConcurrencyConflict,
			"version %s modified concurrently (revision %d stale)", doc.ID, doc.Revision)
	}

	doc.Revision = next.Revision
	return nil
}

// Delete removes a version document. Deletion is irreversible.
func (s *VersionStore) Delete(ctx context.Context, id string) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	res, err := s.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return types.NewError(types.ErrUpstream, "delete version").WithCause(err).WithRetryable(true)
	}
	if res.DeletedCount == 0 {
		return types.Errorf(types.ErrNotFound, "version %s not found", id)
	}
	s.logger.Info("version deleted", zap.String("version_id", id))
	return nil
}

// ListLegacy returns all documents still carrying the legacy json_content
// shape without a rendered html_content.
func (s *VersionStore) ListLegacy(ctx context.Context) ([]*types.VersionDocument, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	cursor, err := s.coll.Find(ctx, bson.M{
		"final_content.json_content": bson.M{"$exists": true},
		"final_content.html_content": bson.M{"$exists": false},
	})
	if err != nil {
		return nil, types.NewError(types.ErrUpstream, "list legacy versions").WithCause(err).WithRetryable(true)
	}

	var docs []*types.VersionDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, types.NewError(types.ErrUpstream, "decode legacy versions").WithCause(err).WithRetryable(true)
	}
	return docs, nil
}
