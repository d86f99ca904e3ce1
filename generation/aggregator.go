// Package generation turns a generation request into a validated structured
// document: it aggregates per-student context, builds the prompt, runs the
// provider in streaming or single-shot mode, assembles and validates the
// output, and hands the result to the version lifecycle.
package generation

import (
	"context"

	"go.uber.org/zap"

	"github.com/cowelltechlab/ipse-student-dashboard-backend-sub000/internal/cache"
	"github.com/cowelltechlab/ipse-student-dashboard-backend-sub000/types"
)

// RecordStore is the relational lookup surface the aggregator needs.
type RecordStore interface {
	GetAssignment(ctx context.Context, id string) (*types.AssignmentRecord, error)
	GetStudent(ctx context.Context, id string) (*types.StudentRecord, error)
	GetClass(ctx context.Context, id string) (*types.ClassRecord, error)
}

// ProfileStore is the document-store lookup surface for extended student
// profiles.
type ProfileStore interface {
	GetProfile(ctx context.Context, studentID string) (*types.StudentProfile, error)
}

// Aggregator merges the relational and document views of a student and
// assignment into one ContextRecord per request. A cache, when configured,
// short-circuits the store round trips; cache failures degrade to direct
// lookups and are never surfaced.
type Aggregator struct {
	records  RecordStore
	profiles ProfileStore
	cache    *cache.ContextCache
	logger   *zap.Logger
}

// NewAggregator wires an aggregator. cache may be nil to disable caching.
func NewAggregator(records RecordStore, profiles ProfileStore, contextCache *cache.ContextCache, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{
		records:  records,
		profiles: profiles,
		cache:    contextCache,
		logger:   logger.With(zap.String("component", "aggregator")),
	}
}

// Aggregate builds the merged generation context for one assignment and
// student. A missing assignment, student, or profile is NOT_FOUND; store
// failures surface as retryable UPSTREAM_ERROR. Profile-only fields always
// come from the profile store so the two views cannot drift apart silently.
func (a *Aggregator) Aggregate(ctx context.Context, assignmentID, studentID string) (*types.ContextRecord, error) {
	if a.cache != nil {
		if rec := a.cache.Get(ctx, assignmentID, studentID); rec != nil {
			return rec, nil
		}
	}

	assignment, err := a.records.GetAssignment(ctx, assignmentID)
	if err != nil {
		return nil, err
	}
	student, err := a.records.GetStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}
	class, err := a.records.GetClass(ctx, assignment.ClassID)
	if err != nil {
		return nil, err
	}
	profile, err := a.profiles.GetProfile(ctx, studentID)
	if err != nil {
		return nil, err
	}

	rec := &types.ContextRecord{
		Assignment: *assignment,
		Student:    *student,
		Class:      *class,
		Profile:    *profile,
	}
	if a.cache != nil {
		a.cache.Set(ctx, rec)
	}
	return rec, nil
}
