package documents

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.uber.org/zap"

	"github.com/cowelltechlab/ipse-student-dashboard-backend-sub000/types"
)

// ProfileStore reads student profiles from the document store.
type ProfileStore struct {
	coll    *mongo.Collection
	timeout time.Duration
	logger  *zap.Logger
}

// GetProfile returns one student profile by student id.
func (s *ProfileStore) GetProfile(ctx context.Context, studentID string) (*types.StudentProfile, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	var profile types.StudentProfile
	err := s.coll.FindOne(ctx, bson.M{"_id": studentID}).Decode(&profile)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, types.Errorf(types.ErrNotFound, "profile for student %s not found", studentID)
		}
		return nil, types.NewError(types.ErrUpstream, "get profile").WithCause(err).WithRetryable(true)
	}
	return &profile, nil
}
