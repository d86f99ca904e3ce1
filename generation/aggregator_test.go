package generation

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cowelltechlab/ipse-student-dashboard-backend-sub000/internal/cache"
	"github.com/cowelltechlab/ipse-student-dashboard-backend-sub000/testutil/mocks"
	"github.com/cowelltechlab/ipse-student-dashboard-backend-sub000/types"
)

func seedStores() (*mocks.RecordStore, *mocks.ProfileStore) {
	rs := mocks.NewRecordStore()
	rs.Assignments["a1"] = &types.AssignmentRecord{ID: "a1", Title: "Essay", ClassID: "c1", Type: "essay"}
	rs.Students["s1"] = &types.StudentRecord{ID: "s1", FirstName: "Jordan", CohortTag: "A"}
	rs.Classes["c1"] = &types.ClassRecord{ID: "c1", Name: "English 9"}
	rs.AssignmentStudents["a1"] = "s1"

	ps := mocks.NewProfileStore()
	ps.Profiles["s1"] = &types.StudentProfile{StudentID: "s1", Strengths: "discussion"}
	return rs, ps
}

func TestAggregator_MergesAllSources(t *testing.T) {
	t.Parallel()

	rs, ps := seedStores()
	agg := NewAggregator(rs, ps, nil, nil)

	rec, err := agg.Aggregate(context.Background(), "a1", "s1")
	require.NoError(t, err)
	assert.Equal(t, "Essay", rec.Assignment.Title)
	assert.Equal(t, "Jordan", rec.Student.FirstName)
	assert.Equal(t, "English 9", rec.Class.Name)
	assert.Equal(t, "discussion", rec.Profile.Strengths)
}

func TestAggregator_MissingRecordsAreNotFound(t *testing.T) {
	t.Parallel()

	rs, ps := seedStores()
	agg := NewAggregator(rs, ps, nil, nil)
	ctx := context.Background()

	_, err := agg.Aggregate(ctx, "missing", "s1")
	assert.Equal(t, types.ErrNotFound, types.CodeOf(err))

	_, err = agg.Aggregate(ctx, "a1", "missing")
	assert.Equal(t, types.ErrNotFound, types.CodeOf(err))

	delete(ps.Profiles, "s1")
	_, err = agg.Aggregate(ctx, "a1", "s1")
	assert.Equal(t, types.ErrNotFound, types.CodeOf(err))
}

func TestAggregator_UpstreamErrorsPropagate(t *testing.T) {
	t.Parallel()

	rs, ps := seedStores()
	rs.Err = types.NewError(types.ErrUpstream, "connection refused").WithRetryable(true)
	agg := NewAggregator(rs, ps, nil, nil)

	_, err := agg.Aggregate(context.Background(), "a1", "s1")
	require.Error(t, err)
	assert.Equal(t, types.ErrUpstream, types.CodeOf(err))
	assert.True(t, types.IsRetryable(err))
}

func TestAggregator_CacheShortCircuitsLookups(t *testing.T) {
	t.Parallel()

	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	contextCache := cache.NewWithClient(client, time.Minute, nil)
	defer contextCache.Close()

	rs, ps := seedStores()
	agg := NewAggregator(rs, ps, contextCache, nil)
	ctx := context.Background()

	first, err := agg.Aggregate(ctx, "a1", "s1")
	require.NoError(t, err)

	// Break the backing stores; the cached record must still be served.
	rs.Err = types.NewError(types.ErrUpstream, "down")
	second, err := agg.Aggregate(ctx, "a1", "s1")
	require.NoError(t, err)
	assert.Equal(t, first.Assignment.ID, second.Assignment.ID)
	assert.Equal(t, first.Profile.Strengths, second.Profile.Strengths)
}
