package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cowelltechlab/ipse-student-dashboard-backend-sub000/types"
)

func newTestCache(t *testing.T) (*ContextCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	c := NewWithClient(client, time.Minute, zaptest.NewLogger(t))
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func sampleRecord() *types.ContextRecord {
	return &types.ContextRecord{
		Assignment: types.AssignmentRecord{ID: "a1", Title: "Essay", Type: "essay"},
		Student:    types.StudentRecord{ID: "s1", CohortTag: "cohort_a"},
		Class:      types.ClassRecord{ID: "c1", Name: "English 101"},
		Profile:    types.StudentProfile{StudentID: "s1", Strengths: "verbal reasoning"},
	}
}

func TestGetMissReturnsNil(t *testing.T) {
	c, _ := newTestCache(t)
	assert.Nil(t, c.Get(context.Background(), "a1", "s1"))
}

func TestSetThenGet(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	record := sampleRecord()
	c.Set(ctx, record)

	got := c.Get(ctx, "a1", "s1")
	require.NotNil(t, got)
	assert.Equal(t, record, got)
}

func TestEntryExpires(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	c.Set(ctx, sampleRecord())
	mr.FastForward(2 * time.Minute)

	assert.Nil(t, c.Get(ctx, "a1", "s1"))
}

func TestInvalidateStudentDropsAllAssignments(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	first := sampleRecord()
	second := sampleRecord()
	second.Assignment.ID = "a2"
	c.Set(ctx, first)
	c.Set(ctx, second)

	c.InvalidateStudent(ctx, "s1")

	assert.Nil(t, c.Get(ctx, "a1", "s1"))
	assert.Nil(t, c.Get(ctx, "a2", "s1"))
}

func TestCorruptEntryIsDropped(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, mr.Set("ctx:a1:s1", "{not json"))
	assert.Nil(t, c.Get(ctx, "a1", "s1"))
	// The corrupt entry is deleted on read
	assert.False(t, mr.Exists("ctx:a1:s1"))
}
