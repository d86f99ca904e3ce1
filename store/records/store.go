package records

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/cowelltechlab/ipse-student-dashboard-backend-sub000/types"
)

// Store reads assignment, student, and class rows from the relational store.
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewStore creates a record store around an open gorm handle.
func NewStore(db *gorm.DB, logger *zap.Logger) *Store {
	return &Store{
		db:     db,
		logger: logger.With(zap.String("component", "record_store")),
	}
}

// AutoMigrate creates the record tables. Production deployments use the
// SQL migrations instead; this exists for sqlite-backed tests.
func (s *Store) AutoMigrate() error {
	return s.db.AutoMigrate(&Class{}, &Student{}, &Assignment{})
}

// GetAssignment returns one assignment by id.
func (s *Store) GetAssignment(ctx context.Context, id string) (*types.AssignmentRecord, error) {
	var row Assignment
	if err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		return nil, s.mapError(err, "assignment", id)
	}
	return &types.AssignmentRecord{
		ID:      row.ID,
		Title:   row.Title,
		Body:    row.Body,
		ClassID: row.ClassID,
		Type:    row.Type,
	}, nil
}

// GetAssignmentStudentID returns the owning student of an assignment.
func (s *Store) GetAssignmentStudentID(ctx context.Context, id string) (string, error) {
	var row Assignment
	if err := s.db.WithContext(ctx).Select("id", "student_id").First(&row, "id = ?", id).Error; err != nil {
		return "", s.mapError(err, "assignment", id)
	}
	return row.StudentID, nil
}

// GetStudent returns one student by id.
func (s *Store) GetStudent(ctx context.Context, id string) (*types.StudentRecord, error) {
	var row Student
	if err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		return nil, s.mapError(err, "student", id)
	}
	return &types.StudentRecord{
		ID:           row.ID,
		FirstName:    row.FirstName,
		LastName:     row.LastName,
		ReadingLevel: row.ReadingLevel,
		WritingLevel: row.WritingLevel,
		CohortTag:    row.CohortTag,
	}, nil
}

// GetClass returns one class by id.
func (s *Store) GetClass(ctx context.Context, id string) (*types.ClassRecord, error) {
	var row Class
	if err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		return nil, s.mapError(err, "class", id)
	}
	return &types.ClassRecord{
		ID:           row.ID,
		Name:         row.Name,
		LearningGoal: row.LearningGoal,
	}, nil
}

// mapError translates gorm errors into engine error kinds.
func (s *Store) mapError(err error, kind, id string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return types.Errorf(types.ErrNotFound, "%s %s not found", kind, id)
	}
	s.logger.Error("record lookup failed",
		zap.String("kind", kind),
		zap.String("id", id),
		zap.Error(err),
	)
	return types.Errorf(types.ErrUpstream, "%s lookup failed", kind).
		WithCause(err).
		WithRetryable(true)
}
