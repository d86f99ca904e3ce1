// Package records provides the relational record store: point lookups for
// assignments, students, and classes. The engine depends only on the fields
// surfaced in the types package, not on this schema.
package records

import "time"

// Class is the relational class row.
type Class struct {
	ID           string `gorm:"primaryKey"`
	Name         string
	LearningGoal string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Student is the relational student row.
type Student struct {
	ID           string `gorm:"primaryKey"`
	FirstName    string
	LastName     string
	ReadingLevel string
	WritingLevel string
	CohortTag    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Assignment is the relational assignment row.
type Assignment struct {
	ID        string `gorm:"primaryKey"`
	Title     string
	Body      string
	Type      string
	ClassID   string `gorm:"index"`
	StudentID string `gorm:"index"`
	CreatedAt time.Time
	UpdatedAt time.Time
}
