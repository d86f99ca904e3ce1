package types

// AssignmentRecord is the relational-store view of an assignment.
type AssignmentRecord struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Body    string `json:"body"`
	ClassID string `json:"class_id"`
	Type    string `json:"type"`
}

// StudentRecord is the relational-store view of a student.
type StudentRecord struct {
	ID           string `json:"id"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	ReadingLevel string `json:"reading_level"`
	WritingLevel string `json:"writing_level"`
	CohortTag    string `json:"cohort_tag"`
}

// ClassRecord is the relational-store view of a class.
type ClassRecord struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	LearningGoal string `json:"learning_goal"`
}

// StudentProfile is the document-store view of a student's extended profile.
type StudentProfile struct {
	StudentID         string `json:"student_id" bson:"_id"`
	Strengths         string `json:"strengths" bson:"strengths"`
	Challenges        string `json:"challenges" bson:"challenges"`
	Goals             string `json:"goals" bson:"goals"`
	PreferredSupports string `json:"preferred_supports" bson:"preferred_supports"`
}

// ContextRecord is the merged, per-request generation context. It is owned
// by the request that built it and discarded after prompt construction.
// Identity fields come from the relational store; profile-only fields come
// from the document store.
type ContextRecord struct {
	Assignment AssignmentRecord `json:"assignment"`
	Student    StudentRecord    `json:"student"`
	Class      ClassRecord      `json:"class"`
	Profile    StudentProfile   `json:"profile"`
}
