package mocks

import (
	"context"
	"sort"
	"sync"

	"github.com/cowelltechlab/ipse-student-dashboard-backend-sub000/types"
)

// RecordStore is an in-memory relational-store double.
type RecordStore struct {
	mu          sync.RWMutex
	Assignments map[string]*types.AssignmentRecord
	Students    map[string]*types.StudentRecord
	Classes     map[string]*types.ClassRecord
	// AssignmentStudents maps assignment id to owning student id.
	AssignmentStudents map[string]string

	// Err, when set, fails every lookup with it.
	Err error
}

// NewRecordStore returns an empty record store.
func NewRecordStore() *RecordStore {
	return &RecordStore{
		Assignments:        make(map[string]*types.AssignmentRecord),
		Students:           make(map[string]*types.StudentRecord),
		Classes:            make(map[string]*types.ClassRecord),
		AssignmentStudents: make(map[string]string),
	}
}

func (s *RecordStore) GetAssignment(_ context.Context, id string) (*types.AssignmentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.Err != nil {
		return nil, s.Err
	}
	a, ok := s.Assignments[id]
	if !ok {
		return nil, types.Errorf(types.ErrNotFound, "assignment %s not found", id)
	}
	cp := *a
	return &cp, nil
}

func (s *RecordStore) GetStudent(_ context.Context, id string) (*types.StudentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.Err != nil {
		return nil, s.Err
	}
	st, ok := s.Students[id]
	if !ok {
		return nil, types.Errorf(types.ErrNotFound, "student %s not found", id)
	}
	cp := *st
	return &cp, nil
}

func (s *RecordStore) GetClass(_ context.Context, id string) (*types.ClassRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.Err != nil {
		return nil, s.Err
	}
	c, ok := s.Classes[id]
	if !ok {
		return nil, types.Errorf(types.ErrNotFound, "class %s not found", id)
	}
	cp := *c
	return &cp, nil
}

func (s *RecordStore) GetAssignmentStudentID(_ context.Context, id string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.Err != nil {
		return "", s.Err
	}
	sid, ok := s.AssignmentStudents[id]
	if !ok {
		return "", types.Errorf(types.ErrNotFound, "assignment %s not found", id)
	}
	return sid, nil
}

// ProfileStore is an in-memory student-profile double.
type ProfileStore struct {
	mu       sync.RWMutex
	Profiles map[string]*types.StudentProfile
	Err      error
}

// NewProfileStore returns an empty profile store.
func NewProfileStore() *ProfileStore {
	return &ProfileStore{Profiles: make(map[string]*types.StudentProfile)}
}

func (s *ProfileStore) GetProfile(_ context.Context, studentID string) (*types.StudentProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.Err != nil {
		return nil, s.Err
	}
	p, ok := s.Profiles[studentID]
	if !ok {
		return nil, types.Errorf(types.ErrNotFound, "profile for student %s not found", studentID)
	}
	cp := *p
	return &cp, nil
}

// VersionStore is an in-memory version-document store with the same
// revision-token compare-and-swap semantics as the real document store, so
// lifecycle concurrency behavior can be tested without a server.
type VersionStore struct {
	mu   sync.Mutex
	docs map[string]*types.VersionDocument

	// ReplaceHook, when set, runs once just before the next Replace applies
	// and is then cleared. Tests use it to interleave a concurrent writer at
	// the worst possible moment.
	ReplaceHook func(doc *types.VersionDocument)
}

// NewVersionStore returns an empty version store.
func NewVersionStore() *VersionStore {
	return &VersionStore{docs: make(map[string]*types.VersionDocument)}
}

// Seed inserts a document directly, bypassing uniqueness checks. A zero
// revision is bumped to 1.
func (s *VersionStore) Seed(doc *types.VersionDocument) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := doc.Clone()
	if cp.Revision == 0 {
		cp.Revision = 1
	}
	s.docs[cp.ID] = cp
	doc.Revision = cp.Revision
}

func (s *VersionStore) Insert(_ context.Context, doc *types.VersionDocument) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.docs[doc.ID]; exists {
		return types.Errorf(types.ErrConcurrencyConflict, "version %s already exists", doc.ID)
	}
	for _, existing := range s.docs {
		if existing.AssignmentID == doc.AssignmentID && existing.VersionNumber == doc.VersionNumber {
			return types.Errorf(types.ErrConcurrencyConflict,
				"assignment %s already has version %d", doc.AssignmentID, doc.VersionNumber)
		}
	}
	doc.Revision = 1
	s.docs[doc.ID] = doc.Clone()
	return nil
}

func (s *VersionStore) Get(_ context.Context, id string) (*types.VersionDocument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok {
		return nil, types.Errorf(types.ErrNotFound, "version %s not found", id)
	}
	return doc.Clone(), nil
}

func (s *VersionStore) ListByAssignment(_ context.Context, assignmentID string) ([]*types.VersionDocument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*types.VersionDocument
	for _, doc := range s.docs {
		if doc.AssignmentID == assignmentID {
			out = append(out, doc.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VersionNumber < out[j].VersionNumber })
	return out, nil
}

func (s *VersionStore) Replace(_ context.Context, doc *types.VersionDocument) error {
	s.mu.Lock()
	hook := s.ReplaceHook
	s.ReplaceHook = nil
	s.mu.Unlock()
	if hook != nil {
		hook(doc)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.docs[doc.ID]
	if !ok {
		return types.Errorf(types.ErrNotFound, "version %s not found", doc.ID)
	}
	if current.Revision != doc.Revision {
		return types.Errorf(types.ErrConcurrencyConflict,
			"version %s revision %d does not match stored %d", doc.ID, doc.Revision, current.Revision)
	}
	next := doc.Clone()
	next.Revision++
	s.docs[doc.ID] = next
	doc.Revision = next.Revision
	return nil
}

func (s *VersionStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[id]; !ok {
		return types.Errorf(types.ErrNotFound, "version %s not found", id)
	}
	delete(s.docs, id)
	return nil
}

func (s *VersionStore) ListLegacy(_ context.Context) ([]*types.VersionDocument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*types.VersionDocument
	for _, doc := range s.docs {
		if doc.FinalContent.IsLegacy() {
			out = append(out, doc.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// BumpRevision force-advances a stored document's revision, simulating a
// concurrent writer that slipped in between a read and a conditional write.
func (s *VersionStore) BumpRevision(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if doc, ok := s.docs[id]; ok {
		doc.Revision++
	}
}
