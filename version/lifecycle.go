package version

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cowelltechlab/ipse-student-dashboard-backend-sub000/internal/metrics"
	"github.com/cowelltechlab/ipse-student-dashboard-backend-sub000/types"
)

// ManagerConfig bounds the optimistic retry loops.
type ManagerConfig struct {
	// FinalizeRetries is how many times a conditional write is re-attempted
	// after a revision conflict before giving up.
	FinalizeRetries int
	// MigrateParallelism caps concurrent document migrations in MigrateAll.
	MigrateParallelism int
}

// DefaultManagerConfig returns conservative retry and parallelism bounds.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		FinalizeRetries:    3,
		MigrateParallelism: 4,
	}
}

// Manager applies lifecycle operations to version documents. All mutations go
// through the store's revision-conditional Replace, so concurrent writers
// either serialize cleanly or surface CONCURRENCY_CONFLICT.
type Manager struct {
	store   Store
	metrics *metrics.Collector
	logger  *zap.Logger
	cfg     ManagerConfig

	now func() time.Time
}

// NewManager wires a lifecycle manager over the given store.
func NewManager(store Store, collector *metrics.Collector, logger *zap.Logger, cfg ManagerConfig) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if collector == nil {
		collector = metrics.NewCollector("ipse", nil)
	}
	if cfg.FinalizeRetries <= 0 {
		cfg.FinalizeRetries = DefaultManagerConfig().FinalizeRetries
	}
	if cfg.MigrateParallelism <= 0 {
		cfg.MigrateParallelism = DefaultManagerConfig().MigrateParallelism
	}
	return &Manager{
		store:   store,
		metrics: collector,
		logger:  logger.With(zap.String("component", "version_manager")),
		cfg:     cfg,
		now:     time.Now,
	}
}

// nextVersionNumber returns one past the highest existing number for the
// assignment, or 1 when the assignment has no versions yet.
func (m *Manager) nextVersionNumber(ctx context.Context, assignmentID string) (int, error) {
	docs, err := m.store.ListByAssignment(ctx, assignmentID)
	if err != nil {
		return 0, err
	}
	next := 1
	for _, d := range docs {
		if d.VersionNumber >= next {
			next = d.VersionNumber + 1
		}
	}
	return next, nil
}

// Create inserts a fresh version document for the assignment. Options get
// internal ids assigned when missing. Numbering races with concurrent
// creators are resolved by recomputing the number and retrying on a
// uniqueness conflict.
func (m *Manager) Create(ctx context.Context, assignmentID, studentID, modifierID string, options []types.GeneratedOption) (*types.VersionDocument, error) {
	return m.create(ctx, assignmentID, studentID, modifierID, options, nil)
}

// create inserts the fully built document, selected ids included, in a single
// write so no partially populated version can ever be durable.
func (m *Manager) create(ctx context.Context, assignmentID, studentID, modifierID string, options []types.GeneratedOption, selectedIDs []string) (*types.VersionDocument, error) {
	opts := make([]types.GeneratedOption, len(options))
	copy(opts, options)
	for i := range opts {
		if opts[i].InternalID == "" {
			opts[i].InternalID = uuid.NewString()
		}
	}

	var lastErr error
	for attempt := 0; attempt <= m.cfg.FinalizeRetries; attempt++ {
		number, err := m.nextVersionNumber(ctx, assignmentID)
		if err != nil {
			return nil, err
		}
		doc := &types.VersionDocument{
			ID:                uuid.NewString(),
			AssignmentID:      assignmentID,
			StudentID:         studentID,
			VersionNumber:     number,
			GeneratedOptions:  opts,
			SelectedOptionIDs: append([]string(nil), selectedIDs...),
			Finalized:         false,
			ModifierID:        modifierID,
			DateModified:      m.now(),
		}
		if err := m.store.Insert(ctx, doc); err != nil {
			if types.IsCode(err, types.ErrConcurrencyConflict) {
				lastErr = err
				continue
			}
			return nil, err
		}
		return doc, nil
	}
	return nil, lastErr
}

// Replay creates the next version for the assignment seeded from a prior
// one: options are copied, their selected flags re-marked from the prior
// version's selected option ids, and the ids carried over. The new version is
// persisted with one Insert.
func (m *Manager) Replay(ctx context.Context, assignmentID, priorVersionID, modifierID string) (*types.VersionDocument, error) {
	prior, err := m.store.Get(ctx, priorVersionID)
	if err != nil {
		return nil, err
	}
	if prior.AssignmentID != assignmentID {
		return nil, types.Errorf(types.ErrPreconditionFailed,
			"version %s belongs to assignment %s, not %s", priorVersionID, prior.AssignmentID, assignmentID)
	}

	selected := prior.SelectedSet()
	opts := make([]types.GeneratedOption, len(prior.GeneratedOptions))
	copy(opts, prior.GeneratedOptions)
	for i := range opts {
		opts[i].Selected = selected[opts[i].InternalID]
	}

	return m.create(ctx, assignmentID, prior.StudentID, modifierID, opts, prior.SelectedOptionIDs)
}

// SetSelection records which options the user selected and their free-text
// notes, and re-marks the selected flag on the stored options.
func (m *Manager) SetSelection(ctx context.Context, versionID string, optionIDs []string, notes string) (*types.VersionDocument, error) {
	doc, err := m.store.Get(ctx, versionID)
	if err != nil {
		return nil, err
	}
	doc.SelectedOptionIDs = append([]string(nil), optionIDs...)
	selected := doc.SelectedSet()
	for i := range doc.GeneratedOptions {
		doc.GeneratedOptions[i].Selected = selected[doc.GeneratedOptions[i].InternalID]
	}
	if notes != "" {
		doc.AdditionalNotes = notes
	}
	doc.DateModified = m.now()
	if err := m.store.Replace(ctx, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// pushHistory records the document's current content before it is
// overwritten. The first time the document acquires content, original_content
// is also pinned. The caller writes the document back in one Replace, so the
// history entry and the overwrite land atomically.
func (m *Manager) pushHistory(doc *types.VersionDocument, kind types.GenerationType) {
	if doc.FinalContent.IsZero() {
		return
	}
	prior := doc.FinalContent
	if doc.OriginalContent == nil {
		cp := prior
		doc.OriginalContent = &cp
	}
	doc.GenerationHistory = append(doc.GenerationHistory, types.GenerationSnapshot{
		Content:        prior,
		GenerationType: kind,
		Timestamp:      m.now(),
	})
}

// ApplyGeneration overwrites the document's content with a freshly generated
// structured document, preserving the prior content in generation_history and
// clearing the finalized flag.
func (m *Manager) ApplyGeneration(ctx context.Context, versionID string, content *types.StructuredDocument, modifierID string) (*types.VersionDocument, error) {
	doc, err := m.store.Get(ctx, versionID)
	if err != nil {
		return nil, err
	}
	m.pushHistory(doc, types.GenerationRegeneration)
	doc.FinalContent = types.FinalContent{Document: content}
	if doc.OriginalContent == nil {
		cp := doc.FinalContent
		doc.OriginalContent = &cp
	}
	doc.Finalized = false
	doc.ModifierID = modifierID
	doc.DateModified = m.now()
	if err := m.store.Replace(ctx, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// ApplyEdit overwrites the document's content with operator-supplied HTML,
// preserving the prior content in generation_history tagged as an edit.
func (m *Manager) ApplyEdit(ctx context.Context, versionID, html, modifierID string) (*types.VersionDocument, error) {
	doc, err := m.store.Get(ctx, versionID)
	if err != nil {
		return nil, err
	}
	m.pushHistory(doc, types.GenerationEdit)
	doc.FinalContent = types.FinalContent{HTMLContent: html}
	if doc.OriginalContent == nil {
		cp := doc.FinalContent
		doc.OriginalContent = &cp
	}
	doc.Finalized = false
	doc.ModifierID = modifierID
	doc.DateModified = m.now()
	if err := m.store.Replace(ctx, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// SetFinalized flips the finalized flag. Finalizing a version also unsets the
// flag on every other version of the same assignment, so at most one version
// per assignment is ever finalized. Revision conflicts restart the whole
// sequence, bounded by FinalizeRetries.
func (m *Manager) SetFinalized(ctx context.Context, versionID string, finalized bool) (*types.VersionDocument, error) {
	var lastErr error
	for attempt := 0; attempt <= m.cfg.FinalizeRetries; attempt++ {
		doc, err := m.store.Get(ctx, versionID)
		if err != nil {
			return nil, err
		}

		if finalized {
			siblings, err := m.store.ListByAssignment(ctx, doc.AssignmentID)
			if err != nil {
				return nil, err
			}
			conflicted := false
			for _, sib := range siblings {
				if sib.ID == doc.ID || !sib.Finalized {
					continue
				}
				sib.Finalized = false
				sib.DateModified = m.now()
				if err := m.store.Replace(ctx, sib); err != nil {
					if types.IsCode(err, types.ErrConcurrencyConflict) {
						m.metrics.FinalizeConflict()
						lastErr = err
						conflicted = true
						break
					}
					return nil, err
				}
			}
			if conflicted {
				continue
			}
		}

		doc.Finalized = finalized
		doc.DateModified = m.now()
		if err := m.store.Replace(ctx, doc); err != nil {
			if types.IsCode(err, types.ErrConcurrencyConflict) {
				m.metrics.FinalizeConflict()
				lastErr = err
				continue
			}
			return nil, err
		}
		return doc, nil
	}
	m.logger.Warn("finalize retries exhausted",
		zap.String("version_id", versionID),
		zap.Int("retries", m.cfg.FinalizeRetries))
	return nil, lastErr
}

// SubmitRating merges the given section ratings into rating_data without
// clearing sections the submission omits, and appends the merged state to the
// append-only rating_history.
func (m *Manager) SubmitRating(ctx context.Context, versionID, raterID string, ratings map[string]any) (*types.VersionDocument, error) {
	var lastErr error
	for attempt := 0; attempt <= m.cfg.FinalizeRetries; attempt++ {
		doc, err := m.store.Get(ctx, versionID)
		if err != nil {
			return nil, err
		}
		if doc.RatingData == nil {
			doc.RatingData = make(map[string]any, len(ratings))
		}
		for k, v := range ratings {
			doc.RatingData[k] = v
		}
		merged := make(map[string]any, len(doc.RatingData))
		for k, v := range doc.RatingData {
			merged[k] = v
		}
		doc.RatingHistory = append(doc.RatingHistory, types.RatingSnapshot{
			Ratings:   merged,
			RaterID:   raterID,
			Timestamp: m.now(),
		})
		doc.DateModified = m.now()
		if err := m.store.Replace(ctx, doc); err != nil {
			if types.IsCode(err, types.ErrConcurrencyConflict) {
				lastErr = err
				continue
			}
			return nil, err
		}
		return doc, nil
	}
	return nil, lastErr
}

// Get returns a single version document.
func (m *Manager) Get(ctx context.Context, versionID string) (*types.VersionDocument, error) {
	return m.store.Get(ctx, versionID)
}

// List returns every version document for the assignment ordered by number.
func (m *Manager) List(ctx context.Context, assignmentID string) ([]*types.VersionDocument, error) {
	return m.store.ListByAssignment(ctx, assignmentID)
}

// Delete removes a version document.
func (m *Manager) Delete(ctx context.Context, versionID string) error {
	return m.store.Delete(ctx, versionID)
}
