package types

import "time"

// GenerationType tags a generation-history entry with what produced it.
type GenerationType string

const (
	GenerationRegeneration GenerationType = "regeneration"
	GenerationEdit         GenerationType = "edit"
)

// GeneratedOption is one alternative pathway offered to the student.
type GeneratedOption struct {
	InternalID    string `json:"internal_id" bson:"internal_id"`
	Name          string `json:"name" bson:"name"`
	Description   string `json:"description" bson:"description"`
	Justification string `json:"justification" bson:"justification"`
	Selected      bool   `json:"selected" bson:"selected"`
}

// FinalContent is a tagged variant of the persisted content shape. Exactly
// one of the fields is set; the discriminant is field presence, never
// runtime type inspection.
//
//   - Document: current shape written by generation
//   - HTMLContent: current shape written by manual edits and migration
//   - JSONContent: legacy five-key shape, migrated on read
type FinalContent struct {
	Document    *StructuredDocument `json:"document,omitempty" bson:"document,omitempty"`
	HTMLContent string              `json:"html_content,omitempty" bson:"html_content,omitempty"`
	JSONContent *StructuredDocument `json:"json_content,omitempty" bson:"json_content,omitempty"`
}

// IsZero reports whether no content variant is set.
func (c FinalContent) IsZero() bool {
	return c.Document == nil && c.HTMLContent == "" && c.JSONContent == nil
}

// IsLegacy reports whether the content is stored in the legacy json_content
// shape and has not yet been rendered to HTML.
func (c FinalContent) IsLegacy() bool {
	return c.HTMLContent == "" && c.Document == nil && c.JSONContent != nil
}

// GenerationSnapshot is one append-only generation-history entry.
type GenerationSnapshot struct {
	Content        FinalContent   `json:"content" bson:"content"`
	GenerationType GenerationType `json:"generation_type" bson:"generation_type"`
	Timestamp      time.Time      `json:"timestamp" bson:"timestamp"`
}

// RatingSnapshot is one append-only rating-history entry: the full merged
// rating state at submission time.
type RatingSnapshot struct {
	Ratings   map[string]any `json:"ratings" bson:"ratings"`
	RaterID   string         `json:"rater_id,omitempty" bson:"rater_id,omitempty"`
	Timestamp time.Time      `json:"timestamp" bson:"timestamp"`
}

// VersionDocument is one persisted generation/edit cycle of an assignment's
// adapted content, including its options, content, and histories.
type VersionDocument struct {
	ID                string               `json:"id" bson:"_id"`
	AssignmentID      string               `json:"assignment_id" bson:"assignment_id"`
	StudentID         string               `json:"student_id" bson:"student_id"`
	ModifierID        string               `json:"modifier_id" bson:"modifier_id"`
	VersionNumber     int                  `json:"version_number" bson:"version_number"`
	GeneratedOptions  []GeneratedOption    `json:"generated_options" bson:"generated_options"`
	SelectedOptionIDs []string             `json:"selected_option_ids" bson:"selected_option_ids"`
	AdditionalNotes   string               `json:"additional_notes" bson:"additional_notes"`
	SkillsForSuccess  string               `json:"skills_for_success" bson:"skills_for_success"`
	FinalContent      FinalContent         `json:"final_content" bson:"final_content"`
	OriginalContent   *FinalContent        `json:"original_content,omitempty" bson:"original_content,omitempty"`
	GenerationHistory []GenerationSnapshot `json:"generation_history" bson:"generation_history"`
	RatingHistory     []RatingSnapshot     `json:"rating_history" bson:"rating_history"`
	RatingData        map[string]any       `json:"rating_data,omitempty" bson:"rating_data,omitempty"`
	Finalized         bool                 `json:"finalized" bson:"finalized"`
	DateModified      time.Time            `json:"date_modified" bson:"date_modified"`

	// Revision is the optimistic-concurrency token. The document store
	// increments it on every replace and rejects a replace whose in-memory
	// revision no longer matches the stored one.
	Revision int64 `json:"revision" bson:"revision"`
}

// Clone returns a deep copy. History slices and options are copied so a
// snapshot pushed to history cannot alias a document that is about to be
// overwritten.
func (d *VersionDocument) Clone() *VersionDocument {
	if d == nil {
		return nil
	}
	out := *d
	out.GeneratedOptions = append([]GeneratedOption(nil), d.GeneratedOptions...)
	out.SelectedOptionIDs = append([]string(nil), d.SelectedOptionIDs...)
	out.GenerationHistory = append([]GenerationSnapshot(nil), d.GenerationHistory...)
	out.RatingHistory = append([]RatingSnapshot(nil), d.RatingHistory...)
	if d.RatingData != nil {
		out.RatingData = make(map[string]any, len(d.RatingData))
		for k, v := range d.RatingData {
			out.RatingData[k] = v
		}
	}
	if d.OriginalContent != nil {
		oc := *d.OriginalContent
		out.OriginalContent = &oc
	}
	return &out
}

// SelectedSet returns the selected option ids as a membership set.
func (d *VersionDocument) SelectedSet() map[string]bool {
	set := make(map[string]bool, len(d.SelectedOptionIDs))
	for _, id := range d.SelectedOptionIDs {
		set[id] = true
	}
	return set
}
