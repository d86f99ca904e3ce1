package version

import (
	"context"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cowelltechlab/ipse-student-dashboard-backend-sub000/testutil/mocks"
	"github.com/cowelltechlab/ipse-student-dashboard-backend-sub000/types"
)

func legacyDoc(id string, marker string) *types.VersionDocument {
	return &types.VersionDocument{
		ID:            id,
		AssignmentID:  "a1",
		StudentID:     "s1",
		VersionNumber: 1,
		FinalContent: types.FinalContent{
			JSONContent: &types.StructuredDocument{
				InstructionsHTML:        "<p>" + marker + "</p>",
				StepByStepPlanHTML:      "<ol><li>plan</li></ol>",
				PromptsHTML:             "<p>prompt</p>",
				SupportTools:            types.SupportTools{ToolsHTML: "<p>tools</p>", AIPolicyHTML: "<p>policy</p>"},
				MotivationalMessageHTML: "<p>go</p>",
			},
		},
	}
}

func TestRenderDocumentHTML_HeadingOrder(t *testing.T) {
	t.Parallel()

	html := RenderDocumentHTML(legacyDoc("v1", "read").FinalContent.JSONContent)

	headings := []string{
		"<h2>Instructions</h2>",
		"<h2>Step-by-Step Plan</h2>",
		"<h2>Prompts</h2>",
		"<h2>Tools and Resources</h2>",
		"<h2>Motivational Message</h2>",
	}
	last := -1
	for _, h := range headings {
		idx := strings.Index(html, h)
		require.GreaterOrEqual(t, idx, 0, "missing heading %s", h)
		assert.Greater(t, idx, last, "heading %s out of order", h)
		last = idx
	}
	assert.Contains(t, html, "<h3>Tools</h3>")
	assert.Contains(t, html, "<h3>AI Policy</h3>")
	assert.NotContains(t, html, "<h3>AI Prompting</h3>", "empty subsections are skipped")
	assert.Contains(t, html, "<p>read</p>")
}

func TestManager_RenderHTML_ShapeResolution(t *testing.T) {
	t.Parallel()

	m, store := newTestManager()
	ctx := context.Background()

	// Current HTML shape returns as-is.
	htmlDoc := &types.VersionDocument{ID: "v-html", AssignmentID: "a1", VersionNumber: 1,
		FinalContent: types.FinalContent{HTMLContent: "<p>edited</p>"}}
	store.Seed(htmlDoc)
	out, err := m.RenderHTML(ctx, "v-html")
	require.NoError(t, err)
	assert.Equal(t, "<p>edited</p>", out)

	// Structured shape renders without persisting.
	structDoc := &types.VersionDocument{ID: "v-doc", AssignmentID: "a2", VersionNumber: 1,
		FinalContent: types.FinalContent{Document: sampleDocument("gen")}}
	store.Seed(structDoc)
	out, err = m.RenderHTML(ctx, "v-doc")
	require.NoError(t, err)
	assert.Contains(t, out, "<p>gen</p>")
	stored, err := store.Get(ctx, "v-doc")
	require.NoError(t, err)
	assert.Empty(t, stored.FinalContent.HTMLContent)

	// Empty content renders empty.
	store.Seed(&types.VersionDocument{ID: "v-empty", AssignmentID: "a3", VersionNumber: 1})
	out, err = m.RenderHTML(ctx, "v-empty")
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestManager_RenderHTML_MigratesLegacyOnRead(t *testing.T) {
	t.Parallel()

	m, store := newTestManager()
	ctx := context.Background()
	store.Seed(legacyDoc("v-legacy", "migrate me"))

	out, err := m.RenderHTML(ctx, "v-legacy")
	require.NoError(t, err)
	assert.Contains(t, out, "<p>migrate me</p>")

	// The rendered form was persisted back; the document is no longer legacy.
	stored, err := store.Get(ctx, "v-legacy")
	require.NoError(t, err)
	assert.Equal(t, out, stored.FinalContent.HTMLContent)
	assert.False(t, stored.FinalContent.IsLegacy())
}

func TestManager_MigrateVersion(t *testing.T) {
	t.Parallel()

	m, store := newTestManager()
	ctx := context.Background()
	store.Seed(legacyDoc("v1", "x"))

	migrated, err := m.MigrateVersion(ctx, "v1")
	require.NoError(t, err)
	assert.True(t, migrated)

	// Second run is a no-op.
	migrated, err = m.MigrateVersion(ctx, "v1")
	require.NoError(t, err)
	assert.False(t, migrated)

	_, err = m.MigrateVersion(ctx, "missing")
	assert.Equal(t, types.ErrNotFound, types.CodeOf(err))
}

func TestManager_MigrateAll(t *testing.T) {
	t.Parallel()

	m, store := newTestManager()
	ctx := context.Background()

	store.Seed(legacyDoc("v1", "one"))
	store.Seed(legacyDoc("v2", "two"))
	store.Seed(&types.VersionDocument{ID: "v3", AssignmentID: "a1", VersionNumber: 3,
		FinalContent: types.FinalContent{HTMLContent: "<p>already current</p>"}})

	summary, err := m.MigrateAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Scanned)
	assert.Equal(t, 2, summary.Migrated)
	assert.Zero(t, summary.Failed)
	assert.Empty(t, summary.Errors)

	legacy, err := store.ListLegacy(ctx)
	require.NoError(t, err)
	assert.Empty(t, legacy)
}

func TestProperty_MigrationDeterministicAndIdempotent(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50

	properties := gopter.NewProperties(parameters)

	fragment := gen.RegexMatch(`<p>[a-z0-9 ]{0,40}</p>`)

	properties.Property("rendering is deterministic and a second migration is a no-op", prop.ForAll(
		func(instructions, plan, tools string) bool {
			doc := &types.StructuredDocument{
				InstructionsHTML:   instructions,
				StepByStepPlanHTML: plan,
				SupportTools:       types.SupportTools{ToolsHTML: tools},
			}
			if RenderDocumentHTML(doc) != RenderDocumentHTML(doc) {
				return false
			}

			store := mocks.NewVersionStore()
			m := NewManager(store, nil, nil, DefaultManagerConfig())
			store.Seed(&types.VersionDocument{ID: "v1", AssignmentID: "a1", VersionNumber: 1,
				FinalContent: types.FinalContent{JSONContent: doc}})

			ctx := context.Background()
			first, err := m.MigrateVersion(ctx, "v1")
			if err != nil || !first {
				return false
			}
			after, err := store.Get(ctx, "v1")
			if err != nil || after.FinalContent.HTMLContent != RenderDocumentHTML(doc) {
				return false
			}
			second, err := m.MigrateVersion(ctx, "v1")
			return err == nil && !second
		},
		fragment, fragment, fragment,
	))

	properties.TestingRun(t)
}
