package types

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fullDocument() StructuredDocument {
	return StructuredDocument{
		InstructionsHTML:   "<p>instructions</p>",
		StepByStepPlanHTML: "<ol><li>plan</li></ol>",
		PromptsHTML:        "<p>prompts</p>",
		SupportTools: SupportTools{
			ToolsHTML:       "<ul><li>tools</li></ul>",
			AIPromptingHTML: "<p>prompting</p>",
			AIPolicyHTML:    "<p>policy</p>",
		},
		MotivationalMessageHTML: "<p>you got this</p>",
	}
}

func TestStructuredDocumentMarshalOrder(t *testing.T) {
	data, err := json.Marshal(fullDocument())
	require.NoError(t, err)

	s := string(data)
	order := []string{
		KeyInstructions, KeyStepByStepPlan, KeyPrompts,
		KeySupportTools, KeyToolsHTML, KeyAIPromptingHTML, KeyAIPolicyHTML,
		KeyMotivationalMessage,
	}
	last := -1
	for _, key := range order {
		idx := strings.Index(s, `"`+key+`"`)
		require.GreaterOrEqual(t, idx, 0, "key %q missing from output", key)
		assert.Greater(t, idx, last, "key %q out of order", key)
		last = idx
	}
}

func TestStructuredDocumentMarshalPrunesEmptySections(t *testing.T) {
	doc := StructuredDocument{InstructionsHTML: "<p>only</p>"}

	data, err := json.Marshal(doc)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	assert.Len(t, m, 1)
	assert.Contains(t, m, KeyInstructions)
	assert.NotContains(t, m, KeySupportTools)
}

func TestStructuredDocumentRoundTrip(t *testing.T) {
	doc := fullDocument()

	data, err := json.Marshal(doc)
	require.NoError(t, err)

	var decoded StructuredDocument
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, doc, decoded)
}

func TestStructuredDocumentSetSection(t *testing.T) {
	var doc StructuredDocument

	require.NoError(t, doc.SetSection(KeyInstructions, "<p>a</p>"))
	require.NoError(t, doc.SetSection(KeySupportTools+"."+KeyAIPolicyHTML, "<p>b</p>"))
	assert.Equal(t, "<p>a</p>", doc.InstructionsHTML)
	assert.Equal(t, "<p>b</p>", doc.SupportTools.AIPolicyHTML)

	err := doc.SetSection("bogusKey", "<p>c</p>")
	assert.Error(t, err)
}

func TestFinalContentDiscriminant(t *testing.T) {
	assert.True(t, FinalContent{}.IsZero())

	legacy := FinalContent{JSONContent: &StructuredDocument{InstructionsHTML: "<p>x</p>"}}
	assert.True(t, legacy.IsLegacy())
	assert.False(t, legacy.IsZero())

	current := FinalContent{HTMLContent: "<div>x</div>"}
	assert.False(t, current.IsLegacy())
}

func TestVersionDocumentCloneDoesNotAlias(t *testing.T) {
	doc := &VersionDocument{
		ID:                "v1",
		GeneratedOptions:  []GeneratedOption{{InternalID: "o1", Name: "one"}},
		SelectedOptionIDs: []string{"o1"},
		GenerationHistory: []GenerationSnapshot{{GenerationType: GenerationEdit}},
		RatingData:        map[string]any{"goal_alignment": 4},
	}

	clone := doc.Clone()
	clone.GeneratedOptions[0].Name = "changed"
	clone.SelectedOptionIDs[0] = "o2"
	clone.RatingData["goal_alignment"] = 1
	clone.GenerationHistory = append(clone.GenerationHistory, GenerationSnapshot{})

	assert.Equal(t, "one", doc.GeneratedOptions[0].Name)
	assert.Equal(t, "o1", doc.SelectedOptionIDs[0])
	assert.Equal(t, 4, doc.RatingData["goal_alignment"])
	assert.Len(t, doc.GenerationHistory, 1)
}
