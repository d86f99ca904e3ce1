package generation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cowelltechlab/ipse-student-dashboard-backend-sub000/llm"
	"github.com/cowelltechlab/ipse-student-dashboard-backend-sub000/types"
)

func promptContext(cohort string) *types.ContextRecord {
	return &types.ContextRecord{
		Assignment: types.AssignmentRecord{
			ID:    "a1",
			Title: "Chapter 4 Essay",
			Body:  "Write a five-paragraph essay about the chapter.",
			Type:  "essay",
		},
		Student: types.StudentRecord{
			ID:        "s1",
			FirstName: "Jordan",
			LastName:  "Park",
			CohortTag: cohort,
		},
		Class: types.ClassRecord{
			ID:           "c1",
			Name:         "English 9",
			LearningGoal: "Analyze theme development",
		},
		Profile: types.StudentProfile{
			StudentID: "s1",
			Strengths: "verbal discussion",
		},
	}
}

func TestPromptBuilder_CohortSelection(t *testing.T) {
	t.Parallel()

	b, err := NewPromptBuilder(0, nil)
	require.NoError(t, err)

	promptA, err := b.Build(PromptRequest{Context: promptContext("A"), Mode: ModeSingleShot})
	require.NoError(t, err)
	promptB, err := b.Build(PromptRequest{Context: promptContext("B"), Mode: ModeSingleShot})
	require.NoError(t, err)

	require.Len(t, promptA.Messages, 2)
	assert.Equal(t, llm.RoleSystem, promptA.Messages[0].Role)
	assert.Equal(t, llm.RoleUser, promptA.Messages[1].Role)

	assert.Contains(t, promptA.Messages[1].Content, "strong scaffolding")
	assert.Contains(t, promptB.Messages[1].Content, "independent completion")
}

func TestPromptBuilder_ModeSpecificSystemMessage(t *testing.T) {
	t.Parallel()

	b, err := NewPromptBuilder(0, nil)
	require.NoError(t, err)

	streaming, err := b.Build(PromptRequest{Context: promptContext("A"), Mode: ModeStreaming})
	require.NoError(t, err)
	single, err := b.Build(PromptRequest{Context: promptContext("A"), Mode: ModeSingleShot})
	require.NoError(t, err)

	assert.Contains(t, streaming.Messages[0].Content, "emit_section")
	assert.Contains(t, streaming.Messages[0].Content, "supportTools.toolsHtml")
	assert.Contains(t, single.Messages[0].Content, "exactly one")
	assert.Contains(t, single.Messages[0].Content, "instructionsHtml")
	assert.NotEqual(t, streaming.Messages[0].Content, single.Messages[0].Content)
}

func TestPromptBuilder_MissingFieldsRenderNA(t *testing.T) {
	t.Parallel()

	b, err := NewPromptBuilder(0, nil)
	require.NoError(t, err)

	record := promptContext("A")
	record.Profile.Challenges = ""
	record.Profile.Goals = "   "
	record.Class.LearningGoal = ""

	prompt, err := b.Build(PromptRequest{Context: record, Mode: ModeSingleShot})
	require.NoError(t, err)

	body := prompt.Messages[1].Content
	assert.Contains(t, body, "Challenges: N/A")
	assert.Contains(t, body, "Goals: N/A")
	assert.Contains(t, body, "Class learning goal: N/A")
	assert.NotContains(t, body, "Challenges: \n")
}

func TestPromptBuilder_SelectedOptionsAndNotes(t *testing.T) {
	t.Parallel()

	b, err := NewPromptBuilder(0, nil)
	require.NoError(t, err)

	prompt, err := b.Build(PromptRequest{
		Context: promptContext("A"),
		SelectedOptions: []types.GeneratedOption{
			{InternalID: "o1", Name: "Audio pathway", Description: "Record responses aloud"},
		},
		SelectedOptionIDs: []string{"o1"},
		Notes:             "Student prefers shorter sessions",
		Mode:              ModeSingleShot,
	})
	require.NoError(t, err)

	body := prompt.Messages[1].Content
	assert.Contains(t, body, "Audio pathway: Record responses aloud")
	assert.Contains(t, body, "Student prefers shorter sessions")

	assert.Equal(t, []string{"o1"}, prompt.Persist.SelectedOptionIDs)
	assert.Equal(t, "Student prefers shorter sessions", prompt.Persist.Notes)
}

func TestPromptBuilder_TokenAccounting(t *testing.T) {
	t.Parallel()

	b, err := NewPromptBuilder(1, nil) // budget of one token always warns
	require.NoError(t, err)

	prompt, err := b.Build(PromptRequest{Context: promptContext("A"), Mode: ModeSingleShot})
	require.NoError(t, err)
	assert.Greater(t, prompt.TokenCount, 0)
}
