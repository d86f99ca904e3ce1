package generation

import (
	"strings"
	"text/template"

	"github.com/pkoukk/tiktoken-go"
	"go.uber.org/zap"

	"github.com/cowelltechlab/ipse-student-dashboard-backend-sub000/llm"
	"github.com/cowelltechlab/ipse-student-dashboard-backend-sub000/types"
)

// Mode selects how the provider is asked to deliver the structured document.
type Mode string

const (
	// ModeStreaming asks the model to emit one tool call per section over an
	// event stream.
	ModeStreaming Mode = "tool_streaming"
	// ModeSingleShot asks the model for one JSON object in a single
	// completion.
	ModeSingleShot Mode = "single_shot"
)

// PromptRequest is everything the builder needs to render a prompt.
type PromptRequest struct {
	Context           *types.ContextRecord
	SelectedOptions   []types.GeneratedOption
	SelectedOptionIDs []string
	Notes             string
	Mode              Mode
	PriorVersion      *types.VersionDocument
}

// PersistContext is the small bundle of persistence inputs the lifecycle
// manager needs after the provider round trip completes.
type PersistContext struct {
	PriorVersion      *types.VersionDocument
	SelectedOptionIDs []string
	Notes             string
}

// Prompt is the rendered provider request plus its token accounting.
type Prompt struct {
	Messages   []llm.Message
	TokenCount int
	Persist    PersistContext
}

const streamingSystemMessage = `You adapt classroom assignments for individual students. Deliver the adapted
content as tool calls, one call per section, using the emit_section tool with
arguments {"key": <section key>, "html": <fragment>}.

Emit sections in this order:
1. instructionsHtml
2. stepByStepPlanHtml
3. promptsHtml
4. supportTools.toolsHtml
5. supportTools.aiPromptingHtml
6. supportTools.aiPolicyHtml
7. motivationalMessageHtml

Every html value must be a fragment only: no <html>, <body>, <head>, or
doctype. Do not emit any key outside this list.`

const singleShotSystemMessage = `You adapt classroom assignments for individual students. Return exactly one
JSON object with keys in this exact order: instructionsHtml,
stepByStepPlanHtml, promptsHtml, supportTools (with toolsHtml,
aiPromptingHtml, aiPolicyHtml in that order), motivationalMessageHtml. Every
value is an HTML fragment with no <html>, <body>, <head>, or doctype. Return
nothing outside the JSON object.`

// The two cohort templates differ in register: cohort A students get heavier
// scaffolding and more explicit structure, cohort B students get a leaner
// prompt focused on independence.
const cohortATemplate = `Adapt the following assignment for a student who benefits from strong scaffolding.

Assignment: {{orNA .Context.Assignment.Title}}
Assignment type: {{orNA .Context.Assignment.Type}}
Assignment body:
{{orNA .Context.Assignment.Body}}

Class: {{orNA .Context.Class.Name}}
Class learning goal: {{orNA .Context.Class.LearningGoal}}

Student: {{orNA .Context.Student.FirstName}} {{orNA .Context.Student.LastName}}
Reading level: {{orNA .Context.Student.ReadingLevel}}
Writing level: {{orNA .Context.Student.WritingLevel}}
Strengths: {{orNA .Context.Profile.Strengths}}
Challenges: {{orNA .Context.Profile.Challenges}}
Goals: {{orNA .Context.Profile.Goals}}
Preferred supports: {{orNA .Context.Profile.PreferredSupports}}

Selected pathways:
{{if .SelectedOptions}}{{range .SelectedOptions}}- {{.Name}}: {{orNA .Description}}
{{end}}{{else}}N/A
{{end}}
Additional notes from the teacher: {{orNA .Notes}}

Break every task into small, numbered steps. Repeat key instructions in plain
language. Offer concrete examples in each section.`

const cohortBTemplate = `Adapt the following assignment for a student working toward independent completion.

Assignment: {{orNA .Context.Assignment.Title}}
Assignment type: {{orNA .Context.Assignment.Type}}
Assignment body:
{{orNA .Context.Assignment.Body}}

Class: {{orNA .Context.Class.Name}}
Class learning goal: {{orNA .Context.Class.LearningGoal}}

Student: {{orNA .Context.Student.FirstName}} {{orNA .Context.Student.LastName}}
Reading level: {{orNA .Context.Student.ReadingLevel}}
Writing level: {{orNA .Context.Student.WritingLevel}}
Strengths: {{orNA .Context.Profile.Strengths}}
Challenges: {{orNA .Context.Profile.Challenges}}
Goals: {{orNA .Context.Profile.Goals}}
Preferred supports: {{orNA .Context.Profile.PreferredSupports}}

Selected pathways:
{{if .SelectedOptions}}{{range .SelectedOptions}}- {{.Name}}: {{orNA .Description}}
{{end}}{{else}}N/A
{{end}}
Additional notes from the teacher: {{orNA .Notes}}

Keep the adaptation concise. Preserve the original rigor and encourage the
student to self-monitor progress.`

// orNA keeps missing fields visible in the rendered prompt instead of
// collapsing them to empty strings.
func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return "N/A"
	}
	return s
}

// PromptBuilder renders cohort-specific prompts and accounts their token
// cost.
type PromptBuilder struct {
	cohortA     *template.Template
	cohortB     *template.Template
	encoding    *tiktoken.Tiktoken
	tokenBudget int
	logger      *zap.Logger
}

// NewPromptBuilder parses the cohort templates and loads the cl100k_base
// token encoding. tokenBudget <= 0 disables the oversize warning.
func NewPromptBuilder(tokenBudget int, logger *zap.Logger) (*PromptBuilder, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	funcs := template.FuncMap{"orNA": orNA}
	a, err := template.New("cohort_a").Funcs(funcs).Parse(cohortATemplate)
	if err != nil {
		return nil, err
	}
	b, err := template.New("cohort_b").Funcs(funcs).Parse(cohortBTemplate)
	if err != nil {
		return nil, err
	}
	// The encoding is fetched lazily by tiktoken and may be unavailable in
	// offline environments; token accounting then degrades to an estimate.
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		logger.Warn("cl100k_base encoding unavailable, using byte estimate", zap.Error(err))
		enc = nil
	}
	return &PromptBuilder{
		cohortA:     a,
		cohortB:     b,
		encoding:    enc,
		tokenBudget: tokenBudget,
		logger:      logger.With(zap.String("component", "prompt_builder")),
	}, nil
}

func (b *PromptBuilder) countTokens(s string) int {
	if b.encoding != nil {
		return len(b.encoding.Encode(s, nil, nil))
	}
	// Rough average of four bytes per token for English prose.
	return (len(s) + 3) / 4
}

// Build renders the prompt for the request. The system message is
// mode-specific; the user message is the filled cohort template.
func (b *PromptBuilder) Build(req PromptRequest) (*Prompt, error) {
	tmpl := b.cohortA
	if strings.EqualFold(req.Context.Student.CohortTag, "B") {
		tmpl = b.cohortB
	}

	var body strings.Builder
	if err := tmpl.Execute(&body, req); err != nil {
		return nil, types.Errorf(types.ErrUpstream, "render prompt template: %v", err)
	}

	system := streamingSystemMessage
	if req.Mode == ModeSingleShot {
		system = singleShotSystemMessage
	}

	messages := []llm.Message{
		llm.NewSystemMessage(system),
		llm.NewUserMessage(body.String()),
	}

	tokens := 0
	for _, m := range messages {
		tokens += b.countTokens(m.Content)
	}
	if b.tokenBudget > 0 && tokens > b.tokenBudget {
		b.logger.Warn("prompt exceeds token budget",
			zap.Int("tokens", tokens),
			zap.Int("budget", b.tokenBudget),
			zap.String("assignment_id", req.Context.Assignment.ID))
	}

	return &Prompt{
		Messages:   messages,
		TokenCount: tokens,
		Persist: PersistContext{
			PriorVersion:      req.PriorVersion,
			SelectedOptionIDs: req.SelectedOptionIDs,
			Notes:             req.Notes,
		},
	}, nil
}
