package generation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/cowelltechlab/ipse-student-dashboard-backend-sub000/internal/metrics"
	"github.com/cowelltechlab/ipse-student-dashboard-backend-sub000/types"
)

// Markers that disqualify a value from being an HTML fragment.
var forbiddenFragmentMarkers = []string{"<html", "<body", "<head", "<!doctype"}

// templateBlockPattern matches one embedded template block inside toolsHtml.
var templateBlockPattern = regexp.MustCompile(`(?is)<section[^>]*\bdata-block\s*=\s*"template"[^>]*>.*?</section>`)

// prePattern counts pre elements inside a template block.
var prePattern = regexp.MustCompile(`(?is)<pre[\s>]`)

// templateTriggerWords are option-label substrings that make a template block
// mandatory.
var templateTriggerWords = []string{
	"organizer", "outline", "checklist", "rubric", "storyboard", "scaffold",
	"template", "planner", "graphic",
}

// templateAssignmentTypes are assignment-type categories that make a template
// block mandatory regardless of the selected options.
var templateAssignmentTypes = map[string]bool{
	"essay":        true,
	"project":      true,
	"presentation": true,
	"portfolio":    true,
	"research":     true,
	"lab_report":   true,
}

// Validator enforces the structured-output contract before anything is
// persisted: exact key sets in exact order at both levels, fragment-only
// HTML values, and the conditional template-block policy.
type Validator struct {
	metrics *metrics.Collector
}

// NewValidator wires a validator.
func NewValidator(collector *metrics.Collector) *Validator {
	if collector == nil {
		collector = metrics.NewCollector("ipse", nil)
	}
	return &Validator{metrics: collector}
}

// TemplateRequired computes whether the assignment demands an embedded
// template block, from the assignment type and the selected option labels.
func TemplateRequired(assignmentType string, selectedLabels []string) bool {
	if templateAssignmentTypes[strings.ToLower(strings.TrimSpace(assignmentType))] {
		return true
	}
	for _, label := range selectedLabels {
		lower := strings.ToLower(label)
		for _, trigger := range templateTriggerWords {
			if strings.Contains(lower, trigger) {
				return true
			}
		}
	}
	return false
}

// ValidateRaw parses raw provider output and runs the full validation
// sequence. Undecodable input is MALFORMED_OUTPUT; out-of-order but complete
// key sets are repaired by the document codec rather than rejected.
func (v *Validator) ValidateRaw(raw []byte, templateRequired bool) (*types.StructuredDocument, error) {
	topKeys, nestedKeys, err := scanKeyOrder(raw)
	if err != nil {
		v.metrics.ValidationFailure("malformed_output")
		return nil, types.NewError(types.ErrMalformedOutput, "output is not a decodable JSON object").
			WithCause(err)
	}
	if err := v.checkKeySet(topKeys, types.TopLevelKeys, "top-level"); err != nil {
		return nil, err
	}
	if err := v.checkKeySet(nestedKeys, types.SupportToolsKeys, types.KeySupportTools); err != nil {
		return nil, err
	}

	var doc types.StructuredDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		v.metrics.ValidationFailure("malformed_output")
		return nil, types.NewError(types.ErrMalformedOutput, "output is not a decodable JSON object").
			WithCause(err)
	}
	if err := v.ValidateDocument(&doc, templateRequired); err != nil {
		return nil, err
	}
	return &doc, nil
}

// ValidateDocument runs the completeness, fragment, and template-policy
// checks on an already-decoded document, e.g. one assembled from a stream.
// Order and extra-key checks do not apply here: the order-stable accumulator
// cannot represent an out-of-order or extra key. A never-written section is
// representable, so an empty section counts as a missing key.
func (v *Validator) ValidateDocument(doc *types.StructuredDocument, templateRequired bool) error {
	fields := []struct {
		name  string
		value string
	}{
		{types.KeyInstructions, doc.InstructionsHTML},
		{types.KeyStepByStepPlan, doc.StepByStepPlanHTML},
		{types.KeyPrompts, doc.PromptsHTML},
		{types.KeySupportTools + "." + types.KeyToolsHTML, doc.SupportTools.ToolsHTML},
		{types.KeySupportTools + "." + types.KeyAIPromptingHTML, doc.SupportTools.AIPromptingHTML},
		{types.KeySupportTools + "." + types.KeyAIPolicyHTML, doc.SupportTools.AIPolicyHTML},
		{types.KeyMotivationalMessage, doc.MotivationalMessageHTML},
	}
	var missing []string
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		v.metrics.ValidationFailure("schema_mismatch")
		return types.Errorf(types.ErrSchemaMismatch,
			"document is missing required sections: %v", missing)
	}
	for _, f := range fields {
		if err := CheckFragment(f.name, f.value); err != nil {
			v.metrics.ValidationFailure("fragment_violation")
			return err
		}
	}
	return v.checkTemplatePolicy(doc.SupportTools.ToolsHTML, templateRequired)
}

// CheckFragment rejects values that embed full-document HTML markers. The
// field name travels in the error so callers can report exactly which section
// violated the contract.
func CheckFragment(field, value string) error {
	lower := strings.ToLower(value)
	for _, marker := range forbiddenFragmentMarkers {
		if strings.Contains(lower, marker) {
			return types.Errorf(types.ErrFragmentViolation,
				"field %s contains forbidden marker %q", field, marker)
		}
	}
	return nil
}

func (v *Validator) checkTemplatePolicy(toolsHTML string, required bool) error {
	blocks := templateBlockPattern.FindAllString(toolsHTML, -1)
	if !required {
		if len(blocks) > 0 {
			v.metrics.ValidationFailure("template_policy")
			return types.Errorf(types.ErrTemplatePolicy,
				"toolsHtml contains %d template block(s) but no template is required", len(blocks))
		}
		return nil
	}
	if len(blocks) != 1 {
		v.metrics.ValidationFailure("template_policy")
		return types.Errorf(types.ErrTemplatePolicy,
			"toolsHtml must contain exactly one template block, found %d", len(blocks))
	}
	if pres := prePattern.FindAllString(blocks[0], -1); len(pres) != 1 {
		v.metrics.ValidationFailure("template_policy")
		return types.Errorf(types.ErrTemplatePolicy,
			"template block must contain exactly one <pre> element, found %d", len(pres))
	}
	return nil
}

// checkKeySet enforces that observed equals required as a set, with no key
// appearing more than once. A complete set in the wrong order is accepted; the
// codec re-emits canonical order on every marshal, so reordering costs
// nothing. Duplicates are rejected because last-value-wins decoding would
// silently discard an earlier value.
func (v *Validator) checkKeySet(observed, required []string, scope string) error {
	requiredSet := make(map[string]bool, len(required))
	for _, k := range required {
		requiredSet[k] = true
	}
	observedSet := make(map[string]bool, len(observed))
	var extra, duplicate []string
	for _, k := range observed {
		if observedSet[k] {
			duplicate = append(duplicate, k)
		}
		observedSet[k] = true
		if !requiredSet[k] {
			extra = append(extra, k)
		}
	}
	var missing []string
	for _, k := range required {
		if !observedSet[k] {
			missing = append(missing, k)
		}
	}
	if len(duplicate) > 0 {
		v.metrics.ValidationFailure("schema_mismatch")
		return types.Errorf(types.ErrSchemaMismatch,
			"%s keys appear more than once: %v", scope, duplicate)
	}
	if len(missing) > 0 || len(extra) > 0 {
		v.metrics.ValidationFailure("schema_mismatch")
		return types.Errorf(types.ErrSchemaMismatch,
			"%s keys do not match the required set: missing %v, unexpected %v", scope, missing, extra)
	}
	return nil
}

// scanKeyOrder walks the raw JSON token stream and returns the top-level key
// order and the supportTools key order without building an intermediate map,
// which would lose ordering.
func scanKeyOrder(raw []byte) (topKeys, nestedKeys []string, err error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, nil, fmt.Errorf("expected a JSON object, got %v", tok)
	}

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, nil, err
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, nil, fmt.Errorf("expected an object key, got %v", keyTok)
		}
		topKeys = append(topKeys, key)

		if key == types.KeySupportTools {
			open, err := dec.Token()
			if err != nil {
				return nil, nil, err
			}
			if delim, ok := open.(json.Delim); !ok || delim != '{' {
				return nil, nil, fmt.Errorf("%s must be an object", types.KeySupportTools)
			}
			for dec.More() {
				nk, err := dec.Token()
				if err != nil {
					return nil, nil, err
				}
				nkey, ok := nk.(string)
				if !ok {
					return nil, nil, fmt.Errorf("expected a nested key, got %v", nk)
				}
				nestedKeys = append(nestedKeys, nkey)
				if err := skipValue(dec); err != nil {
					return nil, nil, err
				}
			}
			if _, err := dec.Token(); err != nil {
				return nil, nil, err
			}
			continue
		}
		if err := skipValue(dec); err != nil {
			return nil, nil, err
		}
	}
	if _, err := dec.Token(); err != nil {
		return nil, nil, err
	}
	return topKeys, nestedKeys, nil
}

// skipValue consumes one complete JSON value from the decoder.
func skipValue(dec *json.Decoder) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	delim, ok := tok.(json.Delim)
	if !ok {
		return nil
	}
	switch delim {
	case '{', '[':
		depth := 1
		for depth > 0 {
			tok, err := dec.Token()
			if err != nil {
				return err
			}
			if d, ok := tok.(json.Delim); ok {
				switch d {
				case '{', '[':
					depth++
				case '}', ']':
					depth--
				}
			}
		}
	}
	return nil
}
