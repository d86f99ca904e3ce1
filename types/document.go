package types

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Top-level keys of a structured document, in required order.
const (
	KeyInstructions        = "instructionsHtml"
	KeyStepByStepPlan      = "stepByStepPlanHtml"
	KeyPrompts             = "promptsHtml"
	KeySupportTools        = "supportTools"
	KeyMotivationalMessage = "motivationalMessageHtml"
)

// Nested supportTools keys, in required order.
const (
	KeyToolsHTML       = "toolsHtml"
	KeyAIPromptingHTML = "aiPromptingHtml"
	KeyAIPolicyHTML    = "aiPolicyHtml"
)

// TopLevelKeys is the exact required top-level key order.
var TopLevelKeys = []string{
	KeyInstructions,
	KeyStepByStepPlan,
	KeyPrompts,
	KeySupportTools,
	KeyMotivationalMessage,
}

// SupportToolsKeys is the exact required nested key order.
var SupportToolsKeys = []string{
	KeyToolsHTML,
	KeyAIPromptingHTML,
	KeyAIPolicyHTML,
}

// SupportTools is the nested three-key sub-object of a structured document.
type SupportTools struct {
	ToolsHTML       string `json:"toolsHtml" bson:"toolsHtml"`
	AIPromptingHTML string `json:"aiPromptingHtml" bson:"aiPromptingHtml"`
	AIPolicyHTML    string `json:"aiPolicyHtml" bson:"aiPolicyHtml"`
}

// IsZero reports whether no sub-key carries a value.
func (s SupportTools) IsZero() bool {
	return s.ToolsHTML == "" && s.AIPromptingHTML == "" && s.AIPolicyHTML == ""
}

// StructuredDocument is the five-key ordered HTML-fragment artifact produced
// by a generation call. Field order mirrors the required key order; the
// custom JSON codec below keeps that order on the wire regardless of how the
// struct was populated.
type StructuredDocument struct {
	InstructionsHTML        string       `bson:"instructionsHtml"`
	StepByStepPlanHTML      string       `bson:"stepByStepPlanHtml"`
	PromptsHTML             string       `bson:"promptsHtml"`
	SupportTools            SupportTools `bson:"supportTools"`
	MotivationalMessageHTML string       `bson:"motivationalMessageHtml"`
}

// IsZero reports whether the document carries no content at all.
func (d *StructuredDocument) IsZero() bool {
	if d == nil {
		return true
	}
	return d.InstructionsHTML == "" &&
		d.StepByStepPlanHTML == "" &&
		d.PromptsHTML == "" &&
		d.SupportTools.IsZero() &&
		d.MotivationalMessageHTML == ""
}

// Section returns the value for a top-level or dotted supportTools key.
func (d *StructuredDocument) Section(key string) (string, bool) {
	switch key {
	case KeyInstructions:
		return d.InstructionsHTML, true
	case KeyStepByStepPlan:
		return d.StepByStepPlanHTML, true
	case KeyPrompts:
		return d.PromptsHTML, true
	case KeyMotivationalMessage:
		return d.MotivationalMessageHTML, true
	case KeySupportTools + "." + KeyToolsHTML:
		return d.SupportTools.ToolsHTML, true
	case KeySupportTools + "." + KeyAIPromptingHTML:
		return d.SupportTools.AIPromptingHTML, true
	case KeySupportTools + "." + KeyAIPolicyHTML:
		return d.SupportTools.AIPolicyHTML, true
	}
	return "", false
}

// SetSection writes an HTML fragment into the slot named by a top-level key
// or a dotted supportTools key. Unknown keys return an error so callers can
// surface them as diagnostics.
func (d *StructuredDocument) SetSection(key, html string) error {
	switch key {
	case KeyInstructions:
		d.InstructionsHTML = html
	case KeyStepByStepPlan:
		d.StepByStepPlanHTML = html
	case KeyPrompts:
		d.PromptsHTML = html
	case KeyMotivationalMessage:
		d.MotivationalMessageHTML = html
	case KeySupportTools + "." + KeyToolsHTML:
		d.SupportTools.ToolsHTML = html
	case KeySupportTools + "." + KeyAIPromptingHTML:
		d.SupportTools.AIPromptingHTML = html
	case KeySupportTools + "." + KeyAIPolicyHTML:
		d.SupportTools.AIPolicyHTML = html
	default:
		return fmt.Errorf("unknown section key %q", key)
	}
	return nil
}

// MarshalJSON emits the document with keys in the exact required order,
// omitting sections that carry no value.
func (d StructuredDocument) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	first := true

	writeKV := func(key, value string) error {
		if !first {
			buf.WriteByte(',')
		}
		first = false
		k, err := json.Marshal(key)
		if err != nil {
			return err
		}
		v, err := json.Marshal(value)
		if err != nil {
			return err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
		return nil
	}

	if d.InstructionsHTML != "" {
		if err := writeKV(KeyInstructions, d.InstructionsHTML); err != nil {
			return nil, err
		}
	}
	if d.StepByStepPlanHTML != "" {
		if err := writeKV(KeyStepByStepPlan, d.StepByStepPlanHTML); err != nil {
			return nil, err
		}
	}
	if d.PromptsHTML != "" {
		if err := writeKV(KeyPrompts, d.PromptsHTML); err != nil {
			return nil, err
		}
	}
	if !d.SupportTools.IsZero() {
		if !first {
			buf.WriteByte(',')
		}
		first = false
		buf.WriteString(`"` + KeySupportTools + `":{`)
		nestedFirst := true
		writeNested := func(key, value string) error {
			if value == "" {
				return nil
			}
			if !nestedFirst {
				buf.WriteByte(',')
			}
			nestedFirst = false
			v, err := json.Marshal(value)
			if err != nil {
				return err
			}
			buf.WriteString(`"` + key + `":`)
			buf.Write(v)
			return nil
		}
		if err := writeNested(KeyToolsHTML, d.SupportTools.ToolsHTML); err != nil {
			return nil, err
		}
		if err := writeNested(KeyAIPromptingHTML, d.SupportTools.AIPromptingHTML); err != nil {
			return nil, err
		}
		if err := writeNested(KeyAIPolicyHTML, d.SupportTools.AIPolicyHTML); err != nil {
			return nil, err
		}
		buf.WriteByte('}')
	}
	if d.MotivationalMessageHTML != "" {
		if err := writeKV(KeyMotivationalMessage, d.MotivationalMessageHTML); err != nil {
			return nil, err
		}
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON accepts the five-key object in any key order. Strict key-set
// and order enforcement is the validator's job, not the codec's.
func (d *StructuredDocument) UnmarshalJSON(data []byte) error {
	var raw struct {
		InstructionsHTML        string `json:"instructionsHtml"`
		StepByStepPlanHTML      string `json:"stepByStepPlanHtml"`
		PromptsHTML             string `json:"promptsHtml"`
		SupportTools            struct {
			ToolsHTML       string `json:"toolsHtml"`
			AIPromptingHTML string `json:"aiPromptingHtml"`
			AIPolicyHTML    string `json:"aiPolicyHtml"`
		} `json:"supportTools"`
		MotivationalMessageHTML string `json:"motivationalMessageHtml"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	d.InstructionsHTML = raw.InstructionsHTML
	d.StepByStepPlanHTML = raw.StepByStepPlanHTML
	d.PromptsHTML = raw.PromptsHTML
	d.SupportTools = SupportTools{
		ToolsHTML:       raw.SupportTools.ToolsHTML,
		AIPromptingHTML: raw.SupportTools.AIPromptingHTML,
		AIPolicyHTML:    raw.SupportTools.AIPolicyHTML,
	}
	d.MotivationalMessageHTML = raw.MotivationalMessageHTML
	return nil
}
