package domain

import (
	"encoding/json"
	"fmt"
)

// QuestionType constrains the input widget for a clarifying question.
type QuestionType string

const (
	QuestionText     QuestionType = "text"
	QuestionSelect   QuestionType = "select"
	QuestionCheckbox QuestionType = "checkbox"
)

// Question is one clarifying question emitted by the ask_questions tool.
type Question struct {
	ID      string       `json:"id"`
	Text    string       `json:"text"`
	Type    QuestionType `json:"type"`
	Options []string     `json:"options,omitempty"`
}

// QuestionSet is the ask_questions payload.
type QuestionSet struct {
	Questions []Question `json:"questions"`
}

// EnhancementOption is a single clickable choice within a dimension.
type EnhancementOption struct {
	Label       string `json:"label"`
	Value       string `json:"value"`
	Description string `json:"description,omitempty"`
}

// EnhancementDimension is one axis of optimization (tone, depth, format...)
// offered by the suggest_enhancements tool.
type EnhancementDimension struct {
	Key         string              `json:"key"`
	Title       string              `json:"title"`
	Options     []EnhancementOption `json:"options"`
	AllowCustom bool                `json:"allowCustom"`
}

// EnhancementSet is the suggest_enhancements payload.
type EnhancementSet struct {
	Dimensions []EnhancementDimension `json:"dimensions"`
}

// Option returns the option with the given value, if present.
func (d EnhancementDimension) Option(value string) (EnhancementOption, bool) {
	for _, o := range d.Options {
		if o.Value == value {
			return o, true
		}
	}
	return EnhancementOption{}, false
}

// PromptProposal is the propose_prompt payload: the final structured prompt.
type PromptProposal struct {
	Title       string   `json:"title"`
	Role        string   `json:"role"`
	Objective   string   `json:"objective"`
	Context     string   `json:"context"`
	Constraints string   `json:"constraints"`
	Workflow    string   `json:"workflow"`
	Variables   []string `json:"variables"`
	FinalPrompt string   `json:"final_prompt"`
}

// ParseState classifies a raw tool argument payload. Arguments stream in as
// JSON fragments, so a payload that does not yet unmarshal is merely
// incomplete; only a syntactically complete payload that fails schema
// validation is malformed.
type ParseState int

const (
	// ParseIncomplete: not valid JSON yet; retry as more data arrives.
	ParseIncomplete ParseState = iota
	// ParseReady: well-formed against the tool schema.
	ParseReady
	// ParseMalformed: complete JSON that violates the tool schema.
	ParseMalformed
)

func (s ParseState) String() string {
	switch s {
	case ParseIncomplete:
		return "incomplete"
	case ParseReady:
		return "ready"
	case ParseMalformed:
		return "malformed"
	}
	return fmt.Sprintf("ParseState(%d)", int(s))
}

// ParseQuestionSet parses raw ask_questions arguments.
func ParseQuestionSet(raw json.RawMessage) (QuestionSet, ParseState) {
	var qs QuestionSet
	if len(raw) == 0 {
		return qs, ParseIncomplete
	}
	if err := json.Unmarshal(raw, &qs); err != nil {
		return QuestionSet{}, ParseIncomplete
	}
	if len(qs.Questions) == 0 {
		return QuestionSet{}, ParseMalformed
	}
	for _, q := range qs.Questions {
		if q.ID == "" || q.Text == "" {
			return QuestionSet{}, ParseMalformed
		}
		switch q.Type {
		case QuestionText:
		case QuestionSelect, QuestionCheckbox:
			if len(q.Options) == 0 {
				return QuestionSet{}, ParseMalformed
			}
		default:
			return QuestionSet{}, ParseMalformed
		}
	}
	return qs, ParseReady
}

// ParseEnhancementSet parses raw suggest_enhancements arguments.
func ParseEnhancementSet(raw json.RawMessage) (EnhancementSet, ParseState) {
	var es EnhancementSet
	if len(raw) == 0 {
		return es, ParseIncomplete
	}
	if err := json.Unmarshal(raw, &es); err != nil {
		return EnhancementSet{}, ParseIncomplete
	}
	if len(es.Dimensions) == 0 {
		return EnhancementSet{}, ParseMalformed
	}
	seen := make(map[string]bool, len(es.Dimensions))
	for _, d := range es.Dimensions {
		if d.Key == "" || d.Title == "" || len(d.Options) == 0 {
			return EnhancementSet{}, ParseMalformed
		}
		if seen[d.Key] {
			return EnhancementSet{}, ParseMalformed
		}
		seen[d.Key] = true
		for _, o := range d.Options {
			if o.Label == "" || o.Value == "" {
				return EnhancementSet{}, ParseMalformed
			}
		}
	}
	return es, ParseReady
}

// ParseProposal parses raw propose_prompt arguments.
func ParseProposal(raw json.RawMessage) (PromptProposal, ParseState) {
	var p PromptProposal
	if len(raw) == 0 {
		return p, ParseIncomplete
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return PromptProposal{}, ParseIncomplete
	}
	if p.Title == "" || p.FinalPrompt == "" {
		return PromptProposal{}, ParseMalformed
	}
	return p, ParseReady
}
