// Package reconcile folds a user's response to a pending tool invocation back
// into the conversation as the next turn. Depending on the tool, the fold-in
// is either a structured tool result attached to the pending call, or an
// ordinary user-role message that continues the dialogue in prose.
package reconcile

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ekovalev/prompt-iterator/internal/domain"
)

var (
	// ErrDuplicateResolution is a contract violation: a tool call id is
	// resolved at most once, and the first recorded result is immutable.
	ErrDuplicateResolution = errors.New("reconcile: tool call already resolved")

	// ErrPayloadIncomplete means the invocation's arguments are still
	// streaming and cannot be reconciled yet. Callers should wait, not fail.
	ErrPayloadIncomplete = errors.New("reconcile: tool arguments still streaming")

	// ErrPayloadMalformed means the arguments are syntactically complete but
	// violate the tool's schema. Terminal; retrying will not help.
	ErrPayloadMalformed = errors.New("reconcile: tool arguments malformed")
)

// Literal text the model is steered with when enhancement choices fold back
// into the conversation.
const (
	customValuePrefix = "用户自定义 - "
	noChoicesLine     = "用户没有选择任何特定修改，请基于当前理解直接生成最终文档。"
	closingLine       = "请根据以上选择，生成最终的结构化 Prompt 文档。"
	proposalAccepted  = "User accepted the prompt proposal."
)

// FoldInKind selects how a resolved invocation re-enters the conversation.
type FoldInKind string

const (
	// KindToolResult attaches the result to the pending invocation so the
	// model continues the same logical exchange.
	KindToolResult FoldInKind = "tool_result"
	// KindNewMessage appends an ordinary user-role turn.
	KindNewMessage FoldInKind = "new_message"
)

// FoldIn is the reconciler's output: either a tool result keyed by the call
// id, or the content of a fresh user message.
type FoldIn struct {
	Kind       FoldInKind
	ToolCallID string
	Result     string
	Content    string
}

// Response carries the user's reply to a pending invocation. Only the fields
// relevant to the invocation's tool are consulted.
type Response struct {
	// Answers maps question id to the user's answer (ask_questions).
	Answers map[string]string
	// Selections maps dimension key to the chosen option value
	// (suggest_enhancements). At most one selection per dimension.
	Selections map[string]string
	// Custom maps dimension key to free text the user typed instead of
	// picking an option. Custom text beats a selection for that dimension.
	Custom map[string]string
}

// Resolve folds the user's response to a pending invocation into the next
// conversation turn. A second resolution of the same call id fails with
// ErrDuplicateResolution and never mutates the first result.
func Resolve(inv domain.ToolInvocation, resp Response) (FoldIn, error) {
	if inv.Resolved() {
		return FoldIn{}, fmt.Errorf("%w: %s", ErrDuplicateResolution, inv.ToolCallID)
	}

	switch inv.ToolName {
	case domain.ToolAskQuestions:
		return resolveQuestions(inv, resp)
	case domain.ToolSuggestEnhancement:
		return resolveEnhancements(inv, resp)
	case domain.ToolProposePrompt:
		return FoldIn{Kind: KindToolResult, ToolCallID: inv.ToolCallID, Result: proposalAccepted}, nil
	default:
		return FoldIn{}, fmt.Errorf("reconcile: unknown tool %q", inv.ToolName)
	}
}

// resolveQuestions folds answers as a structured question_id → answer map.
// Questions are never rendered into free text.
func resolveQuestions(inv domain.ToolInvocation, resp Response) (FoldIn, error) {
	if _, state := domain.ParseQuestionSet(inv.Arguments); state != domain.ParseReady {
		return FoldIn{}, stateErr(state)
	}
	answers := resp.Answers
	if answers == nil {
		answers = map[string]string{}
	}
	raw, err := json.Marshal(answers)
	if err != nil {
		return FoldIn{}, fmt.Errorf("reconcile: encode answers: %w", err)
	}
	return FoldIn{Kind: KindToolResult, ToolCallID: inv.ToolCallID, Result: string(raw)}, nil
}

// resolveEnhancements renders the user's per-dimension choices into feedback
// lines and surfaces them as a new user message, since the document phase is
// driven by natural-language instruction rather than a typed payload.
func resolveEnhancements(inv domain.ToolInvocation, resp Response) (FoldIn, error) {
	set, state := domain.ParseEnhancementSet(inv.Arguments)
	if state != domain.ParseReady {
		return FoldIn{}, stateErr(state)
	}

	var lines []string
	for _, dim := range set.Dimensions {
		if custom, ok := resp.Custom[dim.Key]; ok && strings.TrimSpace(custom) != "" {
			lines = append(lines, "【"+dim.Title+"】: "+customValuePrefix+custom)
			continue
		}
		value, ok := resp.Selections[dim.Key]
		if !ok || value == "" {
			continue
		}
		label := value
		if opt, ok := dim.Option(value); ok {
			label = opt.Label
		}
		lines = append(lines, "【"+dim.Title+"】: "+label)
	}

	// The closing instruction accompanies actual selections only; with no
	// choices at all the single fallback line stands alone.
	if len(lines) == 0 {
		lines = append(lines, noChoicesLine)
	} else {
		lines = append(lines, closingLine)
	}

	return FoldIn{Kind: KindNewMessage, Content: strings.Join(lines, "\n")}, nil
}

// SelectionState accumulates a user's enhancement choices before resolution.
// At most one option is selected per dimension; picking the selected option
// again deselects it.
type SelectionState struct {
	selections map[string]string
	custom     map[string]string
}

func NewSelectionState() *SelectionState {
	return &SelectionState{
		selections: make(map[string]string),
		custom:     make(map[string]string),
	}
}

// Toggle selects the option for the dimension, replacing any prior selection.
// Toggling the currently selected option clears the dimension.
func (s *SelectionState) Toggle(dimensionKey, value string) {
	if s.selections[dimensionKey] == value {
		delete(s.selections, dimensionKey)
		return
	}
	s.selections[dimensionKey] = value
}

// SetCustom records free text for the dimension. Empty text clears it.
func (s *SelectionState) SetCustom(dimensionKey, text string) {
	if strings.TrimSpace(text) == "" {
		delete(s.custom, dimensionKey)
		return
	}
	s.custom[dimensionKey] = text
}

// Selected returns the currently selected option value for the dimension.
func (s *SelectionState) Selected(dimensionKey string) (string, bool) {
	v, ok := s.selections[dimensionKey]
	return v, ok
}

// Response snapshots the accumulated choices for Resolve.
func (s *SelectionState) Response() Response {
	return Response{Selections: s.selections, Custom: s.custom}
}

func stateErr(state domain.ParseState) error {
	if state == domain.ParseMalformed {
		return ErrPayloadMalformed
	}
	return ErrPayloadIncomplete
}
