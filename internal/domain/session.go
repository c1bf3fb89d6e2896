// Package domain defines the core entities of the prompt iterator:
// conversation sessions, turns, and the structured tool invocations the
// assistant uses to collect typed user input.
package domain

import (
	"encoding/json"
	"time"
)

// Role identifies the author of a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Session is a named, independently persisted conversation thread.
type Session struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	PreviewText string    `json:"preview_text"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Turn is one message (user or assistant) in a session. Role is immutable
// after creation; assistant content is finalized only once generation
// completes — streaming chunks are never persisted.
type Turn struct {
	ID              string           `json:"id"`
	SessionID       string           `json:"session_id"`
	Role            Role             `json:"role"`
	Content         string           `json:"content"`
	CreatedAt       time.Time        `json:"created_at"`
	ToolInvocations []ToolInvocation `json:"tool_invocations,omitempty"`
}

// Tool names the assistant may invoke.
const (
	ToolAskQuestions       = "ask_questions"
	ToolSuggestEnhancement = "suggest_enhancements"
	ToolProposePrompt      = "propose_prompt"
)

// KnownTool reports whether name is one of the three protocol tools.
func KnownTool(name string) bool {
	switch name {
	case ToolAskQuestions, ToolSuggestEnhancement, ToolProposePrompt:
		return true
	}
	return false
}

// ToolInvocation is a structured request from the assistant for typed user
// input. Arguments may arrive incrementally during streaming and are kept
// raw; Result is set exactly once when the user responds.
type ToolInvocation struct {
	ToolCallID string          `json:"tool_call_id"`
	ToolName   string          `json:"tool_name"`
	Arguments  json.RawMessage `json:"arguments"`
	Result     *string         `json:"result,omitempty"`
}

// Resolved reports whether a result has been attached.
func (ti *ToolInvocation) Resolved() bool {
	return ti.Result != nil
}

// InvocationState is the lifecycle of a tool invocation's payload.
type InvocationState string

const (
	// InvocationPendingIncomplete means the arguments are not yet parseable
	// as the tool's schema — more stream data may still arrive.
	InvocationPendingIncomplete InvocationState = "pending-incomplete"
	// InvocationPendingComplete means the payload is well-formed and awaits
	// the user's response.
	InvocationPendingComplete InvocationState = "pending-complete"
	// InvocationResolved means the user's response has been recorded.
	InvocationResolved InvocationState = "resolved"
)

// State classifies the invocation against its tool schema.
func (ti *ToolInvocation) State() InvocationState {
	if ti.Resolved() {
		return InvocationResolved
	}
	var ps ParseState
	switch ti.ToolName {
	case ToolAskQuestions:
		_, ps = ParseQuestionSet(ti.Arguments)
	case ToolSuggestEnhancement:
		_, ps = ParseEnhancementSet(ti.Arguments)
	case ToolProposePrompt:
		_, ps = ParseProposal(ti.Arguments)
	default:
		return InvocationPendingIncomplete
	}
	if ps == ParseReady {
		return InvocationPendingComplete
	}
	return InvocationPendingIncomplete
}
