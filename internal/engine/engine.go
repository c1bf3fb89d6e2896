// Package engine drives a single logical conversation turn: it sends the
// running history to an OpenAI-compatible provider together with the fixed
// workflow instructions and tool contracts, and streams back either text or
// a structured tool invocation.
package engine

import (
	"context"
	"iter"
	"net/http"
	"strings"
	"time"

	"github.com/ekovalev/prompt-iterator/internal/domain"
)

// DemoCredential bypasses the transport entirely and replays a canned
// response, so the streaming path can be exercised without a live key.
const DemoCredential = "demo"

// Config carries the per-turn generation settings. It is resolved from the
// settings store at the start of each turn; user edits mid-turn take effect
// only on the next one.
type Config struct {
	APIKey       string
	BaseURL      string
	ModelID      string
	SystemPrompt string
}

// NormalizedBaseURL returns the endpoint with any trailing slash stripped.
func (c Config) NormalizedBaseURL() string {
	return strings.TrimRight(c.BaseURL, "/")
}

// EventType tags the chunks RunTurn streams out.
type EventType string

const (
	// EventTextDelta carries an incremental piece of assistant prose.
	EventTextDelta EventType = "text-delta"
	// EventToolCallDelta carries an incremental fragment of tool arguments,
	// keyed by the stable tool call id. Fragments may not be parseable until
	// the call completes.
	EventToolCallDelta EventType = "tool-call-delta"
	// EventToolCall carries a completed tool invocation.
	EventToolCall EventType = "tool-call"
	// EventFinish terminates a successful stream and carries the full
	// accumulated text plus all invocations, ready to persist.
	EventFinish EventType = "finish"
)

// Event is one streamed chunk of a turn.
type Event struct {
	Type       EventType               `json:"type"`
	Text       string                  `json:"text,omitempty"`
	ToolCallID string                  `json:"tool_call_id,omitempty"`
	ToolName   string                  `json:"tool_name,omitempty"`
	Fragment   string                  `json:"fragment,omitempty"`
	Invocation *domain.ToolInvocation  `json:"invocation,omitempty"`
	Content    string                  `json:"content,omitempty"`
	Calls      []domain.ToolInvocation `json:"calls,omitempty"`
}

// Engine runs conversation turns. It holds no per-session state; callers own
// persistence and single-flight control.
type Engine struct {
	client        *http.Client
	demoCharDelay time.Duration
}

// Option configures an Engine.
type Option func(*Engine)

// WithHTTPClient overrides the outbound HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(e *Engine) { e.client = client }
}

// WithDemoCharDelay overrides the demo transport's inter-character delay.
func WithDemoCharDelay(d time.Duration) Option {
	return func(e *Engine) { e.demoCharDelay = d }
}

// New creates an engine.
func New(opts ...Option) *Engine {
	e := &Engine{
		client:        &http.Client{Timeout: 120 * time.Second},
		demoCharDelay: 20 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RunTurn generates the next assistant turn for the given history. The
// history must end with a user turn or a resolved tool fold-in; the engine
// never re-prompts on its own. The returned sequence yields events until
// EventFinish or an error; errors of type *Failure carry the user-facing
// message and status.
func (e *Engine) RunTurn(ctx context.Context, history []domain.Turn, cfg Config) iter.Seq2[*Event, error] {
	switch {
	case cfg.APIKey == DemoCredential:
		return e.runDemo(ctx)
	case cfg.APIKey == "":
		return failWith(&Failure{Kind: FailureMissingCredential, Endpoint: cfg.NormalizedBaseURL()})
	default:
		return e.runCompletion(ctx, history, cfg)
	}
}

func failWith(f *Failure) iter.Seq2[*Event, error] {
	return func(yield func(*Event, error) bool) {
		yield(nil, f)
	}
}
