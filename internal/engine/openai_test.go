package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ekovalev/prompt-iterator/internal/domain"
)

func sseBody(lines ...string) string {
	var b strings.Builder
	for _, line := range lines {
		b.WriteString("data: ")
		b.WriteString(line)
		b.WriteString("\n\n")
	}
	b.WriteString("data: [DONE]\n\n")
	return b.String()
}

func textChunk(content string) string {
	return fmt.Sprintf(`{"choices":[{"delta":{"content":%q}}]}`, content)
}

func toolChunk(index int, id, name, args string) string {
	return fmt.Sprintf(`{"choices":[{"delta":{"tool_calls":[{"index":%d,"id":%q,"function":{"name":%q,"arguments":%q}}]}}]}`,
		index, id, name, args)
}

func newStubProvider(t *testing.T, status int, body string, onRequest func(r *http.Request, payload chatRequest)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != completionsPath {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if onRequest != nil {
			raw, err := io.ReadAll(r.Body)
			if err != nil {
				t.Fatalf("read request body: %v", err)
			}
			var payload chatRequest
			if err := json.Unmarshal(raw, &payload); err != nil {
				t.Fatalf("decode request body: %v", err)
			}
			onRequest(r, payload)
		}
		if status == http.StatusOK {
			w.Header().Set("Content-Type", "text/event-stream")
		}
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
}

func TestRunCompletionStreamsText(t *testing.T) {
	t.Parallel()

	srv := newStubProvider(t, http.StatusOK,
		sseBody(textChunk("你好"), textChunk("，"), textChunk("世界")),
		func(r *http.Request, payload chatRequest) {
			if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
				t.Errorf("Authorization = %q", got)
			}
			if !payload.Stream {
				t.Error("expected stream=true")
			}
			if len(payload.Tools) != 3 {
				t.Errorf("expected 3 tool definitions, got %d", len(payload.Tools))
			}
			if payload.Messages[0].Role != "system" {
				t.Errorf("first message role = %q, want system", payload.Messages[0].Role)
			}
		})
	defer srv.Close()

	e := New()
	events, err := collect(t, e, []domain.Turn{userTurn("写个提示词")}, Config{
		APIKey: "sk-test", BaseURL: srv.URL + "/", ModelID: "gpt-4-turbo",
	})
	if err != nil {
		t.Fatalf("RunTurn failed: %v", err)
	}

	last := events[len(events)-1]
	if last.Type != EventFinish {
		t.Fatalf("last event = %q, want finish", last.Type)
	}
	if last.Content != "你好，世界" {
		t.Errorf("accumulated content = %q", last.Content)
	}
}

func TestRunCompletionAccumulatesToolCallFragments(t *testing.T) {
	t.Parallel()

	args := `{"dimensions":[{"key":"tone","title":"语气风格","options":[{"label":"专业正式","value":"formal"}]}]}`
	half := len(args) / 2
	srv := newStubProvider(t, http.StatusOK, sseBody(
		toolChunk(0, "call_1", domain.ToolSuggestEnhancement, ""),
		toolChunk(0, "", "", args[:half]),
		toolChunk(0, "", "", args[half:]),
	), nil)
	defer srv.Close()

	e := New()
	events, err := collect(t, e, []domain.Turn{userTurn("帮我写客服机器人提示词")}, Config{
		APIKey: "sk-test", BaseURL: srv.URL, ModelID: "gpt-4-turbo",
	})
	if err != nil {
		t.Fatalf("RunTurn failed: %v", err)
	}

	var sawDelta bool
	var call *domain.ToolInvocation
	for _, evt := range events {
		switch evt.Type {
		case EventToolCallDelta:
			sawDelta = true
			if evt.ToolCallID != "call_1" {
				t.Errorf("delta call id = %q", evt.ToolCallID)
			}
		case EventToolCall:
			call = evt.Invocation
		}
	}
	if !sawDelta {
		t.Error("expected tool-call-delta events during streaming")
	}
	if call == nil {
		t.Fatal("no completed tool call emitted")
	}
	if call.ToolName != domain.ToolSuggestEnhancement {
		t.Errorf("tool name = %q", call.ToolName)
	}
	set, state := domain.ParseEnhancementSet(call.Arguments)
	if state != domain.ParseReady {
		t.Fatalf("reassembled arguments not parseable: %v (%s)", state, call.Arguments)
	}
	if set.Dimensions[0].Title != "语气风格" {
		t.Errorf("dimension title = %q", set.Dimensions[0].Title)
	}
}

func TestRunCompletionStatusMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status int
		kind   FailureKind
	}{
		{http.StatusUnauthorized, FailureAuthFailed},
		{http.StatusNotFound, FailureModelNotFound},
		{http.StatusInternalServerError, FailureUnknown},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("status %d", tt.status), func(t *testing.T) {
			t.Parallel()
			srv := newStubProvider(t, tt.status, `{"error":{"message":"provider says no"}}`, nil)
			defer srv.Close()

			e := New()
			_, err := collect(t, e, []domain.Turn{userTurn("hi")}, Config{
				APIKey: "sk-test", BaseURL: srv.URL, ModelID: "gpt-4-turbo",
			})
			var failure *Failure
			if !errors.As(err, &failure) {
				t.Fatalf("expected *Failure, got %v", err)
			}
			if failure.Kind != tt.kind {
				t.Errorf("kind = %q, want %q", failure.Kind, tt.kind)
			}
		})
	}
}

func TestRunCompletionConnectionRefused(t *testing.T) {
	t.Parallel()

	e := New()
	// Port 1 is never listening locally, so the dial fails immediately.
	_, err := collect(t, e, []domain.Turn{userTurn("hi")}, Config{
		APIKey: "sk-test", BaseURL: "http://127.0.0.1:1", ModelID: "gpt-4-turbo",
	})
	var failure *Failure
	if !errors.As(err, &failure) {
		t.Fatalf("expected *Failure, got %v", err)
	}
	if failure.Kind != FailureConnectionFailed {
		t.Errorf("kind = %q, want connection_failed", failure.Kind)
	}
	if !strings.Contains(failure.UserMessage(), "http://127.0.0.1:1") {
		t.Errorf("message does not embed endpoint: %q", failure.UserMessage())
	}
}

func TestBuildMessagesFoldsResolvedInvocations(t *testing.T) {
	t.Parallel()

	answers := `{"q1":"面向企业客户"}`
	history := []domain.Turn{
		{Role: domain.RoleUser, Content: "帮我写提示词"},
		{
			Role: domain.RoleAssistant,
			ToolInvocations: []domain.ToolInvocation{{
				ToolCallID: "call_9",
				ToolName:   domain.ToolAskQuestions,
				Arguments:  json.RawMessage(`{"questions":[{"id":"q1","text":"目标受众？","type":"text"}]}`),
				Result:     &answers,
			}},
		},
	}

	msgs := buildMessages(history, "")
	if len(msgs) != 4 {
		t.Fatalf("expected 4 wire messages, got %d", len(msgs))
	}
	if msgs[2].Role != "assistant" || len(msgs[2].ToolCalls) != 1 {
		t.Errorf("assistant message malformed: %+v", msgs[2])
	}
	if msgs[3].Role != "tool" || msgs[3].ToolCallID != "call_9" || msgs[3].Content != answers {
		t.Errorf("tool result message malformed: %+v", msgs[3])
	}
}

func TestBuildMessagesPrependsUserSystemPrompt(t *testing.T) {
	t.Parallel()

	msgs := buildMessages([]domain.Turn{userTurn("hi")}, "额外指令")
	if !strings.HasPrefix(msgs[0].Content, "额外指令") {
		t.Errorf("custom system prompt not prepended: %q", msgs[0].Content[:30])
	}
	if !strings.Contains(msgs[0].Content, domain.ToolSuggestEnhancement) {
		t.Error("workflow instructions missing from system message")
	}
}

func TestConsumeSSEStopsOnConsumerRequest(t *testing.T) {
	t.Parallel()

	body := sseBody(textChunk("a"), textChunk("b"), textChunk("c"))
	var seen int
	err := consumeSSE(context.Background(), strings.NewReader(body), func(data string) (bool, error) {
		seen++
		return seen < 2, nil
	})
	if err != nil {
		t.Fatalf("consumeSSE failed: %v", err)
	}
	if seen != 2 {
		t.Errorf("consumed %d events, want 2", seen)
	}
}
