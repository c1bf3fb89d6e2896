package engine

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"net/http"
	"sort"
	"strings"

	"github.com/ekovalev/prompt-iterator/internal/domain"
)

const completionsPath = "/chat/completions"

// Wire types for the OpenAI-compatible Chat Completions API.

type chatRequest struct {
	Model    string           `json:"model"`
	Messages []chatMessage    `json:"messages"`
	Stream   bool             `json:"stream"`
	Tools    []toolDefinition `json:"tools,omitempty"`
}

type chatMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content"`
	ToolCalls  []wireToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
}

type wireToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function wireFunction `json:"function"`
}

type wireFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content   string `json:"content"`
			ToolCalls []struct {
				Index    int    `json:"index"`
				ID       string `json:"id"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
}

type apiErrorBody struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

// runCompletion performs the streaming provider call and relays deltas.
func (e *Engine) runCompletion(ctx context.Context, history []domain.Turn, cfg Config) iter.Seq2[*Event, error] {
	return func(yield func(*Event, error) bool) {
		endpoint := cfg.NormalizedBaseURL()

		reqBody := chatRequest{
			Model:    cfg.ModelID,
			Messages: buildMessages(history, cfg.SystemPrompt),
			Stream:   true,
			Tools:    protocolTools(),
		}
		buf, err := json.Marshal(reqBody)
		if err != nil {
			yield(nil, &Failure{Kind: FailureUnknown, Endpoint: endpoint, Detail: fmt.Sprintf("encode request: %v", err)})
			return
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint+completionsPath, bytes.NewReader(buf))
		if err != nil {
			yield(nil, &Failure{Kind: FailureUnknown, Endpoint: endpoint, Detail: fmt.Sprintf("create request: %v", err)})
			return
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+cfg.APIKey)
		req.Header.Set("Accept", "text/event-stream")

		resp, err := e.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				yield(nil, ctx.Err())
				return
			}
			yield(nil, &Failure{Kind: FailureConnectionFailed, Endpoint: endpoint, Detail: err.Error()})
			return
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode != http.StatusOK {
			yield(nil, classifyStatus(resp, endpoint, cfg.ModelID))
			return
		}

		streamTurn(ctx, resp.Body, yield)
	}
}

// classifyStatus maps a non-200 provider response onto the failure taxonomy.
func classifyStatus(resp *http.Response, endpoint, modelID string) *Failure {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	detail := strings.TrimSpace(string(body))
	var apiErr apiErrorBody
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error.Message != "" {
		detail = apiErr.Error.Message
	}

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return &Failure{Kind: FailureAuthFailed, Endpoint: endpoint, Detail: detail}
	case http.StatusNotFound:
		return &Failure{Kind: FailureModelNotFound, Endpoint: endpoint, Model: modelID, Detail: detail}
	default:
		if detail == "" {
			detail = resp.Status
		}
		return &Failure{Kind: FailureUnknown, Endpoint: endpoint, Detail: detail}
	}
}

// streamTurn consumes the SSE body, emitting text deltas and tool-call
// fragments, and finally the completed invocations plus full text.
func streamTurn(ctx context.Context, body io.Reader, yield func(*Event, error) bool) {
	type partialCall struct {
		id   string
		name string
		args strings.Builder
	}
	calls := make(map[int]*partialCall)
	var text strings.Builder

	finish := func() {
		indexes := make([]int, 0, len(calls))
		for idx := range calls {
			indexes = append(indexes, idx)
		}
		sort.Ints(indexes)

		invocations := make([]domain.ToolInvocation, 0, len(calls))
		for _, idx := range indexes {
			pc := calls[idx]
			invocations = append(invocations, domain.ToolInvocation{
				ToolCallID: pc.id,
				ToolName:   pc.name,
				Arguments:  json.RawMessage(pc.args.String()),
			})
		}
		for i := range invocations {
			if !yield(&Event{Type: EventToolCall, Invocation: &invocations[i]}, nil) {
				return
			}
		}
		yield(&Event{Type: EventFinish, Content: text.String(), Calls: invocations}, nil)
	}

	err := consumeSSE(ctx, body, func(data string) (bool, error) {
		if data == "[DONE]" {
			return false, nil
		}
		var chunk streamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return false, fmt.Errorf("decode stream chunk: %w", err)
		}
		for _, choice := range chunk.Choices {
			if choice.Delta.Content != "" {
				text.WriteString(choice.Delta.Content)
				if !yield(&Event{Type: EventTextDelta, Text: choice.Delta.Content}, nil) {
					return false, errStopped
				}
			}
			for _, tc := range choice.Delta.ToolCalls {
				pc, ok := calls[tc.Index]
				if !ok {
					pc = &partialCall{}
					calls[tc.Index] = pc
				}
				if tc.ID != "" {
					pc.id = tc.ID
				}
				if tc.Function.Name != "" {
					pc.name = tc.Function.Name
				}
				if tc.Function.Arguments != "" {
					pc.args.WriteString(tc.Function.Arguments)
					if !yield(&Event{
						Type:       EventToolCallDelta,
						ToolCallID: pc.id,
						ToolName:   pc.name,
						Fragment:   tc.Function.Arguments,
					}, nil) {
						return false, errStopped
					}
				}
			}
		}
		return true, nil
	})
	if err == errStopped {
		return
	}
	if err != nil {
		yield(nil, &Failure{Kind: FailureUnknown, Detail: err.Error()})
		return
	}
	finish()
}

var errStopped = fmt.Errorf("engine: consumer stopped")

// consumeSSE reads `data:` lines from an SSE stream, invoking fn per event
// payload until fn returns false or the stream ends.
func consumeSSE(ctx context.Context, r io.Reader, fn func(data string) (bool, error)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(line[5:])
		if data == "" {
			continue
		}
		more, err := fn(data)
		if err != nil {
			return err
		}
		if !more {
			return nil
		}
	}
	return scanner.Err()
}

// buildMessages flattens the turn history into provider wire messages.
// Resolved tool invocations produce a tool-role message directly after the
// assistant turn that issued them, continuing the same logical exchange.
func buildMessages(history []domain.Turn, systemPrompt string) []chatMessage {
	system := DefaultPolicy().SystemPrompt()
	if strings.TrimSpace(systemPrompt) != "" {
		system = systemPrompt + "\n\n" + system
	}

	out := make([]chatMessage, 0, len(history)+1)
	out = append(out, chatMessage{Role: "system", Content: system})

	for _, turn := range history {
		switch turn.Role {
		case domain.RoleAssistant:
			msg := chatMessage{Role: "assistant", Content: turn.Content}
			for _, inv := range turn.ToolInvocations {
				msg.ToolCalls = append(msg.ToolCalls, wireToolCall{
					ID:   inv.ToolCallID,
					Type: "function",
					Function: wireFunction{
						Name:      inv.ToolName,
						Arguments: string(inv.Arguments),
					},
				})
			}
			out = append(out, msg)
			for _, inv := range turn.ToolInvocations {
				if inv.Resolved() {
					out = append(out, chatMessage{
						Role:       "tool",
						ToolCallID: inv.ToolCallID,
						Content:    *inv.Result,
					})
				}
			}
		default:
			out = append(out, chatMessage{Role: "user", Content: turn.Content})
		}
	}
	return out
}
