package engine

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/ekovalev/prompt-iterator/internal/domain"
)

func collect(t *testing.T, e *Engine, history []domain.Turn, cfg Config) ([]*Event, error) {
	t.Helper()
	var events []*Event
	for evt, err := range e.RunTurn(context.Background(), history, cfg) {
		if err != nil {
			return events, err
		}
		events = append(events, evt)
	}
	return events, nil
}

func userTurn(content string) domain.Turn {
	return domain.Turn{Role: domain.RoleUser, Content: content}
}

func TestDemoCredentialStreamsCannedReply(t *testing.T) {
	t.Parallel()

	// The demo path must not depend on endpoint or model configuration, and
	// must never touch the network.
	e := New(
		WithDemoCharDelay(0),
		WithHTTPClient(&http.Client{Transport: failingTransport{t}}),
	)
	cfg := Config{APIKey: DemoCredential, BaseURL: "http://192.0.2.1:1/", ModelID: "nonexistent"}

	events, err := collect(t, e, []domain.Turn{userTurn("你好")}, cfg)
	if err != nil {
		t.Fatalf("demo stream failed: %v", err)
	}

	var streamed strings.Builder
	var finish *Event
	for _, evt := range events {
		switch evt.Type {
		case EventTextDelta:
			streamed.WriteString(evt.Text)
		case EventFinish:
			finish = evt
		}
	}
	if finish == nil {
		t.Fatal("stream did not finish")
	}
	if streamed.String() != demoReply {
		t.Errorf("streamed text differs from canned reply:\ngot  %q\nwant %q", streamed.String(), demoReply)
	}
	if finish.Content != demoReply {
		t.Errorf("finish content differs from canned reply: %q", finish.Content)
	}
}

func TestDemoStreamHonorsCancellation(t *testing.T) {
	t.Parallel()

	e := New() // default 20ms per character
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := 0
	var streamErr error
	for evt, err := range e.RunTurn(ctx, []domain.Turn{userTurn("hi")}, Config{APIKey: DemoCredential}) {
		if err != nil {
			streamErr = err
			break
		}
		if evt.Type == EventTextDelta {
			got++
			if got == 3 {
				cancel()
			}
		}
	}
	if !errors.Is(streamErr, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", streamErr)
	}
	if got >= len([]rune(demoReply)) {
		t.Error("stream ran to completion despite cancellation")
	}
}

func TestMissingCredentialFailsPreflight(t *testing.T) {
	t.Parallel()

	e := New(WithHTTPClient(&http.Client{Transport: failingTransport{t}}))
	_, err := collect(t, e, []domain.Turn{userTurn("hi")}, Config{BaseURL: "https://api.openai.com/v1"})

	var failure *Failure
	if !errors.As(err, &failure) {
		t.Fatalf("expected *Failure, got %v", err)
	}
	if failure.Kind != FailureMissingCredential {
		t.Errorf("kind = %q, want missing_credential", failure.Kind)
	}
	if failure.HTTPStatus() != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", failure.HTTPStatus())
	}
}

// failingTransport fails the test if any request is attempted.
type failingTransport struct{ t *testing.T }

func (ft failingTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	ft.t.Errorf("unexpected outbound request to %s", r.URL)
	return nil, errors.New("no network in this test")
}

func TestFailureMessagesEmbedConfiguration(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		failure    Failure
		wantStatus int
		wantSubstr string
	}{
		{
			name:       "connection failed embeds endpoint",
			failure:    Failure{Kind: FailureConnectionFailed, Endpoint: "https://api.deepseek.com"},
			wantStatus: http.StatusGatewayTimeout,
			wantSubstr: "https://api.deepseek.com",
		},
		{
			name:       "auth failed embeds endpoint",
			failure:    Failure{Kind: FailureAuthFailed, Endpoint: "https://api.openai.com/v1"},
			wantStatus: http.StatusUnauthorized,
			wantSubstr: "https://api.openai.com/v1",
		},
		{
			name:       "model not found embeds model id",
			failure:    Failure{Kind: FailureModelNotFound, Model: "gpt-9", Endpoint: "https://api.openai.com/v1"},
			wantStatus: http.StatusNotFound,
			wantSubstr: "'gpt-9'",
		},
		{
			name:       "unknown embeds detail",
			failure:    Failure{Kind: FailureUnknown, Detail: "rate limited"},
			wantStatus: http.StatusInternalServerError,
			wantSubstr: "rate limited",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.failure.HTTPStatus(); got != tt.wantStatus {
				t.Errorf("HTTPStatus() = %d, want %d", got, tt.wantStatus)
			}
			if msg := tt.failure.UserMessage(); !strings.Contains(msg, tt.wantSubstr) {
				t.Errorf("UserMessage() = %q, missing %q", msg, tt.wantSubstr)
			}
		})
	}
}

func TestNormalizedBaseURLStripsTrailingSlash(t *testing.T) {
	t.Parallel()

	cfg := Config{BaseURL: "https://api.deepseek.com/v1/"}
	if got := cfg.NormalizedBaseURL(); got != "https://api.deepseek.com/v1" {
		t.Errorf("NormalizedBaseURL() = %q", got)
	}
}
