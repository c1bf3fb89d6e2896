package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ekovalev/prompt-iterator/internal/domain"
	"github.com/ekovalev/prompt-iterator/internal/notify"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("Close failed: %v", err)
		}
	})
	return s
}

func TestTurnsReturnedInAppendOrder(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	session, err := s.CreateSession(ctx, "customer support bot", "customer support bot")
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	// Identical created_at timestamps must not disturb append order.
	now := time.Now()
	var want []string
	for i := 0; i < 10; i++ {
		role := domain.RoleUser
		if i%2 == 1 {
			role = domain.RoleAssistant
		}
		turn := &domain.Turn{
			SessionID: session.ID,
			Role:      role,
			Content:   fmt.Sprintf("turn %d", i),
			CreatedAt: now,
		}
		if err := s.AppendTurn(ctx, turn); err != nil {
			t.Fatalf("AppendTurn %d failed: %v", i, err)
		}
		want = append(want, turn.Content)
	}

	turns, err := s.ListTurns(ctx, session.ID)
	if err != nil {
		t.Fatalf("ListTurns failed: %v", err)
	}
	if len(turns) != len(want) {
		t.Fatalf("expected %d turns, got %d", len(want), len(turns))
	}
	for i, turn := range turns {
		if turn.Content != want[i] {
			t.Errorf("turn %d: got %q, want %q", i, turn.Content, want[i])
		}
	}
}

func TestListSessionsMostRecentFirst(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	first, err := s.CreateSession(ctx, "first", "")
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	second, err := s.CreateSession(ctx, "second", "")
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	// Touching the older session moves it to the front.
	time.Sleep(1100 * time.Millisecond) // updated_at has second resolution
	if err := s.TouchSession(ctx, first.ID, "assistant replied"); err != nil {
		t.Fatalf("TouchSession failed: %v", err)
	}

	sessions, err := s.ListSessions(ctx)
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(sessions))
	}
	if sessions[0].ID != first.ID {
		t.Errorf("expected touched session first, got %q", sessions[0].Title)
	}
	if sessions[0].PreviewText != "assistant replied" {
		t.Errorf("unexpected preview: %q", sessions[0].PreviewText)
	}
	if sessions[1].ID != second.ID {
		t.Errorf("expected untouched session second, got %q", sessions[1].Title)
	}
}

func TestDeleteSessionCascades(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	keep, err := s.CreateSession(ctx, "keep", "")
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	drop, err := s.CreateSession(ctx, "drop", "")
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	for _, sid := range []string{keep.ID, drop.ID} {
		for i := 0; i < 3; i++ {
			turn := &domain.Turn{SessionID: sid, Role: domain.RoleUser, Content: "hi"}
			if err := s.AppendTurn(ctx, turn); err != nil {
				t.Fatalf("AppendTurn failed: %v", err)
			}
		}
	}

	if err := s.DeleteSession(ctx, drop.ID); err != nil {
		t.Fatalf("DeleteSession failed: %v", err)
	}

	gone, err := s.ListTurns(ctx, drop.ID)
	if err != nil {
		t.Fatalf("ListTurns failed: %v", err)
	}
	if len(gone) != 0 {
		t.Errorf("expected 0 turns after cascade, got %d", len(gone))
	}

	kept, err := s.ListTurns(ctx, keep.ID)
	if err != nil {
		t.Fatalf("ListTurns failed: %v", err)
	}
	if len(kept) != 3 {
		t.Errorf("cascade deleted turns of another session: got %d, want 3", len(kept))
	}

	if _, err := s.GetSession(ctx, drop.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for deleted session, got %v", err)
	}
}

func TestDeleteTurnRemovesExactlyOne(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	session, err := s.CreateSession(ctx, "t", "")
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	var ids []string
	for i := 0; i < 3; i++ {
		turn := &domain.Turn{SessionID: session.ID, Role: domain.RoleUser, Content: fmt.Sprintf("m%d", i)}
		if err := s.AppendTurn(ctx, turn); err != nil {
			t.Fatalf("AppendTurn failed: %v", err)
		}
		ids = append(ids, turn.ID)
	}

	if err := s.DeleteTurn(ctx, ids[1]); err != nil {
		t.Fatalf("DeleteTurn failed: %v", err)
	}

	turns, err := s.ListTurns(ctx, session.ID)
	if err != nil {
		t.Fatalf("ListTurns failed: %v", err)
	}
	if len(turns) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(turns))
	}
	if turns[0].ID != ids[0] || turns[1].ID != ids[2] {
		t.Errorf("wrong turns survived deletion: %q, %q", turns[0].Content, turns[1].Content)
	}

	if err := s.DeleteTurn(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown turn, got %v", err)
	}
}

func TestResolveToolInvocationOnce(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	session, err := s.CreateSession(ctx, "t", "")
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	turn := &domain.Turn{
		SessionID: session.ID,
		Role:      domain.RoleAssistant,
		ToolInvocations: []domain.ToolInvocation{{
			ToolCallID: "call_abc",
			ToolName:   domain.ToolProposePrompt,
			Arguments:  json.RawMessage(`{"title":"t","final_prompt":"p"}`),
		}},
	}
	if err := s.AppendTurn(ctx, turn); err != nil {
		t.Fatalf("AppendTurn failed: %v", err)
	}

	if err := s.ResolveToolInvocation(ctx, session.ID, "call_abc", "User accepted the prompt proposal."); err != nil {
		t.Fatalf("ResolveToolInvocation failed: %v", err)
	}

	err = s.ResolveToolInvocation(ctx, session.ID, "call_abc", "second write")
	if !errors.Is(err, ErrAlreadyResolved) {
		t.Fatalf("expected ErrAlreadyResolved, got %v", err)
	}

	// First result must be intact.
	turns, err := s.ListTurns(ctx, session.ID)
	if err != nil {
		t.Fatalf("ListTurns failed: %v", err)
	}
	inv := turns[0].ToolInvocations[0]
	if !inv.Resolved() || *inv.Result != "User accepted the prompt proposal." {
		t.Errorf("first result mutated: %+v", inv)
	}

	if err := s.ResolveToolInvocation(ctx, session.ID, "call_missing", "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown call id, got %v", err)
	}
}

func TestResolveToolInvocationConcurrentDuplicate(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	session, err := s.CreateSession(ctx, "t", "")
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	turn := &domain.Turn{
		SessionID: session.ID,
		Role:      domain.RoleAssistant,
		ToolInvocations: []domain.ToolInvocation{{
			ToolCallID: "call_race",
			ToolName:   domain.ToolProposePrompt,
			Arguments:  json.RawMessage(`{"title":"t","final_prompt":"p"}`),
		}},
	}
	if err := s.AppendTurn(ctx, turn); err != nil {
		t.Fatalf("AppendTurn failed: %v", err)
	}

	// Two clients racing to resolve the same invocation: exactly one wins,
	// the other gets ErrAlreadyResolved, never a locking error.
	results := make(chan error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results <- s.ResolveToolInvocation(ctx, session.ID, "call_race", fmt.Sprintf("writer %d", i))
		}(i)
	}
	wg.Wait()
	close(results)

	var ok, dup int
	for err := range results {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrAlreadyResolved):
			dup++
		default:
			t.Errorf("unexpected resolution error: %v", err)
		}
	}
	if ok != 1 || dup != 1 {
		t.Errorf("got %d successes and %d duplicates, want 1 and 1", ok, dup)
	}

	turns, err := s.ListTurns(ctx, session.ID)
	if err != nil {
		t.Fatalf("ListTurns failed: %v", err)
	}
	inv := turns[0].ToolInvocations[0]
	if !inv.Resolved() {
		t.Fatalf("invocation not resolved after race: %+v", inv)
	}
}

func TestSettingsRoundTripAndDefaults(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	settings, err := s.GetSettings(ctx)
	if err != nil {
		t.Fatalf("GetSettings failed: %v", err)
	}
	if settings.BaseURL != "https://api.openai.com/v1" || settings.ModelID != "gpt-4-turbo" {
		t.Errorf("unexpected defaults: %+v", settings)
	}

	settings.APIKey = "sk-test"
	settings.BaseURL = "https://api.deepseek.com/v1"
	settings.ModelID = "deepseek-chat"
	settings.AvailableModels = []string{"deepseek-chat"}
	if err := s.SaveSettings(ctx, settings); err != nil {
		t.Fatalf("SaveSettings failed: %v", err)
	}

	got, err := s.GetSettings(ctx)
	if err != nil {
		t.Fatalf("GetSettings failed: %v", err)
	}
	if got.APIKey != "sk-test" || got.BaseURL != "https://api.deepseek.com/v1" || got.ModelID != "deepseek-chat" {
		t.Errorf("settings did not round-trip: %+v", got)
	}
}

func TestFavoritesMostRecentlyUpdatedFirst(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	first, err := s.CreateFavorite(ctx, "代码审查提示词", "你是一位资深代码审查员……")
	if err != nil {
		t.Fatalf("CreateFavorite failed: %v", err)
	}
	second, err := s.CreateFavorite(ctx, "翻译提示词", "把以下文本翻译成英文……")
	if err != nil {
		t.Fatalf("CreateFavorite failed: %v", err)
	}

	// Editing the older favorite moves it to the front.
	time.Sleep(1100 * time.Millisecond) // updated_at has second resolution
	if err := s.UpdateFavorite(ctx, first.ID, "代码审查提示词 v2", "改进后的审查提示……"); err != nil {
		t.Fatalf("UpdateFavorite failed: %v", err)
	}

	favorites, err := s.ListFavorites(ctx)
	if err != nil {
		t.Fatalf("ListFavorites failed: %v", err)
	}
	if len(favorites) != 2 {
		t.Fatalf("expected 2 favorites, got %d", len(favorites))
	}
	if favorites[0].ID != first.ID {
		t.Errorf("expected edited favorite first, got %q", favorites[0].Title)
	}
	if favorites[0].Title != "代码审查提示词 v2" || favorites[0].Content != "改进后的审查提示……" {
		t.Errorf("edit did not persist: %+v", favorites[0])
	}
	if !favorites[0].CreatedAt.Equal(first.CreatedAt.Truncate(time.Second)) {
		t.Errorf("edit changed created_at: %v != %v", favorites[0].CreatedAt, first.CreatedAt)
	}
	if favorites[1].ID != second.ID {
		t.Errorf("expected untouched favorite second, got %q", favorites[1].Title)
	}
}

func TestFavoriteDeleteAndMissing(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	fav, err := s.CreateFavorite(ctx, "t", "c")
	if err != nil {
		t.Fatalf("CreateFavorite failed: %v", err)
	}
	if err := s.DeleteFavorite(ctx, fav.ID); err != nil {
		t.Fatalf("DeleteFavorite failed: %v", err)
	}

	favorites, err := s.ListFavorites(ctx)
	if err != nil {
		t.Fatalf("ListFavorites failed: %v", err)
	}
	if len(favorites) != 0 {
		t.Errorf("expected 0 favorites after delete, got %d", len(favorites))
	}

	if err := s.DeleteFavorite(ctx, fav.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound deleting twice, got %v", err)
	}
	if err := s.UpdateFavorite(ctx, "missing", "t", "c"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound updating unknown favorite, got %v", err)
	}
}

func TestNotifyingRepositoryPublishes(t *testing.T) {
	t.Parallel()

	bus := notify.NewBus()
	defer bus.Close()
	repo := NewNotifying(newTestStore(t), bus)

	events, cancel := bus.Subscribe()
	defer cancel()

	ctx := context.Background()
	session, err := repo.CreateSession(ctx, "t", "")
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if err := repo.TouchSession(ctx, session.ID, "p"); err != nil {
		t.Fatalf("TouchSession failed: %v", err)
	}
	if err := repo.DeleteSession(ctx, session.ID); err != nil {
		t.Fatalf("DeleteSession failed: %v", err)
	}

	want := []notify.EventType{notify.SessionCreated, notify.SessionUpdated, notify.SessionDeleted}
	for _, wt := range want {
		select {
		case evt := <-events:
			if evt.Type != wt {
				t.Errorf("got event %q, want %q", evt.Type, wt)
			}
			if evt.SessionID != session.ID {
				t.Errorf("event for wrong session: %q", evt.SessionID)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for %q", wt)
		}
	}
}
