package api

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/ekovalev/prompt-iterator/internal/domain"
)

func TestSettingsDefaultsBeforeFirstSave(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/settings", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var settings domain.AppSettings
	if err := json.Unmarshal(w.Body.Bytes(), &settings); err != nil {
		t.Fatalf("Failed to decode settings: %v", err)
	}
	defaults := domain.DefaultSettings()
	if settings.BaseURL != defaults.BaseURL || settings.ModelID != defaults.ModelID {
		t.Errorf("settings = %+v", settings)
	}
	if len(settings.AvailableModels) == 0 {
		t.Error("no default model suggestions")
	}
}

func TestSettingsPutOverwritesWholesale(t *testing.T) {
	env := newTestEnv(t)

	body := `{"api_key":"sk-live","base_url":"https://api.deepseek.com/v1","model_id":"deepseek-chat","system_prompt":"自定义指令"}`
	w := env.do(t, http.MethodPut, "/api/settings", body)
	if w.Code != http.StatusOK {
		t.Fatalf("put status = %d, body = %s", w.Code, w.Body.String())
	}

	w = env.do(t, http.MethodGet, "/api/settings", "")
	var settings domain.AppSettings
	if err := json.Unmarshal(w.Body.Bytes(), &settings); err != nil {
		t.Fatalf("Failed to decode settings: %v", err)
	}
	if settings.APIKey != "sk-live" || settings.ModelID != "deepseek-chat" {
		t.Errorf("settings = %+v", settings)
	}
	if len(settings.AvailableModels) == 0 {
		t.Error("model suggestions dropped on save")
	}
}

func TestSettingsPutValidation(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		body string
	}{
		{"missing base_url", `{"model_id":"gpt-4-turbo"}`},
		{"missing model_id", `{"base_url":"https://api.openai.com/v1"}`},
		{"invalid json", `{`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPut, "/api/settings", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", w.Code)
			}
		})
	}
}
