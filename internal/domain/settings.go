package domain

// AppSettings is the process-wide, user-editable configuration. It is loaded
// at startup, staged client-side while editing, and overwritten wholesale on
// save. The engine never mutates it.
type AppSettings struct {
	APIKey          string   `json:"api_key"`
	BaseURL         string   `json:"base_url"`
	ModelID         string   `json:"model_id"`
	SystemPrompt    string   `json:"system_prompt"`
	AvailableModels []string `json:"available_models"`
}

// DefaultSettings returns the out-of-box configuration.
func DefaultSettings() AppSettings {
	return AppSettings{
		APIKey:       "",
		BaseURL:      "https://api.openai.com/v1",
		ModelID:      "gpt-4-turbo",
		SystemPrompt: "你是交互式提示词优化助手。你的目标是通过多轮对话，引导用户明确需求，并最终生成高质量的结构化提示词。你应该主动提出建议，使用Checkbox等形式让用户选择。",
		AvailableModels: []string{
			"gpt-4-turbo",
			"gpt-3.5-turbo",
			"deepseek-chat",
			"deepseek-coder",
		},
	}
}
