package engine

import "github.com/ekovalev/prompt-iterator/internal/domain"

// toolDefinition is the wire-format tool declaration sent to the provider
// (OpenAI function-calling shape).
type toolDefinition struct {
	Type     string             `json:"type"`
	Function functionDefinition `json:"function"`
}

type functionDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// protocolTools declares the three structured tools the workflow uses.
// The schemas mirror the typed payloads in the domain package.
func protocolTools() []toolDefinition {
	return []toolDefinition{
		{
			Type: "function",
			Function: functionDefinition{
				Name:        domain.ToolAskQuestions,
				Description: "当用户需求不明确时，调用此工具向用户提问。",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"questions": map[string]any{
							"type": "array",
							"items": map[string]any{
								"type": "object",
								"properties": map[string]any{
									"id":   map[string]any{"type": "string"},
									"text": map[string]any{"type": "string", "description": "The question to ask the user"},
									"type": map[string]any{
										"type":        "string",
										"enum":        []string{"text", "select", "checkbox"},
										"description": "Type of input required",
									},
									"options": map[string]any{
										"type":        "array",
										"items":       map[string]any{"type": "string"},
										"description": "Options for select/checkbox",
									},
								},
								"required": []string{"id", "text", "type"},
							},
						},
					},
					"required": []string{"questions"},
				},
			},
		},
		{
			Type: "function",
			Function: functionDefinition{
				Name:        domain.ToolSuggestEnhancement,
				Description: "Phase 1: 提供多维度的优化建议供用户选择。",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"dimensions": map[string]any{
							"type": "array",
							"items": map[string]any{
								"type": "object",
								"properties": map[string]any{
									"key":   map[string]any{"type": "string"},
									"title": map[string]any{"type": "string", "description": "维度标题，如“语气风格”"},
									"options": map[string]any{
										"type":        "array",
										"description": "供用户点击的预设选项",
										"items": map[string]any{
											"type": "object",
											"properties": map[string]any{
												"label":       map[string]any{"type": "string"},
												"value":       map[string]any{"type": "string"},
												"description": map[string]any{"type": "string"},
											},
											"required": []string{"label", "value"},
										},
									},
									"allowCustom": map[string]any{
										"type":        "boolean",
										"description": "是否允许用户输入自定义要求",
									},
								},
								"required": []string{"key", "title", "options"},
							},
						},
					},
					"required": []string{"dimensions"},
				},
			},
		},
		{
			Type: "function",
			Function: functionDefinition{
				Name:        domain.ToolProposePrompt,
				Description: "Phase 2: 输出最终的结构化提示词方案。",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"title":       map[string]any{"type": "string"},
						"role":        map[string]any{"type": "string"},
						"objective":   map[string]any{"type": "string"},
						"context":     map[string]any{"type": "string"},
						"constraints": map[string]any{"type": "string"},
						"workflow":    map[string]any{"type": "string"},
						"variables": map[string]any{
							"type":  "array",
							"items": map[string]any{"type": "string"},
						},
						"final_prompt": map[string]any{"type": "string"},
					},
					"required": []string{"title", "final_prompt"},
				},
			},
		},
	}
}
