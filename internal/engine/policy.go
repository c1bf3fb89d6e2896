package engine

import (
	"strconv"
	"strings"

	"github.com/ekovalev/prompt-iterator/internal/domain"
)

// Phase is one stage of the guided workflow and the tools the model is
// expected to use during it.
type Phase struct {
	Name          string
	Instruction   string
	RequiredTools []string
}

// Policy describes the two-phase workflow as data, separate from the literal
// text sent to the model, so the enforced contract can be tested without
// string matching against prose. The engine does not hard-enforce the
// ordering: the model skipping a phase is tolerated downstream.
type Policy struct {
	Preamble            string
	Phases              []Phase
	DocumentSections    []string
	RequireFencedPrompt bool
	Principles          []string
}

// DefaultPolicy returns the workflow the assistant is instructed to follow.
func DefaultPolicy() Policy {
	return Policy{
		Preamble: "你是交互式提示词优化助手。你的目标是帮助用户把一个模糊的想法变成一个结构化、高质量的 Prompt。",
		Phases: []Phase{
			{
				Name: "建议与澄清",
				Instruction: "当用户提出初步需求时，**不要直接生成 Prompt**。" +
					"必须调用 `suggest_enhancements` 工具，提供 3-5 个关键维度的优化建议" +
					"（如：角色设定、语气风格、思考深度、输出格式），每个维度提供 2-3 个具体选项供用户点击选择，并允许自定义。" +
					"当不明确之处是缺失的事实而非风格取舍时，改用 `ask_questions` 工具向用户提问。",
				RequiredTools: []string{domain.ToolSuggestEnhancement, domain.ToolAskQuestions},
			},
			{
				Name: "文档生成",
				Instruction: "当收到工具反馈（用户的选择）后，调用 `propose_prompt` 工具，" +
					"或直接生成符合下述格式要求的最终 Markdown 文档。",
				RequiredTools: []string{domain.ToolProposePrompt},
			},
		},
		DocumentSections: []string{
			"# 最终提示词方案",
			"目录 (TOC)",
			"## 基础增强",
			"## 深度优化",
			"## 完整 Prompt 代码块",
		},
		RequireFencedPrompt: true,
		Principles: []string{
			"始终保持引导性。",
			"最终输出必须是精美的 Markdown 格式。",
		},
	}
}

// RequiredToolsForPhase returns the tool names a phase expects, or nil.
func (p Policy) RequiredToolsForPhase(name string) []string {
	for _, phase := range p.Phases {
		if phase.Name == name {
			return phase.RequiredTools
		}
	}
	return nil
}

// SystemPrompt renders the policy into the instruction text sent to the
// model.
func (p Policy) SystemPrompt() string {
	var b strings.Builder
	b.WriteString(p.Preamble)
	b.WriteString("\n\n**核心工作流**：\n")
	for i, phase := range p.Phases {
		n := strconv.Itoa(i + 1)
		b.WriteString(n + ". **Phase " + n + ": " + phase.Name + "**\n")
		b.WriteString("   - ")
		b.WriteString(phase.Instruction)
		b.WriteString("\n")
	}
	b.WriteString("\n**文档格式要求**：\n")
	for _, section := range p.DocumentSections {
		b.WriteString("  - 必须包含 **")
		b.WriteString(section)
		b.WriteString("**\n")
	}
	if p.RequireFencedPrompt {
		b.WriteString("  - 最终的 Prompt 必须使用代码块包裹。\n")
	}
	b.WriteString("\n**原则**：\n")
	for _, principle := range p.Principles {
		b.WriteString("- ")
		b.WriteString(principle)
		b.WriteString("\n")
	}
	return b.String()
}
