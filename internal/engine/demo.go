package engine

import (
	"context"
	"iter"
	"time"
)

// demoReply is replayed character by character when the demo credential is
// configured. No network call is made.
const demoReply = "【演示模式】\n\n这是一个模拟回复。在真实模式下，我会调用工具生成结构化提示词。由于当前未配置真实 API Key，仅展示文本流式效果。\n\n您可以在设置中输入 OpenAI 或 DeepSeek 的 Key 来体验完整功能。"

// runDemo streams the canned reply one character at a time with a small
// inter-character delay, exercising the streaming path deterministically.
func (e *Engine) runDemo(ctx context.Context) iter.Seq2[*Event, error] {
	return func(yield func(*Event, error) bool) {
		for _, r := range demoReply {
			select {
			case <-ctx.Done():
				yield(nil, ctx.Err())
				return
			default:
			}
			if !yield(&Event{Type: EventTextDelta, Text: string(r)}, nil) {
				return
			}
			if e.demoCharDelay > 0 {
				timer := time.NewTimer(e.demoCharDelay)
				select {
				case <-ctx.Done():
					timer.Stop()
					yield(nil, ctx.Err())
					return
				case <-timer.C:
				}
			}
		}
		yield(&Event{Type: EventFinish, Content: demoReply}, nil)
	}
}
