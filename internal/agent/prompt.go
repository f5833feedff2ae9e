// Package agent contains the tool-calling reasoning loop and the
// per-turn orchestration around it.
package agent

import (
	"valet/internal/history"
	"valet/internal/llm"
)

// DefaultSystemPrompt instructs the model when the configuration does
// not override it.
const DefaultSystemPrompt = `You are a professional AI personal assistant.

You have access to tools for web search, reading web pages, email,
calendar, the user's personal notes, and the current date and time.

GENERAL RULES:
1. Be concise, clear, and helpful.
2. Use tools ONLY when they are necessary to answer the user's question.
3. If a question can be answered from general knowledge, do NOT use tools.
4. Never mention internal tool names or implementation details to the user.
5. Never fabricate emails, events, or search results.
6. If you are unsure or lack permission, explain the limitation clearly.

CHAT HISTORY:
- You are provided with previous conversation history.
- Use it to maintain context and continuity.

EMAIL RULES:
- Never send email without clear user intent.
- If the user intent is ambiguous, ask a clarification question.

RESPONSE FORMAT:
- Respond in plain natural language.
- Be polite, professional, and confident.`

// Assemble builds the model context for one turn: system
// instructions, then the stored history in original order, then the
// new question. The loop appends its tool-call scratch after this.
// Pure function; identical inputs yield identical output.
func Assemble(system string, hist []history.Message, question string) []llm.Message {
	msgs := make([]llm.Message, 0, len(hist)+2)
	msgs = append(msgs, llm.Message{Role: llm.RoleSystem, Content: system})
	for _, m := range hist {
		msgs = append(msgs, llm.Message{Role: m.Role, Content: m.Content})
	}
	msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: question})
	return msgs
}
