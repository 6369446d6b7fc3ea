package agent

import (
	"github.com/michaelbrown/toolagent/internal/llm"
)

// estimateTokens approximates a message's token count at four characters per token.
func estimateTokens(m llm.Message) int {
	tokens := len(m.Content) / 4
	for _, tc := range m.ToolCalls {
		tokens += len(tc.Name) / 4
		tokens += len(tc.ArgsJSON()) / 4
	}
	return max(tokens, 1)
}

func estimateHistoryTokens(messages []llm.Message) int {
	total := 0
	for _, m := range messages {
		total += estimateTokens(m)
	}
	return total
}

// trimHistory drops the oldest turns once the history exceeds budget.
// The system prompt at index 0 is always kept and the cut is made at a user
// message so a tool call is never separated from its result.
func trimHistory(history []llm.Message, budget int) []llm.Message {
	if len(history) <= 2 || estimateHistoryTokens(history) <= budget {
		return history
	}

	keep := budget - estimateTokens(history[0])
	start := len(history)
	for i := len(history) - 1; i >= 1; i-- {
		keep -= estimateTokens(history[i])
		if keep < 0 {
			break
		}
		start = i
	}

	for start < len(history) && history[start].Role != llm.RoleUser {
		start++
	}

	trimmed := make([]llm.Message, 0, 1+len(history)-start)
	trimmed = append(trimmed, history[0])
	return append(trimmed, history[start:]...)
}
