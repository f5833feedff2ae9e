package agent

import (
	"context"
	"fmt"
	"log/slog"

	"valet/internal/llm"
	"valet/internal/tools"
)

// DefaultBudget is the iteration cap per turn. Each model round trip,
// whether it yields tool calls or fails, spends one iteration.
const DefaultBudget = 5

// State is the terminal state of a loop run.
type State int

const (
	// Answered means the model produced a final text answer.
	Answered State = iota

	// Exhausted means the budget ran out before a final answer.
	Exhausted

	// Failed means the turn could not continue (context canceled or
	// another unrecoverable condition).
	Failed
)

func (s State) String() string {
	switch s {
	case Answered:
		return "answered"
	case Exhausted:
		return "exhausted"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Outcome is the result of one loop run. Answer is always set, even
// for Exhausted and Failed, so callers can show something sensible.
type Outcome struct {
	State      State
	Answer     string
	Iterations int
	Err        error
}

// Loop runs the bounded tool-calling cycle against a model.
type Loop struct {
	client   llm.Client
	registry *tools.Registry
	budget   int
	logger   *slog.Logger
}

// NewLoop creates a loop. budget <= 0 selects DefaultBudget.
func NewLoop(client llm.Client, registry *tools.Registry, budget int, logger *slog.Logger) *Loop {
	if budget <= 0 {
		budget = DefaultBudget
	}
	return &Loop{
		client:   client,
		registry: registry,
		budget:   budget,
		logger:   logger,
	}
}

// Run executes the reasoning cycle over the assembled context. Tool
// failures and unknown tool names are folded back into the scratch as
// tool results so the model can recover; only context cancellation
// ends the turn early.
func (l *Loop) Run(ctx context.Context, scratch []llm.Message) Outcome {
	specs := l.registry.Specs()

	var lastErr error
	lastText := ""

	for iteration := 1; iteration <= l.budget; iteration++ {
		resp, err := l.client.Chat(ctx, scratch, specs)
		if err != nil {
			if ctx.Err() != nil {
				return Outcome{
					State:      Failed,
					Answer:     exhaustedFallback,
					Iterations: iteration,
					Err:        ctx.Err(),
				}
			}
			// A model hiccup spends the iteration; the next one may
			// succeed. Recurring failures end in Exhausted.
			l.logger.Warn("model invocation failed", "iteration", iteration, "error", err)
			lastErr = err
			continue
		}

		msg := resp.Message

		if len(msg.ToolCalls) == 0 {
			if msg.Content == "" {
				l.logger.Debug("model returned empty message", "iteration", iteration)
				lastErr = fmt.Errorf("model returned neither answer nor tool calls")
				continue
			}
			return Outcome{
				State:      Answered,
				Answer:     msg.Content,
				Iterations: iteration,
			}
		}

		if msg.Content != "" {
			// Interim commentary alongside tool calls; keep the most
			// recent in case the budget runs out.
			lastText = msg.Content
		}

		scratch = append(scratch, msg)
		for _, call := range msg.ToolCalls {
			result, err := l.registry.Execute(ctx, call.Name, call.Arguments)
			if err != nil {
				// The model sees its own mistake as tool output and
				// can retry differently or apologize.
				l.logger.Warn("tool call failed", "tool", call.Name, "error", err)
				result = fmt.Sprintf("Error: %v", err)
			}
			scratch = append(scratch, llm.Message{
				Role:       llm.RoleTool,
				Content:    result,
				ToolCallID: call.ID,
			})
		}
	}

	answer := lastText
	if answer == "" {
		answer = exhaustedFallback
	}
	return Outcome{
		State:      Exhausted,
		Answer:     answer,
		Iterations: l.budget,
		Err:        lastErr,
	}
}

const exhaustedFallback = "I wasn't able to finish answering that. Could you rephrase or break the question into smaller parts?"
