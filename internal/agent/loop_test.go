package agent

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"valet/internal/llm"
	"valet/internal/tools"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// scriptedClient replays a fixed sequence of responses or errors.
// After the script runs out, the last entry repeats.
type scriptedClient struct {
	script []scriptStep
	calls  int

	// seen records the message context of every Chat call.
	seen [][]llm.Message
}

type scriptStep struct {
	msg llm.Message
	err error
}

func (c *scriptedClient) Chat(ctx context.Context, messages []llm.Message, specs []map[string]any) (*llm.ChatResponse, error) {
	c.seen = append(c.seen, append([]llm.Message(nil), messages...))
	step := c.script[min(c.calls, len(c.script)-1)]
	c.calls++
	if step.err != nil {
		return nil, step.err
	}
	return &llm.ChatResponse{Message: step.msg}, nil
}

func (c *scriptedClient) Ping(ctx context.Context) error { return nil }

func answer(text string) scriptStep {
	return scriptStep{msg: llm.Message{Role: llm.RoleAssistant, Content: text}}
}

func toolCall(name string, args map[string]any) scriptStep {
	return scriptStep{msg: llm.Message{
		Role:      llm.RoleAssistant,
		ToolCalls: []llm.ToolCall{{ID: "call_1", Name: name, Arguments: args}},
	}}
}

func echoRegistry(t *testing.T) *tools.Registry {
	t.Helper()
	reg := tools.NewRegistry()
	reg.MustRegister(&tools.Tool{
		Name:        "echo",
		Description: "echoes",
		Parameters:  map[string]any{"type": "object"},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			text, _ := args["text"].(string)
			return "echo: " + text, nil
		},
	})
	return reg
}

func TestLoop_DirectAnswer(t *testing.T) {
	client := &scriptedClient{script: []scriptStep{answer("The capital is Oslo.")}}
	loop := NewLoop(client, echoRegistry(t), 5, testLogger())

	out := loop.Run(context.Background(), Assemble("sys", nil, "capital of Norway?"))
	if out.State != Answered {
		t.Fatalf("State = %v, want Answered", out.State)
	}
	if out.Answer != "The capital is Oslo." {
		t.Errorf("Answer = %q", out.Answer)
	}
	if out.Iterations != 1 {
		t.Errorf("Iterations = %d, want 1", out.Iterations)
	}
}

func TestLoop_ToolCallThenAnswer(t *testing.T) {
	client := &scriptedClient{script: []scriptStep{
		toolCall("echo", map[string]any{"text": "ping"}),
		answer("done"),
	}}
	loop := NewLoop(client, echoRegistry(t), 5, testLogger())

	out := loop.Run(context.Background(), Assemble("sys", nil, "q"))
	if out.State != Answered || out.Answer != "done" {
		t.Fatalf("outcome = %+v", out)
	}
	if out.Iterations != 2 {
		t.Errorf("Iterations = %d, want 2", out.Iterations)
	}

	// The second model call must see the tool result in its context.
	second := client.seen[1]
	last := second[len(second)-1]
	if last.Role != llm.RoleTool || last.Content != "echo: ping" {
		t.Errorf("scratch tail = %+v, want tool result", last)
	}
	if last.ToolCallID != "call_1" {
		t.Errorf("ToolCallID = %q, want call_1", last.ToolCallID)
	}
}

func TestLoop_BudgetTermination(t *testing.T) {
	// A model that always wants another tool call must stop at the
	// budget with an Exhausted outcome.
	client := &scriptedClient{script: []scriptStep{
		toolCall("echo", map[string]any{"text": "again"}),
	}}
	loop := NewLoop(client, echoRegistry(t), 5, testLogger())

	out := loop.Run(context.Background(), Assemble("sys", nil, "q"))
	if out.State != Exhausted {
		t.Fatalf("State = %v, want Exhausted", out.State)
	}
	if out.Iterations != 5 {
		t.Errorf("Iterations = %d, want the full budget", out.Iterations)
	}
	if client.calls != 5 {
		t.Errorf("model calls = %d, want 5", client.calls)
	}
	if out.Answer == "" {
		t.Error("Exhausted outcome must still carry an answer")
	}
}

func TestLoop_UnknownToolResilience(t *testing.T) {
	client := &scriptedClient{script: []scriptStep{
		toolCall("teleport", nil),
		answer("sorry, I cannot do that"),
	}}
	loop := NewLoop(client, echoRegistry(t), 5, testLogger())

	out := loop.Run(context.Background(), Assemble("sys", nil, "q"))
	if out.State != Answered {
		t.Fatalf("State = %v, want Answered despite unknown tool", out.State)
	}
	if out.Answer != "sorry, I cannot do that" {
		t.Errorf("Answer = %q", out.Answer)
	}

	// The unknown-tool error must be fed back as tool output.
	second := client.seen[1]
	last := second[len(second)-1]
	if last.Role != llm.RoleTool {
		t.Fatalf("scratch tail role = %q, want tool", last.Role)
	}
	if last.Content == "" || last.Content[:6] != "Error:" {
		t.Errorf("tool result = %q, want an error string", last.Content)
	}
}

func TestLoop_ToolFailureContinues(t *testing.T) {
	reg := tools.NewRegistry()
	reg.MustRegister(&tools.Tool{
		Name:        "flaky",
		Description: "always fails",
		Parameters:  map[string]any{"type": "object"},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			return "", errors.New("backend down")
		},
	})

	client := &scriptedClient{script: []scriptStep{
		toolCall("flaky", nil),
		answer("recovered"),
	}}
	loop := NewLoop(client, reg, 5, testLogger())

	out := loop.Run(context.Background(), Assemble("sys", nil, "q"))
	if out.State != Answered || out.Answer != "recovered" {
		t.Fatalf("outcome = %+v", out)
	}
}

func TestLoop_ModelErrorSpendsIteration(t *testing.T) {
	client := &scriptedClient{script: []scriptStep{
		{err: errors.New("rate limited")},
		answer("eventually"),
	}}
	loop := NewLoop(client, echoRegistry(t), 5, testLogger())

	out := loop.Run(context.Background(), Assemble("sys", nil, "q"))
	if out.State != Answered || out.Answer != "eventually" {
		t.Fatalf("outcome = %+v", out)
	}
	if out.Iterations != 2 {
		t.Errorf("Iterations = %d, want 2", out.Iterations)
	}
}

func TestLoop_PersistentModelErrorExhausts(t *testing.T) {
	cause := errors.New("provider down")
	client := &scriptedClient{script: []scriptStep{{err: cause}}}
	loop := NewLoop(client, echoRegistry(t), 3, testLogger())

	out := loop.Run(context.Background(), Assemble("sys", nil, "q"))
	if out.State != Exhausted {
		t.Fatalf("State = %v, want Exhausted", out.State)
	}
	if !errors.Is(out.Err, cause) {
		t.Errorf("Err = %v, want the model error", out.Err)
	}
}

func TestLoop_CanceledContextFails(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := &scriptedClient{script: []scriptStep{{err: context.Canceled}}}
	loop := NewLoop(client, echoRegistry(t), 5, testLogger())

	out := loop.Run(ctx, Assemble("sys", nil, "q"))
	if out.State != Failed {
		t.Fatalf("State = %v, want Failed on cancellation", out.State)
	}
	if out.Err == nil {
		t.Error("Failed outcome should carry the cancellation error")
	}
}

func TestLoop_ExhaustedUsesInterimCommentary(t *testing.T) {
	// When the model narrates alongside its tool calls, the last
	// narration becomes the Exhausted answer.
	step := toolCall("echo", map[string]any{"text": "x"})
	step.msg.Content = "Let me check that for you."
	client := &scriptedClient{script: []scriptStep{step}}
	loop := NewLoop(client, echoRegistry(t), 2, testLogger())

	out := loop.Run(context.Background(), Assemble("sys", nil, "q"))
	if out.State != Exhausted {
		t.Fatalf("State = %v, want Exhausted", out.State)
	}
	if out.Answer != "Let me check that for you." {
		t.Errorf("Answer = %q, want the interim commentary", out.Answer)
	}
}
