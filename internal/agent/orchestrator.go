package agent

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"valet/internal/history"
)

// ResetCommand clears the user's history instead of running a turn.
const ResetCommand = "/reset"

const (
	resetConfirmation = "🗑️ Chat history has been reset."
	failureAnswer     = "❌ Sorry, something went wrong. Please try again later."
)

// Validation errors, returned before any I/O happens.
var (
	ErrEmptyUserID   = errors.New("user_id must not be empty")
	ErrEmptyQuestion = errors.New("question must not be empty")
)

// Result is the outcome of one orchestrated turn. Err carries
// diagnostic detail for the response envelope; Answer never does.
type Result struct {
	UserID        string
	Question      string
	Answer        string
	HistoryLength int
	Err           error
}

// Orchestrator ties a turn together: load history, run the loop,
// persist the exchange, shape the result.
type Orchestrator struct {
	loop   *Loop
	store  *history.Store
	system string
	logger *slog.Logger
}

// NewOrchestrator creates an orchestrator. An empty system prompt
// selects DefaultSystemPrompt.
func NewOrchestrator(loop *Loop, store *history.Store, system string, logger *slog.Logger) *Orchestrator {
	if system == "" {
		system = DefaultSystemPrompt
	}
	return &Orchestrator{
		loop:   loop,
		store:  store,
		system: system,
		logger: logger,
	}
}

// Handle runs one turn. It never returns an error to abort on; every
// failure resolves to a polite Answer plus a populated Err. The only
// exception is input validation, which fails before any I/O.
func (o *Orchestrator) Handle(ctx context.Context, userID, question string) (Result, error) {
	if strings.TrimSpace(userID) == "" {
		return Result{}, ErrEmptyUserID
	}
	if strings.TrimSpace(question) == "" {
		return Result{}, ErrEmptyQuestion
	}

	if question == ResetCommand {
		return o.reset(ctx, userID), nil
	}

	// Load, run, append, save is one critical section per user so two
	// concurrent turns cannot overwrite each other's exchange.
	unlock := o.store.Lock(userID)
	defer unlock()

	hist := o.store.Load(ctx, userID)

	outcome := o.loop.Run(ctx, Assemble(o.system, hist, question))

	answer := outcome.Answer
	var turnErr error
	switch outcome.State {
	case Answered:
		// Use the model's answer as is.
	case Exhausted:
		turnErr = outcome.Err
		o.logger.Warn("turn exhausted its budget",
			"user_id", userID, "iterations", outcome.Iterations, "error", outcome.Err)
	case Failed:
		answer = failureAnswer
		turnErr = outcome.Err
		o.logger.Error("turn failed",
			"user_id", userID, "iterations", outcome.Iterations, "error", outcome.Err)
	}

	// The question is recorded even when the answer is a fallback, so
	// a transient failure does not punch a hole in the conversation.
	hist = append(hist,
		history.Message{Role: history.RoleUser, Content: question},
		history.Message{Role: history.RoleAssistant, Content: answer},
	)
	if err := o.store.Save(ctx, userID, hist); err != nil {
		// The in-memory copy took the write; only durability suffered.
		o.logger.Warn("history persisted in memory only", "user_id", userID, "error", err)
	}

	return Result{
		UserID:        userID,
		Question:      question,
		Answer:        answer,
		HistoryLength: len(hist),
		Err:           turnErr,
	}, nil
}

func (o *Orchestrator) reset(ctx context.Context, userID string) Result {
	unlock := o.store.Lock(userID)
	defer unlock()

	if err := o.store.Delete(ctx, userID); err != nil {
		o.logger.Warn("durable history delete failed", "user_id", userID, "error", err)
	}
	o.logger.Info("chat history reset", "user_id", userID)
	return Result{
		UserID:        userID,
		Question:      ResetCommand,
		Answer:        resetConfirmation,
		HistoryLength: 0,
	}
}
