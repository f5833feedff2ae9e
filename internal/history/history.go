// Package history provides per-user conversation persistence.
package history

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Message roles as persisted. Only the user/assistant exchange is
// stored; system prompts and tool traffic are reassembled per turn.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one persisted conversation entry.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Storage modes reported by Mode.
const (
	ModeDurable  = "durable"
	ModeVolatile = "volatile"
)

// Store keeps conversation history per user. When a SQLite path is
// configured the store is durable; without one, or when the database
// fails, it degrades to process memory so conversations keep working
// at the cost of surviving a restart. Reads never fail; writes report
// durable-backend errors so callers can decide how loudly to degrade.
type Store struct {
	logger *slog.Logger

	db *sqliteBackend // nil in volatile mode

	// cache mirrors the latest saved state per user. It is the source
	// of truth in volatile mode and the fallback when the database
	// misbehaves mid-session.
	mu    sync.RWMutex
	cache map[string][]Message

	// locks serializes the load/append/save cycle per user.
	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// New creates a store. path is the SQLite database file; an empty
// path selects volatile mode. A database that cannot be opened also
// degrades to volatile mode rather than failing startup.
func New(path string, logger *slog.Logger) *Store {
	s := &Store{
		logger: logger,
		cache:  make(map[string][]Message),
		locks:  make(map[string]*sync.Mutex),
	}

	if path == "" {
		logger.Info("history store running in volatile mode")
		return s
	}

	db, err := openSQLite(path)
	if err != nil {
		logger.Warn("history database unavailable, falling back to volatile mode",
			"path", path, "error", err)
		return s
	}

	s.db = db
	logger.Info("history store opened", "path", path)
	return s
}

// Mode reports the configured storage mode.
func (s *Store) Mode() string {
	if s.db != nil {
		return ModeDurable
	}
	return ModeVolatile
}

// Lock acquires the per-user mutex and returns the release func.
// Callers hold it across their load/modify/save sequence so
// concurrent turns for the same user cannot interleave.
func (s *Store) Lock(userID string) func() {
	s.locksMu.Lock()
	mu, ok := s.locks[userID]
	if !ok {
		mu = &sync.Mutex{}
		s.locks[userID] = mu
	}
	s.locksMu.Unlock()

	mu.Lock()
	return mu.Unlock
}

// Load returns the stored history for a user. A user with no history
// gets an empty slice. The returned slice is the caller's to mutate.
func (s *Store) Load(ctx context.Context, userID string) []Message {
	if s.db != nil {
		msgs, err := s.db.load(ctx, userID)
		if err == nil {
			s.setCache(userID, msgs)
			return msgs
		}
		s.logger.Warn("history load failed, serving cached copy",
			"user_id", userID, "error", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Message(nil), s.cache[userID]...)
}

// Save replaces the stored history for a user. The in-memory copy is
// updated unconditionally, so the conversation continues even when
// persistence is down. The returned error reports a durable write
// failure; callers decide whether that matters (the orchestrator logs
// it and carries on).
func (s *Store) Save(ctx context.Context, userID string, msgs []Message) error {
	s.setCache(userID, msgs)

	if s.db == nil {
		return nil
	}
	if err := s.db.save(ctx, userID, msgs); err != nil {
		return fmt.Errorf("save history for %s: %w", userID, err)
	}
	return nil
}

// Delete removes a user's history. Deleting an absent user is a
// no-op, which makes reset idempotent. The in-memory copy is cleared
// unconditionally; the returned error reports a durable delete
// failure only.
func (s *Store) Delete(ctx context.Context, userID string) error {
	s.mu.Lock()
	delete(s.cache, userID)
	s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	if err := s.db.delete(ctx, userID); err != nil {
		return fmt.Errorf("delete history for %s: %w", userID, err)
	}
	return nil
}

// DeleteAll clears every user's history.
func (s *Store) DeleteAll(ctx context.Context) error {
	s.mu.Lock()
	s.cache = make(map[string][]Message)
	s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	if err := s.db.deleteAll(ctx); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	return nil
}

// Close releases the database handle, if any.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.close()
}

func (s *Store) setCache(userID string, msgs []Message) {
	s.mu.Lock()
	s.cache[userID] = append([]Message(nil), msgs...)
	s.mu.Unlock()
}
