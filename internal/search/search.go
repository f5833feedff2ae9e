// Package search gives the agent web search across pluggable
// backends. Providers register with the Manager by name; the manager
// queries the configured primary and falls back to any remaining
// provider when the primary fails.
package search

import (
	"context"
	"fmt"
	"strings"
)

// Result is a single search hit.
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet,omitempty"`
}

// Options tune a search query.
type Options struct {
	// Count caps the number of results. Zero means provider default.
	Count int

	// Language is an ISO 639-1 code (e.g., "en", "de").
	Language string
}

// Provider is a search backend.
type Provider interface {
	Name() string
	Search(ctx context.Context, query string, opts Options) ([]Result, error)
}

// Manager routes searches to the primary provider, falling back to
// the others in registration order when it fails.
type Manager struct {
	order   []string
	byName  map[string]Provider
	primary string
}

// NewManager creates a manager. primary names the default backend.
func NewManager(primary string) *Manager {
	return &Manager{
		byName:  make(map[string]Provider),
		primary: primary,
	}
}

// Register adds a provider.
func (m *Manager) Register(p Provider) {
	if _, exists := m.byName[p.Name()]; exists {
		return
	}
	m.order = append(m.order, p.Name())
	m.byName[p.Name()] = p
}

// Configured reports whether any provider is registered.
func (m *Manager) Configured() bool { return len(m.order) > 0 }

// Search queries the primary provider. On failure every other
// registered provider is tried before giving up.
func (m *Manager) Search(ctx context.Context, query string, opts Options) ([]Result, error) {
	if !m.Configured() {
		return nil, fmt.Errorf("no search provider configured")
	}

	primary, ok := m.byName[m.primary]
	if !ok {
		primary = m.byName[m.order[0]]
	}

	results, err := primary.Search(ctx, query, opts)
	if err == nil {
		return results, nil
	}
	firstErr := fmt.Errorf("%s: %w", primary.Name(), err)

	for _, name := range m.order {
		if name == primary.Name() {
			continue
		}
		if results, err := m.byName[name].Search(ctx, query, opts); err == nil {
			return results, nil
		}
	}

	return nil, firstErr
}

// FormatResults renders results as the numbered list the model sees.
func FormatResults(results []Result) string {
	if len(results) == 0 {
		return "No results found."
	}

	var b strings.Builder
	for i, r := range results {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "%d. %s\n   %s", i+1, r.Title, r.URL)
		if r.Snippet != "" {
			fmt.Fprintf(&b, "\n   %s", r.Snippet)
		}
	}
	return b.String()
}
