package docs

import (
	"context"
	"fmt"
	"strings"

	"valet/internal/tools"
)

// Tool wraps the store as the agent's knowledge_search tool.
func Tool(s *Store) *tools.Tool {
	return &tools.Tool{
		Name:        "knowledge_search",
		Description: "Search the user's personal notes and documents. Prefer this over web_search for anything about the user's own projects, notes, or saved material.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "Search terms.",
				},
				"limit": map[string]any{
					"type":        "integer",
					"description": "Maximum documents to return. Default 5.",
				},
			},
			"required": []string{"query"},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			query, _ := args["query"].(string)
			if query == "" {
				return "", fmt.Errorf("query is required")
			}
			limit := 0
			if l, ok := args["limit"].(float64); ok && l > 0 {
				limit = int(l)
			}

			hits, err := s.Search(ctx, query, limit)
			if err != nil {
				return "", err
			}
			if len(hits) == 0 {
				return "No matching documents.", nil
			}

			var b strings.Builder
			fmt.Fprintf(&b, "Found %d document(s):\n", len(hits))
			for _, h := range hits {
				fmt.Fprintf(&b, "\n%s (%s)\n%s\n", h.Title, h.Path, h.Snippet)
			}
			return b.String(), nil
		},
	}
}
