package fetch

import (
	"context"
	"fmt"
	"strings"

	"valet/internal/tools"
)

// Tool wraps the fetcher as the agent's web_fetch tool.
func Tool(f *Fetcher) *tools.Tool {
	return &tools.Tool{
		Name:        "web_fetch",
		Description: "Fetch a web page and return its readable text. Use after web_search to read a promising result in full.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"url": map[string]any{
					"type":        "string",
					"description": "The URL to fetch.",
				},
				"max_chars": map[string]any{
					"type":        "integer",
					"description": "Maximum characters of extracted text to return.",
				},
			},
			"required": []string{"url"},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			rawURL, _ := args["url"].(string)
			if rawURL == "" {
				return "", fmt.Errorf("url is required")
			}

			maxChars := 0
			if mc, ok := args["max_chars"].(float64); ok && mc > 0 {
				maxChars = int(mc)
			}

			page, err := f.Fetch(ctx, rawURL, maxChars)
			if err != nil {
				return "", err
			}

			var b strings.Builder
			if page.Title != "" {
				fmt.Fprintf(&b, "Title: %s\n\n", page.Title)
			}
			b.WriteString(page.Text)
			if page.Truncated {
				b.WriteString("\n\n[content truncated]")
			}
			return b.String(), nil
		},
	}
}
