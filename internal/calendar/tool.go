package calendar

import (
	"context"
	"fmt"
	"strings"
	"time"

	"valet/internal/tools"
)

// Tool wraps the client as the agent's calendar_events tool.
func Tool(c *Client) *tools.Tool {
	return &tools.Tool{
		Name:        "calendar_events",
		Description: "List upcoming calendar events. Use for questions about schedule, appointments, or availability.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"days": map[string]any{
					"type":        "integer",
					"description": "How many days ahead to look (1-60). Default 7.",
				},
			},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			days := 7
			if d, ok := args["days"].(float64); ok && d > 0 {
				days = int(d)
				if days > 60 {
					days = 60
				}
			}

			now := time.Now()
			events, err := c.Events(ctx, now, now.AddDate(0, 0, days))
			if err != nil {
				return "", err
			}
			if len(events) == 0 {
				return fmt.Sprintf("No events in the next %d day(s).", days), nil
			}
			return FormatEvents(events), nil
		},
	}
}

// FormatEvents renders events as the list the model sees.
func FormatEvents(events []Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Found %d event(s):\n", len(events))
	for _, ev := range events {
		fmt.Fprintf(&b, "\n%s", ev.Start.Format("Mon Jan 2 15:04"))
		if ev.End.After(ev.Start) {
			fmt.Fprintf(&b, " - %s", ev.End.Format("15:04"))
		}
		fmt.Fprintf(&b, ": %s", ev.Summary)
		if ev.Location != "" {
			fmt.Fprintf(&b, " (%s)", ev.Location)
		}
		if ev.Calendar != "" {
			fmt.Fprintf(&b, " [%s]", ev.Calendar)
		}
	}
	return b.String()
}
