package tools

import (
	"context"
	"fmt"
	"time"
)

// nowFunc is swapped in tests.
var nowFunc = time.Now

// DatetimeTool reports the current date and time. The model has no
// clock of its own, so anything time-relative ("tomorrow", "in two
// hours") depends on this tool.
func DatetimeTool() *Tool {
	return &Tool{
		Name:        "current_datetime",
		Description: "Get the current date and time. Use this whenever the user asks about dates, times, or anything relative like 'today' or 'next week'.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"timezone": map[string]any{
					"type":        "string",
					"description": "IANA timezone name (e.g., Europe/Berlin, America/New_York). Defaults to the server's local timezone.",
				},
			},
		},
		Handler: handleDatetime,
	}
}

func handleDatetime(ctx context.Context, args map[string]any) (string, error) {
	loc := time.Local
	if tz, _ := args["timezone"].(string); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return "", fmt.Errorf("unknown timezone %q", tz)
		}
		loc = l
	}

	now := nowFunc().In(loc)
	_, week := now.ISOWeek()
	return fmt.Sprintf("Current date and time: %s (%s, ISO week %d)",
		now.Format("Monday, January 2, 2006 at 15:04:05 MST"),
		now.Format(time.RFC3339),
		week,
	), nil
}
