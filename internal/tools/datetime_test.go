package tools

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestDatetimeTool(t *testing.T) {
	fixed := time.Date(2026, time.March, 14, 9, 26, 53, 0, time.UTC)
	nowFunc = func() time.Time { return fixed }
	defer func() { nowFunc = time.Now }()

	tool := DatetimeTool()
	if tool.Name != "current_datetime" {
		t.Errorf("Name = %q", tool.Name)
	}

	out, err := tool.Handler(context.Background(), map[string]any{"timezone": "UTC"})
	if err != nil {
		t.Fatalf("Handler() error: %v", err)
	}
	if !strings.Contains(out, "Saturday, March 14, 2026") {
		t.Errorf("output missing date: %q", out)
	}
	if !strings.Contains(out, "09:26:53") {
		t.Errorf("output missing time: %q", out)
	}
}

func TestDatetimeTool_Timezone(t *testing.T) {
	fixed := time.Date(2026, time.March, 14, 9, 0, 0, 0, time.UTC)
	nowFunc = func() time.Time { return fixed }
	defer func() { nowFunc = time.Now }()

	tool := DatetimeTool()
	out, err := tool.Handler(context.Background(), map[string]any{"timezone": "America/New_York"})
	if err != nil {
		t.Fatalf("Handler() error: %v", err)
	}
	// 09:00 UTC is 05:00 in New York during EDT.
	if !strings.Contains(out, "05:00:00") {
		t.Errorf("output not converted to timezone: %q", out)
	}
}

func TestDatetimeTool_BadTimezone(t *testing.T) {
	tool := DatetimeTool()
	_, err := tool.Handler(context.Background(), map[string]any{"timezone": "Atlantis/Lost"})
	if err == nil {
		t.Error("Handler() should reject unknown timezone")
	}
}
