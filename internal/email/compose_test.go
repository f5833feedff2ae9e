package email

import (
	"strings"
	"testing"
)

func TestCompose(t *testing.T) {
	msg, err := Compose(Draft{
		From:    "Ada <ada@example.org>",
		To:      []string{"grace@example.org"},
		Cc:      []string{"edsger@example.org"},
		Subject: "Meeting notes",
		Body:    "# Summary\n\nWe agreed on **three** items.",
	})
	if err != nil {
		t.Fatalf("Compose() error: %v", err)
	}

	raw := string(msg)
	for _, want := range []string{
		"From: \"Ada\" <ada@example.org>",
		"To: <grace@example.org>",
		"Cc: <edsger@example.org>",
		"Subject: Meeting notes",
		"Message-Id:",
		"text/plain",
		"text/html",
	} {
		if !strings.Contains(raw, want) {
			t.Errorf("message missing %q", want)
		}
	}

	// The HTML part renders the markdown; the plain part strips it.
	if !strings.Contains(raw, "<strong>three</strong>") {
		t.Error("html part should render markdown bold")
	}
}

func TestCompose_BadAddress(t *testing.T) {
	_, err := Compose(Draft{
		From:    "not an address",
		To:      []string{"grace@example.org"},
		Subject: "x",
		Body:    "y",
	})
	if err == nil {
		t.Error("Compose() should reject a malformed from address")
	}
}

func TestMarkdownToPlain(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"**bold** text", "bold text"},
		{"a [link](https://example.org) here", "a link (https://example.org) here"},
		{"# Heading\nbody", "Heading\nbody"},
		{"`code` span", "code span"},
		{"```go\nx := 1\n```", "x := 1"},
	}
	for _, tt := range tests {
		if got := markdownToPlain(tt.in); got != tt.want {
			t.Errorf("markdownToPlain(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestBareAddress(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Ada <ada@example.org>", "ada@example.org"},
		{"ada@example.org", "ada@example.org"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := bareAddress(tt.in); got != tt.want {
			t.Errorf("bareAddress(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestUniqueRecipients(t *testing.T) {
	got := uniqueRecipients(
		[]string{"Ada <ada@example.org>", "grace@example.org"},
		[]string{"ada@example.org", "edsger@example.org"},
	)
	want := []string{"ada@example.org", "grace@example.org", "edsger@example.org"}
	if len(got) != len(want) {
		t.Fatalf("uniqueRecipients() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("uniqueRecipients()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
