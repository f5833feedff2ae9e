// Package fetch downloads web pages and reduces them to readable
// text for the agent.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"valet/internal/httpkit"
)

const (
	defaultTimeout = 30 * time.Second

	// maxBodyBytes caps the downloaded body at 5 MB.
	maxBodyBytes int64 = 5 << 20

	// DefaultMaxChars caps the extracted text handed to the model.
	DefaultMaxChars = 40000
)

// Page is the fetched and extracted content of a URL.
type Page struct {
	URL       string
	Title     string
	Text      string
	Truncated bool
	Status    int
}

// Fetcher downloads URLs and extracts their readable content.
type Fetcher struct {
	client *http.Client
}

// New creates a Fetcher.
func New() *Fetcher {
	return &Fetcher{
		client: httpkit.NewClient(
			httpkit.WithTimeout(defaultTimeout),
		),
	}
}

// Fetch downloads rawURL and returns its readable text. maxChars
// limits the extracted text; 0 applies DefaultMaxChars. A scheme-less
// URL is assumed to be https.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, maxChars int) (*Page, error) {
	if rawURL == "" {
		return nil, fmt.Errorf("url is required")
	}
	if !strings.Contains(rawURL, "://") {
		rawURL = "https://" + rawURL
	}
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	page := &Page{URL: rawURL, Status: resp.StatusCode}

	switch ct := strings.ToLower(resp.Header.Get("Content-Type")); {
	case strings.Contains(ct, "text/html"), strings.Contains(ct, "application/xhtml"):
		page.Title, page.Text = extract(string(body))
	case utf8.Valid(body):
		page.Text = string(body)
	default:
		page.Text = fmt.Sprintf("Binary content (%s), %d bytes", resp.Header.Get("Content-Type"), len(body))
		return page, nil
	}

	if utf8.RuneCountInString(page.Text) > maxChars {
		page.Text = truncateRunes(page.Text, maxChars)
		page.Truncated = true
	}
	return page, nil
}

// truncateRunes cuts s after maxChars runes without splitting a
// multi-byte character.
func truncateRunes(s string, maxChars int) string {
	count := 0
	for i := range s {
		if count >= maxChars {
			return s[:i]
		}
		count++
	}
	return s
}
