package email

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"
)

// Body text larger than this is cut before it reaches the model.
const maxBodyBytes = 32 * 1024

// Raw messages are buffered up to this size; the rest of the IMAP
// literal is drained to keep the stream in sync.
const maxRawBytes = 5 * 1024 * 1024

// Envelope is a message summary, enough for triage.
type Envelope struct {
	UID     uint32
	From    string
	Subject string
	Date    time.Time
	Seen    bool
}

// FullMessage is a parsed message with its text body.
type FullMessage struct {
	Envelope
	To       []string
	TextBody string
	HTMLBody string
}

// ListOptions filter a mailbox listing.
type ListOptions struct {
	Mailbox string
	Limit   int
	Unseen  bool
}

// SearchOptions filter a mailbox search. Zero fields are ignored.
type SearchOptions struct {
	Mailbox string
	Text    string
	From    string
	Since   time.Time
	Before  time.Time
	Limit   int
}

// List returns recent messages from a mailbox, newest first.
func (c *Client) List(ctx context.Context, opts ListOptions) ([]Envelope, error) {
	criteria := &imap.SearchCriteria{}
	if opts.Unseen {
		criteria.NotFlag = append(criteria.NotFlag, imap.FlagSeen)
	}
	return c.search(ctx, opts.Mailbox, criteria, opts.Limit)
}

// Search returns messages matching the given criteria, newest first.
func (c *Client) Search(ctx context.Context, opts SearchOptions) ([]Envelope, error) {
	criteria := &imap.SearchCriteria{}
	if opts.Text != "" {
		criteria.Text = []string{opts.Text}
	}
	if opts.From != "" {
		criteria.Header = append(criteria.Header, imap.SearchCriteriaHeaderField{
			Key: "From", Value: opts.From,
		})
	}
	if !opts.Since.IsZero() {
		criteria.Since = opts.Since
	}
	if !opts.Before.IsZero() {
		criteria.Before = opts.Before
	}
	return c.search(ctx, opts.Mailbox, criteria, opts.Limit)
}

func (c *Client) search(ctx context.Context, mailbox string, criteria *imap.SearchCriteria, limit int) ([]Envelope, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureLocked(); err != nil {
		return nil, err
	}
	if err := c.selectLocked(mailbox); err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = 20
	}

	data, err := c.conn.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	uids := data.AllUIDs()
	if len(uids) == 0 {
		return nil, nil
	}
	// Highest UIDs are newest; keep the tail.
	if len(uids) > limit {
		uids = uids[len(uids)-limit:]
	}

	set := imap.UIDSet{}
	for _, uid := range uids {
		set.AddNum(uid)
	}

	fetchCmd := c.conn.Fetch(set, &imap.FetchOptions{
		UID:      true,
		Envelope: true,
		Flags:    true,
	})

	var envelopes []Envelope
	for {
		msg := fetchCmd.Next()
		if msg == nil {
			break
		}
		env, ok := collectEnvelope(msg)
		if ok {
			envelopes = append(envelopes, env)
		}
	}
	if err := fetchCmd.Close(); err != nil {
		return nil, fmt.Errorf("fetch envelopes: %w", err)
	}

	// Newest first.
	for i, j := 0, len(envelopes)-1; i < j; i, j = i+1, j-1 {
		envelopes[i], envelopes[j] = envelopes[j], envelopes[i]
	}
	return envelopes, nil
}

func collectEnvelope(msg *imapclient.FetchMessageData) (Envelope, bool) {
	var env Envelope
	for {
		item := msg.Next()
		if item == nil {
			break
		}
		switch data := item.(type) {
		case imapclient.FetchItemDataUID:
			env.UID = uint32(data.UID)
		case imapclient.FetchItemDataFlags:
			for _, f := range data.Flags {
				if f == imap.FlagSeen {
					env.Seen = true
				}
			}
		case imapclient.FetchItemDataEnvelope:
			if data.Envelope != nil {
				env.Date = data.Envelope.Date
				env.Subject = data.Envelope.Subject
				if len(data.Envelope.From) > 0 {
					env.From = formatAddress(data.Envelope.From[0])
				}
			}
		case imapclient.FetchItemDataBodySection:
			drain(data.Literal)
		}
	}
	return env, env.UID != 0
}

// Read fetches one message by UID and parses its text body. Reading
// marks the message seen.
func (c *Client) Read(ctx context.Context, mailbox string, uid uint32) (*FullMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureLocked(); err != nil {
		return nil, err
	}
	if err := c.selectLocked(mailbox); err != nil {
		return nil, err
	}

	set := imap.UIDSet{}
	set.AddNum(imap.UID(uid))

	fetchCmd := c.conn.Fetch(set, &imap.FetchOptions{
		UID:         true,
		Envelope:    true,
		Flags:       true,
		BodySection: []*imap.FetchItemBodySection{{}},
	})

	msg := fetchCmd.Next()
	if msg == nil {
		_ = fetchCmd.Close()
		return nil, fmt.Errorf("message %d not found", uid)
	}

	full := &FullMessage{}
	var raw []byte
	for {
		item := msg.Next()
		if item == nil {
			break
		}
		switch data := item.(type) {
		case imapclient.FetchItemDataUID:
			full.UID = uint32(data.UID)
		case imapclient.FetchItemDataEnvelope:
			if data.Envelope != nil {
				full.Date = data.Envelope.Date
				full.Subject = data.Envelope.Subject
				if len(data.Envelope.From) > 0 {
					full.From = formatAddress(data.Envelope.From[0])
				}
				for _, addr := range data.Envelope.To {
					full.To = append(full.To, formatAddress(addr))
				}
			}
		case imapclient.FetchItemDataBodySection:
			// The literal streams straight off the IMAP connection and
			// must be consumed before advancing to the next item.
			if data.Literal == nil {
				continue
			}
			var readErr error
			raw, readErr = io.ReadAll(io.LimitReader(data.Literal, maxRawBytes))
			drain(data.Literal)
			if readErr != nil {
				c.logger.Debug("body read failed", "uid", uid, "error", readErr)
				raw = nil
			}
		}
	}
	if err := fetchCmd.Close(); err != nil {
		return nil, fmt.Errorf("fetch message %d: %w", uid, err)
	}

	if raw != nil {
		if err := parseBody(full, bytes.NewReader(raw)); err != nil {
			c.logger.Debug("body parse failed", "uid", uid, "error", err)
		}
	}
	return full, nil
}

// parseBody walks the MIME parts and keeps the first text/plain and
// text/html bodies. go-message may return a usable reader together
// with an unknown-charset error; those are tolerated.
func parseBody(full *FullMessage, r io.Reader) error {
	mr, err := mail.CreateReader(r)
	if err != nil && !message.IsUnknownCharset(err) {
		return fmt.Errorf("create mail reader: %w", err)
	}
	if mr == nil {
		return fmt.Errorf("unreadable message: %w", err)
	}

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return nil
		}
		if err != nil && !message.IsUnknownCharset(err) {
			return fmt.Errorf("next part: %w", err)
		}
		if part == nil {
			continue
		}

		inline, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		contentType, _, _ := inline.ContentType()

		switch {
		case contentType == "text/plain" && full.TextBody == "":
			full.TextBody = readPart(part.Body)
		case contentType == "text/html" && full.HTMLBody == "":
			full.HTMLBody = readPart(part.Body)
		}
	}
}

func readPart(r io.Reader) string {
	body, err := io.ReadAll(io.LimitReader(r, maxBodyBytes+1))
	if err != nil {
		return ""
	}
	text := string(body)
	if len(body) > maxBodyBytes {
		text = text[:maxBodyBytes] + "\n\n[truncated]"
	}
	return strings.TrimSpace(text)
}

func drain(r io.Reader) {
	if r != nil {
		_, _ = io.Copy(io.Discard, r)
	}
}
