package email

import (
	"context"
	"fmt"
	"strings"
	"time"

	"valet/internal/tools"
)

// RegisterTools adds the email tools to the registry. The manager's
// connections stay lazy, so a misconfigured account surfaces as a
// tool error at call time instead of blocking startup.
func RegisterTools(reg *tools.Registry, mgr *Manager) error {
	accountParam := map[string]any{
		"type":        "string",
		"description": fmt.Sprintf("Account to use (%s). Omit for the default.", strings.Join(mgr.Names(), ", ")),
	}

	list := &tools.Tool{
		Name:        "email_list",
		Description: "List recent emails in a mailbox, newest first.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"mailbox": map[string]any{
					"type":        "string",
					"description": "Mailbox to list. Default INBOX.",
				},
				"limit": map[string]any{
					"type":        "integer",
					"description": "Maximum messages to return. Default 20.",
				},
				"unseen": map[string]any{
					"type":        "boolean",
					"description": "Only unread messages.",
				},
				"account": accountParam,
			},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			client, _, err := mgr.Account(stringArg(args, "account"))
			if err != nil {
				return "", err
			}
			envelopes, err := client.List(ctx, ListOptions{
				Mailbox: stringArg(args, "mailbox"),
				Limit:   intArg(args, "limit"),
				Unseen:  boolArg(args, "unseen"),
			})
			if err != nil {
				return "", err
			}
			if len(envelopes) == 0 {
				return "No messages found.", nil
			}
			return formatEnvelopes(envelopes), nil
		},
	}

	read := &tools.Tool{
		Name:        "email_read",
		Description: "Read one email in full by its UID (from email_list or email_search). Marks the message read.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"uid": map[string]any{
					"type":        "integer",
					"description": "The message UID.",
				},
				"mailbox": map[string]any{
					"type":        "string",
					"description": "Mailbox holding the message. Default INBOX.",
				},
				"account": accountParam,
			},
			"required": []string{"uid"},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			uid := intArg(args, "uid")
			if uid == 0 {
				return "", fmt.Errorf("uid is required")
			}
			client, _, err := mgr.Account(stringArg(args, "account"))
			if err != nil {
				return "", err
			}
			msg, err := client.Read(ctx, stringArg(args, "mailbox"), uint32(uid))
			if err != nil {
				return "", err
			}
			return formatFullMessage(msg), nil
		},
	}

	searchTool := &tools.Tool{
		Name:        "email_search",
		Description: "Search a mailbox by text, sender, or date range.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "Text to search for in headers and bodies.",
				},
				"from": map[string]any{
					"type":        "string",
					"description": "Match the sender address.",
				},
				"since": map[string]any{
					"type":        "string",
					"description": "Only messages on or after this date (YYYY-MM-DD).",
				},
				"before": map[string]any{
					"type":        "string",
					"description": "Only messages before this date (YYYY-MM-DD).",
				},
				"mailbox": map[string]any{
					"type":        "string",
					"description": "Mailbox to search. Default INBOX.",
				},
				"limit": map[string]any{
					"type":        "integer",
					"description": "Maximum messages to return. Default 20.",
				},
				"account": accountParam,
			},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			client, _, err := mgr.Account(stringArg(args, "account"))
			if err != nil {
				return "", err
			}
			opts := SearchOptions{
				Mailbox: stringArg(args, "mailbox"),
				Text:    stringArg(args, "query"),
				From:    stringArg(args, "from"),
				Limit:   intArg(args, "limit"),
			}
			if s := stringArg(args, "since"); s != "" {
				if t, err := time.Parse("2006-01-02", s); err == nil {
					opts.Since = t
				}
			}
			if s := stringArg(args, "before"); s != "" {
				if t, err := time.Parse("2006-01-02", s); err == nil {
					opts.Before = t
				}
			}
			envelopes, err := client.Search(ctx, opts)
			if err != nil {
				return "", err
			}
			if len(envelopes) == 0 {
				return "No messages match.", nil
			}
			return formatEnvelopes(envelopes), nil
		},
	}

	send := &tools.Tool{
		Name:        "email_send",
		Description: "Send an email. The body is markdown and is delivered as both plain text and HTML.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"to": map[string]any{
					"type":        "array",
					"items":       map[string]any{"type": "string"},
					"description": "Recipient addresses.",
				},
				"cc": map[string]any{
					"type":        "array",
					"items":       map[string]any{"type": "string"},
					"description": "CC addresses.",
				},
				"subject": map[string]any{
					"type":        "string",
					"description": "Subject line.",
				},
				"body": map[string]any{
					"type":        "string",
					"description": "Message body in markdown.",
				},
				"account": accountParam,
			},
			"required": []string{"to", "subject", "body"},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			to := stringSliceArg(args, "to")
			subject := stringArg(args, "subject")
			body := stringArg(args, "body")
			if len(to) == 0 || subject == "" || body == "" {
				return "", fmt.Errorf("to, subject, and body are required")
			}

			_, cfg, err := mgr.Account(stringArg(args, "account"))
			if err != nil {
				return "", err
			}
			if !cfg.CanSend() {
				return "", fmt.Errorf("account %q has no outbound mail configured", cfg.Name)
			}

			cc := stringSliceArg(args, "cc")
			msg, err := Compose(Draft{
				From:    cfg.From,
				To:      to,
				Cc:      cc,
				Subject: subject,
				Body:    body,
			})
			if err != nil {
				return "", err
			}

			if err := Send(ctx, cfg.SMTP, cfg.From, uniqueRecipients(to, cc), msg); err != nil {
				return "", err
			}
			return fmt.Sprintf("Email sent to %s.", strings.Join(to, ", ")), nil
		},
	}

	for _, t := range []*tools.Tool{list, read, searchTool, send} {
		if err := reg.Register(t); err != nil {
			return err
		}
	}
	return nil
}

func formatEnvelopes(envelopes []Envelope) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Found %d message(s):\n", len(envelopes))
	for _, env := range envelopes {
		status := ""
		if !env.Seen {
			status = " [unread]"
		}
		fmt.Fprintf(&b, "\nUID %d%s\nFrom: %s\nSubject: %s\nDate: %s\n",
			env.UID, status, env.From, env.Subject, env.Date.Format("2006-01-02 15:04"))
	}
	return b.String()
}

func formatFullMessage(msg *FullMessage) string {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\n", msg.From)
	fmt.Fprintf(&b, "To: %s\n", strings.Join(msg.To, ", "))
	fmt.Fprintf(&b, "Subject: %s\n", msg.Subject)
	fmt.Fprintf(&b, "Date: %s\n\n", msg.Date.Format("2006-01-02 15:04 MST"))

	switch {
	case msg.TextBody != "":
		b.WriteString(msg.TextBody)
	case msg.HTMLBody != "":
		b.WriteString("[HTML only]\n\n")
		b.WriteString(msg.HTMLBody)
	default:
		b.WriteString("[no text content]")
	}
	return b.String()
}

func stringArg(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return v
}

func intArg(args map[string]any, key string) int {
	if v, ok := args[key].(float64); ok {
		return int(v)
	}
	return 0
}

func boolArg(args map[string]any, key string) bool {
	v, _ := args[key].(bool)
	return v
}

func stringSliceArg(args map[string]any, key string) []string {
	switch v := args[key].(type) {
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	}
	return nil
}
