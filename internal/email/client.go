// Package email connects the assistant to IMAP and SMTP accounts.
package email

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
)

// Client wraps a single account's IMAP connection. The connection is
// dialed on first use and re-dialed when it goes stale. All methods
// are safe for concurrent use; the mutex serializes IMAP commands.
type Client struct {
	cfg    IMAPConfig
	logger *slog.Logger

	mu   sync.Mutex
	conn *imapclient.Client
}

// NewClient creates a lazily connected IMAP client.
func NewClient(cfg IMAPConfig, logger *slog.Logger) *Client {
	return &Client{cfg: cfg, logger: logger}
}

// dialLocked (re)establishes the connection. Caller holds c.mu.
func (c *Client) dialLocked() error {
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}

	addr := net.JoinHostPort(c.cfg.Host, strconv.Itoa(c.cfg.Port))
	c.logger.Debug("dialing imap", "addr", addr, "tls", c.cfg.TLS)

	var (
		conn *imapclient.Client
		err  error
	)
	if c.cfg.TLS {
		opts := imapclient.Options{TLSConfig: &tls.Config{ServerName: c.cfg.Host}}
		conn, err = imapclient.DialTLS(addr, &opts)
	} else {
		conn, err = imapclient.DialInsecure(addr, nil)
	}
	if err != nil {
		return fmt.Errorf("dial imap %s: %w", addr, err)
	}

	if err := conn.Login(c.cfg.Username, c.cfg.Password).Wait(); err != nil {
		_ = conn.Close()
		return fmt.Errorf("imap login %s: %w", c.cfg.Username, err)
	}

	c.conn = conn
	c.logger.Info("imap connected", "host", c.cfg.Host, "user", c.cfg.Username)
	return nil
}

// ensureLocked verifies liveness with a NOOP and reconnects when the
// session is gone. Caller holds c.mu.
func (c *Client) ensureLocked() error {
	if c.conn != nil {
		if err := c.conn.Noop().Wait(); err == nil {
			return nil
		}
		c.logger.Debug("imap session stale, reconnecting", "host", c.cfg.Host)
	}
	return c.dialLocked()
}

// Ping verifies the account is reachable and the credentials work.
func (c *Client) Ping(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ensureLocked()
}

// Close logs out and drops the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// selectLocked opens a mailbox, defaulting to INBOX. Caller holds c.mu.
func (c *Client) selectLocked(mailbox string) error {
	if mailbox == "" {
		mailbox = "INBOX"
	}
	if _, err := c.conn.Select(mailbox, nil).Wait(); err != nil {
		return fmt.Errorf("select %s: %w", mailbox, err)
	}
	return nil
}

// formatAddress renders an IMAP address as "Name <user@host>".
func formatAddress(addr imap.Address) string {
	if addr.Name != "" {
		return fmt.Sprintf("%s <%s>", addr.Name, addr.Addr())
	}
	return addr.Addr()
}
