package email

import (
	"fmt"
	"log/slog"
)

// Manager routes requests to named accounts. The first configured
// account is the default.
type Manager struct {
	accounts map[string]*account
	order    []string
	logger   *slog.Logger
}

type account struct {
	cfg    AccountConfig
	client *Client
}

// NewManager builds clients for every configured account. Connections
// are not dialed until a tool actually touches the account.
func NewManager(cfg Config, logger *slog.Logger) *Manager {
	m := &Manager{
		accounts: make(map[string]*account, len(cfg.Accounts)),
		logger:   logger,
	}
	for _, a := range cfg.Accounts {
		m.accounts[a.Name] = &account{
			cfg:    a,
			client: NewClient(a.IMAP, logger.With("account", a.Name)),
		}
		m.order = append(m.order, a.Name)
	}
	return m
}

// Account returns the named account, or the default when name is
// empty.
func (m *Manager) Account(name string) (*Client, AccountConfig, error) {
	if name == "" {
		if len(m.order) == 0 {
			return nil, AccountConfig{}, fmt.Errorf("no email accounts configured")
		}
		name = m.order[0]
	}
	a, ok := m.accounts[name]
	if !ok {
		return nil, AccountConfig{}, fmt.Errorf("email account %q not found", name)
	}
	return a.client, a.cfg, nil
}

// Names lists the configured account names in config order.
func (m *Manager) Names() []string {
	return append([]string(nil), m.order...)
}

// Close drops every account's connection.
func (m *Manager) Close() {
	for name, a := range m.accounts {
		if err := a.client.Close(); err != nil {
			m.logger.Warn("closing email client", "account", name, "error", err)
		}
	}
}
