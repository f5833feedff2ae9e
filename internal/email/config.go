package email

import "fmt"

// Config lists the mail accounts the assistant can use. It sits under
// the "email" key of the main configuration file.
type Config struct {
	Accounts []AccountConfig `yaml:"accounts"`
}

// AccountConfig is one mail account. IMAP is required; SMTP is
// optional and enables sending from the account.
type AccountConfig struct {
	// Name identifies the account in tool arguments and logs.
	Name string `yaml:"name"`

	IMAP IMAPConfig `yaml:"imap"`
	SMTP SMTPConfig `yaml:"smtp"`

	// From is the sender address for outbound mail, e.g.
	// "Ada <ada@example.org>". Required when SMTP is configured.
	From string `yaml:"from"`
}

// IMAPConfig holds IMAP connection parameters.
type IMAPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	TLS      bool   `yaml:"tls"`
}

// SMTPConfig holds SMTP connection parameters for outbound mail.
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`

	// StartTLS upgrades a plain connection. Off means implicit TLS,
	// the port 465 convention.
	StartTLS bool `yaml:"starttls"`
}

// Configured reports whether at least one account can be dialed.
func (c Config) Configured() bool {
	for _, a := range c.Accounts {
		if a.IMAP.Host != "" && a.IMAP.Username != "" {
			return true
		}
	}
	return false
}

// ApplyDefaults fills conventional ports and TLS settings.
func (c *Config) ApplyDefaults() {
	for i := range c.Accounts {
		a := &c.Accounts[i]
		if a.IMAP.Port == 0 {
			a.IMAP.Port = 993
		}
		// Plaintext IMAP only on the conventional port 143.
		if !a.IMAP.TLS && a.IMAP.Port != 143 {
			a.IMAP.TLS = true
		}
		if a.SMTP.Host != "" {
			if a.SMTP.Port == 0 {
				a.SMTP.Port = 587
			}
			if !a.SMTP.StartTLS && a.SMTP.Port != 465 {
				a.SMTP.StartTLS = true
			}
		}
	}
}

// Validate reports the first inconsistency in the account list.
func (c Config) Validate() error {
	seen := make(map[string]bool, len(c.Accounts))
	for i, a := range c.Accounts {
		if a.Name == "" {
			return fmt.Errorf("email.accounts[%d].name must not be empty", i)
		}
		if seen[a.Name] {
			return fmt.Errorf("email.accounts[%d].name %q is a duplicate", i, a.Name)
		}
		seen[a.Name] = true

		if a.IMAP.Host == "" {
			return fmt.Errorf("email account %q: imap.host is required", a.Name)
		}
		if a.IMAP.Username == "" {
			return fmt.Errorf("email account %q: imap.username is required", a.Name)
		}
		if a.IMAP.Port < 1 || a.IMAP.Port > 65535 {
			return fmt.Errorf("email account %q: imap.port %d out of range", a.Name, a.IMAP.Port)
		}

		if a.SMTP.Host != "" {
			if a.SMTP.Port < 1 || a.SMTP.Port > 65535 {
				return fmt.Errorf("email account %q: smtp.port %d out of range", a.Name, a.SMTP.Port)
			}
			if a.From == "" {
				return fmt.Errorf("email account %q: from is required when smtp is configured", a.Name)
			}
		}
	}
	return nil
}

// CanSend reports whether the account has outbound mail configured.
func (a AccountConfig) CanSend() bool {
	return a.SMTP.Host != "" && a.From != ""
}
