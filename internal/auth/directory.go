package auth

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Account is a credentialed signer known to the token endpoint.
type Account struct {
	ID           string   `json:"account"`
	PasswordHash string   `json:"password_hash"`
	Roles        []string `json:"roles,omitempty"`
}

// Directory resolves account credentials into roles.
type Directory struct {
	accounts map[string]Account
}

// NewDirectory indexes accounts by identifier. Duplicate identifiers are rejected.
func NewDirectory(accounts []Account) (*Directory, error) {
	d := &Directory{accounts: make(map[string]Account, len(accounts))}
	for _, acc := range accounts {
		acc.ID = strings.TrimSpace(acc.ID)
		if acc.ID == "" {
			return nil, fmt.Errorf("auth: account id is required")
		}
		if acc.PasswordHash == "" {
			return nil, fmt.Errorf("auth: account %q has no password hash", acc.ID)
		}
		if _, dup := d.accounts[acc.ID]; dup {
			return nil, fmt.Errorf("auth: duplicate account %q", acc.ID)
		}
		acc.Roles = dedupeRoles(acc.Roles)
		d.accounts[acc.ID] = acc
	}
	return d, nil
}

// ParseDirectory decodes a JSON list of accounts, as carried by AUTHRIGHT_ACCOUNTS.
func ParseDirectory(raw string) (*Directory, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return NewDirectory(nil)
	}
	var accounts []Account
	if err := json.Unmarshal([]byte(raw), &accounts); err != nil {
		return nil, fmt.Errorf("auth: decode accounts: %w", err)
	}
	return NewDirectory(accounts)
}

// Len reports the number of known accounts.
func (d *Directory) Len() int {
	if d == nil {
		return 0
	}
	return len(d.accounts)
}

// Authenticate checks the password and returns the account's roles.
func (d *Directory) Authenticate(account, password string) ([]string, error) {
	if d == nil {
		return nil, ErrUnknownAccount
	}
	acc, ok := d.accounts[strings.TrimSpace(account)]
	if !ok {
		return nil, ErrUnknownAccount
	}
	if err := VerifyPassword(acc.PasswordHash, password); err != nil {
		return nil, ErrInvalidCredentials
	}
	roles := make([]string, len(acc.Roles))
	copy(roles, acc.Roles)
	return roles, nil
}
