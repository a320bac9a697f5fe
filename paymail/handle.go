package paymail

import (
	"fmt"
	"strings"
)

// Handle is a paymail address such as alice@example.com.
type Handle struct {
	Alias  string
	Domain string
}

func (h Handle) String() string { return h.Alias + "@" + h.Domain }

// IsHandle reports whether s looks like a paymail handle rather than an
// on-chain address.
func IsHandle(s string) bool {
	return strings.Contains(s, "@")
}

// ParseHandle splits a paymail handle and lower-cases it.
func ParseHandle(s string) (Handle, error) {
	alias, domain, ok := strings.Cut(strings.TrimSpace(s), "@")
	if !ok || alias == "" || domain == "" || strings.Contains(domain, "@") {
		return Handle{}, fmt.Errorf("%w: %q", ErrInvalidHandle, s)
	}
	domain = strings.TrimSuffix(strings.ToLower(domain), ".")
	if !strings.Contains(domain, ".") || strings.ContainsAny(domain, "/: ") {
		return Handle{}, fmt.Errorf("%w: bad domain %q", ErrInvalidHandle, domain)
	}
	if strings.ContainsAny(alias, "/?# ") {
		return Handle{}, fmt.Errorf("%w: bad alias %q", ErrInvalidHandle, alias)
	}
	return Handle{Alias: strings.ToLower(alias), Domain: domain}, nil
}
