package auth

import (
	"context"
	"strings"
)

// RoleRoot marks the privileged authority allowed to change approval status.
const RoleRoot = "root"

// Origin is the resolved caller of a registry operation.
type Origin struct {
	Account string
	Root    bool
}

// Signed returns an origin for an ordinary signed account.
func Signed(account string) Origin {
	return Origin{Account: strings.TrimSpace(account)}
}

// SignedRoot returns an origin for an account holding the privileged authority.
func SignedRoot(account string) Origin {
	return Origin{Account: strings.TrimSpace(account), Root: true}
}

// EnsureSigned returns the signing account or ErrBadOrigin.
func (o Origin) EnsureSigned() (string, error) {
	if o.Account == "" {
		return "", ErrBadOrigin
	}
	return o.Account, nil
}

// EnsureSignedRoot requires a concrete account that also holds the
// privileged authority token.
func (o Origin) EnsureSignedRoot() (string, error) {
	if o.Account == "" || !o.Root {
		return "", ErrBadOrigin
	}
	return o.Account, nil
}

// OriginFromContext resolves the authenticated caller stored by the
// transport layer. A missing account yields the zero Origin.
func OriginFromContext(ctx context.Context) Origin {
	account, ok := UserIDFromContext(ctx)
	if !ok {
		return Origin{}
	}
	return Origin{Account: account, Root: HasRole(ctx, RoleRoot)}
}
