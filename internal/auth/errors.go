package auth

import "errors"

var (
	// ErrBadOrigin is returned when the caller does not hold the capability
	// an operation requires: no signed account, or no privileged authority.
	ErrBadOrigin = errors.New("bad origin")

	ErrUnknownAccount     = errors.New("auth: unknown account")
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
)
