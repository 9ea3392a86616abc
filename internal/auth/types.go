package auth

import "errors"

// Role represents an authorisation tier.
type Role string

const (
	// RoleViewer may read state, diagnostics and history.
	RoleViewer Role = "viewer"

	// RoleOperator may additionally send commands and change settings.
	RoleOperator Role = "operator"
)

// IsValid reports whether r is a known role.
func (r Role) IsValid() bool {
	return r == RoleViewer || r == RoleOperator
}

// Sentinel errors for auth operations.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrTokenInvalid       = errors.New("invalid token")
	ErrForbidden          = errors.New("insufficient permissions")
	ErrSecretRequired     = errors.New("jwt secret is required")
)
