package auth

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Role is the authorization level embedded into issued tokens.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// DefaultRole is assigned at registration.
const DefaultRole = RoleUser

// Valid reports whether r belongs to the closed set of roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// ParseRole normalizes and validates a stored or claimed role.
func ParseRole(raw string) (Role, error) {
	r := Role(strings.TrimSpace(strings.ToLower(raw)))
	if !r.Valid() {
		return "", fmt.Errorf("%w: unknown role %q", ErrInvalidInput, raw)
	}
	return r, nil
}

// Identity is a registered user account.
type Identity struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}

// CredentialStore persists identities. Implementations must enforce email
// uniqueness themselves and report a violation as ErrConflict.
type CredentialStore interface {
	// FindIdentityByEmail returns ErrNotFound when no identity matches.
	FindIdentityByEmail(ctx context.Context, email string) (Identity, error)
	// InsertIdentity creates the identity atomically or not at all.
	InsertIdentity(ctx context.Context, identity Identity) (Identity, error)
	// UpdateCredentials rotates the verifier and role of an existing identity.
	UpdateCredentials(ctx context.Context, id, passwordHash string, role Role) error
}

// NormalizeEmail trims and lower-cases an email so that uniqueness and login
// lookups are case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
