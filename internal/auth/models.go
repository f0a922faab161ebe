package auth

import (
	"time"

	"github.com/google/uuid"
)

// TokenClaims is the verified claim set extracted from a bearer token.
// It is derived per request and never persisted.
type TokenClaims struct {
	Subject    string
	Issuer     string
	Audience   string
	ExpiresAt  time.Time
	Email      string
	GivenName  string
	FamilyName string
	FullName   string
}

// LocalUser is the durable record for a provider subject, created at most
// once per distinct subject and never deleted by this subsystem.
type LocalUser struct {
	ID        uuid.UUID
	Username  string // subject with the provider's namespace delimiter replaced
	Email     string
	FirstName string
	LastName  string
	CreatedAt time.Time
}

// AuthenticatedPrincipal is the per-request view of a validated caller.
// Email and DisplayName reflect the latest token claims and are not written
// back to the LocalUser record; keeping the view separate makes the
// non-persistence structural rather than accidental.
type AuthenticatedPrincipal struct {
	SubjectID   string
	LocalID     uuid.UUID
	Username    string
	Email       string
	DisplayName string
	RawToken    string
}
