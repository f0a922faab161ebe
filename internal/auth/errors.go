package auth

import (
	dErrors "github.com/Bikorwhat/ecommerce/pkg/domain-errors"
)

// Authentication failures. All map to 401; the messages are short and safe
// to return to clients.
var (
	ErrMalformedAuthHeader  = dErrors.New(dErrors.CodeUnauthorized, "invalid authorization header format, expected: Bearer <token>")
	ErrMalformedToken       = dErrors.New(dErrors.CodeUnauthorized, "malformed token")
	ErrUnknownSigningKey    = dErrors.New(dErrors.CodeUnauthorized, "token signing key not found")
	ErrUnsupportedAlgorithm = dErrors.New(dErrors.CodeUnauthorized, "unsupported token signing algorithm")
	ErrTokenExpired         = dErrors.New(dErrors.CodeUnauthorized, "token has expired")
	ErrInvalidAudience      = dErrors.New(dErrors.CodeUnauthorized, "invalid token audience")
	ErrInvalidIssuer        = dErrors.New(dErrors.CodeUnauthorized, "invalid token issuer")
	ErrInvalidToken         = dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	ErrMissingSubjectClaim  = dErrors.New(dErrors.CodeUnauthorized, "token missing 'sub' claim")
)
