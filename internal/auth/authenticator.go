package auth

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Bikorwhat/ecommerce/internal/auth/jwks"
	"github.com/Bikorwhat/ecommerce/internal/platform/metrics"
)

const tracerName = "github.com/Bikorwhat/ecommerce/internal/auth"

// KeyResolver resolves a token's key id to an RSA verification key.
type KeyResolver interface {
	GetSigningKey(ctx context.Context, kid string) (*rsa.PublicKey, error)
}

// PrincipalResolver maps verified claims to a local principal, creating the
// local user on first sight of a subject.
type PrincipalResolver interface {
	Resolve(ctx context.Context, claims TokenClaims) (*AuthenticatedPrincipal, error)
}

// providerClaims is the wire shape of the provider's access token payload.
type providerClaims struct {
	Email      string `json:"email,omitempty"`
	GivenName  string `json:"given_name,omitempty"`
	FamilyName string `json:"family_name,omitempty"`
	Name       string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// Authenticator validates bearer tokens issued by the identity provider and
// resolves them to principals. RS256 is the only accepted algorithm; the
// token's own header never widens the accepted set.
type Authenticator struct {
	keys       KeyResolver
	principals PrincipalResolver
	audience   string
	issuer     string
	metrics    *metrics.Metrics
	tracer     trace.Tracer
	parser     *jwt.Parser
}

func NewAuthenticator(keys KeyResolver, principals PrincipalResolver, audience, issuer string, m *metrics.Metrics) *Authenticator {
	return &Authenticator{
		keys:       keys,
		principals: principals,
		audience:   audience,
		issuer:     issuer,
		metrics:    m,
		tracer:     otel.Tracer(tracerName),
		parser: jwt.NewParser(
			jwt.WithAudience(audience),
			jwt.WithIssuer(issuer),
			jwt.WithExpirationRequired(),
		),
	}
}

// ParseBearer splits an Authorization header into its token. An absent
// header is not a failure: it reports ok=false so the route boundary can
// decide whether authentication is required. A present but malformed header
// (not exactly two space-separated parts, or a scheme other than "bearer")
// is ErrMalformedAuthHeader.
func ParseBearer(header string) (token string, ok bool, err error) {
	if header == "" {
		return "", false, nil
	}
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false, ErrMalformedAuthHeader
	}
	return parts[1], true, nil
}

// Authenticate verifies the token string and returns the caller's
// principal. Failures are classified per the authentication taxonomy; a
// *jwks.KeyFetchError passes through untouched so callers can distinguish
// provider outage from a bad credential.
func (a *Authenticator) Authenticate(ctx context.Context, tokenString string) (*AuthenticatedPrincipal, error) {
	ctx, span := a.tracer.Start(ctx, "auth.Authenticate")
	defer span.End()

	principal, err := a.authenticate(ctx, tokenString)
	if err != nil {
		a.metrics.TokensValidated.WithLabelValues("failure").Inc()
		span.RecordError(err)
		return nil, err
	}
	a.metrics.TokensValidated.WithLabelValues("success").Inc()
	span.SetAttributes(attribute.String("auth.subject", principal.SubjectID))
	return principal, nil
}

func (a *Authenticator) authenticate(ctx context.Context, tokenString string) (*AuthenticatedPrincipal, error) {
	kid, err := extractKeyID(tokenString)
	if err != nil {
		return nil, err
	}

	claims := &providerClaims{}
	_, err = a.parser.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok || t.Method.Alg() != jwt.SigningMethodRS256.Alg() {
			return nil, ErrUnsupportedAlgorithm
		}
		key, err := a.keys.GetSigningKey(ctx, kid)
		if err != nil {
			if errors.Is(err, jwks.ErrKeyNotFound) {
				return nil, ErrUnknownSigningKey
			}
			return nil, err
		}
		return key, nil
	})
	if err != nil {
		return nil, classifyTokenError(err)
	}

	if claims.Subject == "" {
		return nil, ErrMissingSubjectClaim
	}

	tokenClaims := TokenClaims{
		Subject:    claims.Subject,
		Issuer:     claims.Issuer,
		Audience:   a.audience,
		Email:      claims.Email,
		GivenName:  claims.GivenName,
		FamilyName: claims.FamilyName,
		FullName:   claims.Name,
	}
	if claims.ExpiresAt != nil {
		tokenClaims.ExpiresAt = claims.ExpiresAt.Time
	}

	principal, err := a.principals.Resolve(ctx, tokenClaims)
	if err != nil {
		return nil, fmt.Errorf("resolve principal: %w", err)
	}
	principal.RawToken = tokenString
	return principal, nil
}

// extractKeyID reads the kid from the unverified token header.
func extractKeyID(tokenString string) (string, error) {
	token, _, err := jwt.NewParser().ParseUnverified(tokenString, jwt.MapClaims{})
	if err != nil {
		return "", ErrMalformedToken
	}
	kid, ok := token.Header["kid"].(string)
	if !ok || kid == "" {
		return "", ErrMalformedToken
	}
	return kid, nil
}

// classifyTokenError maps parser failures onto the authentication taxonomy.
// Errors this package raised inside the keyfunc, and key-ring fetch
// failures, pass through as themselves.
func classifyTokenError(err error) error {
	var fetchErr *jwks.KeyFetchError
	switch {
	case errors.Is(err, ErrUnsupportedAlgorithm):
		return ErrUnsupportedAlgorithm
	case errors.Is(err, ErrUnknownSigningKey):
		return ErrUnknownSigningKey
	case errors.As(err, &fetchErr):
		return fetchErr
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrTokenExpired
	case errors.Is(err, jwt.ErrTokenInvalidAudience):
		return ErrInvalidAudience
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return ErrInvalidIssuer
	case errors.Is(err, jwt.ErrTokenMalformed):
		return ErrMalformedToken
	default:
		return ErrInvalidToken
	}
}
