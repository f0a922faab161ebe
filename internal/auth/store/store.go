// Package store persists local users and resolves verified token claims to
// principals.
package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Bikorwhat/ecommerce/internal/audit"
	"github.com/Bikorwhat/ecommerce/internal/auth"
	"github.com/Bikorwhat/ecommerce/internal/platform/metrics"
)

// Sentinel errors for infrastructure facts. Services translate these into
// domain errors; they never reach a response body directly.
var (
	ErrNotFound      = errors.New("user not found")
	ErrAlreadyExists = errors.New("user already exists")
)

// UserStore is the durable local-user backend.
type UserStore interface {
	FindByUsername(ctx context.Context, username string) (*auth.LocalUser, error)
	// Create inserts the user, returning ErrAlreadyExists when the username
	// is taken so concurrent first-sight races resolve to a single record.
	Create(ctx context.Context, user *auth.LocalUser) error
}

// Resolver implements find-or-create principal resolution. The stored
// record is created at most once per subject; email and display name on the
// returned principal always reflect the latest claims without being
// persisted.
type Resolver struct {
	users   UserStore
	metrics *metrics.Metrics
	audit   *audit.Publisher
}

// NewResolver builds a resolver. The audit publisher may be nil.
func NewResolver(users UserStore, m *metrics.Metrics, publisher *audit.Publisher) *Resolver {
	return &Resolver{users: users, metrics: m, audit: publisher}
}

// Resolve looks up or creates the local user for the claims' subject and
// returns the per-request principal view.
func (r *Resolver) Resolve(ctx context.Context, claims auth.TokenClaims) (*auth.AuthenticatedPrincipal, error) {
	username := LocalUsername(claims.Subject)

	user, err := r.users.FindByUsername(ctx, username)
	switch {
	case errors.Is(err, ErrNotFound):
		user = &auth.LocalUser{
			ID:        uuid.New(),
			Username:  username,
			Email:     claims.Email,
			FirstName: claims.GivenName,
			LastName:  claims.FamilyName,
			CreatedAt: time.Now(),
		}
		if createErr := r.users.Create(ctx, user); createErr != nil {
			if !errors.Is(createErr, ErrAlreadyExists) {
				return nil, createErr
			}
			// Lost a concurrent first-sight race; use the winner's record.
			user, err = r.users.FindByUsername(ctx, username)
			if err != nil {
				return nil, err
			}
		} else {
			r.metrics.UsersCreated.Inc()
			if r.audit != nil {
				r.audit.Emit(ctx, audit.Event{
					SubjectID: claims.Subject,
					Action:    audit.ActionUserCreated,
				})
			}
		}
	case err != nil:
		return nil, err
	}

	return &auth.AuthenticatedPrincipal{
		SubjectID:   claims.Subject,
		LocalID:     user.ID,
		Username:    username,
		Email:       principalEmail(claims, user),
		DisplayName: displayName(claims, user, username),
	}, nil
}

// LocalUsername derives the stored username from a provider subject by
// replacing the provider's namespace delimiter.
func LocalUsername(subject string) string {
	return strings.ReplaceAll(subject, "|", "_")
}

func principalEmail(claims auth.TokenClaims, user *auth.LocalUser) string {
	if claims.Email != "" {
		return claims.Email
	}
	return user.Email
}

func displayName(claims auth.TokenClaims, user *auth.LocalUser, fallback string) string {
	if claims.FullName != "" {
		return claims.FullName
	}
	if name := strings.TrimSpace(user.FirstName + " " + user.LastName); name != "" {
		return name
	}
	return fallback
}
