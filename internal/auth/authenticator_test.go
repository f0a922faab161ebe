package auth_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/Bikorwhat/ecommerce/internal/auth"
	"github.com/Bikorwhat/ecommerce/internal/auth/jwks"
	"github.com/Bikorwhat/ecommerce/internal/auth/store"
	"github.com/Bikorwhat/ecommerce/internal/platform/metrics"
)

const (
	testAudience = "https://shop.example.com/api"
	testIssuer   = "https://tenant.auth0.test/"
	testKeyID    = "signing-key-1"
)

type AuthenticatorSuite struct {
	suite.Suite

	key    *rsa.PrivateKey
	server *httptest.Server
	users  *store.InMemoryUserStore
	auth   *auth.Authenticator
}

func (s *AuthenticatorSuite) SetupTest() {
	var err error
	s.key, err = rsa.GenerateKey(rand.Reader, 2048)
	s.Require().NoError(err)

	s.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		s.Require().NoError(json.NewEncoder(w).Encode(map[string]any{
			"keys": []map[string]string{{
				"kty": "RSA",
				"use": "sig",
				"alg": "RS256",
				"kid": testKeyID,
				"n":   base64.RawURLEncoding.EncodeToString(s.key.PublicKey.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(s.key.PublicKey.E)).Bytes()),
			}},
		}))
	}))

	m := metrics.NewWith(prometheus.NewRegistry())
	s.users = store.NewInMemoryUserStore()
	resolver := store.NewResolver(s.users, m, nil)
	cache := jwks.New(s.server.URL, time.Hour)
	s.auth = auth.NewAuthenticator(cache, resolver, testAudience, testIssuer, m)
}

func (s *AuthenticatorSuite) TearDownTest() {
	s.server.Close()
}

func TestAuthenticatorSuite(t *testing.T) {
	suite.Run(t, new(AuthenticatorSuite))
}

func (s *AuthenticatorSuite) signToken(kid string, claims jwt.MapClaims) string {
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid
	signed, err := token.SignedString(s.key)
	s.Require().NoError(err)
	return signed
}

func (s *AuthenticatorSuite) validClaims() jwt.MapClaims {
	return jwt.MapClaims{
		"sub": "auth0|user42",
		"aud": testAudience,
		"iss": testIssuer,
		"exp": time.Now().Add(time.Hour).Unix(),
	}
}

func (s *AuthenticatorSuite) TestValidTokenResolvesPrincipal() {
	claims := s.validClaims()
	claims["email"] = "dipesh@example.com"
	claims["name"] = "Dipesh Karki"
	token := s.signToken(testKeyID, claims)

	principal, err := s.auth.Authenticate(context.Background(), token)
	s.Require().NoError(err)

	s.Equal("auth0|user42", principal.SubjectID)
	s.Equal("auth0_user42", principal.Username)
	s.Equal("dipesh@example.com", principal.Email)
	s.Equal("Dipesh Karki", principal.DisplayName)
	s.Equal(token, principal.RawToken)

	// The local user exists after the first successful authentication.
	_, err = s.users.FindByUsername(context.Background(), "auth0_user42")
	s.NoError(err)
}

func (s *AuthenticatorSuite) TestUnknownKeyID() {
	token := s.signToken("retired-key", s.validClaims())

	_, err := s.auth.Authenticate(context.Background(), token)
	s.ErrorIs(err, auth.ErrUnknownSigningKey)
}

func (s *AuthenticatorSuite) TestExpiredToken() {
	claims := s.validClaims()
	claims["exp"] = time.Now().Add(-time.Minute).Unix()
	token := s.signToken(testKeyID, claims)

	_, err := s.auth.Authenticate(context.Background(), token)
	s.ErrorIs(err, auth.ErrTokenExpired)
}

func (s *AuthenticatorSuite) TestWrongAudience() {
	claims := s.validClaims()
	claims["aud"] = "https://other.example.com/api"
	token := s.signToken(testKeyID, claims)

	_, err := s.auth.Authenticate(context.Background(), token)
	s.ErrorIs(err, auth.ErrInvalidAudience)
}

func (s *AuthenticatorSuite) TestWrongIssuer() {
	claims := s.validClaims()
	claims["iss"] = "https://rogue.auth0.test/"
	token := s.signToken(testKeyID, claims)

	_, err := s.auth.Authenticate(context.Background(), token)
	s.ErrorIs(err, auth.ErrInvalidIssuer)
}

func (s *AuthenticatorSuite) TestSymmetricAlgorithmRejected() {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, s.validClaims())
	token.Header["kid"] = testKeyID
	signed, err := token.SignedString([]byte("shared-secret"))
	s.Require().NoError(err)

	_, err = s.auth.Authenticate(context.Background(), signed)
	s.ErrorIs(err, auth.ErrUnsupportedAlgorithm)
}

func (s *AuthenticatorSuite) TestMissingSubject() {
	claims := s.validClaims()
	delete(claims, "sub")
	token := s.signToken(testKeyID, claims)

	_, err := s.auth.Authenticate(context.Background(), token)
	s.ErrorIs(err, auth.ErrMissingSubjectClaim)
}

func (s *AuthenticatorSuite) TestMissingKeyIDHeader() {
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, s.validClaims())
	signed, err := token.SignedString(s.key)
	s.Require().NoError(err)

	_, err = s.auth.Authenticate(context.Background(), signed)
	s.ErrorIs(err, auth.ErrMalformedToken)
}

func (s *AuthenticatorSuite) TestGarbageToken() {
	_, err := s.auth.Authenticate(context.Background(), "not.a.jwt")
	s.ErrorIs(err, auth.ErrMalformedToken)
}

func (s *AuthenticatorSuite) TestTamperedSignature() {
	token := s.signToken(testKeyID, s.validClaims())

	_, err := s.auth.Authenticate(context.Background(), token+"x")
	s.ErrorIs(err, auth.ErrInvalidToken)
}

func (s *AuthenticatorSuite) TestProviderOutageSurfacesFetchError() {
	m := metrics.NewWith(prometheus.NewRegistry())
	cache := jwks.New("http://127.0.0.1:1/jwks.json", time.Hour)
	authn := auth.NewAuthenticator(cache, store.NewResolver(s.users, m, nil), testAudience, testIssuer, m)

	_, err := authn.Authenticate(context.Background(), s.signToken(testKeyID, s.validClaims()))
	var fetchErr *jwks.KeyFetchError
	s.ErrorAs(err, &fetchErr)
}

func TestParseBearer(t *testing.T) {
	t.Run("absent header", func(t *testing.T) {
		token, ok, err := auth.ParseBearer("")
		require.NoError(t, err)
		require.False(t, ok)
		require.Empty(t, token)
	})

	t.Run("well formed", func(t *testing.T) {
		token, ok, err := auth.ParseBearer("Bearer abc.def.ghi")
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, "abc.def.ghi", token)
	})

	t.Run("case insensitive scheme", func(t *testing.T) {
		token, ok, err := auth.ParseBearer("bearer abc")
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, "abc", token)
	})

	t.Run("wrong scheme", func(t *testing.T) {
		_, _, err := auth.ParseBearer("Basic dXNlcjpwYXNz")
		require.ErrorIs(t, err, auth.ErrMalformedAuthHeader)
	})

	t.Run("missing token", func(t *testing.T) {
		_, _, err := auth.ParseBearer("Bearer")
		require.ErrorIs(t, err, auth.ErrMalformedAuthHeader)
	})

	t.Run("too many parts", func(t *testing.T) {
		_, _, err := auth.ParseBearer("Bearer one two")
		require.ErrorIs(t, err, auth.ErrMalformedAuthHeader)
	})
}
