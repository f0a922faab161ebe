// Package jwks caches the identity provider's published signing keys.
//
// The cache holds one key ring at a time and replaces it wholesale: a refresh
// either installs a complete new ring or leaves the previous ring in place
// and surfaces the failure. Refreshes triggered by concurrent requests are
// coalesced so the provider sees at most one in-flight fetch.
package jwks

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
)

const tracerName = "github.com/Bikorwhat/ecommerce/internal/auth/jwks"

// ErrKeyNotFound is returned when a key id is absent even after a refresh.
var ErrKeyNotFound = errors.New("signing key not found in key set")

// KeyFetchError reports that the key set could not be fetched. The prior
// ring, if any, is still cached but is never silently used for a stale or
// missing key id.
type KeyFetchError struct {
	Cause error
}

func (e *KeyFetchError) Error() string { return fmt.Sprintf("fetch jwks: %v", e.Cause) }

func (e *KeyFetchError) Unwrap() error { return e.Cause }

// Clock is injected so TTL behavior is testable.
type Clock func() time.Time

// keyRing is an immutable snapshot of the provider's RSA keys.
type keyRing struct {
	keys      map[string]*rsa.PublicKey
	fetchedAt time.Time
}

// Cache resolves key ids to RSA verification keys, fetching the provider's
// JWKS endpoint on first use, on TTL expiry, and on unknown key ids (key
// rotation). Safe for concurrent use.
type Cache struct {
	url       string
	ttl       time.Duration
	client    *http.Client
	clock     Clock
	tracer    trace.Tracer
	refreshes *prometheus.CounterVec

	mu   sync.RWMutex
	ring *keyRing

	group singleflight.Group
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock sets the clock used for TTL checks.
func WithClock(clock Clock) Option {
	return func(c *Cache) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// WithHTTPClient overrides the fetch client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Cache) {
		if client != nil {
			c.client = client
		}
	}
}

// WithRefreshMetrics counts ring refreshes by outcome on the given vector.
func WithRefreshMetrics(refreshes *prometheus.CounterVec) Option {
	return func(c *Cache) {
		c.refreshes = refreshes
	}
}

// New builds a cache for the given JWKS URL. A zero ttl means the ring is
// refreshed on every miss only after it has been fetched once per process;
// callers should pass an explicit TTL.
func New(jwksURL string, ttl time.Duration, opts ...Option) *Cache {
	c := &Cache{
		url:    jwksURL,
		ttl:    ttl,
		client: &http.Client{Timeout: 10 * time.Second},
		clock:  time.Now,
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetSigningKey resolves kid to a verification key. A fresh ring is
// consulted first; a miss or a stale ring triggers a refresh before the
// final lookup. Returns ErrKeyNotFound when the provider does not publish
// the kid, or *KeyFetchError when the ring could not be (re)fetched.
func (c *Cache) GetSigningKey(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	c.mu.RLock()
	ring := c.ring
	c.mu.RUnlock()

	if ring != nil && c.clock().Sub(ring.fetchedAt) < c.ttl {
		if key, ok := ring.keys[kid]; ok {
			return key, nil
		}
		// Unknown kid on a fresh ring may be a rotation; refetch once.
	}

	ring, err := c.refresh(ctx)
	if err != nil {
		return nil, err
	}
	if key, ok := ring.keys[kid]; ok {
		return key, nil
	}
	return nil, ErrKeyNotFound
}

// refresh fetches and installs a new ring, coalescing concurrent callers.
func (c *Cache) refresh(ctx context.Context) (*keyRing, error) {
	v, err, _ := c.group.Do("refresh", func() (any, error) {
		keys, err := c.fetch(ctx)
		if err != nil {
			c.countRefresh("failure")
			return nil, &KeyFetchError{Cause: err}
		}
		c.countRefresh("success")
		ring := &keyRing{keys: keys, fetchedAt: c.clock()}
		c.mu.Lock()
		c.ring = ring
		c.mu.Unlock()
		return ring, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*keyRing), nil
}

func (c *Cache) countRefresh(outcome string) {
	if c.refreshes != nil {
		c.refreshes.WithLabelValues(outcome).Inc()
	}
}

type jwksDocument struct {
	Keys []jwkKey `json:"keys"`
}

type jwkKey struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// fetch retrieves the full key set. Entries without a kid and non-RSA
// entries are skipped; a set with no usable key is an error, never an empty
// ring treated as success.
func (c *Cache) fetch(ctx context.Context) (map[string]*rsa.PublicKey, error) {
	ctx, span := c.tracer.Start(ctx, "jwks.fetch")
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("build jwks request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("jwks endpoint returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read jwks response: %w", err)
	}

	var doc jwksDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("parse jwks response: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(doc.Keys))
	for _, k := range doc.Keys {
		if k.Kid == "" || k.Kty != "RSA" {
			continue
		}
		pub, err := parseRSAPublicKey(k.N, k.E)
		if err != nil {
			continue
		}
		keys[k.Kid] = pub
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("jwks response contained no usable RSA keys")
	}
	return keys, nil
}

// parseRSAPublicKey reconstructs a public key from base64url modulus and
// exponent values.
func parseRSAPublicKey(nB64, eB64 string) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(nB64)
	if err != nil {
		return nil, fmt.Errorf("decode modulus: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(eB64)
	if err != nil {
		return nil, fmt.Errorf("decode exponent: %w", err)
	}
	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nBytes),
		E: int(new(big.Int).SetBytes(eBytes).Int64()),
	}, nil
}
