package jwks

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func generateKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return key
}

func jwksBody(t *testing.T, kids map[string]*rsa.PublicKey) []byte {
	t.Helper()
	doc := jwksDocument{}
	for kid, pub := range kids {
		doc.Keys = append(doc.Keys, jwkKey{
			Kty: "RSA",
			Kid: kid,
			Use: "sig",
			N:   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
			E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
		})
	}
	body, err := json.Marshal(doc)
	require.NoError(t, err)
	return body
}

// jwksServer serves a swappable key set and counts fetches.
type jwksServer struct {
	srv   *httptest.Server
	hits  atomic.Int64
	mu    sync.Mutex
	body  []byte
	fail  bool
}

func newJWKSServer(t *testing.T, kids map[string]*rsa.PublicKey) *jwksServer {
	t.Helper()
	s := &jwksServer{body: jwksBody(t, kids)}
	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.hits.Add(1)
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.fail {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(s.body)
	}))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *jwksServer) setKeys(t *testing.T, kids map[string]*rsa.PublicKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.body = jwksBody(t, kids)
}

func (s *jwksServer) setFail(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = fail
}

func Test_GetSigningKey_ResolvesAndCaches(t *testing.T) {
	key := generateKey(t)
	server := newJWKSServer(t, map[string]*rsa.PublicKey{"kid-1": &key.PublicKey})
	cache := New(server.srv.URL, time.Hour)

	got, err := cache.GetSigningKey(context.Background(), "kid-1")
	require.NoError(t, err)
	assert.Equal(t, 0, got.N.Cmp(key.PublicKey.N))

	// Second resolution within the TTL must not refetch.
	_, err = cache.GetSigningKey(context.Background(), "kid-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), server.hits.Load())
}

func Test_GetSigningKey_RefetchesAfterTTL(t *testing.T) {
	key := generateKey(t)
	server := newJWKSServer(t, map[string]*rsa.PublicKey{"kid-1": &key.PublicKey})

	now := time.Now()
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	cache := New(server.srv.URL, time.Hour, WithClock(clock))

	_, err := cache.GetSigningKey(context.Background(), "kid-1")
	require.NoError(t, err)

	mu.Lock()
	now = now.Add(2 * time.Hour)
	mu.Unlock()

	_, err = cache.GetSigningKey(context.Background(), "kid-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), server.hits.Load())
}

func Test_GetSigningKey_UnknownKidRefetchesOnce(t *testing.T) {
	key := generateKey(t)
	server := newJWKSServer(t, map[string]*rsa.PublicKey{"kid-1": &key.PublicKey})
	cache := New(server.srv.URL, time.Hour)

	_, err := cache.GetSigningKey(context.Background(), "kid-1")
	require.NoError(t, err)

	_, err = cache.GetSigningKey(context.Background(), "rotated-away")
	require.ErrorIs(t, err, ErrKeyNotFound)
	assert.Equal(t, int64(2), server.hits.Load())
}

func Test_GetSigningKey_PicksUpRotatedKey(t *testing.T) {
	oldKey := generateKey(t)
	newKey := generateKey(t)
	server := newJWKSServer(t, map[string]*rsa.PublicKey{"kid-old": &oldKey.PublicKey})
	cache := New(server.srv.URL, time.Hour)

	_, err := cache.GetSigningKey(context.Background(), "kid-old")
	require.NoError(t, err)

	server.setKeys(t, map[string]*rsa.PublicKey{"kid-new": &newKey.PublicKey})

	got, err := cache.GetSigningKey(context.Background(), "kid-new")
	require.NoError(t, err)
	assert.Equal(t, 0, got.N.Cmp(newKey.PublicKey.N))
}

func Test_GetSigningKey_FetchFailureSurfaced(t *testing.T) {
	server := newJWKSServer(t, nil)
	server.setFail(true)
	cache := New(server.srv.URL, time.Hour)

	_, err := cache.GetSigningKey(context.Background(), "kid-1")
	var fetchErr *KeyFetchError
	require.True(t, errors.As(err, &fetchErr))
}

func Test_GetSigningKey_FailedRefreshKeepsPriorRing(t *testing.T) {
	key := generateKey(t)
	server := newJWKSServer(t, map[string]*rsa.PublicKey{"kid-1": &key.PublicKey})

	now := time.Now()
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	cache := New(server.srv.URL, time.Hour, WithClock(clock))

	_, err := cache.GetSigningKey(context.Background(), "kid-1")
	require.NoError(t, err)

	mu.Lock()
	now = now.Add(2 * time.Hour)
	mu.Unlock()
	server.setFail(true)

	// Stale ring plus failed refresh surfaces the failure instead of
	// silently serving the stale key.
	_, err = cache.GetSigningKey(context.Background(), "kid-1")
	var fetchErr *KeyFetchError
	require.True(t, errors.As(err, &fetchErr))

	// Once the endpoint recovers, resolution works again.
	server.setFail(false)
	_, err = cache.GetSigningKey(context.Background(), "kid-1")
	require.NoError(t, err)
}

func Test_GetSigningKey_EmptyKeySetIsFetchError(t *testing.T) {
	server := newJWKSServer(t, map[string]*rsa.PublicKey{})
	cache := New(server.srv.URL, time.Hour)

	_, err := cache.GetSigningKey(context.Background(), "kid-1")
	var fetchErr *KeyFetchError
	require.True(t, errors.As(err, &fetchErr))
}

func Test_GetSigningKey_ConcurrentMissesCoalesce(t *testing.T) {
	key := generateKey(t)
	server := newJWKSServer(t, map[string]*rsa.PublicKey{"kid-1": &key.PublicKey})
	cache := New(server.srv.URL, time.Hour)

	const readers = 16
	var wg sync.WaitGroup
	errs := make([]error, readers)
	for i := 0; i < readers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = cache.GetSigningKey(context.Background(), "kid-1")
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	// Concurrent first-time misses collapse into very few upstream fetches.
	assert.LessOrEqual(t, server.hits.Load(), int64(2))
}
