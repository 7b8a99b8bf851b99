// Package idp verifies externally issued identity tokens and materializes
// local users for them. It is an alternate identity provider plugged in
// behind the same find-or-create contract the session layer uses; the
// cookie-session path never consults it.
package idp

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"
)

// ErrKeyNotFound indicates no signing key matches the requested key id,
// even after a refresh.
var ErrKeyNotFound = errors.New("idp: signing key not found")

// FetchFunc retrieves the current signing key set, keyed by key id.
type FetchFunc func(ctx context.Context) (map[string]*rsa.PublicKey, error)

// KeyCache is a read-through cache of identity-provider signing keys:
// fetch on miss, refresh when the set is older than ttl. It is safe for
// concurrent use and is injected wherever key lookup is needed — there is
// no package-level singleton.
type KeyCache struct {
	fetch FetchFunc
	ttl   time.Duration
	now   func() time.Time

	mu        sync.RWMutex
	keys      map[string]*rsa.PublicKey
	fetchedAt time.Time
}

// NewKeyCache constructs a cache around the fetch function. A zero ttl
// disables age-based refresh; misses still trigger a fetch.
func NewKeyCache(fetch FetchFunc, ttl time.Duration) (*KeyCache, error) {
	if fetch == nil {
		return nil, errors.New("idp: fetch function is required")
	}
	return &KeyCache{fetch: fetch, ttl: ttl, now: time.Now}, nil
}

// Key returns the public key for kid, fetching the key set when the kid is
// unknown or the cached set has gone stale.
func (c *KeyCache) Key(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	c.mu.RLock()
	key, ok := c.keys[kid]
	fresh := c.ttl <= 0 || c.now().Sub(c.fetchedAt) < c.ttl
	c.mu.RUnlock()
	if ok && fresh {
		return key, nil
	}

	if err := c.Refresh(ctx); err != nil {
		// A stale key beats no key when the provider is briefly down.
		if ok {
			return key, nil
		}
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if key, ok := c.keys[kid]; ok {
		return key, nil
	}
	return nil, ErrKeyNotFound
}

// Refresh replaces the cached key set unconditionally.
func (c *KeyCache) Refresh(ctx context.Context) error {
	keys, err := c.fetch(ctx)
	if err != nil {
		return fmt.Errorf("idp: fetch keys: %w", err)
	}
	c.mu.Lock()
	c.keys = keys
	c.fetchedAt = c.now()
	c.mu.Unlock()
	return nil
}

type jwksDocument struct {
	Keys []struct {
		Kid string `json:"kid"`
		Kty string `json:"kty"`
		N   string `json:"n"`
		E   string `json:"e"`
	} `json:"keys"`
}

// FetchJWKS returns a FetchFunc that downloads an RFC 7517 key set from the
// provider's well-known endpoint.
func FetchJWKS(client *http.Client, url string) FetchFunc {
	if client == nil {
		client = http.DefaultClient
	}
	return func(ctx context.Context) (map[string]*rsa.PublicKey, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("jwks endpoint returned %s", resp.Status)
		}
		var doc jwksDocument
		if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode jwks: %w", err)
		}
		keys := make(map[string]*rsa.PublicKey, len(doc.Keys))
		for _, k := range doc.Keys {
			if k.Kty != "RSA" || k.Kid == "" {
				continue
			}
			pub, err := rsaKeyFromComponents(k.N, k.E)
			if err != nil {
				continue
			}
			keys[k.Kid] = pub
		}
		return keys, nil
	}
}

func rsaKeyFromComponents(n, e string) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(n)
	if err != nil {
		return nil, err
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(e)
	if err != nil {
		return nil, err
	}
	eInt := new(big.Int).SetBytes(eBytes)
	if !eInt.IsInt64() || eInt.Int64() <= 0 {
		return nil, errors.New("invalid exponent")
	}
	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nBytes),
		E: int(eInt.Int64()),
	}, nil
}
