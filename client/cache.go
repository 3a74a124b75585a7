package client

import (
	"time"

	cache "github.com/unkn0wn-root/kioshun"
)

// endpoint is a resolved peer address, cached to avoid re-querying
// GetPeerAddress for every transfer to the same user.
type endpoint struct {
	address string
}

// UserEndpointCache caches username -> network address resolutions from
// GetPeerAddress, bounded by a TTL since peers change IP/port across
// sessions.
type UserEndpointCache struct {
	cache *cache.InMemoryCache[string, endpoint]
	ttl   time.Duration
}

// newUserEndpointCache creates a cache with the given per-entry TTL.
func newUserEndpointCache(ttl time.Duration) *UserEndpointCache {
	cfg := cache.UserCacheConfig()
	cfg.DefaultTTL = ttl
	return &UserEndpointCache{
		cache: cache.New[string, endpoint](cfg),
		ttl:   ttl,
	}
}

// Get returns the cached address for username, if present and unexpired.
func (c *UserEndpointCache) Get(username string) (string, bool) {
	ep, ok := c.cache.Get(username)
	if !ok {
		return "", false
	}
	return ep.address, true
}

// Set stores the resolved address for username.
func (c *UserEndpointCache) Set(username, address string) {
	_ = c.cache.Set(username, endpoint{address: address}, c.ttl)
}

// Invalidate drops a cached address, used when a connection attempt to it fails.
func (c *UserEndpointCache) Invalidate(username string) {
	c.cache.Delete(username)
}

// Close releases the cache's background cleanup goroutine.
func (c *UserEndpointCache) Close() {
	_ = c.cache.Close()
}

// SearchResponseCache buffers search responses that arrived before the
// requester registered a listener for the token (e.g. an embedded server
// response racing search registration), keyed by search token.
type SearchResponseCache struct {
	cache *cache.InMemoryCache[uint32, []byte]
}

// newSearchResponseCache creates a short-lived buffer for late-bound search responses.
func newSearchResponseCache() *SearchResponseCache {
	cfg := cache.TemporaryCacheConfig()
	cfg.DefaultTTL = time.Minute
	return &SearchResponseCache{
		cache: cache.New[uint32, []byte](cfg),
	}
}

// Buffer stores a raw search response payload for token.
func (c *SearchResponseCache) Buffer(token uint32, payload []byte) {
	_ = c.cache.Set(token, payload, time.Minute)
}

// Take returns and removes a buffered response for token, if any.
func (c *SearchResponseCache) Take(token uint32) ([]byte, bool) {
	payload, ok := c.cache.Get(token)
	if ok {
		c.cache.Delete(token)
	}
	return payload, ok
}

// Close releases the cache's background cleanup goroutine.
func (c *SearchResponseCache) Close() {
	_ = c.cache.Close()
}
